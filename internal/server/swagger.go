package server

//go:generate swag init -g internal/server/swagger.go -o internal/server/docs

// @title Sentinel API
// @version 0.1
// @description Submit files and URLs to the scanning service and follow their analyses.
// @contact.name Sentinel Maintainers
// @BasePath /
