// Package docs registers the Sentinel API swagger document with swag.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "Sentinel Maintainers"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.HealthResponse"}}
                }
            }
        },
        "/scans": {
            "get": {
                "produces": ["application/json"],
                "tags": ["scans"],
                "summary": "List scan jobs",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/app.Job"}}}
                }
            }
        },
        "/scans/files": {
            "post": {
                "description": "Uploads the multipart part \"file\" to the scanning service and starts a job that polls its analysis.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["scans"],
                "summary": "Scan a file",
                "parameters": [
                    {"type": "file", "description": "file to scan", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/app.Job"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/scans/urls": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["scans"],
                "summary": "Scan a URL",
                "parameters": [
                    {"description": "URL to scan", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.ScanURLRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/app.Job"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/scans/{jobID}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["scans"],
                "summary": "Get a scan job",
                "parameters": [
                    {"type": "string", "description": "job ID", "name": "jobID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/app.Job"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            },
            "delete": {
                "description": "The job stops after its current poll and keeps the latest report.",
                "tags": ["scans"],
                "summary": "Cancel a scan job",
                "parameters": [
                    {"type": "string", "description": "job ID", "name": "jobID", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/ws/scans/{jobID}": {
            "get": {
                "description": "Upgrades to a WebSocket, sends the job snapshot, then every job event until the job ends, then the final snapshot.",
                "tags": ["scans"],
                "summary": "Stream scan progress",
                "parameters": [
                    {"type": "string", "description": "job ID", "name": "jobID", "in": "path", "required": true}
                ],
                "responses": {
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "app.Job": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "kind": {"type": "string", "enum": ["file", "url"]},
                "target": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "running", "done", "failed", "canceled"]},
                "analysis": {"type": "string"},
                "report": {"$ref": "#/definitions/model.ScanReport"},
                "error": {"type": "string"},
                "started_at": {"type": "string", "format": "date-time"},
                "ended_at": {"type": "string", "format": "date-time"}
            }
        },
        "model.EngineVerdict": {
            "type": "object",
            "properties": {
                "engine_name": {"type": "string"},
                "category": {"type": "string"},
                "result": {"type": "string"},
                "is_threat": {"type": "boolean"}
            }
        },
        "model.ScanReport": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["queued", "in-progress", "completed", "failed"]},
                "verdicts": {"type": "array", "items": {"$ref": "#/definitions/model.EngineVerdict"}},
                "stats": {"type": "object", "additionalProperties": {"type": "integer"}},
                "subject": {"type": "object"}
            }
        },
        "server.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string", "example": "not found"}}
        },
        "server.HealthResponse": {
            "type": "object",
            "properties": {"status": {"type": "string", "example": "ok"}}
        },
        "server.ScanURLRequest": {
            "type": "object",
            "properties": {"url": {"type": "string", "example": "https://example.com/download"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Sentinel API",
	Description:      "Submit files and URLs to the scanning service and follow their analyses.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
