package server

// ScanURLRequest is the payload for submitting a URL for scanning.
type ScanURLRequest struct {
	URL string `json:"url" example:"https://example.com/download"`
}

// HealthResponse reports that the API is serving.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}
