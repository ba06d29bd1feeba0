package analyzer

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-json-experiment/json"

	"github.com/sentinelapp/sentinel/internal/model"
	"github.com/sentinelapp/sentinel/internal/webclient"
)

// serviceHeaders returns the headers every call to the service carries.
func serviceHeaders(apiKey string) http.Header {
	h := http.Header{}
	h.Set("accept", "application/json")
	h.Set("x-apikey", apiKey)
	return h
}

// analysisURL resolves a handle to the URL to GET. A bare analysis ID is
// looked up under /analyses.
func analysisURL(baseURL string, handle model.AnalysisHandle) (string, error) {
	h := strings.TrimSpace(string(handle))
	if h == "" {
		return "", model.ErrEmptyHandle
	}
	if model.AnalysisHandle(h).IsLink() {
		return h, nil
	}
	return baseURL + "/analyses/" + url.PathEscape(h), nil
}

type errorDocument struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// responseError converts a non-2xx response to *model.APIError, using the
// service's error document when the body carries one.
func responseError(resp *webclient.Response) error {
	apiErr := &model.APIError{StatusCode: resp.StatusCode}
	var doc errorDocument
	if err := json.Unmarshal(resp.Body, &doc); err == nil && doc.Error != nil {
		apiErr.Code = doc.Error.Code
		apiErr.Message = doc.Error.Message
	}
	return apiErr
}
