package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-json-experiment/json"

	"github.com/sentinelapp/sentinel/internal/logging"
	"github.com/sentinelapp/sentinel/internal/model"
	"github.com/sentinelapp/sentinel/internal/utils"
	"github.com/sentinelapp/sentinel/internal/webclient"
)

// SubmissionClient submits targets to the service. It never retries: one
// Submit is one outbound call.
type SubmissionClient struct {
	cfg    Config
	client webclient.WebClient
	logger logging.Logger
}

// NewSubmissionClient creates a SubmissionClient. cfg is completed with
// defaults.
func NewSubmissionClient(cfg Config, client webclient.WebClient, logger logging.Logger) *SubmissionClient {
	return &SubmissionClient{
		cfg:    cfg.WithDefaults(),
		client: client,
		logger: logger.With(logging.Field{Key: "component", Value: "submitter"}),
	}
}

type submissionDocument struct {
	Data *struct {
		ID    string `json:"id"`
		Links *struct {
			Self string `json:"self"`
		} `json:"links"`
	} `json:"data"`
}

// Submit uploads a FileTarget to /files or registers a URLTarget at /urls and
// returns the analysis self-link. Every failure is a *model.SubmissionError.
func (s *SubmissionClient) Submit(ctx context.Context, target model.ScanTarget) (model.AnalysisHandle, error) {
	req, err := s.buildRequest(target)
	if err != nil {
		return "", &model.SubmissionError{Cause: err}
	}

	s.logger.Info("submitting target",
		logging.Field{Key: "kind", Value: string(target.Kind())},
		logging.Field{Key: "target", Value: target.Describe()})

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		s.logger.Warn("submission request failed", logging.Field{Key: "error", Value: err.Error()})
		return "", &model.SubmissionError{Cause: err}
	}
	if !resp.OK() {
		cause := responseError(resp)
		s.logger.Warn("submission rejected", logging.Field{Key: "error", Value: cause.Error()})
		return "", &model.SubmissionError{Cause: cause}
	}

	var doc submissionDocument
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		s.logger.Warn("decoding submission response", logging.Field{Key: "error", Value: err.Error()})
		return "", &model.SubmissionError{Cause: model.ErrMalformedResponse}
	}
	if doc.Data == nil || doc.Data.Links == nil || strings.TrimSpace(doc.Data.Links.Self) == "" {
		return "", &model.SubmissionError{Cause: model.ErrMalformedResponse}
	}

	handle := model.AnalysisHandle(doc.Data.Links.Self)
	s.logger.Info("target submitted",
		logging.Field{Key: "kind", Value: string(target.Kind())},
		logging.Field{Key: "analysis", Value: handle.String()})
	return handle, nil
}

func (s *SubmissionClient) buildRequest(target model.ScanTarget) (*webclient.Request, error) {
	headers := serviceHeaders(s.cfg.APIKey)

	switch t := target.(type) {
	case nil:
		return nil, model.ErrNilTarget
	case model.FileTarget:
		body, contentType, err := multipartFile(t)
		if err != nil {
			return nil, err
		}
		headers.Set("Content-Type", contentType)
		return &webclient.Request{Method: http.MethodPost, URL: s.cfg.BaseURL + "/files", Headers: headers, Body: body}, nil
	case *model.FileTarget:
		if t == nil {
			return nil, model.ErrNilTarget
		}
		return s.buildRequest(*t)
	case model.URLTarget:
		target, err := utils.CheckURL(t.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid url target: %w", err)
		}
		headers.Set("Content-Type", "application/x-www-form-urlencoded")
		form := url.Values{"url": {target}}
		return &webclient.Request{Method: http.MethodPost, URL: s.cfg.BaseURL + "/urls", Headers: headers, Body: []byte(form.Encode())}, nil
	case *model.URLTarget:
		if t == nil {
			return nil, model.ErrNilTarget
		}
		return s.buildRequest(*t)
	default:
		return nil, fmt.Errorf("unsupported target type %T", target)
	}
}

// multipartFile encodes f as the single form part "file".
func multipartFile(f model.FileTarget) ([]byte, string, error) {
	name := f.Name
	if name == "" {
		name = "upload.bin"
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
