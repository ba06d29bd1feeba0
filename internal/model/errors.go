package model

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse is the cause of a SubmissionError when the service
	// answers with a body that carries no analysis link.
	ErrMalformedResponse = errors.New("malformed response")
	ErrNilTarget         = errors.New("nil scan target")
	ErrEmptyHandle       = errors.New("empty analysis handle")
)

// SubmissionError is returned when a file or URL could not be submitted.
type SubmissionError struct {
	Cause error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed: %v", e.Cause)
}

func (e *SubmissionError) Unwrap() error { return e.Cause }

// PollError is returned when a poll request or its response fails. The
// analysis handle stays valid, so polling can be resumed.
type PollError struct {
	Cause error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll failed: %v", e.Cause)
}

func (e *PollError) Unwrap() error { return e.Cause }

// ParseError names a required field missing from an otherwise readable
// response. Field is a dotted path such as "data.attributes.status".
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("parse %s: missing or invalid field", e.Field)
}

func (e *ParseError) Unwrap() error { return e.Err }

// APIError is the error document returned by the service on non-2xx
// responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}
