package webclient

import "time"

type Client string

const (
	ClientNetHTTP Client = "nethttp"
)

// Config selects and tunes the WebClient backend.
type Config struct {
	Client Client

	// Timeout bounds one request including reading the body. Zero means 30s.
	Timeout time.Duration

	// MaxBodyBytes caps how much of a response body is read. Zero means no cap.
	MaxBodyBytes int64

	// UserAgent is sent on every request when set.
	UserAgent string
}
