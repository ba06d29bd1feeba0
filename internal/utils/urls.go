// Package utils holds helpers for URL scan targets.
package utils

import (
	"errors"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var (
	ErrEmptyURL    = errors.New("empty url")
	ErrMissingHost = errors.New("missing host")
)

// CheckURL trims surrounding whitespace from raw and verifies that it parses
// with a host. The result is otherwise exactly what the caller gave:
// credentials, fragment, scheme and query all reach the service as written.
func CheckURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &url.Error{Op: "check", URL: raw, Err: ErrEmptyURL}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", &url.Error{Op: "check", URL: raw, Err: ErrMissingHost}
	}
	return raw, nil
}

// IDNHost returns both forms of an internationalized host in raw: the
// punycode form and the Unicode form. ok is false for plain ASCII hosts and
// for anything that is not a valid IDNA name.
func IDNHost(raw string) (ascii, unicode string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Hostname() == "" {
		return "", "", false
	}
	host := strings.ToLower(u.Hostname())
	ascii, err = idna.Lookup.ToASCII(host)
	if err != nil {
		return "", "", false
	}
	unicode, err = idna.Display.ToUnicode(ascii)
	if err != nil || ascii == unicode {
		return "", "", false
	}
	return ascii, unicode, true
}
