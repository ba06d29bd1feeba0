package model

import (
	"fmt"
	"strings"
)

// TargetKind discriminates the two things a user can submit for scanning.
type TargetKind string

const (
	TargetFile TargetKind = "file"
	TargetURL  TargetKind = "url"
)

// ScanTarget is either a FileTarget or a URLTarget. It is created by the
// caller and consumed once by submission.
type ScanTarget interface {
	Kind() TargetKind
	// Describe returns a short label suitable for logs.
	Describe() string

	isScanTarget()
}

// FileTarget is a file to upload under its original name.
type FileTarget struct {
	Name string
	Data []byte
}

func (FileTarget) Kind() TargetKind { return TargetFile }

func (f FileTarget) Describe() string {
	return fmt.Sprintf("%s (%d bytes)", f.Name, len(f.Data))
}

func (FileTarget) isScanTarget() {}

// URLTarget is a URL to register with the service.
type URLTarget struct {
	URL string
}

func (URLTarget) Kind() TargetKind { return TargetURL }

func (u URLTarget) Describe() string { return u.URL }

func (URLTarget) isScanTarget() {}

// AnalysisHandle identifies one pending or completed analysis. Normally it is
// the analysis self-link returned at submission.
type AnalysisHandle string

func (h AnalysisHandle) String() string { return string(h) }

// IsLink reports whether the handle is an absolute link rather than a bare
// analysis ID.
func (h AnalysisHandle) IsLink() bool {
	return strings.Contains(string(h), "://")
}
