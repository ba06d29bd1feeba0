package model

import (
	"fmt"

	"github.com/go-json-experiment/json"
)

// ScanStatus is the lifecycle state of one analysis.
type ScanStatus string

const (
	StatusQueued     ScanStatus = "queued"
	StatusInProgress ScanStatus = "in-progress"
	StatusCompleted  ScanStatus = "completed"
	StatusFailed     ScanStatus = "failed"
)

// ParseStatus maps the service's free-text status to a ScanStatus. Only the
// literal "completed" is terminal; every other value keeps the poll loop
// going. Failed is never produced here.
func ParseStatus(s string) ScanStatus {
	switch s {
	case "completed":
		return StatusCompleted
	case "queued":
		return StatusQueued
	default:
		return StatusInProgress
	}
}

// Terminal reports whether no further polling is meaningful.
func (s ScanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Category is one engine's classification.
type Category string

const (
	CategoryHarmless        Category = "harmless"
	CategoryUndetected      Category = "undetected"
	CategoryMalicious       Category = "malicious"
	CategorySuspicious      Category = "suspicious"
	CategoryTimeout         Category = "timeout"
	CategoryFailure         Category = "failure"
	CategoryTypeUnsupported Category = "type-unsupported"
	CategoryOther           Category = "other"
)

// ParseCategory maps a textual category to a Category. Unknown values map to
// CategoryOther so new verdict kinds from the service do not break parsing.
func ParseCategory(s string) Category {
	switch c := Category(s); c {
	case CategoryHarmless, CategoryUndetected, CategoryMalicious, CategorySuspicious,
		CategoryTimeout, CategoryFailure, CategoryTypeUnsupported:
		return c
	default:
		return CategoryOther
	}
}

// IsThreat is true for malicious and suspicious.
func (c Category) IsThreat() bool {
	return c == CategoryMalicious || c == CategorySuspicious
}

// DefaultResultLabel is used when an engine reports no label.
const DefaultResultLabel = "N/A"

// EngineVerdict is one engine's result.
type EngineVerdict struct {
	EngineName  string   `json:"engine_name"`
	Category    Category `json:"category"`
	ResultLabel string   `json:"result"`
	IsThreat    bool     `json:"is_threat"`
}

// NewEngineVerdict builds a verdict with IsThreat derived from the category.
func NewEngineVerdict(engine string, category Category, label string) EngineVerdict {
	if label == "" {
		label = DefaultResultLabel
	}
	return EngineVerdict{
		EngineName:  engine,
		Category:    category,
		ResultLabel: label,
		IsThreat:    category.IsThreat(),
	}
}

// ScanStats holds per-category counts reported by the service.
type ScanStats struct {
	Malicious       int `json:"malicious"`
	Suspicious      int `json:"suspicious"`
	Undetected      int `json:"undetected"`
	Harmless        int `json:"harmless"`
	Timeout         int `json:"timeout"`
	Failure         int `json:"failure"`
	TypeUnsupported int `json:"type_unsupported"`
}

// Total sums every category.
func (s ScanStats) Total() int {
	return s.Malicious + s.Suspicious + s.Undetected + s.Harmless + s.Timeout + s.Failure + s.TypeUnsupported
}

// Threats is malicious + suspicious.
func (s ScanStats) Threats() int {
	return s.Malicious + s.Suspicious
}

// SubjectInfo is FileInfo or URLInfo, depending on what was scanned.
type SubjectInfo interface {
	Kind() TargetKind

	isSubjectInfo()
}

// FileInfo describes a scanned file. SizeBytes is the raw size reported by
// the service.
type FileInfo struct {
	SHA256    string `json:"sha256"`
	MD5       string `json:"md5"`
	SHA1      string `json:"sha1"`
	SizeBytes int64  `json:"size"`
}

func (FileInfo) Kind() TargetKind { return TargetFile }
func (FileInfo) isSubjectInfo()   {}

// URLInfo describes a scanned URL.
type URLInfo struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (URLInfo) Kind() TargetKind { return TargetURL }
func (URLInfo) isSubjectInfo()   {}

// ScanReport is one snapshot of an analysis. Each poll produces a new report
// that fully replaces the previous one.
//
// Stats are only guaranteed to agree with Verdicts once Status is
// StatusCompleted; callers must not sum Verdicts in place of Stats.
type ScanReport struct {
	Status   ScanStatus
	Reason   string
	Verdicts []EngineVerdict
	Stats    ScanStats
	Subject  SubjectInfo
}

// FailedReport marks a scan attempt as failed. Verdicts, stats and subject
// of last are kept when it is non-nil.
func FailedReport(last *ScanReport, reason string) *ScanReport {
	r := &ScanReport{}
	if last != nil {
		*r = *last
	}
	r.Status = StatusFailed
	r.Reason = reason
	return r
}

// Threats returns the verdicts flagged as threats, in report order.
func (r *ScanReport) Threats() []EngineVerdict {
	var out []EngineVerdict
	for _, v := range r.Verdicts {
		if v.IsThreat {
			out = append(out, v)
		}
	}
	return out
}

type fileSubjectJSON struct {
	Kind   TargetKind `json:"kind"`
	SHA256 string     `json:"sha256"`
	MD5    string     `json:"md5"`
	SHA1   string     `json:"sha1"`
	Size   int64      `json:"size"`
}

type urlSubjectJSON struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
	URL  string     `json:"url"`
}

type reportJSON struct {
	Status   ScanStatus      `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Verdicts []EngineVerdict `json:"verdicts"`
	Stats    ScanStats       `json:"stats"`
	Subject  any             `json:"subject,omitzero"`
}

// MarshalJSON emits the subject with an explicit "kind" discriminator.
func (r ScanReport) MarshalJSON() ([]byte, error) {
	out := reportJSON{
		Status:   r.Status,
		Reason:   r.Reason,
		Verdicts: r.Verdicts,
		Stats:    r.Stats,
	}
	if out.Verdicts == nil {
		out.Verdicts = []EngineVerdict{}
	}
	switch s := r.Subject.(type) {
	case nil:
	case FileInfo:
		out.Subject = fileSubjectJSON{Kind: TargetFile, SHA256: s.SHA256, MD5: s.MD5, SHA1: s.SHA1, Size: s.SizeBytes}
	case URLInfo:
		out.Subject = urlSubjectJSON{Kind: TargetURL, ID: s.ID, URL: s.URL}
	default:
		return nil, fmt.Errorf("unsupported subject type %T", r.Subject)
	}
	return json.Marshal(out)
}
