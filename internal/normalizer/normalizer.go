// Package normalizer converts raw analysis documents from the scanning
// service into model.ScanReport values.
//
// Normalize is pure. It is strict about the structure that identifies an
// analysis (status, results, stats) and lenient about everything else:
// unknown categories become model.CategoryOther, missing labels become
// model.DefaultResultLabel (an empty label is kept as is), missing stats
// become zero and metadata is optional.
package normalizer

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/sentinelapp/sentinel/internal/model"
)

const (
	fieldBody       = "body"
	fieldData       = "data"
	fieldAttributes = "data.attributes"
	fieldStatus     = "data.attributes.status"
	fieldResults    = "data.attributes.results"
	fieldStats      = "data.attributes.stats"
)

type analysisDocument struct {
	Data *struct {
		Attributes *struct {
			Status  *string        `json:"status"`
			Results jsontext.Value `json:"results"`
			Stats   jsontext.Value `json:"stats"`
		} `json:"attributes"`
	} `json:"data"`
	Meta *struct {
		FileInfo *fileInfoDocument `json:"file_info"`
		URLInfo  *urlInfoDocument  `json:"url_info"`
	} `json:"meta"`
}

type engineResult struct {
	EngineName *string `json:"engine_name"`
	Category   *string `json:"category"`
	Result     *string `json:"result"`
}

type fileInfoDocument struct {
	SHA256 *string        `json:"sha256"`
	MD5    string         `json:"md5"`
	SHA1   string         `json:"sha1"`
	Size   jsontext.Value `json:"size"`
}

type urlInfoDocument struct {
	ID  *string `json:"id"`
	URL *string `json:"url"`
}

// Normalize parses one analysis document. Missing required structure yields
// a *model.ParseError naming the dotted field path.
func Normalize(raw []byte) (*model.ScanReport, error) {
	var doc analysisDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &model.ParseError{Field: fieldFromError(err), Err: err}
	}

	if doc.Data == nil {
		return nil, &model.ParseError{Field: fieldData}
	}
	attrs := doc.Data.Attributes
	if attrs == nil {
		return nil, &model.ParseError{Field: fieldAttributes}
	}
	if attrs.Status == nil {
		return nil, &model.ParseError{Field: fieldStatus}
	}
	if absent(attrs.Results) {
		return nil, &model.ParseError{Field: fieldResults}
	}
	if absent(attrs.Stats) {
		return nil, &model.ParseError{Field: fieldStats}
	}

	verdicts, err := decodeVerdicts(attrs.Results)
	if err != nil {
		return nil, err
	}

	stats, err := decodeStats(attrs.Stats)
	if err != nil {
		return nil, err
	}

	report := &model.ScanReport{
		Status:   model.ParseStatus(*attrs.Status),
		Verdicts: verdicts,
		Stats:    stats,
	}

	if doc.Meta != nil {
		subject, err := decodeSubject(doc.Meta.FileInfo, doc.Meta.URLInfo)
		if err != nil {
			return nil, err
		}
		report.Subject = subject
	}

	return report, nil
}

// decodeVerdicts walks the results object token by token so verdicts keep
// the order in which the service sent them.
func decodeVerdicts(raw jsontext.Value) ([]model.EngineVerdict, error) {
	dec := jsontext.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.ReadToken()
	if err != nil {
		return nil, &model.ParseError{Field: fieldResults, Err: err}
	}
	if tok.Kind() != '{' {
		return nil, &model.ParseError{Field: fieldResults, Err: errors.New("not an object")}
	}

	verdicts := []model.EngineVerdict{}
	for dec.PeekKind() != '}' {
		nameTok, err := dec.ReadToken()
		if err != nil {
			return nil, &model.ParseError{Field: fieldResults, Err: err}
		}
		key := nameTok.String()
		field := fieldResults + "." + key

		val, err := dec.ReadValue()
		if err != nil {
			return nil, &model.ParseError{Field: field, Err: err}
		}

		var r engineResult
		if err := json.Unmarshal(val, &r); err != nil {
			return nil, &model.ParseError{Field: field, Err: err}
		}
		if r.EngineName == nil {
			return nil, &model.ParseError{Field: field + ".engine_name"}
		}
		if r.Category == nil {
			return nil, &model.ParseError{Field: field + ".category"}
		}

		label := model.DefaultResultLabel
		if r.Result != nil {
			label = *r.Result
		}
		verdicts = append(verdicts, model.NewEngineVerdict(*r.EngineName, model.ParseCategory(*r.Category), label))
	}
	return verdicts, nil
}

func decodeStats(raw jsontext.Value) (model.ScanStats, error) {
	var counts map[string]int
	if err := json.Unmarshal(raw, &counts); err != nil {
		return model.ScanStats{}, &model.ParseError{Field: fieldStats, Err: err}
	}
	return model.ScanStats{
		Malicious:       counts["malicious"],
		Suspicious:      counts["suspicious"],
		Undetected:      counts["undetected"],
		Harmless:        counts["harmless"],
		Timeout:         counts["timeout"],
		Failure:         counts["failure"],
		TypeUnsupported: counts["type-unsupported"],
	}, nil
}

// decodeSubject prefers file_info when both kinds of metadata are present.
func decodeSubject(fi *fileInfoDocument, ui *urlInfoDocument) (model.SubjectInfo, error) {
	switch {
	case fi != nil:
		if fi.SHA256 == nil {
			return nil, &model.ParseError{Field: "meta.file_info.sha256"}
		}
		return model.FileInfo{
			SHA256:    *fi.SHA256,
			MD5:       fi.MD5,
			SHA1:      fi.SHA1,
			SizeBytes: decodeSize(fi.Size),
		}, nil
	case ui != nil:
		if ui.ID == nil {
			return nil, &model.ParseError{Field: "meta.url_info.id"}
		}
		if ui.URL == nil {
			return nil, &model.ParseError{Field: "meta.url_info.url"}
		}
		return model.URLInfo{ID: *ui.ID, URL: *ui.URL}, nil
	}
	return nil, nil
}

// decodeSize accepts the size as an integer, a float or a numeric string.
// Anything else counts as unknown and yields 0.
func decodeSize(v jsontext.Value) int64 {
	if absent(v) {
		return 0
	}
	var n int64
	if err := json.Unmarshal(v, &n); err == nil {
		return n
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return int64(f)
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

func absent(v jsontext.Value) bool {
	return len(v) == 0 || v.Kind() == 'n'
}

// fieldFromError turns the JSON pointer of a semantic error into a dotted
// path. Syntax errors are attributed to the whole body.
func fieldFromError(err error) string {
	var se *json.SemanticError
	if errors.As(err, &se) {
		p := strings.TrimPrefix(string(se.JSONPointer), "/")
		if p != "" {
			return strings.ReplaceAll(p, "/", ".")
		}
	}
	return fieldBody
}
