// Package demoserver simulates the scanning service for local demos and
// end-to-end tests: it accepts file and URL submissions and lets each
// analysis move from queued to completed over a few polls.
package demoserver

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/sentinelapp/sentinel/internal/model"
)

const maxUploadBytes = 32 << 20

// DemoServer is an in-memory stand-in for the analysis API.
type DemoServer struct {
	cfg      Config
	engines  []Engine
	analyses map[string]*analysis
	nextID   int
	mu       sync.Mutex
}

type analysis struct {
	id        string
	seq       int
	sample    sample
	polls     int
	submitted time.Time
	fileInfo  *fileInfoDoc
	urlInfo   *urlInfoDoc
}

// NewDemoServer creates a new demo server instance.
func NewDemoServer(cfg Config) *DemoServer {
	if cfg.PollsToComplete < 1 {
		cfg.PollsToComplete = 1
	}
	return &DemoServer{
		cfg:      cfg,
		engines:  Engines(),
		analyses: make(map[string]*analysis),
	}
}

// Handler returns the HTTP handler serving the API and the demo control
// endpoints.
func (s *DemoServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /files", s.requireKey(s.submitFileHandler))
	mux.HandleFunc("POST /urls", s.requireKey(s.submitURLHandler))
	mux.HandleFunc("GET /analyses/{id}", s.requireKey(s.analysisHandler))

	// Control endpoints
	mux.HandleFunc("GET /demo/analyses", s.listAnalysesHandler)
	mux.HandleFunc("POST /demo/reset", s.resetHandler)

	return mux
}

// Start starts the demo server.
func (s *DemoServer) Start() error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *DemoServer) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("x-apikey") != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "WrongCredentialsError", "Wrong API key")
			return
		}
		next(w, r)
	}
}

func (s *DemoServer) submitFileHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequestError", "missing multipart field \"file\"")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequestError", err.Error())
		return
	}

	md5Sum := md5.Sum(data)
	sha1Sum := sha1.Sum(data)
	sha256Sum := sha256.Sum256(data)

	a := s.register(&analysis{
		sample: sample{kind: model.TargetFile, data: data},
		fileInfo: &fileInfoDoc{
			SHA256: hex.EncodeToString(sha256Sum[:]),
			SHA1:   hex.EncodeToString(sha1Sum[:]),
			MD5:    hex.EncodeToString(md5Sum[:]),
			Size:   int64(len(data)),
		},
	})
	s.writeSubmission(w, r, a)
}

func (s *DemoServer) submitURLHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequestError", err.Error())
		return
	}
	target := r.PostForm.Get("url")
	if target == "" {
		writeError(w, http.StatusBadRequest, "BadRequestError", "missing form field \"url\"")
		return
	}

	sum := sha256.Sum256([]byte(target))
	a := s.register(&analysis{
		sample:  sample{kind: model.TargetURL, url: target},
		urlInfo: &urlInfoDoc{ID: hex.EncodeToString(sum[:]), URL: target},
	})
	s.writeSubmission(w, r, a)
}

// register assigns an ID to a and stores it.
func (s *DemoServer) register(a *analysis) *analysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	prefix := "f"
	if a.sample.kind == model.TargetURL {
		prefix = "u"
	}
	a.id = fmt.Sprintf("%s-%d", prefix, s.nextID)
	a.seq = s.nextID
	a.submitted = time.Now()
	s.analyses[a.id] = a
	return a
}

func (s *DemoServer) writeSubmission(w http.ResponseWriter, r *http.Request, a *analysis) {
	doc := submissionDoc{}
	doc.Data.Type = "analysis"
	doc.Data.ID = a.id
	doc.Data.Links.Self = selfLink(r, a.id)
	writeJSON(w, http.StatusOK, doc)
}

func (s *DemoServer) analysisHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	a, ok := s.analyses[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "NotFoundError", fmt.Sprintf("analysis %q not found", id))
		return
	}
	a.polls++
	doc := s.render(a, selfLink(r, id))
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, doc)
}

// status gives the state after a.polls polls: queued on the first, then
// in-progress until PollsToComplete is reached.
func (s *DemoServer) status(a *analysis) model.ScanStatus {
	switch {
	case a.polls >= s.cfg.PollsToComplete:
		return model.StatusCompleted
	case a.polls <= 1:
		return model.StatusQueued
	default:
		return model.StatusInProgress
	}
}

// render builds the analysis document. In-progress analyses report the
// engines that have finished so far.
func (s *DemoServer) render(a *analysis, self string) analysisDoc {
	status := s.status(a)

	finished := 0
	switch status {
	case model.StatusCompleted:
		finished = len(s.engines)
	case model.StatusInProgress:
		finished = len(s.engines) * (a.polls - 1) / (s.cfg.PollsToComplete - 1)
	}

	doc := analysisDoc{}
	doc.Data.Type = "analysis"
	doc.Data.ID = a.id
	doc.Data.Links.Self = self
	doc.Data.Attributes.Status = string(status)
	doc.Data.Attributes.Date = a.submitted.Unix()
	doc.Data.Attributes.Results = orderedResults{}

	for _, e := range s.engines[:finished] {
		cat, label := e.Inspect(a.sample)
		res := engineResultDoc{Category: string(cat), EngineName: e.Name, Method: "blacklist"}
		if label != "" {
			res.Result = &label
		}
		doc.Data.Attributes.Results = append(doc.Data.Attributes.Results, res)
		doc.Data.Attributes.Stats.add(cat)
	}

	if a.fileInfo != nil || a.urlInfo != nil {
		doc.Meta = &metaDoc{FileInfo: a.fileInfo, URLInfo: a.urlInfo}
	}
	return doc
}

// AnalysisState summarizes one analysis for the control endpoint.
type AnalysisState struct {
	ID     string           `json:"id"`
	Kind   model.TargetKind `json:"kind"`
	Polls  int              `json:"polls"`
	Status model.ScanStatus `json:"status"`
}

// Analyses lists every submitted analysis, oldest first.
func (s *DemoServer) Analyses() []AnalysisState {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]*analysis, 0, len(s.analyses))
	for _, a := range s.analyses {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	out := make([]AnalysisState, len(list))
	for i, a := range list {
		out[i] = AnalysisState{ID: a.id, Kind: a.sample.kind, Polls: a.polls, Status: s.status(a)}
	}
	return out
}

func (s *DemoServer) listAnalysesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Analyses())
}

// Reset forgets every analysis.
func (s *DemoServer) Reset() {
	s.mu.Lock()
	s.analyses = make(map[string]*analysis)
	s.mu.Unlock()
}

func (s *DemoServer) resetHandler(w http.ResponseWriter, r *http.Request) {
	s.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func selfLink(r *http.Request, id string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/analyses/%s", scheme, r.Host, id)
}

// --- documents ---

type links struct {
	Self string `json:"self"`
}

type submissionDoc struct {
	Data struct {
		Type  string `json:"type"`
		ID    string `json:"id"`
		Links links  `json:"links"`
	} `json:"data"`
}

type statsDoc struct {
	Harmless        int `json:"harmless"`
	TypeUnsupported int `json:"type-unsupported"`
	Suspicious      int `json:"suspicious"`
	Timeout         int `json:"timeout"`
	Failure         int `json:"failure"`
	Malicious       int `json:"malicious"`
	Undetected      int `json:"undetected"`
}

func (st *statsDoc) add(c model.Category) {
	switch c {
	case model.CategoryHarmless:
		st.Harmless++
	case model.CategoryTypeUnsupported:
		st.TypeUnsupported++
	case model.CategorySuspicious:
		st.Suspicious++
	case model.CategoryTimeout:
		st.Timeout++
	case model.CategoryFailure:
		st.Failure++
	case model.CategoryMalicious:
		st.Malicious++
	case model.CategoryUndetected:
		st.Undetected++
	}
}

type engineResultDoc struct {
	Category   string  `json:"category"`
	EngineName string  `json:"engine_name"`
	Method     string  `json:"method"`
	Result     *string `json:"result"`
}

// orderedResults encodes as an object keyed by engine name, in slice order.
type orderedResults []engineResultDoc

func (rs orderedResults) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := jsontext.NewEncoder(&buf)
	if err := enc.WriteToken(jsontext.BeginObject); err != nil {
		return nil, err
	}
	for _, r := range rs {
		if err := enc.WriteToken(jsontext.String(r.EngineName)); err != nil {
			return nil, err
		}
		if err := json.MarshalEncode(enc, r); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteToken(jsontext.EndObject); err != nil {
		return nil, err
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}

type fileInfoDoc struct {
	SHA256 string `json:"sha256"`
	SHA1   string `json:"sha1"`
	MD5    string `json:"md5"`
	Size   int64  `json:"size"`
}

type urlInfoDoc struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type metaDoc struct {
	FileInfo *fileInfoDoc `json:"file_info,omitempty"`
	URLInfo  *urlInfoDoc  `json:"url_info,omitempty"`
}

type analysisDoc struct {
	Data struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Attributes struct {
			Status  string         `json:"status"`
			Date    int64          `json:"date"`
			Stats   statsDoc       `json:"stats"`
			Results orderedResults `json:"results"`
		} `json:"attributes"`
		Links links `json:"links"`
	} `json:"data"`
	Meta *metaDoc `json:"meta,omitempty"`
}

type errorDoc struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.MarshalWrite(w, v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	doc := errorDoc{}
	doc.Error.Code = code
	doc.Error.Message = msg
	writeJSON(w, status, doc)
}
