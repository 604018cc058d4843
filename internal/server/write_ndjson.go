package server

import (
	"encoding/json"
	"net/http"

	"example.com/siwegate/internal/rules"
)

// Record types of a streamed batch. A stream is any number of "result"
// records closed by exactly one "summary" or "error" record.
const (
	recordResult  = "result"
	recordSummary = "summary"
	recordError   = "error"
)

type resultRecord struct {
	Type   string                 `json:"type"`
	Index  int                    `json:"index"`
	ID     string                 `json:"id,omitempty"`
	Result rules.ValidationResult `json:"result"`
}

type summaryRecord struct {
	Type      string        `json:"type"`
	Summary   batchSummary  `json:"summary"`
	Artifacts []ArtifactRef `json:"artifacts"`
}

type errorRecord struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ndjsonStream writes one JSON record per line and flushes after each so
// clients see results while the batch response is still open.
type ndjsonStream struct {
	enc     *json.Encoder
	flusher http.Flusher
}

func newNDJSONStream(w http.ResponseWriter) *ndjsonStream {
	w.Header().Set("Content-Type", "application/x-ndjson")
	flusher, _ := w.(http.Flusher)
	return &ndjsonStream{enc: json.NewEncoder(w), flusher: flusher}
}

func (s *ndjsonStream) result(index int, id string, res rules.ValidationResult) error {
	return s.write(resultRecord{Type: recordResult, Index: index, ID: id, Result: res})
}

func (s *ndjsonStream) summary(sum batchSummary, artifacts ...ArtifactRef) error {
	return s.write(summaryRecord{Type: recordSummary, Summary: sum, Artifacts: artifacts})
}

func (s *ndjsonStream) fail(err error) error {
	return s.write(errorRecord{Type: recordError, Error: err.Error()})
}

func (s *ndjsonStream) write(v any) error {
	if err := s.enc.Encode(v); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
