package server

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/siwegate/internal/rules"
)

type batchItem struct {
	ID      string  `json:"id"`
	Message *string `json:"message"`
	Input   string  `json:"input"`
}

type batchSummary struct {
	Total      int    `json:"total"`
	Invalid    int    `json:"invalid"`
	Fixes      int    `json:"fixes"`
	Profile    string `json:"profile"`
	DurationMS int64  `json:"durationMs"`
}

func summarize(results []rules.ValidationResult, profile string, elapsed time.Duration) batchSummary {
	sum := batchSummary{Total: len(results), Profile: profile, DurationMS: elapsed.Milliseconds()}
	for _, res := range results {
		if !res.IsValid {
			sum.Invalid++
		}
		sum.Fixes += len(res.AppliedFixes)
	}
	return sum
}

// handleBatch validates many messages with one profile. With ?stream=true
// each result is written as an NDJSON record as soon as the batch finishes,
// followed by a summary record.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stream := r.URL.Query().Get("stream") == "true"
	var req struct {
		Items   []batchItem `json:"items"`
		Profile string      `json:"profile"`
		AutoFix bool        `json:"autoFix"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		http.Error(w, "items required", http.StatusBadRequest)
		return
	}
	if len(req.Items) > s.maxBatch {
		http.Error(w, fmt.Sprintf("batch of %d exceeds limit of %d", len(req.Items), s.maxBatch), http.StatusRequestEntityTooLarge)
		return
	}
	cfg, err := s.config(req.Profile, req.AutoFix)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	messages := make([]string, len(req.Items))
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		msg, err := s.resolveMessage(messageInput{Message: item.Message, Input: item.Input})
		if err != nil {
			http.Error(w, fmt.Sprintf("item %d: %v", i, err), http.StatusBadRequest)
			return
		}
		messages[i] = msg
		ids[i] = strings.TrimSpace(item.ID)
		if ids[i] == "" {
			ids[i] = fmt.Sprintf("#%d", i+1)
		}
	}

	start := time.Now()
	results, err := s.engine.BatchValidate(r.Context(), messages, cfg)
	if err != nil {
		s.logger.Warn("batch cancelled", zap.Int("items", len(messages)), zap.Error(err))
		http.Error(w, fmt.Sprintf("batch: %v", err), http.StatusServiceUnavailable)
		return
	}
	summary := summarize(results, results[0].Profile, time.Since(start))
	s.logger.Info("batch validated",
		zap.Int("total", summary.Total),
		zap.Int("invalid", summary.Invalid),
		zap.Int("fixes", summary.Fixes),
		zap.String("profile", summary.Profile))

	if stream {
		out := newNDJSONStream(w)
		for i, res := range results {
			if err := out.result(i, ids[i], res); err != nil {
				s.logger.Warn("batch stream interrupted", zap.Error(err))
				return
			}
		}
		art, err := s.writeDiagnostics(results)
		if err != nil {
			_ = out.fail(err)
			return
		}
		_ = out.summary(summary, art.Ref())
		return
	}

	art, err := s.writeDiagnostics(results)
	if err != nil {
		http.Error(w, fmt.Sprintf("write diagnostics: %v", err), http.StatusInternalServerError)
		return
	}
	type itemResult struct {
		ID     string                 `json:"id"`
		Result rules.ValidationResult `json:"result"`
	}
	out := make([]itemResult, len(results))
	for i, res := range results {
		out[i] = itemResult{ID: ids[i], Result: res}
	}
	resp := struct {
		Results   []itemResult  `json:"results"`
		Summary   batchSummary  `json:"summary"`
		Artifacts []ArtifactRef `json:"artifacts"`
	}{Results: out, Summary: summary, Artifacts: []ArtifactRef{art.Ref()}}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeDiagnostics(results []rules.ValidationResult) (Artifact, error) {
	path, err := s.tempPath("diagnostics-*.ndjson")
	if err != nil {
		return Artifact{}, err
	}
	f, err := os.Create(path)
	if err != nil {
		return Artifact{}, err
	}
	if err := rules.WriteDiagnosticsNDJSON(f, results); err != nil {
		f.Close()
		return Artifact{}, err
	}
	if err := f.Close(); err != nil {
		return Artifact{}, err
	}
	return s.addArtifact(path, "diagnostics.ndjson", "application/x-ndjson", "diagnostics")
}
