package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PatchEntry is one automatic edit made to a sign-in message. Entries
// appended together form a run and share Ts and MessageSHA256.
type PatchEntry struct {
	Code          string    `json:"code"`
	Field         string    `json:"field,omitempty"`
	Line          int       `json:"line,omitempty"`
	Before        string    `json:"before"`
	After         string    `json:"after"`
	Description   string    `json:"description,omitempty"`
	MessageSHA256 string    `json:"messageSha256,omitempty"`
	Ts            time.Time `json:"ts"`
}

func (e PatchEntry) sameRun(o PatchEntry) bool {
	return e.MessageSHA256 == o.MessageSHA256 && e.Ts.Equal(o.Ts)
}

// PatchLog is an append-only JSONL fix audit.
type PatchLog struct {
	path string
	mu   sync.Mutex
}

func NewPatchLog(path string) *PatchLog {
	return &PatchLog{path: path}
}

func (p *PatchLog) Path() string {
	if p == nil {
		return ""
	}
	return p.path
}

// AppendRun records the fixes applied to the message hashed as sum. All
// entries get ts, or the current time when ts is zero.
func (p *PatchLog) AppendRun(sum string, ts time.Time, entries ...PatchEntry) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	run := make([]PatchEntry, len(entries))
	for i, e := range entries {
		e.MessageSHA256 = sum
		e.Ts = ts
		run[i] = e
	}
	return p.Append(run...)
}

// Append writes entries as they are. Entries without a timestamp are
// stamped with a single time for the whole call.
func (p *PatchLog) Append(entries ...PatchEntry) error {
	if p == nil {
		return errors.New("nil patch log")
	}
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	var buf []byte
	for _, e := range entries {
		if e.Code == "" {
			return errors.New("patch entry missing code")
		}
		if e.Ts.IsZero() {
			e.Ts = now
		}
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		buf = append(append(buf, data...), '\n')
	}
	if dir := filepath.Dir(p.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadPatchLog decodes every entry of a JSONL audit file.
func ReadPatchLog(path string) ([]PatchEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	var entries []PatchEntry
	for {
		var e PatchEntry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode patch entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
}

// LastRun returns the entries of the most recent run, newest first.
func LastRun(entries []PatchEntry) []PatchEntry {
	if len(entries) == 0 {
		return nil
	}
	last := entries[len(entries)-1]
	var run []PatchEntry
	for i := len(entries) - 1; i >= 0 && entries[i].sameRun(last); i-- {
		run = append(run, entries[i])
	}
	return run
}
