package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Artifact is a file produced by a request (fixed message, audit, report,
// diagnostics) or uploaded by a client.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
	Created     time.Time
}

// ArtifactRef is the form returned in API responses; it never exposes Path.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

func (a Artifact) Ref() ArtifactRef {
	return ArtifactRef{ID: a.ID, Name: a.Name, ContentType: a.ContentType, Size: a.Size, Kind: a.Kind}
}

// artifactStore owns a work directory and indexes the files written into it.
type artifactStore struct {
	dir string

	mu    sync.RWMutex
	byID  map[string]Artifact
	order []string
}

func newArtifactStore(dir string) *artifactStore {
	return &artifactStore{dir: dir, byID: make(map[string]Artifact)}
}

// create opens a new empty file in the work directory.
func (a *artifactStore) create(pattern string) (*os.File, error) {
	return os.CreateTemp(a.dir, pattern)
}

func (a *artifactStore) register(path, name, contentType, kind string, created time.Time) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("artifact: empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	if name == "" {
		name = filepath.Base(path)
	}
	if contentType == "" {
		contentType = contentTypeFor(name)
	}
	art := Artifact{
		ID:          uuid.NewString(),
		Path:        path,
		Name:        name,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
		Created:     created,
	}
	a.mu.Lock()
	a.byID[art.ID] = art
	a.order = append(a.order, art.ID)
	a.mu.Unlock()
	return art, nil
}

func (a *artifactStore) get(id string) (Artifact, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	art, ok := a.byID[id]
	return art, ok
}

// list returns every artifact in registration order.
func (a *artifactStore) list() []ArtifactRef {
	a.mu.RLock()
	defer a.mu.RUnlock()
	refs := make([]ArtifactRef, 0, len(a.order))
	for _, id := range a.order {
		refs = append(refs, a.byID[id].Ref())
	}
	return refs
}

func (a *artifactStore) close() error {
	return os.RemoveAll(a.dir)
}

func (s *Server) addArtifact(path, name, contentType, kind string) (Artifact, error) {
	return s.artifacts.register(path, name, contentType, kind, s.now())
}

// writeArtifact stores data in a new file and registers it.
func (s *Server) writeArtifact(pattern, name, kind string, data []byte) (Artifact, error) {
	path, err := s.tempPath(pattern)
	if err != nil {
		return Artifact{}, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Artifact{}, err
	}
	return s.addArtifact(path, name, "", kind)
}

func (s *Server) tempPath(pattern string) (string, error) {
	f, err := s.artifacts.create(pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	return name, nil
}

// handleArtifacts lists artifacts on /artifacts and downloads one on
// /artifacts/{id}.
func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/artifacts"), "/")
	if id == "" {
		writeJSON(w, http.StatusOK, s.artifacts.list())
		return
	}
	art, ok := s.artifacts.get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	http.ServeContent(w, r, art.Name, art.Created, f)
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".ndjson", ".jsonl":
		return "application/x-ndjson"
	case ".pdf":
		return "application/pdf"
	case ".txt", ".siwe", ".msg":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
