package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"example.com/siwegate/internal/common"
)

const (
	// maxUploadBytes bounds a whole multipart upload request.
	maxUploadBytes = 32 << 20
	// maxUploadFiles bounds the number of file parts in one request.
	maxUploadFiles = 256
)

type uploadRef struct {
	ArtifactRef
	SHA256 string `json:"sha256"`
}

// handleUpload stores message files so later requests can name them by
// artifact id in their "input" field. Non-file parts are ignored.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, fmt.Sprintf("multipart body required: %v", err), http.StatusBadRequest)
		return
	}
	var refs []uploadRef
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("read multipart: %v", err), http.StatusBadRequest)
			return
		}
		if part.FileName() == "" {
			part.Close()
			continue
		}
		if len(refs) == maxUploadFiles {
			part.Close()
			http.Error(w, fmt.Sprintf("more than %d files", maxUploadFiles), http.StatusRequestEntityTooLarge)
			return
		}
		ref, err := s.storeUpload(part)
		part.Close()
		if err != nil {
			http.Error(w, fmt.Sprintf("store %s: %v", part.FileName(), err), http.StatusBadRequest)
			return
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}
	s.logger.Debug("stored uploads", zap.Int("files", len(refs)))
	writeJSON(w, http.StatusOK, struct {
		Files []uploadRef `json:"files"`
	}{Files: refs})
}

// storeUpload copies one file part into the uploads directory, hashing it
// on the way.
func (s *Server) storeUpload(part *multipart.Part) (uploadRef, error) {
	name := filepath.Base(part.FileName())
	dest, err := os.CreateTemp(s.uploadsDir, "upload-*"+filepath.Ext(name))
	if err != nil {
		return uploadRef{}, err
	}
	h := common.NewHasher()
	_, err = io.Copy(io.MultiWriter(dest, h), part)
	if cerr := dest.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest.Name())
		return uploadRef{}, err
	}
	art, err := s.addArtifact(dest.Name(), name, contentTypeFor(name), "upload")
	if err != nil {
		return uploadRef{}, err
	}
	return uploadRef{ArtifactRef: art.Ref(), SHA256: h.Sum()}, nil
}
