package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

type Hasher struct {
	h hash.Hash
}

func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

// Sha256String hashes s.
func Sha256String(s string) string {
	h := NewHasher()
	_, _ = io.WriteString(h, s)
	return h.Sum()
}

// ReadMessageFile reads a message file, rejecting files larger than limit
// bytes before loading them. A limit of zero disables the check.
func ReadMessageFile(path string, limit int64) (string, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	if limit > 0 {
		if stat, err := f.Stat(); err == nil && stat.Size() > limit {
			return "", "", fmt.Errorf("%s: %s exceeds limit of %s", path, FormatBytes(stat.Size()), FormatBytes(limit))
		}
	}
	h := NewHasher()
	data, err := io.ReadAll(io.TeeReader(f, h))
	if err != nil {
		return "", "", err
	}
	return string(data), h.Sum(), nil
}
