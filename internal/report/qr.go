package report

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// DigestToQR creates a QR code PNG encoding the provided signing digest.
func DigestToQR(digest string, size int) ([]byte, error) {
	normalized := sanitizeDigest(digest)
	if normalized == "" {
		return nil, fmt.Errorf("signing digest is empty")
	}
	if size <= 0 {
		size = 128
	}
	png, err := qrcode.Encode(normalized, qrcode.Medium, size)
	if err != nil {
		return nil, err
	}
	return png, nil
}

// sanitizeDigest keeps the hex digits of digest, lower-cased and 0x-prefixed.
func sanitizeDigest(digest string) string {
	lower := strings.ToLower(strings.TrimSpace(digest))
	lower = strings.TrimPrefix(lower, "0x")
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'a' && r <= 'f':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "0x" + b.String()
}
