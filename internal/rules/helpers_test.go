package rules

import (
	"strings"
	"time"

	"example.com/siwegate/internal/siwe"
)

var fixedNow = time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)

var goodLines = []string{
	"example.com wants you to sign in with your Ethereum account:",
	"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	"",
	"Sign in with Ethereum.",
	"",
	"URI: https://example.com",
	"Version: 1",
	"Chain ID: 1",
	"Nonce: Qm7vX2pLk9RtW4zN",
	"Issued At: 2024-01-01T00:00:00Z",
	"Expiration Time: 2024-01-01T00:10:00Z",
}

var goodMessage = strings.Join(goodLines, "\n")

// withLine returns goodMessage with the line starting with prefix replaced
// by repl, or removed when repl is empty.
func withLine(prefix, repl string) string {
	return withLineIn(goodMessage, prefix, repl)
}

func withLineIn(msg, prefix, repl string) string {
	lines := strings.Split(msg, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			if repl == "" {
				continue
			}
			l = repl
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(append([]Option{WithClock(FixedClock(fixedNow))}, opts...)...)
}

func codes(diags []siwe.ValidationError) []siwe.Code {
	out := make([]siwe.Code, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func find(diags []siwe.ValidationError, code siwe.Code) (siwe.ValidationError, bool) {
	for _, d := range diags {
		if d.Code == code {
			return d, true
		}
	}
	return siwe.ValidationError{}, false
}
