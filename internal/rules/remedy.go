package rules

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"example.com/siwegate/internal/siwe"
)

// DefaultLifetime is the expiration window added by remediation and templates.
const DefaultLifetime = 10 * time.Minute

var (
	errUnfixable     = errors.New("no valid replacement")
	lineBreakPattern = regexp.MustCompile(`\s*[\r\n]+\s*`)
)

// The helpers below compute replacement values. AutoFixer and ApplyFieldFix
// both use them so a full regeneration and a targeted edit agree.

func remedyAddress(addr string) (string, error) {
	if siwe.IsAddress(addr) {
		return siwe.ChecksumAddress(addr), nil
	}
	if fixed, ok := siwe.RepairAddress(addr); ok {
		return fixed, nil
	}
	return "", errUnfixable
}

// remedyTimestamp coerces raw into RFC 3339, falling back to now when raw is
// empty or unreadable.
func remedyTimestamp(raw string, now time.Time) string {
	if t, ok := siwe.CoerceTimestamp(raw); ok {
		return siwe.FormatTimestamp(t)
	}
	return siwe.FormatTimestamp(now)
}

// remedyWindow returns issuedAt and expirationTime for a DefaultLifetime
// window. The window starts at issuedAt while that still leaves it open;
// otherwise both timestamps move to now, so the fixed message is neither
// expired nor longer-lived than DefaultLifetime.
func remedyWindow(issuedAt string, now time.Time) (string, string) {
	if t, ok := siwe.ParseTimestamp(issuedAt); ok && t.Add(DefaultLifetime).After(now) {
		return issuedAt, siwe.FormatTimestamp(t.Add(DefaultLifetime))
	}
	return siwe.FormatTimestamp(now), siwe.FormatTimestamp(now.Add(DefaultLifetime))
}

func remedyStatement(st string) string {
	return norm.NFC.String(strings.TrimSpace(lineBreakPattern.ReplaceAllString(st, " ")))
}

func remedyURIScheme(uri string) string {
	if strings.HasPrefix(strings.ToLower(uri), "http://") {
		return "https://" + uri[len("http://"):]
	}
	return uri
}

func remedyURI(domain string) (string, error) {
	if _, err := parseAuthority(domain); err != nil {
		return "", errUnfixable
	}
	return "https://" + domain, nil
}
