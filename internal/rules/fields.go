package rules

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"example.com/siwegate/internal/siwe"
)

const (
	MaxIssuedAtDrift    = time.Hour
	MaxExpirationWindow = 24 * time.Hour
	MinExpirationWindow = 5 * time.Minute
	MaxStatementLength  = 200
)

var (
	chainIDPattern   = regexp.MustCompile(`^[1-9]\d*$`)
	requestIDPattern = regexp.MustCompile(`^(?:[A-Za-z0-9\-._~!$&'()*+,;=:@]|%[0-9A-Fa-f]{2})*$`)
)

// FieldValidator checks a single field of a parsed message. Validators are
// independent; none of them looks at another validator's output.
type FieldValidator func(pm *siwe.ParsedMessage, now time.Time) []siwe.ValidationError

type fieldRule struct {
	field siwe.Field
	check FieldValidator
}

var fieldRules = []fieldRule{
	{siwe.FieldDomain, checkDomain},
	{siwe.FieldAddress, checkAddress},
	{siwe.FieldStatement, checkStatement},
	{siwe.FieldURI, checkURI},
	{siwe.FieldVersion, checkVersion},
	{siwe.FieldChainID, checkChainID},
	{siwe.FieldNonce, checkNonce},
	{siwe.FieldIssuedAt, checkIssuedAt},
	{siwe.FieldExpirationTime, checkExpirationTime},
	{siwe.FieldNotBefore, checkNotBefore},
	{siwe.FieldRequestID, checkRequestID},
}

// ValidateFields runs every field validator in canonical field order.
func ValidateFields(pm *siwe.ParsedMessage, now time.Time) []siwe.ValidationError {
	var out []siwe.ValidationError
	for _, r := range fieldRules {
		out = append(out, r.check(pm, now)...)
	}
	return out
}

// CheckField runs the validator registered for field. Fields without a
// dedicated validator (scheme, resources) return no diagnostics.
func CheckField(pm *siwe.ParsedMessage, field siwe.Field, now time.Time) []siwe.ValidationError {
	for _, r := range fieldRules {
		if r.field == field {
			return r.check(pm, now)
		}
	}
	return nil
}

func missing(pm *siwe.ParsedMessage, field siwe.Field) siwe.ValidationError {
	d := siwe.Diag(siwe.MissingCode(field), siwe.TypeFormat, siwe.SeverityError, field, pm.FieldLine(field),
		fmt.Sprintf("required field %s is missing", field))
	switch field {
	case siwe.FieldVersion:
		return d.WithFix("add \"Version: 1\"")
	case siwe.FieldNonce:
		return d.WithFix("generate a random nonce")
	case siwe.FieldIssuedAt:
		return d.WithFix("set Issued At to the current time")
	case siwe.FieldURI:
		if pm.Fields.Domain != "" {
			return d.WithFix("use https://" + pm.Fields.Domain)
		}
	}
	return d
}

func checkDomain(pm *siwe.ParsedMessage, _ time.Time) []siwe.ValidationError {
	domain := pm.Fields.Domain
	line := pm.FieldLine(siwe.FieldDomain)
	if domain == "" {
		return []siwe.ValidationError{missing(pm, siwe.FieldDomain)}
	}
	auth, err := parseAuthority(domain)
	if err != nil {
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeInvalidDomain, siwe.TypeFormat, siwe.SeverityError, siwe.FieldDomain, line,
				fmt.Sprintf("domain %q is not a valid host[:port]: %v", domain, err)),
		}
	}
	switch auth.riskLevel() {
	case "low":
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeDomainSecurityRisk, siwe.TypeSecurity, siwe.SeverityInfo, siwe.FieldDomain, line,
				fmt.Sprintf("domain %s is a loopback or any-host address (security risk: low)", auth.Host)),
		}
	case "medium":
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeDomainSecurityRisk, siwe.TypeSecurity, siwe.SeverityWarning, siwe.FieldDomain, line,
				fmt.Sprintf("domain %s is a private network address (security risk: medium)", auth.Host)).
				WithSuggestion("use a public DNS name for production sign-in"),
		}
	}
	return nil
}

func checkAddress(pm *siwe.ParsedMessage, _ time.Time) []siwe.ValidationError {
	addr := pm.Fields.Address
	line := pm.FieldLine(siwe.FieldAddress)
	if addr == "" {
		return []siwe.ValidationError{missing(pm, siwe.FieldAddress)}
	}
	if !siwe.IsAddress(addr) {
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeInvalidAddressFormat, siwe.TypeFormat, siwe.SeverityError, siwe.FieldAddress, line,
				"address must be 0x followed by 40 hexadecimal characters").
				WithFix("rewrite the address as a checksummed 0x-prefixed hex string"),
		}
	}
	switch siwe.CheckChecksum(addr) {
	case siwe.ChecksumMissing:
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeAddressNotChecksummed, siwe.TypeCompliance, siwe.SeverityWarning, siwe.FieldAddress, line,
				"address is not EIP-55 checksummed").
				WithFix("use " + siwe.ChecksumAddress(addr)),
		}
	case siwe.ChecksumMismatch:
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeAddressChecksumMismatch, siwe.TypeCompliance, siwe.SeverityWarning, siwe.FieldAddress, line,
				"address letter casing does not match its EIP-55 checksum").
				WithFix("use " + siwe.ChecksumAddress(addr)),
		}
	}
	return nil
}

func checkStatement(pm *siwe.ParsedMessage, _ time.Time) []siwe.ValidationError {
	st := pm.Fields.Statement
	if st == "" {
		return nil
	}
	line := pm.FieldLine(siwe.FieldStatement)
	var out []siwe.ValidationError
	if strings.ContainsAny(st, "\r\n") {
		out = append(out, siwe.Diag(siwe.CodeStatementLineBreak, siwe.TypeFormat, siwe.SeverityError, siwe.FieldStatement, line,
			"statement must be a single line").
			WithFix("join the statement into one line"))
	}
	if n := len([]rune(st)); n > MaxStatementLength {
		out = append(out, siwe.Diag(siwe.CodeStatementTooLong, siwe.TypeCompliance, siwe.SeverityWarning, siwe.FieldStatement, line,
			fmt.Sprintf("statement is %d characters long; keep it under %d", n, MaxStatementLength)))
	}
	return out
}

func checkURI(pm *siwe.ParsedMessage, _ time.Time) []siwe.ValidationError {
	raw := pm.Fields.URI
	line := pm.FieldLine(siwe.FieldURI)
	if raw == "" {
		return []siwe.ValidationError{missing(pm, siwe.FieldURI)}
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeInvalidURI, siwe.TypeFormat, siwe.SeverityError, siwe.FieldURI, line,
				fmt.Sprintf("URI %q is not an absolute URI", raw)),
		}
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
	case "http":
		if u.Host == "" {
			break
		}
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeInsecureURIScheme, siwe.TypeSecurity, siwe.SeverityWarning, siwe.FieldURI, line,
				"URI uses plain http").
				WithFix("use https"),
		}
	default:
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeInvalidURIScheme, siwe.TypeFormat, siwe.SeverityError, siwe.FieldURI, line,
				fmt.Sprintf("URI scheme %q is not http or https", u.Scheme)),
		}
	}
	if u.Host == "" {
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeInvalidURI, siwe.TypeFormat, siwe.SeverityError, siwe.FieldURI, line,
				fmt.Sprintf("URI %q has no host", raw)),
		}
	}
	return nil
}

func checkVersion(pm *siwe.ParsedMessage, _ time.Time) []siwe.ValidationError {
	v := pm.Fields.Version
	if v == "" {
		return []siwe.ValidationError{missing(pm, siwe.FieldVersion)}
	}
	if v != "1" {
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeInvalidVersion, siwe.TypeFormat, siwe.SeverityError, siwe.FieldVersion, pm.FieldLine(siwe.FieldVersion),
				fmt.Sprintf("version must be \"1\", got %q", v)).
				WithFix("set Version to 1"),
		}
	}
	return nil
}

func checkChainID(pm *siwe.ParsedMessage, _ time.Time) []siwe.ValidationError {
	id := pm.Fields.ChainID
	if id == "" {
		return []siwe.ValidationError{missing(pm, siwe.FieldChainID)}
	}
	if !chainIDPattern.MatchString(id) {
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeInvalidChainID, siwe.TypeFormat, siwe.SeverityError, siwe.FieldChainID, pm.FieldLine(siwe.FieldChainID),
				fmt.Sprintf("chain ID %q must be a positive decimal integer without leading zeros", id)),
		}
	}
	return nil
}

func checkNonce(pm *siwe.ParsedMessage, _ time.Time) []siwe.ValidationError {
	nonce := pm.Fields.Nonce
	line := pm.FieldLine(siwe.FieldNonce)
	if nonce == "" {
		return []siwe.ValidationError{missing(pm, siwe.FieldNonce)}
	}
	if !siwe.IsAlphanumericNonce(nonce) {
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeInvalidNonce, siwe.TypeFormat, siwe.SeverityError, siwe.FieldNonce, line,
				fmt.Sprintf("nonce must be at least %d alphanumeric characters", siwe.MinNonceLength)).
				WithFix("generate a random alphanumeric nonce"),
		}
	}
	var out []siwe.ValidationError
	if r := siwe.EntropyRatio(nonce); r < siwe.MinEntropyRatio {
		out = append(out, siwe.Diag(siwe.CodeWeakNonceEntropy, siwe.TypeSecurity, siwe.SeverityWarning, siwe.FieldNonce, line,
			fmt.Sprintf("nonce repeats characters heavily (entropy ratio %.2f)", r)).
			WithFix("generate a random nonce"))
	}
	if siwe.IsSequential(nonce) {
		out = append(out, siwe.Diag(siwe.CodeSequentialNonce, siwe.TypeSecurity, siwe.SeverityError, siwe.FieldNonce, line,
			"nonce contains a sequential run and is predictable").
			WithFix("generate a random nonce"))
	}
	return out
}

func checkIssuedAt(pm *siwe.ParsedMessage, now time.Time) []siwe.ValidationError {
	raw := pm.Fields.IssuedAt
	line := pm.FieldLine(siwe.FieldIssuedAt)
	if raw == "" {
		return []siwe.ValidationError{missing(pm, siwe.FieldIssuedAt)}
	}
	t, ok := siwe.ParseTimestamp(raw)
	if !ok {
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeInvalidIssuedAt, siwe.TypeFormat, siwe.SeverityError, siwe.FieldIssuedAt, line,
				fmt.Sprintf("issued at %q is not an RFC 3339 timestamp", raw)).
				WithFix("rewrite as RFC 3339"),
		}
	}
	if drift := absDuration(now.Sub(t)); drift > MaxIssuedAtDrift {
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeIssuedAtDrift, siwe.TypeCompliance, siwe.SeverityWarning, siwe.FieldIssuedAt, line,
				fmt.Sprintf("issued at differs from the current time by %s", drift.Round(time.Second))),
		}
	}
	return nil
}

func checkExpirationTime(pm *siwe.ParsedMessage, now time.Time) []siwe.ValidationError {
	raw := pm.Fields.ExpirationTime
	if raw == "" {
		return nil
	}
	line := pm.FieldLine(siwe.FieldExpirationTime)
	exp, ok := siwe.ParseTimestamp(raw)
	if !ok {
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeInvalidExpirationTime, siwe.TypeFormat, siwe.SeverityError, siwe.FieldExpirationTime, line,
				fmt.Sprintf("expiration time %q is not an RFC 3339 timestamp", raw)).
				WithFix("rewrite as RFC 3339"),
		}
	}
	issued, issuedOK := siwe.ParseTimestamp(pm.Fields.IssuedAt)
	if issuedOK && !exp.After(issued) {
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeExpirationBeforeIssued, siwe.TypeFormat, siwe.SeverityError, siwe.FieldExpirationTime, line,
				"expiration time must be after issued at").
				WithFix("expire 10 minutes after issued at"),
		}
	}
	var out []siwe.ValidationError
	if !exp.After(now) {
		out = append(out, siwe.Diag(siwe.CodeMessageExpired, siwe.TypeFormat, siwe.SeverityError, siwe.FieldExpirationTime, line,
			fmt.Sprintf("message expired at %s", siwe.FormatTimestamp(exp))).
			WithFix("extend the expiration time"))
	}
	if issuedOK {
		switch lifetime := exp.Sub(issued); {
		case lifetime > MaxExpirationWindow:
			out = append(out, siwe.Diag(siwe.CodeExpirationTooLong, siwe.TypeCompliance, siwe.SeverityWarning, siwe.FieldExpirationTime, line,
				fmt.Sprintf("message is valid for %s; keep it under %s", lifetime, MaxExpirationWindow)).
				WithFix("shorten the lifetime to 10 minutes"))
		case lifetime < MinExpirationWindow:
			out = append(out, siwe.Diag(siwe.CodeExpirationTooShort, siwe.TypeCompliance, siwe.SeverityWarning, siwe.FieldExpirationTime, line,
				fmt.Sprintf("message is valid for only %s", lifetime)).
				WithFix("extend the lifetime to 10 minutes"))
		}
	}
	return out
}

func checkNotBefore(pm *siwe.ParsedMessage, _ time.Time) []siwe.ValidationError {
	raw := pm.Fields.NotBefore
	if raw == "" {
		return nil
	}
	line := pm.FieldLine(siwe.FieldNotBefore)
	nbf, ok := siwe.ParseTimestamp(raw)
	if !ok {
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeInvalidNotBefore, siwe.TypeFormat, siwe.SeverityError, siwe.FieldNotBefore, line,
				fmt.Sprintf("not before %q is not an RFC 3339 timestamp", raw)).
				WithFix("rewrite as RFC 3339"),
		}
	}
	if exp, ok := siwe.ParseTimestamp(pm.Fields.ExpirationTime); ok && !nbf.Before(exp) {
		return []siwe.ValidationError{
			siwe.Diag(siwe.CodeNotBeforeAfterExpiration, siwe.TypeCompliance, siwe.SeverityWarning, siwe.FieldNotBefore, line,
				"not before is at or after the expiration time; the message can never be used"),
		}
	}
	return nil
}

func checkRequestID(pm *siwe.ParsedMessage, _ time.Time) []siwe.ValidationError {
	id := pm.Fields.RequestID
	if id == "" || requestIDPattern.MatchString(id) {
		return nil
	}
	return []siwe.ValidationError{
		siwe.Diag(siwe.CodeInvalidRequestID, siwe.TypeFormat, siwe.SeverityError, siwe.FieldRequestID, pm.FieldLine(siwe.FieldRequestID),
			"request ID may only contain URI path characters"),
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
