package rules

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"example.com/siwegate/internal/siwe"
)

const (
	MaxIssuedAtAge      = time.Hour
	MaxLifetime         = 24 * time.Hour
	MinLifetime         = 2 * time.Minute
	MaxResources        = 10
	MinPostureScore     = 2
	recommendedLifetime = 10 * time.Minute
)

var devIndicators = []string{"localhost", "staging", "test", "demo", "dev"}

// ValidateSecurity runs the cross-field security checks. It assumes nothing
// about field validity and skips any check whose inputs did not parse.
func ValidateSecurity(pm *siwe.ParsedMessage, now time.Time) []siwe.ValidationError {
	var out []siwe.ValidationError
	out = append(out, replayProtection(pm)...)
	out = append(out, domainBinding(pm)...)
	out = append(out, timeSecurity(pm, now)...)
	out = append(out, nonceSecurity(pm)...)
	out = append(out, resourceSecurity(pm)...)
	out = append(out, securityPosture(pm)...)
	return out
}

func securityDiag(pm *siwe.ParsedMessage, code siwe.Code, sev siwe.Severity, field siwe.Field, msg string) siwe.ValidationError {
	return siwe.Diag(code, siwe.TypeSecurity, sev, field, pm.FieldLine(field), msg)
}

func replayProtection(pm *siwe.ParsedMessage) []siwe.ValidationError {
	var out []siwe.ValidationError
	f := pm.Fields
	if f.Nonce == "" {
		out = append(out, securityDiag(pm, siwe.CodeReplayNoNonce, siwe.SeverityError, siwe.FieldNonce,
			"message has no nonce and can be replayed").WithFix("generate a random nonce"))
	} else if bits := siwe.ShannonBits(f.Nonce); bits < siwe.MinNonceBits {
		out = append(out, securityDiag(pm, siwe.CodeReplayLowEntropyNonce, siwe.SeverityWarning, siwe.FieldNonce,
			fmt.Sprintf("nonce carries about %.0f bits of entropy; at least %.0f are expected", bits, siwe.MinNonceBits)).
			WithFix("generate a random nonce"))
	}
	if f.ExpirationTime == "" {
		out = append(out, securityDiag(pm, siwe.CodeNoExpiration, siwe.SeverityWarning, siwe.FieldExpirationTime,
			"message has no expiration time and stays valid forever").
			WithFix(fmt.Sprintf("expire %s after issued at", recommendedLifetime)))
	}
	return out
}

func domainBinding(pm *siwe.ParsedMessage) []siwe.ValidationError {
	f := pm.Fields
	if f.Domain == "" {
		return []siwe.ValidationError{securityDiag(pm, siwe.CodeDomainBindingMissing, siwe.SeverityWarning, siwe.FieldDomain,
			"message is not bound to a domain")}
	}
	auth, err := parseAuthority(f.Domain)
	if err != nil {
		return nil
	}
	var out []siwe.ValidationError
	if reason := suspiciousReason(auth.Host); reason != "" {
		out = append(out, securityDiag(pm, siwe.CodeSuspiciousDomain, siwe.SeverityWarning, siwe.FieldDomain,
			fmt.Sprintf("domain %s looks suspicious: %s", auth.Host, reason)))
	}
	if auth.IDN {
		out = append(out, securityDiag(pm, siwe.CodeIDNHomographRisk, siwe.SeverityWarning, siwe.FieldDomain,
			fmt.Sprintf("internationalized domain %s (%s) may imitate another domain", auth.Unicode, auth.Host)))
	}
	if isDevHost(auth.Host) {
		out = append(out, securityDiag(pm, siwe.CodeDevelopmentDomain, siwe.SeverityInfo, siwe.FieldDomain,
			fmt.Sprintf("domain %s is a development host", auth.Host)))
	}
	if f.URI == "" {
		return out
	}
	u, err := url.Parse(f.URI)
	if err != nil || u.Hostname() == "" {
		return out
	}
	if !hostMatches(u.Hostname(), auth.Host) {
		out = append(out, securityDiag(pm, siwe.CodeURIDomainMismatch, siwe.SeverityWarning, siwe.FieldURI,
			fmt.Sprintf("URI host %s is not %s or one of its subdomains", u.Hostname(), auth.Host)))
	}
	if auth.HasPort() && u.Port() != "" && u.Port() != auth.Port {
		out = append(out, securityDiag(pm, siwe.CodePortMismatch, siwe.SeverityWarning, siwe.FieldURI,
			fmt.Sprintf("URI port %s does not match domain port %s", u.Port(), auth.Port)))
	}
	return out
}

func timeSecurity(pm *siwe.ParsedMessage, now time.Time) []siwe.ValidationError {
	var out []siwe.ValidationError
	f := pm.Fields
	issued, issuedOK := siwe.ParseTimestamp(f.IssuedAt)
	if issuedOK {
		switch {
		case issued.After(now):
			out = append(out, securityDiag(pm, siwe.CodeIssuedAtFuture, siwe.SeverityWarning, siwe.FieldIssuedAt,
				"issued at lies in the future; check for clock skew or tampering"))
		case now.Sub(issued) > MaxIssuedAtAge:
			out = append(out, securityDiag(pm, siwe.CodeIssuedAtStale, siwe.SeverityWarning, siwe.FieldIssuedAt,
				fmt.Sprintf("message was issued %s ago", now.Sub(issued).Round(time.Minute))))
		}
	}
	if exp, ok := siwe.ParseTimestamp(f.ExpirationTime); ok && issuedOK && exp.After(issued) {
		switch lifetime := exp.Sub(issued); {
		case lifetime > MaxLifetime:
			out = append(out, securityDiag(pm, siwe.CodeLifetimeTooLong, siwe.SeverityWarning, siwe.FieldExpirationTime,
				fmt.Sprintf("signed message stays usable for %s", lifetime)).
				WithFix(fmt.Sprintf("limit the lifetime to %s", recommendedLifetime)))
		case lifetime < MinLifetime:
			out = append(out, securityDiag(pm, siwe.CodeLifetimeTooShort, siwe.SeverityInfo, siwe.FieldExpirationTime,
				fmt.Sprintf("lifetime of %s may expire before the user signs", lifetime)))
		}
	}
	if nbf, ok := siwe.ParseTimestamp(f.NotBefore); ok && nbf.After(now) {
		out = append(out, securityDiag(pm, siwe.CodeNotBeforeFuture, siwe.SeverityWarning, siwe.FieldNotBefore,
			"message is not yet valid"))
	}
	return out
}

func nonceSecurity(pm *siwe.ParsedMessage) []siwe.ValidationError {
	nonce := pm.Fields.Nonce
	if nonce == "" {
		return nil
	}
	var out []siwe.ValidationError
	if len(nonce) < siwe.RecommendedNonceLength {
		out = append(out, securityDiag(pm, siwe.CodeNonceTooShort, siwe.SeverityWarning, siwe.FieldNonce,
			fmt.Sprintf("nonce has %d characters; use at least %d", len(nonce), siwe.RecommendedNonceLength)).
			WithFix("extend the nonce"))
	}
	if patterns := siwe.WeakPatterns(nonce); len(patterns) > 0 {
		out = append(out, securityDiag(pm, siwe.CodeNonceWeakPattern, siwe.SeverityWarning, siwe.FieldNonce,
			"nonce matches weak patterns: "+strings.Join(patterns, ", ")).
			WithFix("generate a random nonce"))
	}
	if classes := siwe.CharClasses(nonce); classes < siwe.MinCharClasses {
		out = append(out, securityDiag(pm, siwe.CodeNonceLowComplexity, siwe.SeverityWarning, siwe.FieldNonce,
			fmt.Sprintf("nonce uses %d character class; mix letters and digits", classes)).
			WithFix("generate a random nonce"))
	}
	return out
}

func resourceSecurity(pm *siwe.ParsedMessage) []siwe.ValidationError {
	resources := pm.Fields.Resources
	var out []siwe.ValidationError
	for i, raw := range resources {
		line := pm.ResourceLine(i)
		diag := func(code siwe.Code, msg string) siwe.ValidationError {
			return siwe.Diag(code, siwe.TypeSecurity, siwe.SeverityWarning, siwe.FieldResources, line, msg)
		}
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			out = append(out, diag(siwe.CodeResourceInvalidURI, fmt.Sprintf("resource %q is not an absolute URI", raw)))
			continue
		}
		scheme := strings.ToLower(u.Scheme)
		if scheme == "http" {
			out = append(out, diag(siwe.CodeResourceInsecureScheme, fmt.Sprintf("resource %s uses plain http", raw)))
		}
		if scheme == "http" || scheme == "https" {
			if reason := suspiciousReason(u.Hostname()); reason != "" {
				out = append(out, diag(siwe.CodeResourceSuspiciousDomain,
					fmt.Sprintf("resource host %s looks suspicious: %s", u.Hostname(), reason)))
			}
			if u.Path == "/" || u.Path == "/*" {
				out = append(out, diag(siwe.CodeResourceOverlyBroad,
					fmt.Sprintf("resource %s grants access to the whole site", raw)))
			}
		}
	}
	if len(resources) > MaxResources {
		out = append(out, securityDiag(pm, siwe.CodeTooManyResources, siwe.SeverityWarning, siwe.FieldResources,
			fmt.Sprintf("message requests %d resources; more than %d suggests over-permissioning", len(resources), MaxResources)))
	}
	return out
}

func securityPosture(pm *siwe.ParsedMessage) []siwe.ValidationError {
	f := pm.Fields
	score := 0
	if strings.HasPrefix(strings.ToLower(f.URI), "https://") {
		score++
	}
	if f.ExpirationTime != "" {
		score++
	}
	if len(f.Nonce) >= siwe.RecommendedNonceLength {
		score++
	}
	var out []siwe.ValidationError
	if score < MinPostureScore {
		out = append(out, siwe.Diag(siwe.CodeWeakSecurityPosture, siwe.TypeSecurity, siwe.SeverityWarning, "", 1,
			fmt.Sprintf("security posture score %d/3: use https, set an expiration and a nonce of %d+ characters", score, siwe.RecommendedNonceLength)))
	}
	for _, field := range []siwe.Field{siwe.FieldDomain, siwe.FieldURI, siwe.FieldNonce} {
		value := strings.ToLower(f.Get(field))
		for _, ind := range devIndicators {
			if strings.Contains(value, ind) {
				out = append(out, securityDiag(pm, siwe.CodeDevTestIndicators, siwe.SeverityInfo, field,
					fmt.Sprintf("%s contains %q; this looks like a development or test message", field, ind)))
				break
			}
		}
	}
	return out
}
