package rules

import (
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/siwegate/internal/common"
	"example.com/siwegate/internal/siwe"
)

// TemplateAddress is the account placed in generated templates when the
// caller supplies none.
const TemplateAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

// FixContext carries the inputs a remediation may depend on besides the
// fields themselves.
type FixContext struct {
	Now    time.Time
	Random io.Reader
}

// FixFunc returns a new field record with one defect remediated. It must not
// modify f; returning an error leaves the diagnostic unresolved.
type FixFunc func(ctx *FixContext, f siwe.Fields, d siwe.ValidationError) (siwe.Fields, error)

// AppliedFix records one value the AutoFixer changed.
type AppliedFix struct {
	Code        siwe.Code  `json:"code"`
	Field       siwe.Field `json:"field,omitempty"`
	Line        int        `json:"line"`
	Before      string     `json:"before"`
	After       string     `json:"after"`
	Description string     `json:"description"`
}

// AuditEntries converts applied fixes into patch log entries.
func AuditEntries(applied []AppliedFix) []common.PatchEntry {
	out := make([]common.PatchEntry, 0, len(applied))
	for _, f := range applied {
		out = append(out, common.PatchEntry{
			Code:        string(f.Code),
			Field:       string(f.Field),
			Line:        f.Line,
			Before:      f.Before,
			After:       f.After,
			Description: f.Description,
		})
	}
	return out
}

type AutoFixResult struct {
	Fixed           bool                   `json:"fixed"`
	Message         string                 `json:"message"`
	AppliedFixes    []AppliedFix           `json:"appliedFixes"`
	RemainingIssues []siwe.ValidationError `json:"remainingIssues"`
}

// AutoFixer remediates fixable diagnostics and regenerates the message.
type AutoFixer struct {
	registry map[siwe.Code]FixFunc
	clock    Clock
	random   io.Reader
	logger   *zap.Logger
}

// NewAutoFixer returns a fixer with the built-in remediations registered.
// Nil arguments select the system clock, crypto/rand and a no-op logger.
func NewAutoFixer(clock Clock, random io.Reader, logger *zap.Logger) *AutoFixer {
	if clock == nil {
		clock = SystemClock
	}
	if random == nil {
		random = rand.Reader
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &AutoFixer{
		registry: make(map[siwe.Code]FixFunc),
		clock:    clock,
		random:   random,
		logger:   logger,
	}
	a.RegisterBuiltins()
	return a
}

func (a *AutoFixer) Register(code siwe.Code, f FixFunc) {
	a.registry[code] = f
}

// CanFix reports whether code has a registered remediation or is resolved by
// regenerating the text.
func (a *AutoFixer) CanFix(code siwe.Code) bool {
	if regenerated[code] {
		return true
	}
	_, ok := a.registry[code]
	return ok
}

// regenerated lists layout codes that canonical regeneration always resolves.
var regenerated = map[siwe.Code]bool{
	siwe.CodeUnexpectedLine:               true,
	siwe.CodeBlankLineBeforeAddress:       true,
	siwe.CodeStatementSpacing:             true,
	siwe.CodeBlankLinesBeforeFields:       true,
	siwe.CodeBlankLineBetweenFields:       true,
	siwe.CodeBlankLineBeforeOptionalField: true,
	siwe.CodeTrailingWhitespace:           true,
	siwe.CodeExcessiveBlankLines:          true,
}

func (a *AutoFixer) RegisterBuiltins() {
	for _, code := range []siwe.Code{
		siwe.CodeMissingNonce, siwe.CodeInvalidNonce, siwe.CodeWeakNonceEntropy, siwe.CodeSequentialNonce,
		siwe.CodeReplayNoNonce, siwe.CodeReplayLowEntropyNonce, siwe.CodeNonceTooShort,
		siwe.CodeNonceWeakPattern, siwe.CodeNonceLowComplexity,
	} {
		a.Register(code, FixNonce)
	}
	a.Register(siwe.CodeMissingVersion, FixVersion)
	a.Register(siwe.CodeInvalidVersion, FixVersion)
	a.Register(siwe.CodeInvalidAddressFormat, FixAddress)
	a.Register(siwe.CodeAddressNotChecksummed, FixAddress)
	a.Register(siwe.CodeAddressChecksumMismatch, FixAddress)
	a.Register(siwe.CodeMissingURI, FixMissingURI)
	a.Register(siwe.CodeInsecureURIScheme, FixURIScheme)
	a.Register(siwe.CodeMissingIssuedAt, FixIssuedAt)
	a.Register(siwe.CodeInvalidIssuedAt, FixIssuedAt)
	a.Register(siwe.CodeInvalidExpirationTime, FixExpiration)
	a.Register(siwe.CodeExpirationBeforeIssued, FixExpiration)
	a.Register(siwe.CodeMessageExpired, FixExpiration)
	a.Register(siwe.CodeNoExpiration, FixExpiration)
	a.Register(siwe.CodeExpirationTooShort, FixExpiration)
	a.Register(siwe.CodeExpirationTooLong, FixLifetime)
	a.Register(siwe.CodeLifetimeTooLong, FixLifetime)
	a.Register(siwe.CodeInvalidNotBefore, FixNotBefore)
	a.Register(siwe.CodeStatementLineBreak, FixStatement)
}

// FixMessage applies every registered remediation for the fixable entries of
// diags, in order, then regenerates the whole message from the result.
func (a *AutoFixer) FixMessage(pm *siwe.ParsedMessage, diags []siwe.ValidationError) AutoFixResult {
	res := AutoFixResult{}
	ctx := &FixContext{Now: a.clock.Now(), Random: a.random}
	work := pm.Fields.Clone()
	for _, d := range diags {
		if !d.Fixable {
			res.RemainingIssues = append(res.RemainingIssues, d)
			continue
		}
		if regenerated[d.Code] {
			res.AppliedFixes = append(res.AppliedFixes, AppliedFix{
				Code: d.Code, Field: d.Field, Line: d.Line, Description: "resolved by regenerating the message",
			})
			continue
		}
		fix, ok := a.registry[d.Code]
		if !ok {
			res.RemainingIssues = append(res.RemainingIssues, d)
			continue
		}
		next, err := fix(ctx, work, d)
		if err != nil {
			a.logger.Debug("fix failed", zap.String("code", string(d.Code)), zap.Error(err))
			res.RemainingIssues = append(res.RemainingIssues, d)
			continue
		}
		for _, field := range changedFields(work, next) {
			line := d.Line
			if field != d.Field {
				line = pm.FieldLine(field)
			}
			res.AppliedFixes = append(res.AppliedFixes, AppliedFix{
				Code: d.Code, Field: field, Line: line, Before: work.Get(field), After: next.Get(field),
				Description: fmt.Sprintf("%s: %s", d.Code, d.Suggestion),
			})
		}
		work = next
	}
	res.Message = siwe.Generate(work)
	res.Fixed = len(res.AppliedFixes) > 0
	return res
}

// changedFields lists, in message order, the fields whose values differ.
func changedFields(before, after siwe.Fields) []siwe.Field {
	var out []siwe.Field
	for _, field := range siwe.AllFields {
		if before.Get(field) != after.Get(field) {
			out = append(out, field)
		}
	}
	return out
}

// GenerateTemplate builds a compliant message with secure defaults. Non-empty
// override fields replace the defaults; the URI follows an overridden domain.
func (a *AutoFixer) GenerateTemplate(overrides siwe.Fields) (string, error) {
	now := a.clock.Now()
	nonce, err := siwe.GenerateNonce(a.random)
	if err != nil {
		return "", err
	}
	f := siwe.Fields{
		Domain:    "example.com",
		Address:   TemplateAddress,
		Statement: "Sign in with Ethereum.",
		Version:   "1",
		ChainID:   "1",
		Nonce:     nonce,
		IssuedAt:  siwe.FormatTimestamp(now),
		RequestID: uuid.NewString(),
	}
	for _, r := range overrides.Resources {
		if err := siwe.CheckValue(siwe.FieldURI, r); err != nil {
			return "", fmt.Errorf("resource: %w", err)
		}
	}
	for _, field := range siwe.AllFields {
		if field == siwe.FieldResources {
			continue
		}
		if err := siwe.CheckValue(field, overrides.Get(field)); err != nil {
			return "", err
		}
		if v := overrides.Get(field); v != "" {
			f = f.With(field, v)
		}
	}
	if f.URI == "" {
		f.URI = "https://" + f.Domain
	}
	if f.ExpirationTime == "" {
		f.IssuedAt, f.ExpirationTime = remedyWindow(f.IssuedAt, now)
	}
	if len(overrides.Resources) > 0 {
		f = f.WithResources(overrides.Resources)
	}
	return siwe.Generate(f), nil
}

func FixNonce(ctx *FixContext, f siwe.Fields, _ siwe.ValidationError) (siwe.Fields, error) {
	if siwe.IsStrongNonce(f.Nonce) {
		return f, nil
	}
	nonce, err := siwe.GenerateNonce(ctx.Random)
	if err != nil {
		return f, err
	}
	return f.With(siwe.FieldNonce, nonce), nil
}

func FixVersion(_ *FixContext, f siwe.Fields, _ siwe.ValidationError) (siwe.Fields, error) {
	return f.With(siwe.FieldVersion, "1"), nil
}

func FixAddress(_ *FixContext, f siwe.Fields, _ siwe.ValidationError) (siwe.Fields, error) {
	addr, err := remedyAddress(f.Address)
	if err != nil {
		return f, err
	}
	return f.With(siwe.FieldAddress, addr), nil
}

func FixMissingURI(_ *FixContext, f siwe.Fields, _ siwe.ValidationError) (siwe.Fields, error) {
	if f.URI != "" {
		return f, nil
	}
	uri, err := remedyURI(f.Domain)
	if err != nil {
		return f, err
	}
	return f.With(siwe.FieldURI, uri), nil
}

func FixURIScheme(_ *FixContext, f siwe.Fields, _ siwe.ValidationError) (siwe.Fields, error) {
	return f.With(siwe.FieldURI, remedyURIScheme(f.URI)), nil
}

func FixIssuedAt(ctx *FixContext, f siwe.Fields, _ siwe.ValidationError) (siwe.Fields, error) {
	return f.With(siwe.FieldIssuedAt, remedyTimestamp(f.IssuedAt, ctx.Now)), nil
}

// FixExpiration keeps a coercible expiration that is still usable and
// otherwise anchors a fresh window, moving issuedAt when it is stale.
func FixExpiration(ctx *FixContext, f siwe.Fields, d siwe.ValidationError) (siwe.Fields, error) {
	if d.Code == siwe.CodeInvalidExpirationTime {
		if t, ok := siwe.CoerceTimestamp(f.ExpirationTime); ok && t.After(ctx.Now) {
			if issued, ok := siwe.ParseTimestamp(f.IssuedAt); !ok || t.After(issued) {
				return f.With(siwe.FieldExpirationTime, siwe.FormatTimestamp(t)), nil
			}
		}
	}
	if _, ok := siwe.ParseTimestamp(f.ExpirationTime); ok && d.Code == siwe.CodeNoExpiration {
		return f, nil
	}
	return withWindow(f, ctx.Now), nil
}

// FixLifetime shortens the window to DefaultLifetime.
func FixLifetime(ctx *FixContext, f siwe.Fields, _ siwe.ValidationError) (siwe.Fields, error) {
	return withWindow(f, ctx.Now), nil
}

func withWindow(f siwe.Fields, now time.Time) siwe.Fields {
	issued, exp := remedyWindow(f.IssuedAt, now)
	return f.With(siwe.FieldIssuedAt, issued).With(siwe.FieldExpirationTime, exp)
}

// FixNotBefore coerces the value or drops the field when it is unreadable.
func FixNotBefore(_ *FixContext, f siwe.Fields, _ siwe.ValidationError) (siwe.Fields, error) {
	if t, ok := siwe.CoerceTimestamp(f.NotBefore); ok {
		return f.With(siwe.FieldNotBefore, siwe.FormatTimestamp(t)), nil
	}
	return f.With(siwe.FieldNotBefore, ""), nil
}

func FixStatement(_ *FixContext, f siwe.Fields, _ siwe.ValidationError) (siwe.Fields, error) {
	return f.With(siwe.FieldStatement, remedyStatement(f.Statement)), nil
}
