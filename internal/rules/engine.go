package rules

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/siwegate/internal/siwe"
)

// DefaultMaxMessageSize bounds the text accepted by Validate.
const DefaultMaxMessageSize = 10 * 1024

// Config selects the behaviour of a single Validate call.
type Config struct {
	Profile        string `json:"profile" yaml:"profile"`
	AutoFix        bool   `json:"autoFix" yaml:"autoFix"`
	MaxMessageSize int    `json:"maxMessageSize" yaml:"maxMessageSize"`

	// Custom, when set, is used instead of looking Profile up.
	Custom *Profile `json:"-" yaml:"-"`
}

type ValidationResult struct {
	IsValid         bool                   `json:"isValid"`
	Errors          []siwe.ValidationError `json:"errors"`
	Warnings        []siwe.ValidationError `json:"warnings"`
	Suggestions     []siwe.ValidationError `json:"suggestions"`
	FixedMessage    string                 `json:"fixedMessage,omitempty"`
	OriginalMessage string                 `json:"originalMessage"`
	Profile         string                 `json:"profile"`
	AppliedFixes    []AppliedFix           `json:"appliedFixes,omitempty"`
}

// Diagnostics returns errors, warnings and suggestions in one list.
func (r ValidationResult) Diagnostics() []siwe.ValidationError {
	out := make([]siwe.ValidationError, 0, len(r.Errors)+len(r.Warnings)+len(r.Suggestions))
	out = append(out, r.Errors...)
	out = append(out, r.Warnings...)
	return append(out, r.Suggestions...)
}

type QuickResult struct {
	HasErrors    bool `json:"hasErrors"`
	ErrorCount   int  `json:"errorCount"`
	WarningCount int  `json:"warningCount"`
	IsComplete   bool `json:"isComplete"`
}

// Recorder receives engine metrics; *common.Metrics satisfies it.
type Recorder interface {
	ObserveValidation(profile string, valid bool, size int, d time.Duration)
	ObserveDiagnostic(code, severity string)
	ObserveFix(code string)
}

// Engine runs the validation pipeline. It holds configuration only, so one
// Engine may serve concurrent callers.
type Engine struct {
	clock            Clock
	logger           *zap.Logger
	metrics          Recorder
	profiles         ProfileSet
	random           io.Reader
	batchConcurrency int
	fixer            *AutoFixer
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(r Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// WithProfiles replaces the profile set. Use DefaultProfiles().Merge to keep
// the built-in profiles alongside custom ones.
func WithProfiles(p ProfileSet) Option {
	return func(e *Engine) { e.profiles = p }
}

// WithRandom sets the entropy source for nonce remediation and templates.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) { e.random = r }
}

func WithBatchConcurrency(n int) Option {
	return func(e *Engine) { e.batchConcurrency = n }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		clock:            SystemClock,
		logger:           zap.NewNop(),
		profiles:         DefaultProfiles(),
		random:           rand.Reader,
		batchConcurrency: 8,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.fixer = NewAutoFixer(e.clock, e.random, e.logger)
	return e
}

// Fixer exposes the engine's AutoFixer, sharing its clock and random source.
func (e *Engine) Fixer() *AutoFixer { return e.fixer }

// Replacer returns a FieldReplacer sharing the engine's clock and random source.
func (e *Engine) Replacer() *FieldReplacer {
	return &FieldReplacer{fixer: e.fixer}
}

func (e *Engine) Profiles() ProfileSet { return e.profiles }

// resolveProfile falls back to strict for unknown names.
func (e *Engine) resolveProfile(cfg Config) Profile {
	if cfg.Custom != nil {
		return *cfg.Custom
	}
	name := cfg.Profile
	if name == "" {
		name = ProfileStrict
	}
	if p, ok := e.profiles.Lookup(name); ok {
		return p
	}
	e.logger.Warn("unknown profile, using strict", zap.String("profile", name))
	if p, ok := e.profiles.Lookup(ProfileStrict); ok {
		return p
	}
	return DefaultProfiles()[ProfileStrict]
}

// Validate runs the full pipeline: size gate, line breaks, parse, field and
// (per profile) security rules, profile filter, severity partition and an
// optional AutoFix pass.
func (e *Engine) Validate(message string, cfg Config) ValidationResult {
	start := time.Now()
	profile := e.resolveProfile(cfg)
	res := ValidationResult{OriginalMessage: message, Profile: profile.Name}
	limit := cfg.MaxMessageSize
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}

	if len(message) > limit {
		res.Errors = []siwe.ValidationError{
			siwe.Diag(siwe.CodeMessageTooLarge, siwe.TypeFormat, siwe.SeverityError, "", 1,
				fmt.Sprintf("message is %d bytes; the limit is %d", len(message), limit)),
		}
		e.finish(&res, len(message), start)
		return res
	}

	now := e.clock.Now()
	diags := ValidateLineBreaks(message)
	pm := siwe.Parse(message)
	diags = append(diags, pm.ParseErrors...)
	if !pm.Fields.IsEmpty() {
		diags = append(diags, ValidateFields(pm, now)...)
		if profile.SecurityChecks {
			diags = append(diags, ValidateSecurity(pm, now)...)
		}
	}
	diags = profile.Apply(dedupe(diags))
	res.Errors, res.Warnings, res.Suggestions = partition(diags)
	res.IsValid = len(res.Errors) == 0

	if cfg.AutoFix && anyFixable(diags) {
		fix := e.fixer.FixMessage(pm, diags)
		if fix.Fixed {
			res.FixedMessage = fix.Message
			res.AppliedFixes = fix.AppliedFixes
			for _, f := range fix.AppliedFixes {
				if e.metrics != nil {
					e.metrics.ObserveFix(string(f.Code))
				}
			}
		}
	}
	e.logger.Debug("validated message",
		zap.String("profile", profile.Name),
		zap.Int("bytes", len(message)),
		zap.Int("errors", len(res.Errors)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Int("suggestions", len(res.Suggestions)),
		zap.Int("fixes", len(res.AppliedFixes)))
	e.finish(&res, len(message), start)
	return res
}

func (e *Engine) finish(res *ValidationResult, size int, start time.Time) {
	if res.Errors == nil {
		res.Errors = []siwe.ValidationError{}
	}
	if res.Warnings == nil {
		res.Warnings = []siwe.ValidationError{}
	}
	if res.Suggestions == nil {
		res.Suggestions = []siwe.ValidationError{}
	}
	res.IsValid = len(res.Errors) == 0
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveValidation(res.Profile, res.IsValid, size, time.Since(start))
	for _, d := range res.Diagnostics() {
		e.metrics.ObserveDiagnostic(string(d.Code), string(d.Severity))
	}
}

// QuickValidate parses and runs the field validators only. It skips
// line-break analysis and security rules. A message over
// DefaultMaxMessageSize counts as a single error and is not parsed.
func (e *Engine) QuickValidate(message string) QuickResult {
	if len(message) > DefaultMaxMessageSize {
		return QuickResult{HasErrors: true, ErrorCount: 1}
	}
	pm := siwe.Parse(message)
	diags := dedupe(append(append([]siwe.ValidationError(nil), pm.ParseErrors...), ValidateFields(pm, e.clock.Now())...))
	var q QuickResult
	for _, d := range diags {
		switch d.Severity {
		case siwe.SeverityError:
			q.ErrorCount++
		case siwe.SeverityWarning:
			q.WarningCount++
		}
	}
	q.HasErrors = q.ErrorCount > 0
	q.IsComplete = len(pm.Fields.MissingRequired()) == 0
	return q
}

// ValidateField re-parses message and runs the single validator for name.
func (e *Engine) ValidateField(message, name string) ([]siwe.ValidationError, error) {
	field, err := siwe.ParseField(name)
	if err != nil {
		return nil, err
	}
	out := CheckField(siwe.Parse(message), field, e.clock.Now())
	if out == nil {
		out = []siwe.ValidationError{}
	}
	return out, nil
}

// BatchValidate validates messages concurrently. Results keep input order.
// Only cancellation of ctx produces an error.
func (e *Engine) BatchValidate(ctx context.Context, messages []string, cfg Config) ([]ValidationResult, error) {
	results := make([]ValidationResult, len(messages))
	g, ctx := errgroup.WithContext(ctx)
	limit := e.batchConcurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, msg := range messages {
		i, msg := i, msg
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = e.Validate(msg, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type dedupeKey struct {
	code  siwe.Code
	field siwe.Field
	line  int
}

// dedupe drops repeated (code, field, line) diagnostics, keeping the first
// and carrying over fixability from any duplicate.
func dedupe(diags []siwe.ValidationError) []siwe.ValidationError {
	seen := make(map[dedupeKey]int, len(diags))
	out := make([]siwe.ValidationError, 0, len(diags))
	for _, d := range diags {
		k := dedupeKey{d.Code, d.Field, d.Line}
		if i, ok := seen[k]; ok {
			if d.Fixable && !out[i].Fixable {
				out[i].Fixable = true
				out[i].Suggestion = d.Suggestion
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, d)
	}
	return out
}

func partition(diags []siwe.ValidationError) (errs, warns, infos []siwe.ValidationError) {
	for _, d := range diags {
		switch d.Severity {
		case siwe.SeverityError:
			errs = append(errs, d)
		case siwe.SeverityWarning:
			warns = append(warns, d)
		default:
			infos = append(infos, d)
		}
	}
	return errs, warns, infos
}

func anyFixable(diags []siwe.ValidationError) bool {
	for _, d := range diags {
		if d.Fixable {
			return true
		}
	}
	return false
}

// WriteDiagnosticsNDJSON writes one JSON object per diagnostic, tagged with
// the index of the message it belongs to.
func WriteDiagnosticsNDJSON(w io.Writer, results []ValidationResult) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, res := range results {
		for _, d := range res.Diagnostics() {
			rec := struct {
				Message int    `json:"message"`
				Profile string `json:"profile"`
				siwe.ValidationError
			}{i, res.Profile, d}
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
