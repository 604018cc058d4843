package rules

import (
	"fmt"
	"io"

	"example.com/siwegate/internal/siwe"
)

// FieldReplacer performs minimal-diff edits: only the lines of the targeted
// field change, everything else stays byte-identical.
type FieldReplacer struct {
	fixer *AutoFixer
}

// NewFieldReplacer shares the AutoFixer's remediations so a targeted edit
// writes the same value a full regeneration would.
func NewFieldReplacer(clock Clock, random io.Reader) *FieldReplacer {
	return &FieldReplacer{fixer: NewAutoFixer(clock, random, nil)}
}

// ReplaceField sets the named field to value.
func (r *FieldReplacer) ReplaceField(message, name, value string) (string, error) {
	field, err := siwe.ParseField(name)
	if err != nil {
		return "", err
	}
	return siwe.ReplaceField(message, field, value)
}

func (r *FieldReplacer) RemoveField(message, name string) (string, error) {
	field, err := siwe.ParseField(name)
	if err != nil {
		return "", err
	}
	return siwe.RemoveField(message, field)
}

func (r *FieldReplacer) AddResource(message, uri string) (string, error) {
	return siwe.AddResource(message, uri)
}

func (r *FieldReplacer) RemoveResource(message, uri string) (string, bool) {
	return siwe.RemoveResource(message, uri)
}

func (r *FieldReplacer) FixLineBreaks(message string) string {
	return siwe.FixLineBreaks(message)
}

// ApplyFieldFix resolves one diagnostic with a targeted edit. It reports
// false when the code has no targeted remediation or the remediation could
// not produce a new value.
func (r *FieldReplacer) ApplyFieldFix(message string, d siwe.ValidationError) (string, bool) {
	switch {
	case d.Code == siwe.CodeUnexpectedLine:
		return siwe.RemoveUnexpectedLine(message, d.Line)
	case regenerated[d.Code]:
		out := siwe.FixLineBreaks(message)
		return out, out != message
	case d.Field == "":
		return message, false
	}
	fix, ok := r.fixer.registry[d.Code]
	if !ok {
		return message, false
	}
	pm := siwe.Parse(message)
	ctx := &FixContext{Now: r.fixer.clock.Now(), Random: r.fixer.random}
	next, err := fix(ctx, pm.Fields, d)
	if err != nil {
		return message, false
	}
	changed := changedFields(pm.Fields, next)
	if len(changed) == 0 {
		return message, false
	}
	out := message
	for _, field := range changed {
		if out, err = siwe.ReplaceField(out, field, next.Get(field)); err != nil {
			return message, false
		}
	}
	return out, true
}

// maxTargetedPasses bounds the validate/edit loop of TargetedFix.
const maxTargetedPasses = 32

// TargetedFix repeatedly validates message and applies the first fixable
// diagnostic that has a targeted remediation, until none is left. Lines not
// touched by a remediation stay byte-identical.
func (e *Engine) TargetedFix(message string, cfg Config) (string, []AppliedFix, ValidationResult) {
	repl := e.Replacer()
	cfg.AutoFix = false
	var applied []AppliedFix
	res := e.Validate(message, cfg)
	tried := make(map[siwe.Code]bool)
	for pass := 0; pass < maxTargetedPasses; pass++ {
		progressed := false
		for _, d := range res.Diagnostics() {
			if !d.Fixable || tried[d.Code] {
				continue
			}
			next, ok := repl.ApplyFieldFix(message, d)
			if !ok {
				tried[d.Code] = true
				continue
			}
			applied = append(applied, fixesFromEdit(message, next, d)...)
			if e.metrics != nil {
				e.metrics.ObserveFix(string(d.Code))
			}
			message = next
			progressed = true
			break
		}
		if !progressed {
			break
		}
		res = e.Validate(message, cfg)
	}
	return message, applied, res
}

// fixesFromEdit describes a targeted edit in the format used by
// regeneration: one entry per changed field when the diagnostic names a
// field, otherwise the edited line.
func fixesFromEdit(before, after string, d siwe.ValidationError) []AppliedFix {
	desc := fmt.Sprintf("%s: %s", d.Code, d.Suggestion)
	if d.Field == "" {
		return []AppliedFix{{Code: d.Code, Line: d.Line, Before: lineAt(before, d.Line), After: lineAt(after, d.Line), Description: desc}}
	}
	prev, next := siwe.Parse(before), siwe.Parse(after)
	var out []AppliedFix
	for _, field := range changedFields(prev.Fields, next.Fields) {
		line := d.Line
		if field != d.Field {
			line = prev.FieldLine(field)
		}
		out = append(out, AppliedFix{
			Code: d.Code, Field: field, Line: line,
			Before: prev.Fields.Get(field), After: next.Fields.Get(field), Description: desc,
		})
	}
	return out
}

func lineAt(msg string, line int) string {
	pm := siwe.Parse(msg)
	if line < 1 || line > len(pm.Lines) {
		return ""
	}
	return pm.Lines[line-1]
}
