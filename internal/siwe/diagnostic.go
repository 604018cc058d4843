package siwe

import "fmt"

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type ErrorType string

const (
	TypeFormat     ErrorType = "format"
	TypeSecurity   ErrorType = "security"
	TypeCompliance ErrorType = "compliance"
)

// Code identifies one distinct defect. Codes are stable across releases.
type Code string

// ValidationError is the single diagnostic record produced by every stage.
// Line is 1-based and always points into the original message text.
type ValidationError struct {
	Type       ErrorType `json:"type"`
	Field      Field     `json:"field,omitempty"`
	Line       int       `json:"line"`
	Column     int       `json:"column"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	Fixable    bool      `json:"fixable"`
	Suggestion string    `json:"suggestion,omitempty"`
	Code       Code      `json:"code"`
}

func (e ValidationError) String() string {
	if e.Field != "" {
		return fmt.Sprintf("%d:%d %s %s [%s] %s", e.Line, e.Column, e.Severity, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%d:%d %s %s %s", e.Line, e.Column, e.Severity, e.Code, e.Message)
}

// Diag builds a diagnostic at column 1 of line.
func Diag(code Code, typ ErrorType, sev Severity, field Field, line int, msg string) ValidationError {
	if line < 1 {
		line = 1
	}
	return ValidationError{
		Type:     typ,
		Field:    field,
		Line:     line,
		Column:   1,
		Message:  msg,
		Severity: sev,
		Code:     code,
	}
}

// WithFix marks the diagnostic fixable and attaches a suggestion.
func (e ValidationError) WithFix(suggestion string) ValidationError {
	e.Fixable = true
	e.Suggestion = suggestion
	return e
}

// WithSuggestion attaches a suggestion without marking the diagnostic fixable.
func (e ValidationError) WithSuggestion(suggestion string) ValidationError {
	e.Suggestion = suggestion
	return e
}
