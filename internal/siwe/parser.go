package siwe

import (
	"fmt"
	"strings"
)

// Parse converts raw message text into fields plus structural diagnostics.
// It never panics on user input; an internal fault collapses into a single
// PARSE_ERROR diagnostic.
func Parse(raw string) (pm *ParsedMessage) {
	lines := strings.Split(raw, "\n")
	pm = &ParsedMessage{RawMessage: raw, Lines: lines}
	defer func() {
		if r := recover(); r != nil {
			pm.Fields = Fields{}
			pm.Layout = newLayout()
			pm.IsValid = false
			pm.ParseErrors = []ValidationError{
				Diag(CodeParseError, TypeFormat, SeverityError, "", 1, fmt.Sprintf("failed to parse message: %v", r)),
			}
		}
	}()

	layout := Locate(lines)
	pm.Layout = layout
	pm.Fields = extractFields(lines, layout)
	pm.ParseErrors = structuralErrors(lines, layout)
	pm.IsValid = !hasErrors(pm.ParseErrors) && len(pm.Fields.MissingRequired()) == 0
	return pm
}

func extractFields(lines []string, l Layout) Fields {
	var f Fields
	if l.HeaderValid {
		m := headerPattern.FindStringSubmatch(trimLine(lines[l.Header]))
		f.Scheme, f.Domain = m[1], m[2]
	}
	if l.Address >= 0 {
		f.Address = trimLine(lines[l.Address])
	}
	if l.HasStatement() {
		parts := make([]string, 0, l.StatementEnd-l.StatementStart)
		for _, line := range lines[l.StatementStart:l.StatementEnd] {
			parts = append(parts, trimLine(line))
		}
		f.Statement = strings.Join(parts, "\n")
	}
	for _, p := range append(append([]fieldPrefix(nil), requiredPrefixes...), optionalPrefixes...) {
		idx := l.Line(p.field)
		if idx < 0 {
			continue
		}
		line := trimLine(lines[idx])
		f = f.With(p.field, strings.TrimPrefix(line, p.prefix))
	}
	for _, idx := range l.ResourceItems {
		f.Resources = append(f.Resources, strings.TrimPrefix(trimLine(lines[idx]), ResourceBullet))
	}
	return f
}

func structuralErrors(lines []string, l Layout) []ValidationError {
	var errs []ValidationError
	if !l.HeaderValid {
		line := 1
		if l.Header >= 0 {
			line = l.Header + 1
		}
		errs = append(errs, Diag(CodeInvalidHeader, TypeFormat, SeverityError, FieldDomain, line,
			fmt.Sprintf("first line must read \"<domain>%s\"", HeaderSuffix)).
			WithSuggestion("start the message with the relying party domain followed by the sign-in phrase"))
	}
	if l.Address < 0 {
		errs = append(errs, Diag(CodeMissingAddress, TypeFormat, SeverityError, FieldAddress,
			l.Expected[FieldAddress]+1, "address line is missing after the header"))
	}
	for _, p := range requiredPrefixes {
		if l.Line(p.field) >= 0 {
			continue
		}
		errs = append(errs, Diag(MissingCode(p.field), TypeFormat, SeverityError, p.field,
			l.Expected[p.field]+1, fmt.Sprintf("required field %q is missing", strings.TrimSpace(p.prefix))).
			WithSuggestion(fmt.Sprintf("add a line starting with %q", p.prefix)))
	}
	for _, idx := range l.Unexpected {
		errs = append(errs, Diag(CodeUnexpectedLine, TypeFormat, SeverityError, "", idx+1,
			fmt.Sprintf("unexpected content %q", truncate(trimLine(lines[idx]), 40))).
			WithFix("remove the line or move it to its canonical position"))
	}
	return errs
}

func hasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Generate renders fields as a canonical EIP-4361 message. Absent optional
// fields are omitted; absent required fields are omitted too, so the output
// of incomplete fields will not parse as valid.
func Generate(f Fields) string {
	lines := make([]string, 0, 16)
	header := f.Domain + HeaderSuffix
	if f.Scheme != "" {
		header = f.Scheme + "://" + header
	}
	lines = append(lines, header, f.Address, "")
	if f.Statement != "" {
		lines = append(lines, f.Statement, "")
	} else {
		lines = append(lines, "")
	}
	for _, p := range requiredPrefixes {
		if v := f.Get(p.field); v != "" {
			lines = append(lines, p.prefix+v)
		}
	}
	for _, p := range optionalPrefixes {
		if v := f.Get(p.field); v != "" {
			lines = append(lines, p.prefix+v)
		}
	}
	if len(f.Resources) > 0 {
		lines = append(lines, ResourcesLabel)
		for _, r := range f.Resources {
			lines = append(lines, ResourceBullet+r)
		}
	}
	return strings.Join(lines, "\n")
}
