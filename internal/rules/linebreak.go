package rules

import (
	"fmt"
	"strings"

	"example.com/siwegate/internal/siwe"
)

const maxBlankRun = 2

// ValidateLineBreaks checks blank-line placement and trailing whitespace on
// the raw text. It locates structure with the same line grammar the parser
// uses but ignores field values entirely.
func ValidateLineBreaks(message string) []siwe.ValidationError {
	lines := strings.Split(message, "\n")
	l := siwe.Locate(lines)
	var out []siwe.ValidationError

	if l.Header >= 0 && l.Address > l.Header {
		if n := blanksBetween(lines, l.Header, l.Address); n > 0 {
			out = append(out, lineBreakDiag(siwe.CodeBlankLineBeforeAddress, siwe.FieldAddress, l.Address,
				fmt.Sprintf("%d blank line(s) between header and address; none are allowed", n)))
		}
	}

	prev := l.Address
	if prev < 0 {
		prev = l.Header
	}
	if l.HasStatement() && prev >= 0 {
		if n := blanksBetween(lines, prev, l.StatementStart); n != 1 {
			out = append(out, lineBreakDiag(siwe.CodeStatementSpacing, siwe.FieldStatement, l.StatementStart,
				fmt.Sprintf("expected exactly one blank line before the statement, found %d", n)))
		}
		prev = l.StatementEnd - 1
	}

	fieldLines := l.FieldLines()
	if len(fieldLines) > 0 && prev >= 0 {
		want := 2
		if l.HasStatement() {
			want = 1
		}
		first := fieldLines[0]
		if n := blanksBetween(lines, prev, first); n != want {
			out = append(out, lineBreakDiag(siwe.CodeBlankLinesBeforeFields, fieldAt(l, first), first,
				fmt.Sprintf("expected %d blank line(s) before the first field, found %d", want, n)))
		}
	}
	for i := 1; i < len(fieldLines); i++ {
		cur := fieldLines[i]
		n := blanksBetween(lines, fieldLines[i-1], cur)
		if n == 0 {
			continue
		}
		code := siwe.CodeBlankLineBetweenFields
		if l.RoleOf(cur) != siwe.RoleRequiredField {
			code = siwe.CodeBlankLineBeforeOptionalField
		}
		out = append(out, lineBreakDiag(code, fieldAt(l, cur), cur,
			fmt.Sprintf("%d blank line(s) before %q; fields must be consecutive", n, strings.TrimSpace(lines[cur]))))
	}

	run := 0
	for idx, line := range lines {
		if strings.TrimSpace(line) == "" {
			run++
			if run == maxBlankRun+1 {
				out = append(out, siwe.Diag(siwe.CodeExcessiveBlankLines, siwe.TypeCompliance, siwe.SeverityWarning, "", idx-maxBlankRun+1,
					fmt.Sprintf("more than %d consecutive blank lines", maxBlankRun)).
					WithFix("collapse the blank lines"))
			}
		} else {
			run = 0
		}
		body := strings.TrimSuffix(line, "\r")
		if body != strings.TrimRight(body, " \t") {
			out = append(out, siwe.Diag(siwe.CodeTrailingWhitespace, siwe.TypeCompliance, siwe.SeverityWarning, "", idx+1,
				"line ends with whitespace").
				WithFix("trim trailing whitespace"))
		}
	}
	return out
}

func lineBreakDiag(code siwe.Code, field siwe.Field, idx int, msg string) siwe.ValidationError {
	return siwe.Diag(code, siwe.TypeFormat, siwe.SeverityError, field, idx+1, msg).
		WithFix("normalize blank lines")
}

// blanksBetween counts blank lines strictly between indices a and b.
func blanksBetween(lines []string, a, b int) int {
	n := 0
	for i := a + 1; i < b && i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			n++
		}
	}
	return n
}

// fieldAt names the field whose line is idx.
func fieldAt(l siwe.Layout, idx int) siwe.Field {
	for _, f := range siwe.AllFields {
		if l.Line(f) == idx {
			return f
		}
	}
	return ""
}
