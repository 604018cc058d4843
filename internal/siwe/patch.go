package siwe

import (
	"fmt"
	"strings"
)

// The functions in this file edit message text in place. Every line that is
// not part of the targeted field is returned byte-identical.

// ReplaceField sets field to value, rewriting only the line(s) that hold it.
// Absent fields are inserted at their canonical position. An empty value for
// an optional field removes it. Values must fit on one line; resources are
// the exception and take one URI per "\n"-separated line.
func ReplaceField(message string, field Field, value string) (string, error) {
	if _, err := ParseField(string(field)); err != nil {
		return "", err
	}
	if err := CheckValue(field, value); err != nil {
		return "", err
	}
	lines := strings.Split(message, "\n")
	l := Locate(lines)

	switch field {
	case FieldDomain, FieldScheme:
		return join(replaceHeader(lines, l, field, value)), nil
	case FieldAddress:
		if l.Address >= 0 {
			return join(setLine(lines, l.Address, value)), nil
		}
		at := 0
		if l.Header >= 0 {
			at = l.Header + 1
		}
		return join(insertLines(lines, at, value)), nil
	case FieldStatement:
		return join(replaceStatement(lines, l, value)), nil
	case FieldResources:
		return join(replaceResources(lines, l, splitLines(value))), nil
	}

	prefix, ok := Prefix(field)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrFieldNotReplaceable, field)
	}
	idx := l.Line(field)
	optional := isOptional(field)
	switch {
	case idx >= 0 && value == "" && optional:
		return join(deleteLines(lines, idx, idx+1)), nil
	case idx >= 0:
		return join(setLine(lines, idx, prefix+value)), nil
	case value == "" && optional:
		return message, nil
	}
	return join(insertLines(lines, insertionPoint(lines, l, field), prefix+value)), nil
}

// RemoveField deletes an optional field, the statement or the whole
// resources block. Required fields cannot be removed.
func RemoveField(message string, field Field) (string, error) {
	if _, err := ParseField(string(field)); err != nil {
		return "", err
	}
	if field != FieldStatement && field != FieldResources && !isOptional(field) {
		return "", fmt.Errorf("%w: %s is required", ErrFieldNotReplaceable, field)
	}
	return ReplaceField(message, field, "")
}

// AddResource appends a bullet to the resources block, creating the block
// after the last field when absent.
func AddResource(message, uri string) (string, error) {
	if strings.ContainsAny(uri, "\r\n") {
		return "", fmt.Errorf("%w: resource %q", ErrLineBreak, uri)
	}
	lines := strings.Split(message, "\n")
	l := Locate(lines)
	if l.Resources >= 0 {
		at := l.Resources + 1
		if k := len(l.ResourceItems); k > 0 {
			at = l.ResourceItems[k-1] + 1
		}
		return join(insertLines(lines, at, ResourceBullet+uri)), nil
	}
	return join(insertLines(lines, afterLastField(lines, l), ResourcesLabel, ResourceBullet+uri)), nil
}

// RemoveResource deletes the first bullet equal to uri. The label goes too
// when no bullet remains. It reports false when uri was not listed.
func RemoveResource(message, uri string) (string, bool) {
	lines := strings.Split(message, "\n")
	l := Locate(lines)
	for _, idx := range l.ResourceItems {
		if strings.TrimPrefix(trimLine(lines[idx]), ResourceBullet) != uri {
			continue
		}
		if len(l.ResourceItems) == 1 {
			return join(deleteLines(lines, l.Resources, idx+1)), true
		}
		return join(deleteLines(lines, idx, idx+1)), true
	}
	return message, false
}

// RemoveUnexpectedLine deletes 1-based line when the grammar does not place
// it anywhere. Structural lines are never removed.
func RemoveUnexpectedLine(message string, line int) (string, bool) {
	lines := strings.Split(message, "\n")
	idx := line - 1
	if idx < 0 || idx >= len(lines) {
		return message, false
	}
	if Locate(lines).RoleOf(idx) != RoleUnexpected {
		return message, false
	}
	return join(deleteLines(lines, idx, idx+1)), true
}

// FixLineBreaks re-emits the message with canonical blank lines around every
// structural element, trailing whitespace trimmed and any other blank run
// capped at two.
func FixLineBreaks(message string) string {
	lines := strings.Split(message, "\n")
	l := Locate(lines)
	first := -1
	if order := l.FieldLines(); len(order) > 0 {
		first = order[0]
	}

	out := make([]string, 0, len(lines))
	pending := 0
	for idx, line := range lines {
		if isBlank(line) {
			pending++
			continue
		}
		want := pending
		switch l.RoleOf(idx) {
		case RoleHeader, RoleAddress, RoleRequiredField, RoleOptionalField, RoleResources, RoleResourceItem:
			want = 0
		case RoleStatement:
			want = 0
			if idx == l.StatementStart {
				want = 1
			}
		default:
			if want > 2 {
				want = 2
			}
		}
		if idx == first {
			want = 2
			if l.HasStatement() {
				want = 1
			}
		}
		if len(out) == 0 {
			want = 0
		}
		for k := 0; k < want; k++ {
			out = append(out, "")
		}
		out = append(out, trimLine(line))
		pending = 0
	}
	if len(lines) > 1 && lines[len(lines)-1] == "" && len(out) > 0 {
		out = append(out, "")
	}
	return join(out)
}

func isOptional(field Field) bool {
	for _, p := range optionalPrefixes {
		if p.field == field {
			return true
		}
	}
	return false
}

func replaceHeader(lines []string, l Layout, field Field, value string) []string {
	scheme, domain := "", ""
	if l.HeaderValid {
		m := headerPattern.FindStringSubmatch(trimLine(lines[l.Header]))
		scheme, domain = m[1], m[2]
	}
	if field == FieldScheme {
		scheme = value
	} else {
		domain = value
	}
	header := domain + HeaderSuffix
	if scheme != "" {
		header = scheme + "://" + header
	}
	if l.Header >= 0 {
		return setLine(lines, l.Header, header)
	}
	return insertLines(lines, 0, header)
}

func replaceStatement(lines []string, l Layout, value string) []string {
	if l.HasStatement() {
		if value == "" {
			return deleteLines(lines, l.StatementStart, l.StatementEnd)
		}
		out := deleteLines(lines, l.StatementStart+1, l.StatementEnd)
		return setLine(out, l.StatementStart, value)
	}
	if value == "" {
		return lines
	}
	anchor := l.Address
	if anchor < 0 {
		anchor = l.Header
	}
	at := anchor + 1
	var ins []string
	if at < len(lines) && isBlank(lines[at]) {
		at++
	} else {
		ins = append(ins, "")
	}
	ins = append(ins, value)
	if at >= len(lines) || !isBlank(lines[at]) {
		ins = append(ins, "")
	}
	return insertLines(lines, at, ins...)
}

func replaceResources(lines []string, l Layout, resources []string) []string {
	block := make([]string, 0, len(resources)+1)
	if len(resources) > 0 {
		block = append(block, ResourcesLabel)
		for _, r := range resources {
			block = append(block, ResourceBullet+r)
		}
	}
	if l.Resources < 0 {
		if len(block) == 0 {
			return lines
		}
		return insertLines(lines, afterLastField(lines, l), block...)
	}
	end := l.Resources + 1
	if k := len(l.ResourceItems); k > 0 {
		end = l.ResourceItems[k-1] + 1
	}
	out := deleteLines(lines, l.Resources, end)
	return insertLines(out, l.Resources, block...)
}

// insertionPoint finds where an absent prefixed field belongs: after the
// closest present field that precedes it, or before the closest that follows.
func insertionPoint(lines []string, l Layout, field Field) int {
	all := append(append([]fieldPrefix(nil), requiredPrefixes...), optionalPrefixes...)
	pos := 0
	for i, p := range all {
		if p.field == field {
			pos = i
		}
	}
	for i := pos - 1; i >= 0; i-- {
		if idx := l.Line(all[i].field); idx >= 0 {
			return idx + 1
		}
	}
	for i := pos + 1; i < len(all); i++ {
		if idx := l.Line(all[i].field); idx >= 0 {
			return idx
		}
	}
	if l.Resources >= 0 {
		return l.Resources
	}
	return contentEnd(lines)
}

func afterLastField(lines []string, l Layout) int {
	last := -1
	for _, idx := range l.FieldLines() {
		if idx > last {
			last = idx
		}
	}
	if last >= 0 {
		return last + 1
	}
	return contentEnd(lines)
}

// contentEnd is the index just past the last non-blank line.
func contentEnd(lines []string) int {
	end := len(lines)
	for end > 0 && isBlank(lines[end-1]) {
		end--
	}
	return end
}

// setLine replaces line idx, keeping a CR terminator if the line had one.
// CheckValue reports ErrLineBreak when value would spill onto further
// message lines. Resources may hold one URI per "\n"-separated line.
func CheckValue(field Field, value string) error {
	breaks := "\r\n"
	if field == FieldResources {
		breaks = "\r"
	}
	if strings.ContainsAny(value, breaks) {
		return fmt.Errorf("%w: %s", ErrLineBreak, field)
	}
	return nil
}

func setLine(lines []string, idx int, text string) []string {
	out := append([]string(nil), lines...)
	if strings.HasSuffix(out[idx], "\r") {
		text += "\r"
	}
	out[idx] = text
	return out
}

func insertLines(lines []string, at int, ins ...string) []string {
	if at > len(lines) {
		at = len(lines)
	}
	out := make([]string, 0, len(lines)+len(ins))
	out = append(out, lines[:at]...)
	out = append(out, ins...)
	return append(out, lines[at:]...)
}

func deleteLines(lines []string, from, to int) []string {
	out := make([]string, 0, len(lines)-(to-from))
	out = append(out, lines[:from]...)
	return append(out, lines[to:]...)
}

func join(lines []string) string {
	return strings.Join(lines, "\n")
}
