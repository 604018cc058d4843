package siwe

import (
	"regexp"
	"strings"
)

const (
	HeaderSuffix   = " wants you to sign in with your Ethereum account:"
	ResourcesLabel = "Resources:"
	ResourceBullet = "- "
)

var headerPattern = regexp.MustCompile(`^(?:([A-Za-z][A-Za-z0-9+.\-]*)://)?(\S+) wants you to sign in with your Ethereum account:$`)

type fieldPrefix struct {
	field  Field
	prefix string
}

var requiredPrefixes = []fieldPrefix{
	{FieldURI, "URI: "},
	{FieldVersion, "Version: "},
	{FieldChainID, "Chain ID: "},
	{FieldNonce, "Nonce: "},
	{FieldIssuedAt, "Issued At: "},
}

var optionalPrefixes = []fieldPrefix{
	{FieldExpirationTime, "Expiration Time: "},
	{FieldNotBefore, "Not Before: "},
	{FieldRequestID, "Request ID: "},
}

// Prefix returns the literal line prefix of a prefixed field.
func Prefix(field Field) (string, bool) {
	for _, p := range requiredPrefixes {
		if p.field == field {
			return p.prefix, true
		}
	}
	for _, p := range optionalPrefixes {
		if p.field == field {
			return p.prefix, true
		}
	}
	return "", false
}

type lineState int

const (
	stateHeader lineState = iota
	stateAddress
	stateStatement
	stateRequired
	stateOptional
	stateResources
	stateTrailing
	stateDone
)

// Layout records where each structural element sits in the original lines.
// Indices are 0-based; -1 means absent.
type Layout struct {
	Header         int
	HeaderValid    bool
	Address        int
	StatementStart int
	StatementEnd   int
	Resources      int
	ResourceItems  []int
	Unexpected     []int

	// Expected holds the line where an absent field was looked for.
	Expected map[Field]int

	fields map[Field]int
	order  []int
}

func newLayout() Layout {
	return Layout{
		Header:         -1,
		Address:        -1,
		StatementStart: -1,
		StatementEnd:   -1,
		Resources:      -1,
		Expected:       make(map[Field]int),
		fields:         make(map[Field]int),
	}
}

// Line returns the index of the line holding field, or -1.
func (l Layout) Line(field Field) int {
	switch field {
	case FieldScheme, FieldDomain:
		return l.Header
	case FieldAddress:
		return l.Address
	case FieldStatement:
		return l.StatementStart
	case FieldResources:
		return l.Resources
	}
	if idx, ok := l.fields[field]; ok {
		return idx
	}
	return -1
}

// HasStatement reports whether a statement slot was found.
func (l Layout) HasStatement() bool {
	return l.StatementStart >= 0
}

// FieldLines returns the indices of every prefixed field and the resources
// label, in line order.
func (l Layout) FieldLines() []int {
	return append([]int(nil), l.order...)
}

// Role describes what a line index holds.
type Role int

const (
	RoleNone Role = iota
	RoleHeader
	RoleAddress
	RoleStatement
	RoleRequiredField
	RoleOptionalField
	RoleResources
	RoleResourceItem
	RoleUnexpected
)

// RoleOf returns the structural role of line idx.
func (l Layout) RoleOf(idx int) Role {
	switch {
	case idx < 0:
		return RoleNone
	case idx == l.Header:
		return RoleHeader
	case idx == l.Address:
		return RoleAddress
	case l.StatementStart >= 0 && idx >= l.StatementStart && idx < l.StatementEnd:
		return RoleStatement
	case idx == l.Resources:
		return RoleResources
	}
	for _, p := range requiredPrefixes {
		if l.fields[p.field] == idx && l.Line(p.field) >= 0 {
			return RoleRequiredField
		}
	}
	for _, p := range optionalPrefixes {
		if l.fields[p.field] == idx && l.Line(p.field) >= 0 {
			return RoleOptionalField
		}
	}
	for _, item := range l.ResourceItems {
		if item == idx {
			return RoleResourceItem
		}
	}
	for _, u := range l.Unexpected {
		if u == idx {
			return RoleUnexpected
		}
	}
	return RoleNone
}

// Locate walks lines through the message grammar and records the position of
// every structural element. It never fails: absent elements stay at -1 and
// required fields that could not be matched are listed in Expected.
func Locate(lines []string) Layout {
	l := newLayout()
	n := len(lines)
	i := 0
	state := stateHeader
	for state != stateDone {
		switch state {
		case stateHeader:
			state = stateAddress
			if n == 0 {
				l.Expected[FieldDomain] = 0
				continue
			}
			first := trimLine(lines[0])
			if headerPattern.MatchString(first) {
				l.Header, l.HeaderValid = 0, true
				i = 1
				continue
			}
			l.Expected[FieldDomain] = 0
			if first != "" && !IsAddress(first) && !isFieldLine(first) {
				l.Header = 0
				i = 1
			}

		case stateAddress:
			state = stateStatement
			if i < n && !isBlank(lines[i]) && !isFieldLine(trimLine(lines[i])) {
				l.Address = i
				i++
				continue
			}
			j := skipBlank(lines, i)
			if j < n && IsAddress(trimLine(lines[j])) {
				l.Address = j
				i = j + 1
				continue
			}
			l.Expected[FieldAddress] = clampLine(i, n)

		case stateStatement:
			state = stateRequired
			j := skipBlank(lines, i)
			if j >= n || isFieldLine(trimLine(lines[j])) {
				continue
			}
			l.StatementStart = j
			for j < n && !isBlank(lines[j]) && !isFieldLine(trimLine(lines[j])) {
				j++
			}
			l.StatementEnd = j
			i = j

		case stateRequired:
			state = stateOptional
			for _, p := range requiredPrefixes {
				j := nextFieldLine(lines, i)
				if j < n && matchPrefix(trimLine(lines[j]), p.prefix) {
					l.markUnexpected(lines, i, j)
					l.setField(p.field, j)
					i = j + 1
					continue
				}
				l.Expected[p.field] = clampLine(skipBlank(lines, i), n)
			}

		case stateOptional:
			state = stateResources
			for _, p := range optionalPrefixes {
				j := nextFieldLine(lines, i)
				if j < n && matchPrefix(trimLine(lines[j]), p.prefix) {
					l.markUnexpected(lines, i, j)
					l.setField(p.field, j)
					i = j + 1
				}
			}

		case stateResources:
			state = stateTrailing
			j := nextFieldLine(lines, i)
			if j >= n || trimLine(lines[j]) != ResourcesLabel {
				continue
			}
			l.markUnexpected(lines, i, j)
			l.Resources = j
			l.order = append(l.order, j)
			i = j + 1
			for i < n && strings.HasPrefix(lines[i], ResourceBullet) {
				l.ResourceItems = append(l.ResourceItems, i)
				i++
			}

		case stateTrailing:
			state = stateDone
			l.markUnexpected(lines, i, n)
		}
	}
	return l
}

func (l *Layout) setField(field Field, idx int) {
	l.fields[field] = idx
	l.order = append(l.order, idx)
}

func (l *Layout) markUnexpected(lines []string, from, to int) {
	for k := from; k < to; k++ {
		if !isBlank(lines[k]) {
			l.Unexpected = append(l.Unexpected, k)
		}
	}
}

func nextFieldLine(lines []string, i int) int {
	for ; i < len(lines); i++ {
		if isFieldLine(trimLine(lines[i])) {
			return i
		}
	}
	return len(lines)
}

func matchPrefix(line, prefix string) bool {
	return strings.HasPrefix(line, prefix) || line == strings.TrimSpace(prefix)
}

func isFieldLine(line string) bool {
	for _, p := range requiredPrefixes {
		if matchPrefix(line, p.prefix) {
			return true
		}
	}
	for _, p := range optionalPrefixes {
		if matchPrefix(line, p.prefix) {
			return true
		}
	}
	return line == ResourcesLabel
}

func skipBlank(lines []string, i int) int {
	for i < len(lines) && isBlank(lines[i]) {
		i++
	}
	return i
}

func clampLine(i, n int) int {
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func trimLine(line string) string {
	return strings.TrimRight(line, " \t\r")
}
