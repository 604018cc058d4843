package siwe

import (
	"errors"
	"fmt"
	"strings"
)

// Field names a slot of an EIP-4361 message.
type Field string

const (
	FieldScheme         Field = "scheme"
	FieldDomain         Field = "domain"
	FieldAddress        Field = "address"
	FieldStatement      Field = "statement"
	FieldURI            Field = "uri"
	FieldVersion        Field = "version"
	FieldChainID        Field = "chainId"
	FieldNonce          Field = "nonce"
	FieldIssuedAt       Field = "issuedAt"
	FieldExpirationTime Field = "expirationTime"
	FieldNotBefore      Field = "notBefore"
	FieldRequestID      Field = "requestId"
	FieldResources      Field = "resources"
)

// RequiredFields lists the seven fields every message must carry.
var RequiredFields = []Field{
	FieldDomain, FieldAddress, FieldURI, FieldVersion, FieldChainID, FieldNonce, FieldIssuedAt,
}

// AllFields lists every known field in canonical message order.
var AllFields = []Field{
	FieldScheme, FieldDomain, FieldAddress, FieldStatement, FieldURI, FieldVersion, FieldChainID,
	FieldNonce, FieldIssuedAt, FieldExpirationTime, FieldNotBefore, FieldRequestID, FieldResources,
}

var (
	ErrUnknownField        = errors.New("siwe: unknown field")
	ErrFieldNotReplaceable = errors.New("siwe: field cannot be replaced")
	ErrLineBreak           = errors.New("siwe: value contains a line break")
)

// ParseField resolves a field name.
func ParseField(name string) (Field, error) {
	for _, f := range AllFields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// Fields holds the raw values recovered from a message. Nothing is validated
// here; an empty string means the field is absent.
type Fields struct {
	Scheme         string   `json:"scheme,omitempty"`
	Domain         string   `json:"domain,omitempty"`
	Address        string   `json:"address,omitempty"`
	Statement      string   `json:"statement,omitempty"`
	URI            string   `json:"uri,omitempty"`
	Version        string   `json:"version,omitempty"`
	ChainID        string   `json:"chainId,omitempty"`
	Nonce          string   `json:"nonce,omitempty"`
	IssuedAt       string   `json:"issuedAt,omitempty"`
	ExpirationTime string   `json:"expirationTime,omitempty"`
	NotBefore      string   `json:"notBefore,omitempty"`
	RequestID      string   `json:"requestId,omitempty"`
	Resources      []string `json:"resources,omitempty"`
}

// Get returns the scalar value of f. Resources are joined by newlines.
func (f Fields) Get(field Field) string {
	switch field {
	case FieldScheme:
		return f.Scheme
	case FieldDomain:
		return f.Domain
	case FieldAddress:
		return f.Address
	case FieldStatement:
		return f.Statement
	case FieldURI:
		return f.URI
	case FieldVersion:
		return f.Version
	case FieldChainID:
		return f.ChainID
	case FieldNonce:
		return f.Nonce
	case FieldIssuedAt:
		return f.IssuedAt
	case FieldExpirationTime:
		return f.ExpirationTime
	case FieldNotBefore:
		return f.NotBefore
	case FieldRequestID:
		return f.RequestID
	case FieldResources:
		return strings.Join(f.Resources, "\n")
	}
	return ""
}

// Has reports whether field carries a non-empty value.
func (f Fields) Has(field Field) bool {
	if field == FieldResources {
		return len(f.Resources) > 0
	}
	return f.Get(field) != ""
}

// With returns a copy of f with field set to value. Setting resources splits
// value on newlines.
func (f Fields) With(field Field, value string) Fields {
	out := f.Clone()
	switch field {
	case FieldScheme:
		out.Scheme = value
	case FieldDomain:
		out.Domain = value
	case FieldAddress:
		out.Address = value
	case FieldStatement:
		out.Statement = value
	case FieldURI:
		out.URI = value
	case FieldVersion:
		out.Version = value
	case FieldChainID:
		out.ChainID = value
	case FieldNonce:
		out.Nonce = value
	case FieldIssuedAt:
		out.IssuedAt = value
	case FieldExpirationTime:
		out.ExpirationTime = value
	case FieldNotBefore:
		out.NotBefore = value
	case FieldRequestID:
		out.RequestID = value
	case FieldResources:
		out.Resources = splitLines(value)
	}
	return out
}

// WithResources returns a copy of f carrying resources.
func (f Fields) WithResources(resources []string) Fields {
	out := f.Clone()
	out.Resources = append([]string(nil), resources...)
	return out
}

// Clone returns a deep copy.
func (f Fields) Clone() Fields {
	out := f
	if f.Resources != nil {
		out.Resources = append([]string(nil), f.Resources...)
	}
	return out
}

// IsEmpty reports whether no field at all was recovered.
func (f Fields) IsEmpty() bool {
	for _, field := range AllFields {
		if f.Has(field) {
			return false
		}
	}
	return true
}

// MissingRequired returns the required fields that are absent.
func (f Fields) MissingRequired() []Field {
	var missing []Field
	for _, field := range RequiredFields {
		if !f.Has(field) {
			missing = append(missing, field)
		}
	}
	return missing
}

// ParsedMessage is the immutable output of Parse.
type ParsedMessage struct {
	Fields      Fields            `json:"fields"`
	Lines       []string          `json:"lines"`
	RawMessage  string            `json:"rawMessage"`
	IsValid     bool              `json:"isValid"`
	ParseErrors []ValidationError `json:"parseErrors"`
	Layout      Layout            `json:"-"`
}

// FieldLine returns the 1-based line of field in the original text. Absent
// fields report the line where they were expected; 1 is the fallback.
func (p *ParsedMessage) FieldLine(field Field) int {
	if p == nil {
		return 1
	}
	if idx := p.Layout.Line(field); idx >= 0 {
		return idx + 1
	}
	if idx, ok := p.Layout.Expected[field]; ok {
		return idx + 1
	}
	return 1
}

// ResourceLine returns the 1-based line of the i-th resource bullet.
func (p *ParsedMessage) ResourceLine(i int) int {
	if p == nil || i < 0 || i >= len(p.Layout.ResourceItems) {
		return p.FieldLine(FieldResources)
	}
	return p.Layout.ResourceItems[i] + 1
}

func splitLines(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, "\n")
}
