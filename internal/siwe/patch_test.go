package siwe

import (
	"errors"
	"strings"
	"testing"
)

// assertOnlyChanged fails unless after equals before with exactly the lines
// at index idx replaced by repl.
func assertOnlyChanged(t *testing.T, before, after string, idx, removed int, repl ...string) {
	t.Helper()
	b := strings.Split(before, "\n")
	want := append([]string(nil), b[:idx]...)
	want = append(want, repl...)
	want = append(want, b[idx+removed:]...)
	if got := strings.Join(want, "\n"); got != after {
		t.Fatalf("unexpected edit:\n got %q\nwant %q", after, got)
	}
}

func TestReplacePrefixedField(t *testing.T) {
	out, err := ReplaceField(sampleMessage, FieldVersion, "2")
	if err != nil {
		t.Fatalf("ReplaceField: %v", err)
	}
	assertOnlyChanged(t, sampleMessage, out, 5, 1, "Version: 2")

	out, err = ReplaceField(sampleMessage, FieldNonce, "Qm7vX2pLk9RtW4zN")
	if err != nil {
		t.Fatalf("ReplaceField: %v", err)
	}
	assertOnlyChanged(t, sampleMessage, out, 7, 1, "Nonce: Qm7vX2pLk9RtW4zN")
}

func TestReplaceInsertsOptionalFieldsInOrder(t *testing.T) {
	out, err := ReplaceField(sampleMessage, FieldRequestID, "r1")
	if err != nil {
		t.Fatalf("ReplaceField: %v", err)
	}
	assertOnlyChanged(t, sampleMessage, out, 9, 0, "Request ID: r1")

	withExp, err := ReplaceField(out, FieldExpirationTime, "2024-01-01T00:10:00Z")
	if err != nil {
		t.Fatalf("ReplaceField: %v", err)
	}
	assertOnlyChanged(t, out, withExp, 9, 0, "Expiration Time: 2024-01-01T00:10:00Z")

	pm := Parse(withExp)
	if pm.Fields.ExpirationTime == "" || pm.Fields.RequestID != "r1" || len(pm.ParseErrors) != 0 {
		t.Fatalf("parsed = %+v errs %v", pm.Fields, codesOf(pm.ParseErrors))
	}

	removed, err := RemoveField(withExp, FieldExpirationTime)
	if err != nil {
		t.Fatalf("RemoveField: %v", err)
	}
	if removed != out {
		t.Fatalf("RemoveField did not restore the previous text")
	}
}

func TestReplaceHeaderAndAddress(t *testing.T) {
	msg := strings.Replace(sampleMessage, "example.com wants", "https://example.com wants", 1)
	out, err := ReplaceField(msg, FieldDomain, "app.example.org")
	if err != nil {
		t.Fatalf("ReplaceField: %v", err)
	}
	assertOnlyChanged(t, msg, out, 0, 1, "https://app.example.org wants you to sign in with your Ethereum account:")

	out, err = ReplaceField(sampleMessage, FieldAddress, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	if err != nil {
		t.Fatalf("ReplaceField: %v", err)
	}
	assertOnlyChanged(t, sampleMessage, out, 1, 1, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
}

func TestReplaceStatement(t *testing.T) {
	out, err := ReplaceField(sampleMessage, FieldStatement, "Welcome back.")
	if err != nil {
		t.Fatalf("ReplaceField: %v", err)
	}
	assertOnlyChanged(t, sampleMessage, out, 3, 0, "Welcome back.")
	if got := Parse(out).Fields.Statement; got != "Welcome back." {
		t.Fatalf("statement = %q", got)
	}

	changed, err := ReplaceField(out, FieldStatement, "Changed.")
	if err != nil {
		t.Fatalf("ReplaceField: %v", err)
	}
	assertOnlyChanged(t, out, changed, 3, 1, "Changed.")

	back, err := RemoveField(changed, FieldStatement)
	if err != nil {
		t.Fatalf("RemoveField: %v", err)
	}
	if back != sampleMessage {
		t.Fatalf("removing the statement did not restore the original:\n%q", back)
	}
}

func TestReplaceFieldErrors(t *testing.T) {
	if _, err := ReplaceField(sampleMessage, Field("colour"), "x"); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("err = %v, want ErrUnknownField", err)
	}
	if _, err := RemoveField(sampleMessage, FieldNonce); !errors.Is(err, ErrFieldNotReplaceable) {
		t.Fatalf("err = %v, want ErrFieldNotReplaceable", err)
	}
}

func TestReplaceFieldRejectsLineBreaks(t *testing.T) {
	cases := []struct {
		field Field
		value string
	}{
		{FieldNonce, "Qm7vX2pLk9RtW4zN\nExpiration Time: 2099-01-01T00:00:00Z"},
		{FieldURI, "https://example.com\r"},
		{FieldAddress, "0x742d35Cc6C4C1Ca5d428d9eE0e9B1E1234567890\nNot Before: 2099-01-01T00:00:00Z"},
		{FieldDomain, "example.com\nevil.com"},
		{FieldStatement, "Line one.\nLine two."},
		{FieldExpirationTime, "2024-01-01T00:10:00Z\r\nRequest ID: x"},
		{FieldResources, "https://example.com/a\r\nhttps://example.com/b"},
	}
	for _, tc := range cases {
		out, err := ReplaceField(sampleMessage, tc.field, tc.value)
		if !errors.Is(err, ErrLineBreak) {
			t.Fatalf("%s: err = %v, want ErrLineBreak (got %q)", tc.field, err, out)
		}
	}
	if _, err := AddResource(sampleMessage, "https://example.com/a\nIssued At: 2099-01-01T00:00:00Z"); !errors.Is(err, ErrLineBreak) {
		t.Fatalf("AddResource err = %v, want ErrLineBreak", err)
	}

	out, err := ReplaceField(sampleMessage, FieldResources, "https://example.com/a\nhttps://example.com/b")
	if err != nil {
		t.Fatalf("resources list: %v", err)
	}
	if got := Parse(out).Fields.Resources; len(got) != 2 {
		t.Fatalf("resources = %v", got)
	}
}

func TestResourceEdits(t *testing.T) {
	out, err := AddResource(sampleMessage, "https://example.com/a")
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	assertOnlyChanged(t, sampleMessage, out, 9, 0, "Resources:", "- https://example.com/a")

	out2, err := AddResource(out, "https://example.com/b")
	if err != nil {
		t.Fatalf("AddResource: %v", err)
	}
	assertOnlyChanged(t, out, out2, 11, 0, "- https://example.com/b")

	if got := Parse(out2).Fields.Resources; len(got) != 2 {
		t.Fatalf("resources = %v", got)
	}

	removed, ok := RemoveResource(out2, "https://example.com/b")
	if !ok || removed != out {
		t.Fatalf("RemoveResource = %q, %v", removed, ok)
	}
	removed, ok = RemoveResource(removed, "https://example.com/a")
	if !ok || removed != sampleMessage {
		t.Fatalf("removing the last resource must drop the label: %q", removed)
	}
	if _, ok := RemoveResource(sampleMessage, "https://nowhere"); ok {
		t.Fatalf("RemoveResource reported a missing resource as removed")
	}
}

func TestFixLineBreaks(t *testing.T) {
	messy := "example.com wants you to sign in with your Ethereum account:  \n" +
		"\n" +
		"0x742d35Cc6C4C1Ca5d428d9eE0e9B1E1234567890\n" +
		"\n" +
		"URI: https://example.com\n" +
		"\n" +
		"Version: 1\t\n" +
		"Chain ID: 1\n" +
		"\n\n\n" +
		"Nonce: abcdef123456\n" +
		"Issued At: 2024-01-01T00:00:00Z"
	if got := FixLineBreaks(messy); got != sampleMessage {
		t.Fatalf("FixLineBreaks:\n got %q\nwant %q", got, sampleMessage)
	}
	if got := FixLineBreaks(sampleMessage); got != sampleMessage {
		t.Fatalf("canonical text changed: %q", got)
	}
	withNewline := sampleMessage + "\n"
	if got := FixLineBreaks(withNewline); got != withNewline {
		t.Fatalf("final newline lost: %q", got)
	}
}
