package rules

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/siwegate/internal/siwe"
)

func newTestReplacer() *FieldReplacer {
	return NewFieldReplacer(FixedClock(fixedNow), nil)
}

func TestReplacerReplaceField(t *testing.T) {
	r := newTestReplacer()
	out, err := r.ReplaceField(goodMessage, "nonce", "Zx81Kq0PmW5nT3yV")
	require.NoError(t, err)
	assert.Equal(t, strings.Replace(goodMessage, "Qm7vX2pLk9RtW4zN", "Zx81Kq0PmW5nT3yV", 1), out)

	_, err = r.ReplaceField(goodMessage, "signature", "0x00")
	assert.ErrorIs(t, err, siwe.ErrUnknownField)
}

func TestReplacerRemoveField(t *testing.T) {
	r := newTestReplacer()
	out, err := r.RemoveField(goodMessage, "expirationTime")
	require.NoError(t, err)
	assert.Equal(t, withLine("Expiration Time:", ""), out)

	_, err = r.RemoveField(goodMessage, "nonce")
	assert.ErrorIs(t, err, siwe.ErrFieldNotReplaceable)
}

func TestReplacerResources(t *testing.T) {
	r := newTestReplacer()
	out, err := r.AddResource(goodMessage, "https://example.com/profile")
	require.NoError(t, err)
	assert.Equal(t, goodMessage+"\nResources:\n- https://example.com/profile", out)

	back, ok := r.RemoveResource(out, "https://example.com/profile")
	require.True(t, ok)
	assert.Equal(t, goodMessage, back)

	_, ok = r.RemoveResource(goodMessage, "https://example.com/other")
	assert.False(t, ok)
}

func TestApplyFieldFix(t *testing.T) {
	r := newTestReplacer()
	cases := []struct {
		name string
		msg  string
		diag siwe.ValidationError
	}{
		{
			name: "version",
			msg:  withLine("Version:", "Version: 2"),
			diag: siwe.ValidationError{Code: siwe.CodeInvalidVersion, Field: siwe.FieldVersion, Line: 7},
		},
		{
			name: "checksum",
			msg:  withLine("0x5a", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"),
			diag: siwe.ValidationError{Code: siwe.CodeAddressNotChecksummed, Field: siwe.FieldAddress, Line: 2},
		},
		{
			name: "unexpected line",
			msg:  goodMessage + "\nstray text",
			diag: siwe.ValidationError{Code: siwe.CodeUnexpectedLine, Line: 12},
		},
		{
			name: "trailing whitespace",
			msg:  strings.Replace(goodMessage, "Chain ID: 1\n", "Chain ID: 1\t\n", 1),
			diag: siwe.ValidationError{Code: siwe.CodeTrailingWhitespace, Line: 8},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, ok := r.ApplyFieldFix(tc.msg, tc.diag)
			require.True(t, ok)
			assert.Equal(t, goodMessage, out)
		})
	}
}

func TestApplyFieldFixMatchesAutoFix(t *testing.T) {
	eng := newTestEngine()
	msg := withLine("0x5a", "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed")
	res := eng.Validate(msg, strictFix)
	d, ok := find(res.Warnings, siwe.CodeAddressNotChecksummed)
	require.True(t, ok)

	targeted, ok := eng.Replacer().ApplyFieldFix(msg, d)
	require.True(t, ok)
	assert.Equal(t, res.FixedMessage, targeted)
}

func TestApplyFieldFixUnfixable(t *testing.T) {
	r := newTestReplacer()
	msg := withLine("Chain ID:", "Chain ID: abc")
	out, ok := r.ApplyFieldFix(msg, siwe.ValidationError{Code: siwe.CodeInvalidChainID, Field: siwe.FieldChainID, Line: 8})
	assert.False(t, ok)
	assert.Equal(t, msg, out)

	out, ok = r.ApplyFieldFix(goodMessage, siwe.ValidationError{Code: siwe.CodeUnexpectedLine, Line: 1})
	assert.False(t, ok)
	assert.Equal(t, goodMessage, out)
}

func TestEngineTargetedFix(t *testing.T) {
	e := newTestEngine()
	msg := withLineIn(withLine("Version:", "Version: 2"), "0x5aAeb", strings.ToLower("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
	msg = withLineIn(msg, "Chain ID:", "Chain ID: 1  ")

	fixed, applied, res := e.TargetedFix(msg, Config{Profile: ProfileStrict})
	assert.True(t, res.IsValid, "remaining: %v", codes(res.Errors))
	assert.Equal(t, goodMessage, fixed)
	require.NotEmpty(t, applied)

	got := make(map[siwe.Code]bool)
	for _, f := range applied {
		got[f.Code] = true
	}
	assert.True(t, got[siwe.CodeInvalidVersion])
	assert.Equal(t, "2", applied[indexOfCode(applied, siwe.CodeInvalidVersion)].Before)
}

func TestEngineTargetedFixStaleWindow(t *testing.T) {
	later := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(WithClock(FixedClock(later)))

	fixed, applied, res := e.TargetedFix(goodMessage, Config{Profile: ProfileStrict})
	want := withLineIn(withLine("Issued At:", "Issued At: 2026-10-18T00:00:00Z"),
		"Expiration Time:", "Expiration Time: 2026-10-18T00:10:00Z")
	assert.Equal(t, want, fixed)
	assert.NotContains(t, codes(res.Diagnostics()), siwe.CodeLifetimeTooLong)
	assert.NotContains(t, codes(res.Diagnostics()), siwe.CodeExpirationTooLong)

	fields := make(map[siwe.Field]bool)
	for _, f := range applied {
		fields[f.Field] = true
	}
	assert.True(t, fields[siwe.FieldIssuedAt] && fields[siwe.FieldExpirationTime], "applied: %+v", applied)
}

func TestEngineTargetedFixNoop(t *testing.T) {
	e := newTestEngine()
	fixed, applied, res := e.TargetedFix(goodMessage, Config{Profile: ProfileStrict})
	assert.Equal(t, goodMessage, fixed)
	assert.Empty(t, applied)
	assert.True(t, res.IsValid)
}

func indexOfCode(fixes []AppliedFix, code siwe.Code) int {
	for i, f := range fixes {
		if f.Code == code {
			return i
		}
	}
	return -1
}
