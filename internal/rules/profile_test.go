package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/siwegate/internal/siwe"
)

const yamlProfiles = `profiles:
  - name: quiet
    description: security checks without expiry nagging
    securityChecks: true
    rules:
      - action: drop
        codes: [NO_EXPIRATION]
`

const tomlProfiles = `[[profiles]]
name = "quiet"
securityChecks = true

[[profiles.rules]]
action = "drop"
codes = ["NO_EXPIRATION"]
`

const jsonProfiles = `{"profiles":[{"name":"quiet","securityChecks":true,"rules":[{"action":"drop","codes":["NO_EXPIRATION"]}]}]}`

func TestDefaultProfileNames(t *testing.T) {
	assert.Equal(t, []string{"basic", "development", "security", "strict"}, DefaultProfiles().Names())
}

func TestDecodeProfilesFormats(t *testing.T) {
	for format, data := range map[string]string{"yaml": yamlProfiles, "toml": tomlProfiles, "json": jsonProfiles} {
		t.Run(format, func(t *testing.T) {
			set, err := DecodeProfiles([]byte(data), format)
			require.NoError(t, err)
			p, ok := set.Lookup("quiet")
			require.True(t, ok)
			assert.True(t, p.SecurityChecks)
			require.Len(t, p.Rules, 1)
			assert.Equal(t, ActionDrop, p.Rules[0].Action)
			assert.Equal(t, []siwe.Code{siwe.CodeNoExpiration}, p.Rules[0].Codes)
		})
	}
}

func TestDecodeProfilesErrors(t *testing.T) {
	_, err := DecodeProfiles([]byte(yamlProfiles), "ini")
	assert.ErrorIs(t, err, ErrUnknownProfileFormat)

	_, err = DecodeProfiles([]byte(`{"profiles":[{"name":"x","rules":[{"action":"explode"}]}]}`), "json")
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = DecodeProfiles([]byte(`{"profiles":[{"name":"x","rules":[{"action":"promote","severity":"fatal"}]}]}`), "json")
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = DecodeProfiles([]byte(`{"profiles":[{"name":""}]}`), "json")
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = DecodeProfiles([]byte(`{"profiles":[{"name":"a"},{"name":"a"}]}`), "json")
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = DecodeProfiles([]byte(`{"profiles":[],"extra":1}`), "json")
	assert.Error(t, err)
}

func TestLoadProfilesByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "team.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlProfiles), 0o644))
	set, err := LoadProfiles(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"quiet"}, set.Names())

	_, err = LoadProfiles(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestProfileApply(t *testing.T) {
	diags := []siwe.ValidationError{
		siwe.Diag(siwe.CodeNoExpiration, siwe.TypeSecurity, siwe.SeverityWarning, siwe.FieldExpirationTime, 11, "no expiry"),
		siwe.Diag(siwe.CodeTrailingWhitespace, siwe.TypeCompliance, siwe.SeverityWarning, "", 3, "ws"),
		siwe.Diag(siwe.CodeInvalidVersion, siwe.TypeFormat, siwe.SeverityError, siwe.FieldVersion, 7, "v"),
		siwe.Diag(siwe.CodeDevelopmentDomain, siwe.TypeSecurity, siwe.SeverityInfo, siwe.FieldDomain, 1, "dev"),
	}
	set := DefaultProfiles()

	strict := set[ProfileStrict].Apply(diags)
	assert.Equal(t, diags, strict)

	security := set[ProfileSecurity].Apply(diags)
	require.Len(t, security, 4)
	assert.Equal(t, siwe.SeverityError, security[0].Severity)
	assert.Equal(t, siwe.SeverityWarning, security[1].Severity)
	assert.Equal(t, siwe.SeverityWarning, diags[0].Severity)

	dev := set[ProfileDevelopment].Apply(diags)
	assert.Equal(t, []siwe.Code{siwe.CodeTrailingWhitespace, siwe.CodeInvalidVersion}, codes(dev))

	basic := set[ProfileBasic].Apply(diags)
	assert.Equal(t, []siwe.Code{siwe.CodeInvalidVersion}, codes(basic))
}

func TestBasicErrorsAreSubsetOfStrict(t *testing.T) {
	eng := newTestEngine()
	messages := []string{
		goodMessage,
		withLine("Version:", "Version: 2"),
		withLine("Nonce:", "Nonce: aaaaaaaa"),
		withLine("Nonce:", ""),
		withLine("URI:", "URI: http://example.com"),
		withLine("Expiration Time:", "Expiration Time: 2023-12-31T00:00:00Z"),
		goodMessage + "\nstray text",
		"",
	}
	for _, msg := range messages {
		strict := codes(eng.Validate(msg, Config{Profile: ProfileStrict}).Errors)
		for _, c := range codes(eng.Validate(msg, Config{Profile: ProfileBasic}).Errors) {
			assert.Contains(t, strict, c, msg)
		}
	}
}

func TestSecurityProfilePromotes(t *testing.T) {
	eng := newTestEngine()
	msg := withLine("Expiration Time:", "")
	strict := eng.Validate(msg, Config{Profile: ProfileStrict})
	assert.True(t, strict.IsValid)
	_, ok := find(strict.Warnings, siwe.CodeNoExpiration)
	assert.True(t, ok)

	sec := eng.Validate(msg, Config{Profile: ProfileSecurity})
	assert.False(t, sec.IsValid)
	_, ok = find(sec.Errors, siwe.CodeNoExpiration)
	assert.True(t, ok)
}

func TestCustomProfileThroughEngine(t *testing.T) {
	set, err := DecodeProfiles([]byte(yamlProfiles), "yaml")
	require.NoError(t, err)
	eng := newTestEngine(WithProfiles(DefaultProfiles().Merge(set)))
	res := eng.Validate(withLine("Expiration Time:", ""), Config{Profile: "quiet"})
	assert.Equal(t, "quiet", res.Profile)
	_, ok := find(res.Warnings, siwe.CodeNoExpiration)
	assert.False(t, ok)

	p := set["quiet"]
	res = newTestEngine().Validate(withLine("Expiration Time:", ""), Config{Custom: &p})
	assert.Equal(t, "quiet", res.Profile)
}
