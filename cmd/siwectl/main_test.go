package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"example.com/siwegate/internal/common"
	"example.com/siwegate/internal/report"
	"example.com/siwegate/internal/rules"
	"example.com/siwegate/internal/siwe"
)

const testAddress = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

// freshFields returns a compliant record valid around the current time; the
// CLI always runs on the system clock.
func freshFields() siwe.Fields {
	now := time.Now().UTC()
	return siwe.Fields{
		Domain:         "example.com",
		Address:        testAddress,
		Statement:      "Sign in with Ethereum.",
		URI:            "https://example.com",
		Version:        "1",
		ChainID:        "1",
		Nonce:          "Qm7vX2pLk9RtW4zN",
		IssuedAt:       siwe.FormatTimestamp(now.Add(-time.Minute)),
		ExpirationTime: siwe.FormatTimestamp(now.Add(9 * time.Minute)),
	}
}

func goodMessage() string { return siwe.Generate(freshFields()) }

func versionTwoMessage() string {
	f := freshFields()
	f.Version = "2"
	return siwe.Generate(f)
}

type cli struct {
	t           *testing.T
	profilesDir string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	return &cli{t: t, profilesDir: filepath.Join(t.TempDir(), "profiles")}
}

func (c *cli) run(stdin string, args ...string) (string, string, error) {
	c.t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--profiles-dir", c.profilesDir, "--color", "off"}, args...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile %s: %v", name, err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile %s: %v", path, err)
	}
	return string(data)
}

func TestValidateCmd(t *testing.T) {
	c := newCLI(t)
	dir := t.TempDir()

	out, _, err := c.run("", "validate", writeFile(t, dir, "good.txt", goodMessage()))
	if err != nil {
		t.Fatalf("validate good message: %v\n%s", err, out)
	}
	if !strings.HasPrefix(out, "PASS") || !strings.Contains(out, "profile strict") {
		t.Fatalf("unexpected output %q", out)
	}

	out, _, err = c.run("", "validate", "--autofix", writeFile(t, dir, "v2.txt", versionTwoMessage()))
	if !errors.Is(err, errInvalid) {
		t.Fatalf("expected errInvalid, got %v", err)
	}
	if !strings.Contains(out, "INVALID_VERSION") || !strings.Contains(out, "Version: 1") {
		t.Fatalf("expected diagnostic and repaired message, got %q", out)
	}
}

func TestValidateCmdJSONFromStdin(t *testing.T) {
	out, _, err := newCLI(t).run(versionTwoMessage(), "validate", "--json", "--profile", "basic")
	if !errors.Is(err, errInvalid) {
		t.Fatalf("expected errInvalid, got %v", err)
	}
	var res rules.ValidationResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode result: %v\n%s", err, out)
	}
	if res.IsValid || res.Profile != rules.ProfileBasic {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].Code != siwe.CodeInvalidVersion {
		t.Fatalf("unexpected errors %+v", res.Errors)
	}
}

func TestValidateCmdFieldAndQuick(t *testing.T) {
	c := newCLI(t)
	msg := versionTwoMessage()

	out, _, err := c.run(msg, "validate", "--field", "nonce")
	if err != nil || !strings.Contains(out, "nonce ok") {
		t.Fatalf("field nonce: err=%v out=%q", err, out)
	}
	if _, _, err := c.run(msg, "validate", "--field", "version"); !errors.Is(err, errInvalid) {
		t.Fatalf("field version: expected errInvalid, got %v", err)
	}
	if _, _, err := c.run(msg, "validate", "--field", "colour"); !errors.Is(err, siwe.ErrUnknownField) {
		t.Fatalf("unknown field: got %v", err)
	}

	out, _, err = c.run(msg, "validate", "--quick")
	if !errors.Is(err, errInvalid) || !strings.Contains(out, "errors=1") || !strings.Contains(out, "complete=true") {
		t.Fatalf("quick: err=%v out=%q", err, out)
	}
}

func TestValidateCmdUnknownProfile(t *testing.T) {
	_, _, err := newCLI(t).run(goodMessage(), "validate", "--profile", "paranoid")
	if err == nil || errors.Is(err, errInvalid) || !strings.Contains(err.Error(), "paranoid") {
		t.Fatalf("expected unknown profile error, got %v", err)
	}
}

func TestFixAndUndoCmd(t *testing.T) {
	c := newCLI(t)
	dir := t.TempDir()
	original := versionTwoMessage()
	in := writeFile(t, dir, "v2.txt", original)
	fixed := filepath.Join(dir, "fixed.txt")
	audit := filepath.Join(dir, "audit", "fixes.jsonl")

	if _, errOut, err := c.run("", "fix", in, "--out", fixed, "--audit", audit); err != nil {
		t.Fatalf("fix: %v\n%s", err, errOut)
	}
	if got := readFile(t, fixed); got != strings.Replace(original, "Version: 2", "Version: 1", 1) {
		t.Fatalf("unexpected fixed message:\n%s", got)
	}
	entries, err := common.ReadPatchLog(audit)
	if err != nil {
		t.Fatalf("ReadPatchLog: %v", err)
	}
	if len(entries) != 1 || entries[0].Code != string(siwe.CodeInvalidVersion) || entries[0].Before != "2" || entries[0].After != "1" {
		t.Fatalf("unexpected audit entries %+v", entries)
	}
	if entries[0].MessageSHA256 != common.Sha256String(original) {
		t.Fatalf("audit entry does not reference the original message")
	}

	restored := filepath.Join(dir, "restored.txt")
	_, errOut, err := c.run("", "undo", fixed, "--audit", audit, "--out", restored)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if got := readFile(t, restored); got != original {
		t.Fatalf("restored message differs:\n%s", got)
	}
	if !strings.Contains(errOut, "Reverted 1 fix(es)") || strings.Contains(errOut, "warning") {
		t.Fatalf("unexpected undo status %q", errOut)
	}
}

func TestFixCmdTargeted(t *testing.T) {
	f := freshFields()
	f.Version = "2"
	f.Address = strings.ToLower(testAddress)
	msg := siwe.Generate(f) + "  "

	out, errOut, err := newCLI(t).run(msg, "fix", "--targeted")
	if err != nil {
		t.Fatalf("targeted fix: %v\n%s", err, errOut)
	}
	got := strings.TrimSuffix(out, "\n")
	if got != goodMessageFrom(f) {
		t.Fatalf("unexpected targeted output:\n%q\nwant\n%q", got, goodMessageFrom(f))
	}
	for _, code := range []string{"INVALID_VERSION", "ADDRESS_NOT_CHECKSUMMED", "TRAILING_WHITESPACE"} {
		if !strings.Contains(errOut, code) {
			t.Fatalf("fix report misses %s: %q", code, errOut)
		}
	}
}

func goodMessageFrom(f siwe.Fields) string {
	f.Version = "1"
	f.Address = testAddress
	return siwe.Generate(f)
}

func TestTemplateCmd(t *testing.T) {
	c := newCLI(t)
	out, _, err := c.run("", "template", "--address", strings.ToLower(testAddress), "--chain-id", "137")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	msg := strings.TrimSuffix(out, "\n")
	for _, want := range []string{testAddress, "Chain ID: 137", "URI: https://example.com", "Request ID: "} {
		if !strings.Contains(msg, want) {
			t.Fatalf("template misses %q:\n%s", want, msg)
		}
	}
	if out, _, err := c.run(msg, "validate"); err != nil {
		t.Fatalf("template does not validate: %v\n%s", err, out)
	}
}

func TestReplaceCmd(t *testing.T) {
	c := newCLI(t)
	path := writeFile(t, t.TempDir(), "msg.txt", goodMessage())

	_, _, err := c.run("", "replace", path, "-i",
		"--set", "statement=Log in to the portal.",
		"--set", "requestId=req-42",
		"--add-resource", "https://example.com/profile")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	pm := siwe.Parse(readFile(t, path))
	if pm.Fields.Statement != "Log in to the portal." || pm.Fields.RequestID != "req-42" {
		t.Fatalf("unexpected fields %+v", pm.Fields)
	}
	if len(pm.Fields.Resources) != 1 || pm.Fields.Resources[0] != "https://example.com/profile" {
		t.Fatalf("unexpected resources %v", pm.Fields.Resources)
	}

	out, _, err := c.run(readFile(t, path), "replace", "--remove", "requestId", "--remove-resource", "https://example.com/profile")
	if err != nil {
		t.Fatalf("replace remove: %v", err)
	}
	pm = siwe.Parse(strings.TrimSuffix(out, "\n"))
	if pm.Fields.RequestID != "" || len(pm.Fields.Resources) != 0 {
		t.Fatalf("fields not removed: %+v", pm.Fields)
	}

	if _, _, err := c.run(goodMessage(), "replace", "--remove", "nonce"); !errors.Is(err, siwe.ErrFieldNotReplaceable) {
		t.Fatalf("removing a required field: got %v", err)
	}
	if _, _, err := c.run(goodMessage(), "replace", "--set", "version"); err == nil {
		t.Fatalf("expected error for malformed --set")
	}
}

func TestReportCmd(t *testing.T) {
	c := newCLI(t)
	dir := t.TempDir()
	in := writeFile(t, dir, "v2.txt", versionTwoMessage())
	jsonOut := filepath.Join(dir, "report.json")
	pdfOut := filepath.Join(dir, "report.pdf")

	out, _, err := c.run("", "report", in, "--json-out", jsonOut, "--pdf", pdfOut, "--lang", "tr")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.HasPrefix(out, "FAIL") || !strings.Contains(out, "digest 0x") {
		t.Fatalf("unexpected summary %q", out)
	}
	rep, err := report.LoadReportJSON(jsonOut)
	if err != nil {
		t.Fatalf("LoadReportJSON: %v", err)
	}
	if rep.Summary.Errors != 1 || !strings.Contains(rep.FixedMessage, "Version: 1") {
		t.Fatalf("unexpected report %+v", rep.Summary)
	}
	if !strings.HasPrefix(readFile(t, pdfOut), "%PDF-") {
		t.Fatalf("pdf output is not a PDF")
	}

	rendered := filepath.Join(dir, "rendered.pdf")
	if _, _, err := c.run("", "report", "--from-json", jsonOut, "--pdf", rendered); err != nil {
		t.Fatalf("report --from-json: %v", err)
	}
	if _, err := os.Stat(rendered); err != nil {
		t.Fatalf("rendered pdf missing: %v", err)
	}
	if _, _, err := c.run("", "report", in, "--lang", "de"); !errors.Is(err, report.ErrUnsupportedLanguage) {
		t.Fatalf("unsupported language: got %v", err)
	}
}

func TestReportCmdSigned(t *testing.T) {
	c := newCLI(t)
	dir := t.TempDir()
	in := writeFile(t, dir, "v2.txt", versionTwoMessage())
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	keyPath := writeFile(t, dir, "signer.pem", string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})))
	pubPath := writeFile(t, dir, "signer.pub", string(pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)})))
	jwsOut := filepath.Join(dir, "report.jws")

	if _, _, err := c.run("", "report", in, "--jws-out", jwsOut); err == nil {
		t.Fatalf("expected error without --sign-key")
	}
	out, _, err := c.run("", "report", in, "--jws-out", jwsOut, "--sign-key", keyPath, "--kid", "ci")
	if err != nil || !strings.HasPrefix(out, "FAIL") {
		t.Fatalf("signed report: err=%v out=%q", err, out)
	}
	out, _, err = c.run("", "report", "--from-jws", jwsOut, "--pubkey", pubPath)
	if err != nil {
		t.Fatalf("report --from-jws: %v", err)
	}
	var rep rules.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode verified report: %v\n%s", err, out)
	}
	if rep.Summary.Errors != 1 {
		t.Fatalf("unexpected verified report %+v", rep.Summary)
	}
	if _, _, err := c.run("", "report", "--from-jws", jwsOut); err == nil {
		t.Fatalf("expected error without --pubkey")
	}
}

func TestBatchCmdDirectory(t *testing.T) {
	c := newCLI(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	if err := os.MkdirAll(in, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, in, "a.txt", goodMessage())
	writeFile(t, in, "b.txt", versionTwoMessage())
	writeFile(t, in, "c.siwe", goodMessage())
	writeFile(t, in, "notes.md", "not a message")
	ndjson := filepath.Join(dir, "diags.ndjson")
	metrics := filepath.Join(dir, "metrics.prom")
	fixed := filepath.Join(dir, "fixed")

	out, _, err := c.run("", "batch", in, "--ndjson", ndjson, "--metrics-out", metrics, "--out-dir", fixed, "--concurrency", "2")
	if !errors.Is(err, errInvalid) {
		t.Fatalf("expected errInvalid, got %v", err)
	}
	if !strings.Contains(out, "3 messages, 1 invalid, 1 fixes") {
		t.Fatalf("unexpected summary %q", out)
	}
	if strings.Contains(out, "notes.md") {
		t.Fatalf("non-message file was validated")
	}

	lines := strings.Split(strings.TrimSpace(readFile(t, ndjson)), "\n")
	if len(lines) != 1 {
		t.Fatalf("ndjson lines = %d, want 1", len(lines))
	}
	var rec struct {
		Message int       `json:"message"`
		Code    siwe.Code `json:"code"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("decode ndjson: %v", err)
	}
	if rec.Message != 1 || rec.Code != siwe.CodeInvalidVersion {
		t.Fatalf("unexpected record %+v", rec)
	}

	prom := readFile(t, metrics)
	if !strings.Contains(prom, `siwegate_validations_total{profile="strict",result="invalid"} 1`) {
		t.Fatalf("metrics missing invalid counter:\n%s", prom)
	}
	if !strings.Contains(readFile(t, filepath.Join(fixed, "b.txt")), "Version: 1") {
		t.Fatalf("fixed message not written")
	}
}

func TestBatchCmdNDJSON(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, it := range []batchItem{{ID: "first", Message: goodMessage()}, {Message: goodMessage()}} {
		if err := enc.Encode(it); err != nil {
			t.Fatal(err)
		}
	}
	in := writeFile(t, dir, "batch.ndjson", buf.String())

	out, _, err := newCLI(t).run("", "batch", in)
	if err != nil {
		t.Fatalf("batch: %v\n%s", err, out)
	}
	if !strings.Contains(out, "first") || !strings.Contains(out, "#2") {
		t.Fatalf("unexpected table %q", out)
	}

	bad := writeFile(t, dir, "bad.ndjson", "{\"id\":\"x\"\n")
	if _, _, err := newCLI(t).run("", "batch", bad); err == nil || !strings.Contains(err.Error(), "bad.ndjson:1") {
		t.Fatalf("expected decode error with position, got %v", err)
	}
}

func TestProfilesCmd(t *testing.T) {
	c := newCLI(t)
	dir := t.TempDir()
	pack := writeFile(t, dir, "team.yaml", `profiles:
  - name: lenient
    securityChecks: false
    rules:
      - action: drop
        codes: [INVALID_VERSION]
`)

	out, _, err := c.run("", "profiles", "install", pack)
	if err != nil || !strings.Contains(out, "Installed pack team (lenient)") {
		t.Fatalf("install: err=%v out=%q", err, out)
	}
	if _, _, err := c.run("", "profiles", "set-default", "lenient"); err != nil {
		t.Fatalf("set-default: %v", err)
	}
	out, _, err = c.run("", "profiles", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"lenient", "strict", "team"} {
		if !strings.Contains(out, want) {
			t.Fatalf("list misses %q:\n%s", want, out)
		}
	}

	// The default profile drops the version error.
	out, _, err = c.run(versionTwoMessage(), "validate")
	if err != nil || !strings.Contains(out, "profile lenient") {
		t.Fatalf("validate with default profile: err=%v out=%q", err, out)
	}

	if _, _, err := c.run("", "profiles", "remove", "team"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, _, err := c.run("", "profiles", "remove", "team"); err == nil {
		t.Fatalf("expected error removing a missing pack")
	}
	if _, _, err := c.run(versionTwoMessage(), "validate"); !errors.Is(err, errInvalid) {
		t.Fatalf("after removal strict should apply, got %v", err)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "extra.toml", `[[profiles]]
name = "ci"
securityChecks = true
`)
	cfg := writeFile(t, dir, "siwectl.yaml", `log:
  level: debug
  format: json
  directory: logs
profile: ci
profileFiles:
  - extra.toml
`)
	// Relative log directories resolve against the working directory.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	out, _, err := newCLI(t).run(goodMessage(), "--config", cfg, "validate")
	if err != nil || !strings.Contains(out, "profile ci") {
		t.Fatalf("validate with config: err=%v out=%q", err, out)
	}
	if err := common.SyncLogger(); err != nil {
		t.Fatalf("SyncLogger: %v", err)
	}
	if log := readFile(t, filepath.Join(dir, "logs", "siwectl.log")); !strings.Contains(log, "cli ready") {
		t.Fatalf("debug log not written:\n%s", log)
	}

	if _, _, err := newCLI(t).run("", "--config", filepath.Join(dir, "missing.yaml"), "validate"); err == nil {
		t.Fatalf("expected error for missing config")
	}
}

func TestVersionCmd(t *testing.T) {
	out, _, err := newCLI(t).run("", "version")
	if err != nil || !strings.HasPrefix(out, "siwectl dev") {
		t.Fatalf("version: err=%v out=%q", err, out)
	}
}
