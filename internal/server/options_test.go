package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/siwegate/internal/rules"
)

const lenientYAML = `profiles:
  - name: lenient
    securityChecks: false
    rules:
      - action: drop
        codes: [INVALID_VERSION]
`

func TestLoadProfileManifestResolvesPaths(t *testing.T) {
	root := t.TempDir()
	manifestDir := filepath.Join(root, "profiles")
	if err := os.MkdirAll(filepath.Join(manifestDir, "team"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(manifestDir, "team", "lenient.yaml"), []byte(lenientYAML), 0o644); err != nil {
		t.Fatalf("WriteFile profile: %v", err)
	}
	manifest := map[string]any{
		"profiles": []map[string]string{
			{"id": "team", "path": filepath.Join("team", "lenient.yaml")},
		},
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("Marshal manifest: %v", err)
	}
	manifestPath := filepath.Join(manifestDir, "index.json")
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		t.Fatalf("WriteFile manifest: %v", err)
	}

	packs, err := LoadProfileManifest(manifestPath)
	if err != nil {
		t.Fatalf("LoadProfileManifest: %v", err)
	}
	if len(packs) != 1 {
		t.Fatalf("expected 1 pack, got %d", len(packs))
	}
	want := filepath.Join(manifestDir, "team", "lenient.yaml")
	if packs[0].Path != want {
		t.Fatalf("path not resolved: got %s want %s", packs[0].Path, want)
	}

	set, err := BuildProfiles(Options{ProfileManifest: manifestPath})
	if err != nil {
		t.Fatalf("BuildProfiles: %v", err)
	}
	for _, name := range []string{"lenient", rules.ProfileStrict, rules.ProfileBasic, rules.ProfileSecurity, rules.ProfileDevelopment} {
		if _, ok := set.Lookup(name); !ok {
			t.Fatalf("profile %s missing from %v", name, set.Names())
		}
	}
}

func TestLoadProfileManifestYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.yml")
	body := "profiles:\n  - id: team\n    path: lenient.yaml\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	packs, err := LoadProfileManifest(path)
	if err != nil {
		t.Fatalf("LoadProfileManifest: %v", err)
	}
	if len(packs) != 1 || packs[0].ID != "team" || packs[0].Path != filepath.Join(dir, "lenient.yaml") {
		t.Fatalf("unexpected packs %+v", packs)
	}
}

func TestLoadProfileManifestErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty":      `{"profiles":[]}`,
		"missing id": `{"profiles":[{"path":"a.yaml"}]}`,
		"no path":    `{"profiles":[{"id":"a"}]}`,
		"bad json":   `{"profiles":`,
	}
	for name, body := range cases {
		path := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".json")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := LoadProfileManifest(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := LoadProfileManifest(" "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestBuildProfilesRejectsDuplicatePacks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lenient.yaml")
	if err := os.WriteFile(path, []byte(lenientYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := BuildProfiles(Options{ProfilePacks: []ProfilePack{{ID: "a", Path: path}, {ID: "a", Path: path}}})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	_, err = BuildProfiles(Options{ProfilePacks: []ProfilePack{{ID: "b", Path: filepath.Join(dir, "missing.yaml")}}})
	if err == nil {
		t.Fatalf("expected error for missing profile file")
	}
}

func TestNewServerRejectsUnknownDefault(t *testing.T) {
	_, err := NewServer(Options{StorageDir: t.TempDir(), DefaultProfile: "nope"})
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("expected unknown default profile error, got %v", err)
	}
	_, err = NewServer(Options{StorageDir: t.TempDir(), Lang: "de"})
	if err == nil {
		t.Fatalf("expected unsupported language error")
	}
}
