package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	repoPacksDir   = "packs"
	repoConfigFile = "config.json"
)

var profileExtensions = map[string]bool{".yaml": true, ".yml": true, ".toml": true, ".json": true}

// Repository manages installed profile packs: profile files copied into a
// local directory and merged over the built-in profiles.
type Repository struct {
	root string
}

// InstalledPack represents one profile file stored in the repository.
type InstalledPack struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Profiles []string `json:"profiles"`
}

type repoConfig struct {
	DefaultProfile string `json:"defaultProfile,omitempty"`
}

// DefaultRepository returns the repository rooted in ~/.siwegate/profiles.
func DefaultRepository() (*Repository, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return OpenRepository(filepath.Join(home, ".siwegate", "profiles"))
}

// OpenRepository creates a Repository rooted at path and ensures the required
// subdirectories exist.
func OpenRepository(path string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Join(path, repoPacksDir), 0o755); err != nil {
		return nil, fmt.Errorf("create packs dir: %w", err)
	}
	return &Repository{root: path}, nil
}

// Root returns the root directory of the repository.
func (r *Repository) Root() string {
	if r == nil {
		return ""
	}
	return r.root
}

// Install validates a profile file and copies it into the repository. A pack
// with the same name is replaced.
func (r *Repository) Install(path string) (InstalledPack, error) {
	var installed InstalledPack
	if r == nil {
		return installed, errors.New("nil repository")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !profileExtensions[ext] {
		return installed, fmt.Errorf("%w: %q", ErrUnknownProfileFormat, ext)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := validatePathComponent(name); err != nil {
		return installed, fmt.Errorf("invalid pack name: %w", err)
	}
	set, err := LoadProfiles(path)
	if err != nil {
		return installed, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return installed, err
	}
	for e := range profileExtensions {
		_ = os.Remove(r.packPath(name, e))
	}
	dst := r.packPath(name, ext)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return installed, fmt.Errorf("write pack: %w", err)
	}
	return InstalledPack{Name: name, Path: dst, Profiles: set.Names()}, nil
}

// ListInstalled returns the installed packs sorted by name. Files that no
// longer decode are skipped.
func (r *Repository) ListInstalled() ([]InstalledPack, error) {
	if r == nil {
		return nil, errors.New("nil repository")
	}
	entries, err := os.ReadDir(filepath.Join(r.root, repoPacksDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var result []InstalledPack
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || !profileExtensions[ext] {
			continue
		}
		path := filepath.Join(r.root, repoPacksDir, entry.Name())
		set, err := LoadProfiles(path)
		if err != nil {
			continue
		}
		result = append(result, InstalledPack{
			Name:     strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Path:     path,
			Profiles: set.Names(),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Remove deletes a pack and clears the default profile if the pack defined it.
func (r *Repository) Remove(name string) error {
	if r == nil {
		return errors.New("nil repository")
	}
	if err := validatePathComponent(name); err != nil {
		return fmt.Errorf("invalid pack name: %w", err)
	}
	packs, err := r.ListInstalled()
	if err != nil {
		return err
	}
	var target *InstalledPack
	for i := range packs {
		if packs[i].Name == name {
			target = &packs[i]
		}
	}
	if target == nil {
		return fmt.Errorf("pack %q: %w", name, os.ErrNotExist)
	}
	if err := os.Remove(target.Path); err != nil {
		return err
	}
	cfg, err := r.loadConfig()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for _, p := range target.Profiles {
		if cfg.DefaultProfile == p {
			cfg.DefaultProfile = ""
			return r.saveConfig(cfg)
		}
	}
	return nil
}

// Profiles returns the built-in profiles with every installed pack merged
// over them in name order.
func (r *Repository) Profiles() (ProfileSet, error) {
	set := DefaultProfiles()
	packs, err := r.ListInstalled()
	if err != nil {
		return nil, err
	}
	for _, p := range packs {
		extra, err := LoadProfiles(p.Path)
		if err != nil {
			return nil, err
		}
		set = set.Merge(extra)
	}
	return set, nil
}

// DefaultProfile returns the configured default profile name.
func (r *Repository) DefaultProfile() (string, bool, error) {
	cfg, err := r.loadConfig()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return cfg.DefaultProfile, cfg.DefaultProfile != "", nil
}

// SetDefaultProfile records name as the default; it must be a known profile.
func (r *Repository) SetDefaultProfile(name string) error {
	if r == nil {
		return errors.New("nil repository")
	}
	set, err := r.Profiles()
	if err != nil {
		return err
	}
	if _, ok := set.Lookup(name); !ok {
		return fmt.Errorf("unknown profile %q", name)
	}
	cfg, err := r.loadConfig()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	cfg.DefaultProfile = name
	return r.saveConfig(cfg)
}

func (r *Repository) packPath(name, ext string) string {
	return filepath.Join(r.root, repoPacksDir, name+ext)
}

func (r *Repository) loadConfig() (repoConfig, error) {
	var cfg repoConfig
	if r == nil {
		return cfg, errors.New("nil repository")
	}
	data, err := os.ReadFile(filepath.Join(r.root, repoConfigFile))
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (r *Repository) saveConfig(cfg repoConfig) error {
	if r == nil {
		return errors.New("nil repository")
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.root, repoConfigFile), data, 0o644)
}

func validatePathComponent(s string) error {
	if s == "" {
		return errors.New("empty string")
	}
	if strings.Contains(s, string(os.PathSeparator)) || strings.Contains(s, "/") {
		return errors.New("contains path separator")
	}
	if s == "." || s == ".." {
		return errors.New("invalid component")
	}
	if strings.Contains(s, "..") {
		cleaned := filepath.Clean(s)
		if cleaned != s {
			return errors.New("invalid path component")
		}
	}
	return nil
}
