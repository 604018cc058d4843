package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"example.com/siwegate/internal/rules"
)

// DefaultMaxBatch bounds the number of messages accepted by /batch.
const DefaultMaxBatch = 1000

// ProfilePack names a profile file loaded at startup.
type ProfilePack struct {
	ID   string `json:"id" yaml:"id"`
	Path string `json:"path" yaml:"path"`
}

// Options configures server creation.
type Options struct {
	StorageDir      string
	ProfileManifest string
	ProfilePacks    []ProfilePack
	DefaultProfile  string
	Concurrency     int
	MaxMessageSize  int
	MaxBatch        int
	Lang            string
	Logger          *zap.Logger
	Registry        *prometheus.Registry
	Clock           rules.Clock
}

// LoadProfileManifest reads the list of profile packs from a JSON or YAML
// manifest ({"profiles":[{"id":..,"path":..}]}). Relative pack paths are
// resolved against the manifest's directory.
func LoadProfileManifest(path string) ([]ProfilePack, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("manifest path is empty")
	}
	manifestPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest path: %w", err)
	}
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var doc struct {
		Profiles []ProfilePack `json:"profiles" yaml:"profiles"`
	}
	switch strings.ToLower(filepath.Ext(manifestPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", filepath.Base(manifestPath), err)
	}
	if len(doc.Profiles) == 0 {
		return nil, errors.New("manifest lists no profiles")
	}
	base := filepath.Dir(manifestPath)
	out := make([]ProfilePack, 0, len(doc.Profiles))
	for _, pack := range doc.Profiles {
		resolved, err := resolveProfilePath(base, pack)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

func resolveProfilePath(base string, pack ProfilePack) (ProfilePack, error) {
	pack.ID = strings.TrimSpace(pack.ID)
	pack.Path = strings.TrimSpace(pack.Path)
	if pack.ID == "" {
		return ProfilePack{}, errors.New("manifest profile entry missing id")
	}
	if pack.Path == "" {
		return ProfilePack{}, fmt.Errorf("manifest profile %s missing path", pack.ID)
	}
	if !filepath.IsAbs(pack.Path) {
		pack.Path = filepath.Join(base, pack.Path)
	}
	return pack, nil
}

// BuildProfiles merges the configured profile files over the built-in
// profiles. Packs come from opts.ProfilePacks, or from opts.ProfileManifest
// when no packs are given.
func BuildProfiles(opts Options) (rules.ProfileSet, error) {
	packs := opts.ProfilePacks
	if len(packs) == 0 && strings.TrimSpace(opts.ProfileManifest) != "" {
		var err error
		if packs, err = LoadProfileManifest(opts.ProfileManifest); err != nil {
			return nil, fmt.Errorf("load profile manifest: %w", err)
		}
	}
	set := rules.DefaultProfiles()
	seen := make(map[string]bool, len(packs))
	for _, pack := range packs {
		id := strings.TrimSpace(pack.ID)
		if id == "" {
			return nil, errors.New("profile pack missing id")
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate profile pack %s configured", id)
		}
		seen[id] = true
		loaded, err := rules.LoadProfiles(pack.Path)
		if err != nil {
			return nil, fmt.Errorf("profile pack %s: %w", id, err)
		}
		set = set.Merge(loaded)
	}
	return set, nil
}
