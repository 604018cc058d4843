package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"example.com/siwegate/internal/common"
	"example.com/siwegate/internal/rules"
)

// fileConfig is the YAML document read from --config.
type fileConfig struct {
	Log            common.LogConfig `yaml:"log"`
	Profile        string           `yaml:"profile"`
	ProfileFiles   []string         `yaml:"profileFiles"`
	ProfilesDir    string           `yaml:"profilesDir"`
	MaxMessageSize int              `yaml:"maxMessageSize"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	// Relative profile paths are resolved against the config file.
	base := filepath.Dir(path)
	for i, p := range cfg.ProfileFiles {
		if !filepath.IsAbs(p) {
			cfg.ProfileFiles[i] = filepath.Join(base, p)
		}
	}
	if cfg.ProfilesDir != "" && !filepath.IsAbs(cfg.ProfilesDir) {
		cfg.ProfilesDir = filepath.Join(base, cfg.ProfilesDir)
	}
	return cfg, nil
}

// app carries the state shared by every subcommand once setup has run.
type app struct {
	configPath   string
	profileFiles []string
	profilesDir  string
	logLevel     string
	colorMode    string

	cfg      fileConfig
	logger   *zap.Logger
	repo     *rules.Repository
	profiles rules.ProfileSet
	out      *printer
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.configPath != "" {
		cfg, err := loadFileConfig(a.configPath)
		if err != nil {
			return err
		}
		a.cfg = cfg
	}

	logCfg := a.cfg.Log
	if a.logLevel != "" {
		logCfg.Level = a.logLevel
	}
	if logCfg.Level == "" {
		logCfg.Level = "warn"
	}
	logger, err := common.InitLogger(logCfg, "siwectl")
	if err != nil {
		return err
	}
	a.logger = logger

	switch a.colorMode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto", "":
	default:
		return fmt.Errorf("--color must be auto, on or off")
	}
	a.out = newPrinter(cmd.OutOrStdout())

	dir := a.profilesDir
	if dir == "" {
		dir = a.cfg.ProfilesDir
	}
	if dir != "" {
		a.repo, err = rules.OpenRepository(dir)
	} else {
		a.repo, err = rules.DefaultRepository()
	}
	if err != nil {
		return fmt.Errorf("open profile repository: %w", err)
	}
	set, err := a.repo.Profiles()
	if err != nil {
		return err
	}
	for _, path := range append(append([]string(nil), a.cfg.ProfileFiles...), a.profileFiles...) {
		extra, err := rules.LoadProfiles(path)
		if err != nil {
			return err
		}
		set = set.Merge(extra)
	}
	a.profiles = set
	a.logger.Debug("cli ready",
		zap.String("config", a.configPath),
		zap.String("profiles", a.repo.Root()),
		zap.Strings("profileNames", set.Names()))
	return nil
}

// engine builds an engine over the loaded profiles. Extra options such as
// metrics are appended by the caller.
func (a *app) engine(opts ...rules.Option) *rules.Engine {
	base := []rules.Option{rules.WithLogger(a.logger), rules.WithProfiles(a.profiles)}
	return rules.NewEngine(append(base, opts...)...)
}

// config resolves the per-call engine config: the --profile flag wins over
// the config file, which wins over the repository default.
func (a *app) config(profile string, autoFix bool, maxSize int) (rules.Config, error) {
	if profile == "" {
		profile = a.cfg.Profile
	}
	if profile == "" {
		name, ok, err := a.repo.DefaultProfile()
		if err != nil {
			return rules.Config{}, err
		}
		if ok {
			profile = name
		}
	}
	if profile != "" {
		if _, ok := a.profiles.Lookup(profile); !ok {
			return rules.Config{}, fmt.Errorf("unknown profile %q (available: %v)", profile, a.profiles.Names())
		}
	}
	if maxSize <= 0 {
		maxSize = a.cfg.MaxMessageSize
	}
	return rules.Config{Profile: profile, AutoFix: autoFix, MaxMessageSize: maxSize}, nil
}

// readMessage reads a message from path, or from stdin when path is "-".
func readMessage(cmd *cobra.Command, path string) (string, string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", "", err
		}
		return string(data), common.Sha256String(string(data)), nil
	}
	return common.ReadMessageFile(path, 0)
}

// writeOutput writes text to path, or to the command output when path is
// empty or "-".
func writeOutput(cmd *cobra.Command, path, text string) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

func messageArg(args []string) string {
	if len(args) == 0 {
		return "-"
	}
	return args[0]
}
