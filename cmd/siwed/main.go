package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"example.com/siwegate/internal/common"
	"example.com/siwegate/internal/server"
)

var version = "dev"

type profileConfig struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
}

type config struct {
	Port            int              `yaml:"port"`
	StorageDir      string           `yaml:"storageDir"`
	Concurrency     int              `yaml:"concurrency"`
	ProfileManifest string           `yaml:"profileManifest"`
	Profiles        []profileConfig  `yaml:"profiles"`
	DefaultProfile  string           `yaml:"defaultProfile"`
	MaxMessageSize  int              `yaml:"maxMessageSize"`
	MaxBatch        int              `yaml:"maxBatch"`
	Lang            string           `yaml:"lang"`
	Logs            common.LogConfig `yaml:"logs"`
}

// loadConfig reads the daemon configuration. An empty path yields the
// defaults. Relative paths resolve against the config file's directory.
func loadConfig(path string) (config, error) {
	var cfg config
	baseDir := "."
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		baseDir = filepath.Dir(path)
	}
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = "data"
	}
	cfg.StorageDir = resolvePath(cfg.StorageDir)
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.ProfileManifest != "" {
		cfg.ProfileManifest = resolvePath(cfg.ProfileManifest)
	}
	for i := range cfg.Profiles {
		if strings.TrimSpace(cfg.Profiles[i].Path) == "" {
			return cfg, fmt.Errorf("profile %q has no path", cfg.Profiles[i].ID)
		}
		cfg.Profiles[i].Path = resolvePath(cfg.Profiles[i].Path)
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = server.DefaultMaxBatch
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	} else {
		cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	}
	if cfg.Logs.Format == "" {
		cfg.Logs.Format = "json"
	}
	return cfg, nil
}

func (c config) serverOptions(logger *zap.Logger, reg *prometheus.Registry) server.Options {
	packs := make([]server.ProfilePack, len(c.Profiles))
	for i, p := range c.Profiles {
		packs[i] = server.ProfilePack{ID: p.ID, Path: p.Path}
	}
	return server.Options{
		StorageDir:      c.StorageDir,
		ProfileManifest: c.ProfileManifest,
		ProfilePacks:    packs,
		DefaultProfile:  c.DefaultProfile,
		Concurrency:     c.Concurrency,
		MaxMessageSize:  c.MaxMessageSize,
		MaxBatch:        c.MaxBatch,
		Lang:            c.Lang,
		Logger:          logger,
		Registry:        reg,
	}
}

type serveOptions struct {
	configPath   string
	addr         string
	logLevel     string
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:           "siwed",
		Short:         "HTTP daemon validating Sign-In with Ethereum messages",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to configuration file")
	f.StringVar(&opts.addr, "addr", "", "listen address (overrides config port)")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")
	f.DurationVar(&opts.readTimeout, "read-timeout", 60*time.Second, "HTTP read timeout")
	f.DurationVar(&opts.writeTimeout, "write-timeout", 60*time.Second, "HTTP write timeout")
	return cmd
}

func serve(ctx context.Context, opts *serveOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Logs.Level = opts.logLevel
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return fmt.Errorf("storage dir: %w", err)
	}
	logger, err := common.InitLogger(cfg.Logs, "siwed")
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer common.SyncLogger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv, err := server.NewServer(cfg.serverOptions(logger, reg))
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}
	defer srv.Close()

	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if opts.addr != "" {
		listenAddr = opts.addr
	}
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           server.NewRouter(srv),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       opts.readTimeout,
		WriteTimeout:      opts.writeTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("siwed listening",
			zap.String("addr", listenAddr),
			zap.String("version", version),
			zap.String("storage", cfg.StorageDir))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Info("siwed stopped")
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "siwed:", err)
		os.Exit(1)
	}
}
