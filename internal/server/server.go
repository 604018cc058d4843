package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"example.com/siwegate/internal/common"
	"example.com/siwegate/internal/report"
	"example.com/siwegate/internal/rules"
)

// Server serves the validation engine over HTTP and keeps the artifacts its
// requests produce.
type Server struct {
	artifacts   *artifactStore
	uploadsDir  string
	engine      *rules.Engine
	profiles    rules.ProfileSet
	defaultName string
	maxMessage  int
	maxBatch    int
	lang        report.Language
	logger      *zap.Logger
	metrics     *common.Metrics
	gatherer    prometheus.Gatherer
	clock       rules.Clock
}

// NewServer builds the profile set, engine and metrics from opts and creates
// a private work directory inside opts.StorageDir.
func NewServer(opts Options) (*Server, error) {
	profiles, err := BuildProfiles(opts)
	if err != nil {
		return nil, err
	}
	defaultName := opts.DefaultProfile
	if defaultName == "" {
		defaultName = rules.ProfileStrict
	}
	if _, ok := profiles.Lookup(defaultName); !ok {
		return nil, fmt.Errorf("default profile %q is not configured", defaultName)
	}
	lang := report.LangEnglish
	if opts.Lang != "" {
		if lang, err = report.ParseLanguage(opts.Lang); err != nil {
			return nil, err
		}
	}

	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(storageDir, "siwed-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics := common.NewMetrics(reg)
	metrics.Start()

	engineOpts := []rules.Option{
		rules.WithLogger(logger),
		rules.WithMetrics(metrics),
		rules.WithProfiles(profiles),
		rules.WithBatchConcurrency(opts.Concurrency),
	}
	clock := opts.Clock
	if clock == nil {
		clock = rules.SystemClock
	}
	engineOpts = append(engineOpts, rules.WithClock(clock))
	maxBatch := opts.MaxBatch
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}

	s := &Server{
		artifacts:   newArtifactStore(workDir),
		uploadsDir:  uploadsDir,
		engine:      rules.NewEngine(engineOpts...),
		profiles:    profiles,
		defaultName: defaultName,
		maxMessage:  opts.MaxMessageSize,
		maxBatch:    maxBatch,
		lang:        lang,
		logger:      logger,
		metrics:     metrics,
		gatherer:    reg,
		clock:       clock,
	}
	return s, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.artifacts == nil {
		return nil
	}
	s.metrics.Stop()
	return s.artifacts.close()
}

// config resolves a request's profile against the server default.
func (s *Server) config(profile string, autoFix bool) (rules.Config, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = s.defaultName
	}
	if _, ok := s.profiles.Lookup(profile); !ok {
		return rules.Config{}, fmt.Errorf("unknown profile %q", profile)
	}
	return rules.Config{Profile: profile, AutoFix: autoFix, MaxMessageSize: s.maxMessage}, nil
}

func (s *Server) now() time.Time { return s.clock.Now().UTC() }

// readArtifact loads an uploaded message. Only artifact ids are accepted,
// never filesystem paths.
func (s *Server) readArtifact(id string) (string, error) {
	art, ok := s.artifacts.get(strings.TrimSpace(id))
	if !ok {
		return "", fmt.Errorf("unknown artifact %q", id)
	}
	msg, _, err := common.ReadMessageFile(art.Path, 0)
	if err != nil {
		return "", err
	}
	return msg, nil
}
