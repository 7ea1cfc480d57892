// Package testsupport builds throwaway configuration and queue state for tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"accession/internal/config"
)

// ConfigOption adjusts a generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig returns the default configuration rooted in a per-test temp
// directory. The daemon binds an ephemeral port, the repository is a local
// SQLite file, and poll budgets are small enough for pipeline tests.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Repository.DatabaseURL = "sqlite://" + filepath.Join(cfg.Paths.DataDir, "repository.db")
	cfg.Logging.File = false
	cfg.Workflow.PollMaxAttempts = 50
	cfg.Workflow.PollDeadlineMinutes = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithServiceURL routes every collaborator to one server, each under its own
// path prefix (/qa, /metadata, /transfer, /storage, /convert, /handle, /search).
func WithServiceURL(base string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.QA.BaseURL = base + "/qa"
		cfg.Metadata.BaseURL = base + "/metadata"
		cfg.Transfer.BaseURL = base + "/transfer"
		cfg.Storage.BaseURL = base + "/storage"
		cfg.Storage.ConvertURL = base + "/convert"
		cfg.Handle.BaseURL = base + "/handle"
		cfg.Search.BaseURL = base + "/search"
	}
}

// WithoutDerivatives turns off derivative requests after finalization.
func WithoutDerivatives() ConfigOption {
	return func(cfg *config.Config) { cfg.Derivatives.Enabled = false }
}

// BaseDir returns the temp directory the generated config lives under.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
