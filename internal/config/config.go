package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// QA contains configuration for the QA validation service.
type QA struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MaxBatchGB     float64 `toml:"max_batch_gb"`
}

// Metadata contains configuration for the descriptive-metadata repository.
type Metadata struct {
	BaseURL           string `toml:"base_url"`
	Username          string `toml:"username"`
	Password          string `toml:"password"`
	SessionTTLSeconds int    `toml:"session_ttl_seconds"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// Transfer contains configuration for the archival transfer processor.
type Transfer struct {
	BaseURL        string `toml:"base_url"`
	Username       string `toml:"username"`
	APIKey         string `toml:"api_key"`
	SourceLocation string `toml:"source_location"`
	TransferType   string `toml:"transfer_type"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Storage contains configuration for bulk object storage.
type Storage struct {
	BaseURL        string `toml:"base_url"`
	Space          string `toml:"space"`
	Username       string `toml:"username"`
	Token          string `toml:"token"`
	ConvertURL     string `toml:"convert_url"`
	ManifestSuffix string `toml:"manifest_suffix"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Handle contains configuration for the persistent identifier service.
type Handle struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Prefix         string `toml:"prefix"`
	TargetTemplate string `toml:"target_template"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Search contains configuration for the search index.
type Search struct {
	BaseURL        string `toml:"base_url"`
	Index          string `toml:"index"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Repository selects the database that holds published repository records.
// The URL uses a sqlite:// or postgres:// prefix.
type Repository struct {
	DatabaseURL  string `toml:"database_url"`
	MaxOpenConns int    `toml:"max_open_conns"`
}

// Derivatives controls web-viewable derivative generation after finalize.
type Derivatives struct {
	Enabled         bool     `toml:"enabled"`
	MimeTypes       []string `toml:"mime_types"`
	IntervalSeconds int      `toml:"interval_seconds"`
	MaxConcurrent   int      `toml:"max_concurrent"`
}

// Workflow contains configuration for daemon scheduling and polling loops.
type Workflow struct {
	AutoStart            bool   `toml:"auto_start"`
	QueuePollInterval    int    `toml:"queue_poll_interval"`
	MaxConcurrentBatches int    `toml:"max_concurrent_batches"`
	UploadPollInterval   int    `toml:"upload_poll_interval"`
	ApprovalPollInterval int    `toml:"approval_poll_interval"`
	TransferPollInterval int    `toml:"transfer_poll_interval"`
	IngestPollInterval   int    `toml:"ingest_poll_interval"`
	PollMaxAttempts      int    `toml:"poll_max_attempts"`
	PollDeadlineMinutes  int    `toml:"poll_deadline_minutes"`
	SweepSchedule        string `toml:"sweep_schedule"`
	StaleAfterMinutes    int    `toml:"stale_after_minutes"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	BatchQueued    bool   `toml:"batch_queued"`
	BatchHalted    bool   `toml:"batch_halted"`
	BatchCompleted bool   `toml:"batch_completed"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   bool   `toml:"file"`
}

// Config encapsulates all configuration values for accession.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - QA, Metadata, Transfer, Storage, Handle, Search: external collaborators
//   - Repository: database holding published repository records
//   - Derivatives: web derivative generation after finalize
//   - Workflow: batch scheduling and polling limits
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	QA            QA            `toml:"qa"`
	Metadata      Metadata      `toml:"metadata"`
	Transfer      Transfer      `toml:"transfer"`
	Storage       Storage       `toml:"storage"`
	Handle        Handle        `toml:"handle"`
	Search        Search        `toml:"search"`
	Repository    Repository    `toml:"repository"`
	Derivatives   Derivatives   `toml:"derivatives"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// PollSettings groups the limits applied to each remote polling loop.
type PollSettings struct {
	Upload      time.Duration
	Approval    time.Duration
	Transfer    time.Duration
	Ingest      time.Duration
	MaxAttempts int
	Deadline    time.Duration
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/accession/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("accession.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the queue database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "accessiond.lock")
}

// LogFilePath returns the daemon log file path.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "accession.log")
}

// Poll returns the polling limits derived from the workflow section.
func (c *Config) Poll() PollSettings {
	return PollSettings{
		Upload:      seconds(c.Workflow.UploadPollInterval),
		Approval:    seconds(c.Workflow.ApprovalPollInterval),
		Transfer:    seconds(c.Workflow.TransferPollInterval),
		Ingest:      seconds(c.Workflow.IngestPollInterval),
		MaxAttempts: c.Workflow.PollMaxAttempts,
		Deadline:    time.Duration(c.Workflow.PollDeadlineMinutes) * time.Minute,
	}
}

// DerivativeInterval is the minimum spacing between derivative requests.
func (c *Config) DerivativeInterval() time.Duration {
	return seconds(c.Derivatives.IntervalSeconds)
}

// StaleAfter is how long an in-flight record may go without an update before
// the sweep reports it.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Workflow.StaleAfterMinutes) * time.Minute
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
