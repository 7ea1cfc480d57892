package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServices()
	if err := c.normalizeRepository(); err != nil {
		return err
	}
	c.normalizeDerivatives()
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeServices() {
	c.QA.BaseURL = trimURL(c.QA.BaseURL)
	c.QA.APIKey = envFallback(c.QA.APIKey, "ACCESSION_QA_API_KEY")
	c.QA.TimeoutSeconds = positiveOr(c.QA.TimeoutSeconds, defaultRequestTimeout)
	if c.QA.MaxBatchGB <= 0 {
		c.QA.MaxBatchGB = defaultMaxBatchGB
	}

	c.Metadata.BaseURL = trimURL(c.Metadata.BaseURL)
	c.Metadata.Username = strings.TrimSpace(c.Metadata.Username)
	c.Metadata.Password = envFallback(c.Metadata.Password, "ACCESSION_METADATA_PASSWORD")
	c.Metadata.SessionTTLSeconds = positiveOr(c.Metadata.SessionTTLSeconds, defaultSessionTTLSeconds)
	c.Metadata.TimeoutSeconds = positiveOr(c.Metadata.TimeoutSeconds, defaultRequestTimeout)

	c.Transfer.BaseURL = trimURL(c.Transfer.BaseURL)
	c.Transfer.Username = strings.TrimSpace(c.Transfer.Username)
	c.Transfer.APIKey = envFallback(c.Transfer.APIKey, "ACCESSION_TRANSFER_API_KEY")
	c.Transfer.SourceLocation = strings.TrimSpace(c.Transfer.SourceLocation)
	c.Transfer.TransferType = strings.ToLower(strings.TrimSpace(c.Transfer.TransferType))
	if c.Transfer.TransferType == "" {
		c.Transfer.TransferType = defaultTransferType
	}
	c.Transfer.TimeoutSeconds = positiveOr(c.Transfer.TimeoutSeconds, defaultRequestTimeout)

	c.Storage.BaseURL = trimURL(c.Storage.BaseURL)
	c.Storage.ConvertURL = trimURL(c.Storage.ConvertURL)
	c.Storage.Space = strings.Trim(strings.TrimSpace(c.Storage.Space), "/")
	c.Storage.Username = strings.TrimSpace(c.Storage.Username)
	c.Storage.Token = envFallback(c.Storage.Token, "ACCESSION_STORAGE_TOKEN")
	c.Storage.ManifestSuffix = strings.TrimSpace(c.Storage.ManifestSuffix)
	if c.Storage.ManifestSuffix == "" {
		c.Storage.ManifestSuffix = defaultManifestSuffix
	}
	c.Storage.TimeoutSeconds = positiveOr(c.Storage.TimeoutSeconds, defaultRequestTimeout)

	c.Handle.BaseURL = trimURL(c.Handle.BaseURL)
	c.Handle.APIKey = envFallback(c.Handle.APIKey, "ACCESSION_HANDLE_API_KEY")
	c.Handle.Prefix = strings.Trim(strings.TrimSpace(c.Handle.Prefix), "/")
	c.Handle.TargetTemplate = strings.TrimSpace(c.Handle.TargetTemplate)
	c.Handle.TimeoutSeconds = positiveOr(c.Handle.TimeoutSeconds, defaultRequestTimeout)

	c.Search.BaseURL = trimURL(c.Search.BaseURL)
	c.Search.Index = strings.TrimSpace(c.Search.Index)
	if c.Search.Index == "" {
		c.Search.Index = defaultSearchIndex
	}
	c.Search.TimeoutSeconds = positiveOr(c.Search.TimeoutSeconds, defaultRequestTimeout)

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Notifications.RequestTimeout = positiveOr(c.Notifications.RequestTimeout, defaultNotifyTimeout)
}

func (c *Config) normalizeRepository() error {
	c.Repository.DatabaseURL = envFallback(c.Repository.DatabaseURL, "ACCESSION_DATABASE_URL")
	if c.Repository.DatabaseURL == "" {
		c.Repository.DatabaseURL = defaultDatabaseURL
	}
	if path, ok := strings.CutPrefix(c.Repository.DatabaseURL, "sqlite://"); ok && path != ":memory:" {
		expanded, err := expandPath(path)
		if err != nil {
			return fmt.Errorf("repository.database_url: %w", err)
		}
		c.Repository.DatabaseURL = "sqlite://" + expanded
	}
	c.Repository.MaxOpenConns = positiveOr(c.Repository.MaxOpenConns, defaultMaxOpenConns)
	return nil
}

func (c *Config) normalizeDerivatives() {
	types := make([]string, 0, len(c.Derivatives.MimeTypes))
	seen := make(map[string]struct{}, len(c.Derivatives.MimeTypes))
	for _, mime := range c.Derivatives.MimeTypes {
		normalized := strings.ToLower(strings.TrimSpace(mime))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		types = append(types, normalized)
	}
	c.Derivatives.MimeTypes = types
	c.Derivatives.IntervalSeconds = positiveOr(c.Derivatives.IntervalSeconds, defaultDerivativeInterval)
	c.Derivatives.MaxConcurrent = positiveOr(c.Derivatives.MaxConcurrent, defaultDerivativeConcurrent)
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.SweepSchedule = strings.TrimSpace(c.Workflow.SweepSchedule)
	if c.Workflow.PollMaxAttempts < 0 {
		c.Workflow.PollMaxAttempts = 0
	}
	if c.Workflow.PollDeadlineMinutes < 0 {
		c.Workflow.PollDeadlineMinutes = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func envFallback(value, key string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	if env, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(env)
	}
	return ""
}

func trimURL(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), "/")
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
