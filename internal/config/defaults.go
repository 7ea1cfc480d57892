package config

const (
	defaultDataDir              = "~/.local/share/accession"
	defaultLogDir               = "~/.local/share/accession/logs"
	defaultAPIBind              = "127.0.0.1:7690"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultRequestTimeout       = 60
	defaultMaxBatchGB           = 200
	defaultSessionTTLSeconds    = 3000
	defaultTransferType         = "standard"
	defaultManifestSuffix       = ".dura-manifest"
	defaultSearchIndex          = "repository"
	defaultDatabaseURL          = "sqlite://~/.local/share/accession/repository.db"
	defaultMaxOpenConns         = 10
	defaultDerivativeInterval   = 2
	defaultDerivativeConcurrent = 2
	defaultQueuePollInterval    = 15
	defaultMaxConcurrentBatches = 2
	defaultUploadPollInterval   = 10
	defaultApprovalPollInterval = 5
	defaultTransferPollInterval = 10
	defaultIngestPollInterval   = 15
	defaultPollMaxAttempts      = 0
	defaultPollDeadlineMinutes  = 720
	defaultSweepSchedule        = "0 */10 * * * *"
	defaultStaleAfterMinutes    = 60
	defaultNotifyTimeout        = 10
)

var defaultDerivativeMimeTypes = []string{"image/tiff", "image/jp2"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		QA: QA{
			TimeoutSeconds: defaultRequestTimeout,
			MaxBatchGB:     defaultMaxBatchGB,
		},
		Metadata: Metadata{
			SessionTTLSeconds: defaultSessionTTLSeconds,
			TimeoutSeconds:    defaultRequestTimeout,
		},
		Transfer: Transfer{
			TransferType:   defaultTransferType,
			TimeoutSeconds: defaultRequestTimeout,
		},
		Storage: Storage{
			ManifestSuffix: defaultManifestSuffix,
			TimeoutSeconds: defaultRequestTimeout,
		},
		Handle: Handle{
			TimeoutSeconds: defaultRequestTimeout,
		},
		Search: Search{
			Index:          defaultSearchIndex,
			TimeoutSeconds: defaultRequestTimeout,
		},
		Repository: Repository{
			DatabaseURL:  defaultDatabaseURL,
			MaxOpenConns: defaultMaxOpenConns,
		},
		Derivatives: Derivatives{
			Enabled:         true,
			MimeTypes:       append([]string(nil), defaultDerivativeMimeTypes...),
			IntervalSeconds: defaultDerivativeInterval,
			MaxConcurrent:   defaultDerivativeConcurrent,
		},
		Workflow: Workflow{
			AutoStart:            true,
			QueuePollInterval:    defaultQueuePollInterval,
			MaxConcurrentBatches: defaultMaxConcurrentBatches,
			UploadPollInterval:   defaultUploadPollInterval,
			ApprovalPollInterval: defaultApprovalPollInterval,
			TransferPollInterval: defaultTransferPollInterval,
			IngestPollInterval:   defaultIngestPollInterval,
			PollMaxAttempts:      defaultPollMaxAttempts,
			PollDeadlineMinutes:  defaultPollDeadlineMinutes,
			SweepSchedule:        defaultSweepSchedule,
			StaleAfterMinutes:    defaultStaleAfterMinutes,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			BatchHalted:    true,
			BatchCompleted: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
			File:   true,
		},
	}
}
