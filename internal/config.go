package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Store selection. DatabaseUrl is required for postgres.
	StoreDriver string // "memory" or "postgres"
	DatabaseUrl string

	// Application base URL (for checkout redirects and archive links)
	BaseURL string

	// Shared secret for the /cron endpoints. Empty disables them.
	CronToken string

	// Competition calendar
	Timezone         string
	Location         *time.Location
	TrustedTimeURL   string // Empty uses the local clock
	TrustedTimeout   time.Duration
	SubmissionDays   int
	JudgingDays      int
	ResultsOffset    int
	EntriesPerMonth  int
	MinEntryWords    int
	MaxEntryWords    int
	SchedulerEnabled bool
	PhaseInterval    time.Duration
	MonthlyCron      string

	// Storage Configuration
	StorageProvider string // "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string
	LocalStorageURL  string

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string

	// Worker Configuration
	WorkerEnabled      bool
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerJobTimeout   time.Duration

	// AI Provider Configuration
	AIProvider       string // "anthropic" or "mock"
	AnthropicAPIKey  string
	AnthropicModel   string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration

	// Stripe Billing Configuration
	// Checkout returns 503 and webhooks are acknowledged without effect when
	// the secret key is empty.
	StripeSecretKey     string
	StripeWebhookSecret string

	// Stripe Price IDs for quota packs
	StripeStoryPackPriceID      string
	StripeAssessmentPackPriceID string
	StripeBundlePackPriceID     string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		StoreDriver: getEnv("STORE_DRIVER", StorePostgres),
		DatabaseUrl: os.Getenv("DATABASE_URL"),

		BaseURL:   getEnv("BASE_URL", "http://localhost:8080"),
		CronToken: getEnv("CRON_TOKEN", ""),

		Timezone:         getEnv("TIMEZONE", "UTC"),
		TrustedTimeURL:   getEnv("TRUSTED_TIME_URL", ""),
		TrustedTimeout:   getEnvDuration("TRUSTED_TIME_TIMEOUT", 3*time.Second),
		SubmissionDays:   getEnvInt("SUBMISSION_DAYS", 20),
		JudgingDays:      getEnvInt("JUDGING_DAYS", 5),
		ResultsOffset:    getEnvInt("RESULTS_OFFSET_DAYS", 27),
		EntriesPerMonth:  getEnvInt("ENTRIES_PER_MONTH", 1),
		MinEntryWords:    getEnvInt("MIN_ENTRY_WORDS", 350),
		MaxEntryWords:    getEnvInt("MAX_ENTRY_WORDS", 2000),
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
		PhaseInterval:    getEnvDuration("SCHEDULER_PHASE_INTERVAL", 15*time.Minute),
		MonthlyCron:      getEnv("SCHEDULER_MONTHLY_CRON", "5 0 1 * *"),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./data/archive"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/archive"),

		// R2 configuration (production only)
		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		// Worker defaults
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", 5*time.Minute),

		// AI provider defaults
		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", ""),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		StripeStoryPackPriceID:      getEnv("STRIPE_STORY_PACK_PRICE_ID", ""),
		StripeAssessmentPackPriceID: getEnv("STRIPE_ASSESSMENT_PACK_PRICE_ID", ""),
		StripeBundlePackPriceID:     getEnv("STRIPE_BUNDLE_PACK_PRICE_ID", ""),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks cross-field rules and resolves the timezone.
func (cfg *Config) validate() error {
	switch cfg.StoreDriver {
	case StorePostgres:
		if cfg.DatabaseUrl == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is 'postgres'")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be either 'memory' or 'postgres', got: %s", cfg.StoreDriver)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if cfg.EntriesPerMonth < 1 {
		return fmt.Errorf("ENTRIES_PER_MONTH must be at least 1, got %d", cfg.EntriesPerMonth)
	}
	if cfg.MinEntryWords < 1 || cfg.MaxEntryWords < cfg.MinEntryWords {
		return fmt.Errorf("entry word band %d-%d is invalid", cfg.MinEntryWords, cfg.MaxEntryWords)
	}
	if cfg.SubmissionDays < 1 || cfg.JudgingDays < 1 {
		return fmt.Errorf("SUBMISSION_DAYS and JUDGING_DAYS must be at least 1")
	}
	if cfg.ResultsOffset < cfg.SubmissionDays+cfg.JudgingDays {
		return fmt.Errorf("RESULTS_OFFSET_DAYS (%d) must not precede the end of judging (%d)",
			cfg.ResultsOffset, cfg.SubmissionDays+cfg.JudgingDays)
	}

	// Validate storage configuration
	if cfg.StorageProvider == "r2" {
		if cfg.R2AccountID == "" {
			return fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	} else if cfg.StorageProvider != "local" {
		return fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", cfg.StorageProvider)
	}

	// Validate AI provider configuration
	if cfg.AIProvider == "anthropic" {
		if cfg.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	} else if cfg.AIProvider != "mock" {
		return fmt.Errorf("AI_PROVIDER must be either 'anthropic' or 'mock', got: %s", cfg.AIProvider)
	}

	if cfg.StripeSecretKey != "" && cfg.StripeWebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
