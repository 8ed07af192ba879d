package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Application base URL (for checkout redirects and provider webhook URLs)
	BaseURL string

	// Fulfillment provider configuration.
	// A provider with an empty API key is disabled. "mock" needs no key.
	EnabledProviders      []string
	PrintfulAPIKey        string
	PrintfulWebhookSecret string
	PrintifyAPIKey        string
	PrintifyShopID        string
	PrintifyWebhookSecret string

	// Per-provider timeout for quote requests during aggregation
	QuoteTimeout time.Duration

	// Provider names for the "quality" selection strategy, best first.
	// Unranked providers sort after ranked ones.
	ProviderQualityRanking []string

	// Bearer token for the internal sync endpoints
	SyncToken string

	// HMAC signing secret for guest usage tokens
	GuestTokenSecret string

	// Storage Configuration
	StorageProvider string // "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string // Base directory for local file storage
	LocalStorageURL  string // Base URL for accessing local files

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string // Optional custom domain URL

	// Worker Configuration
	WorkerEnabled      bool
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerJobTimeout   time.Duration

	// Design generation provider configuration
	DesignProvider       string // "http" or "mock"
	DesignAPIURL         string
	DesignAPIKey         string
	DesignMaxRetries     int
	DesignRetryBaseDelay time.Duration
	DesignRequestTimeout time.Duration

	// Stripe Checkout Configuration
	// In development, checkout handlers function as stubs if these are empty.
	StripeSecretKey     string // Stripe API secret key (sk_test_... or sk_live_...)
	StripeWebhookSecret string // Stripe webhook signing secret (whsec_...)

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

		// Base URL defaults to localhost for development
		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		PrintfulAPIKey:        getEnv("PRINTFUL_API_KEY", ""),
		PrintfulWebhookSecret: getEnv("PRINTFUL_WEBHOOK_SECRET", ""),
		PrintifyAPIKey:        getEnv("PRINTIFY_API_KEY", ""),
		PrintifyShopID:        getEnv("PRINTIFY_SHOP_ID", ""),
		PrintifyWebhookSecret: getEnv("PRINTIFY_WEBHOOK_SECRET", ""),

		QuoteTimeout: getEnvDuration("QUOTE_TIMEOUT", 10*time.Second),

		SyncToken:        getEnv("SYNC_TOKEN", ""),
		GuestTokenSecret: getEnv("GUEST_TOKEN_SECRET", ""),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

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

		// Design provider defaults
		DesignProvider:       getEnv("DESIGN_PROVIDER", "mock"),
		DesignAPIURL:         getEnv("DESIGN_API_URL", ""),
		DesignAPIKey:         getEnv("DESIGN_API_KEY", ""),
		DesignMaxRetries:     getEnvInt("DESIGN_MAX_RETRIES", 3),
		DesignRetryBaseDelay: getEnvDuration("DESIGN_RETRY_BASE_DELAY", 1*time.Second),
		DesignRequestTimeout: getEnvDuration("DESIGN_REQUEST_TIMEOUT", 60*time.Second),

		// Stripe checkout (optional — stubs work without these)
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Parse enabled providers from comma-separated environment variable.
	// Defaults to mock so quoting works out of the box in development.
	for _, p := range strings.Split(getEnv("ENABLED_PROVIDERS", "mock"), ",") {
		trimmed := strings.TrimSpace(strings.ToLower(p))
		if trimmed != "" {
			cfg.EnabledProviders = append(cfg.EnabledProviders, trimmed)
		}
	}

	// Parse the quality ranking, best provider first
	for _, p := range strings.Split(getEnv("PROVIDER_QUALITY_RANKING", "printful,printify"), ",") {
		trimmed := strings.TrimSpace(strings.ToLower(p))
		if trimmed != "" {
			cfg.ProviderQualityRanking = append(cfg.ProviderQualityRanking, trimmed)
		}
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// Validate fulfillment provider configuration
	for _, p := range cfg.EnabledProviders {
		switch p {
		case "printful":
			if cfg.PrintfulAPIKey == "" {
				return nil, fmt.Errorf("PRINTFUL_API_KEY is required when printful is enabled")
			}
		case "printify":
			if cfg.PrintifyAPIKey == "" {
				return nil, fmt.Errorf("PRINTIFY_API_KEY is required when printify is enabled")
			}
			if cfg.PrintifyShopID == "" {
				return nil, fmt.Errorf("PRINTIFY_SHOP_ID is required when printify is enabled")
			}
		case "mock":
			// No credentials needed
		default:
			return nil, fmt.Errorf("unknown provider in ENABLED_PROVIDERS: %s", p)
		}
	}

	// Validate storage configuration
	if cfg.StorageProvider == "r2" {
		if cfg.R2AccountID == "" {
			return nil, fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return nil, fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return nil, fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return nil, fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	} else if cfg.StorageProvider != "local" {
		return nil, fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", cfg.StorageProvider)
	}

	// Validate design provider configuration
	if cfg.DesignProvider == "http" {
		if cfg.DesignAPIURL == "" {
			return nil, fmt.Errorf("DESIGN_API_URL is required when DESIGN_PROVIDER is 'http'")
		}
		if cfg.DesignAPIKey == "" {
			return nil, fmt.Errorf("DESIGN_API_KEY is required when DESIGN_PROVIDER is 'http'")
		}
	} else if cfg.DesignProvider != "mock" {
		return nil, fmt.Errorf("DESIGN_PROVIDER must be either 'http' or 'mock', got: %s", cfg.DesignProvider)
	}

	// Guest tokens are signed; without a real secret they could be forged.
	if cfg.GuestTokenSecret == "" {
		if cfg.Env != "development" {
			return nil, fmt.Errorf("GUEST_TOKEN_SECRET is required outside development")
		}
		cfg.GuestTokenSecret = "dev-guest-secret"
	}

	if cfg.SyncToken == "" && cfg.Env != "development" {
		return nil, fmt.Errorf("SYNC_TOKEN is required outside development")
	}

	return cfg, nil
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
