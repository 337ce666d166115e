package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Target site and credentials.
	BaseURL    string
	LoginURL   string
	CatalogURL string
	Email      string
	Password   string

	// Browser session.
	Headless     bool
	ChromeBin    string
	UserAgent    string
	NavTimeoutMs int

	// Catalog pagination.
	PollIntervalMs      int
	PollMaxAttempts     int
	VisibilityTimeoutMs int
	MaxCycles           int
	EmptyCycleLimit     int
	ClickRetries        int

	// Detail extraction.
	DetailLimit    int
	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	RunDeadlineMin int
	ModalTimeoutMs int

	// Storage.
	SinkDriver       string
	SQLitePath       string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	CSVOutputPath    string

	// Optional extras.
	ArtifactsDir          string
	DownloadAssets        bool
	DownloadDir           string
	ConcurrentDownloads   int
	RequestRetryCount     int
	RequestRetryBackoffMs int
	Debug                 bool
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	base := strings.TrimRight(getEnv("IRIS_BASE_URL", "https://iris.infocasas.com.uy"), "/")

	return &Config{
		BaseURL:    base,
		LoginURL:   getEnv("IRIS_LOGIN_URL", base+"/iniciar-sesion"),
		CatalogURL: getEnv("IRIS_CATALOG_URL", base+"/proyectos"),
		Email:      getEnv("IRIS_EMAIL", ""),
		Password:   getEnv("IRIS_PASSWORD", ""),

		Headless:  getEnvBool("HEADLESS", true),
		ChromeBin: getEnv("CHROME_BIN", ""),
		UserAgent: getEnv("USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		NavTimeoutMs: getEnvInt("NAV_TIMEOUT_MS", 30000),

		PollIntervalMs:      getEnvInt("POLL_INTERVAL_MS", 300),
		PollMaxAttempts:     getEnvInt("POLL_MAX_ATTEMPTS", 20),
		VisibilityTimeoutMs: getEnvInt("VISIBILITY_TIMEOUT_MS", 3000),
		MaxCycles:           getEnvInt("MAX_CYCLES", 200),
		EmptyCycleLimit:     getEnvInt("EMPTY_CYCLE_LIMIT", 2),
		ClickRetries:        getEnvInt("CLICK_RETRIES", 3),

		DetailLimit:    getEnvInt("DETAIL_LIMIT", 0),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 1),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 2000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RunDeadlineMin: getEnvInt("RUN_DEADLINE_MIN", 0),
		ModalTimeoutMs: getEnvInt("MODAL_TIMEOUT_MS", 5000),

		SinkDriver:       getEnv("SINK_DRIVER", "sqlite"),
		SQLitePath:       getEnv("SQLITE_PATH", "./output/catalog_projects.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "iris_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		CSVOutputPath:    getEnv("CSV_OUTPUT_PATH", "./output/catalog_projects.csv"),

		ArtifactsDir:          getEnv("ARTIFACTS_DIR", ""),
		DownloadAssets:        getEnvBool("DOWNLOAD_ASSETS", false),
		DownloadDir:           getEnv("DOWNLOAD_DIR", "./output/assets"),
		ConcurrentDownloads:   getEnvInt("CONCURRENT_DOWNLOADS", 5),
		RequestRetryCount:     getEnvInt("REQUEST_RETRY_COUNT", 3),
		RequestRetryBackoffMs: getEnvInt("REQUEST_RETRY_BACKOFF_MS", 1500),
		Debug:                 getEnvBool("DEBUG", false),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
