package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port            string        `json:"port"`
	Env             string        `json:"env"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	HTTPTimeout     time.Duration `json:"http_timeout"`

	// Hashnode CMS
	CMSEndpoint      string        `json:"cms_endpoint"`
	CMSHost          string        `json:"cms_host"`
	CMSAccessToken   string        `json:"-"`
	CMSPublicationID string        `json:"cms_publication_id"`
	CMSTimeout       time.Duration `json:"cms_timeout"`
	CMSRetryCount    int           `json:"cms_retry_count"`

	// Pagination
	PostsPerPage       int           `json:"posts_per_page"`
	FetchAllBatchSize  int           `json:"fetch_all_batch_size"`
	FetchAllMaxAttempt int           `json:"fetch_all_max_attempts"`
	FetchAllDelay      time.Duration `json:"fetch_all_delay"`

	// Search
	SearchCacheTTL       time.Duration `json:"search_cache_ttl"`
	SearchMaxResults     int           `json:"search_max_results"`
	SearchMinQueryLength int           `json:"search_min_query_length"`

	// Image proxy
	ImageAllowedHost  string        `json:"image_allowed_host"`
	ImageFetchTimeout time.Duration `json:"image_fetch_timeout"`
	ImageCacheSize    int           `json:"image_cache_size"`
	ImageCacheTTL     time.Duration `json:"image_cache_ttl"`

	// Logging
	LogLevel  string `json:"log_level"`
	LogFile   string `json:"log_file"`
	LogPretty bool   `json:"log_pretty"`

	// Security
	AdminAPIKey string `json:"-"`
}

// Error reports required settings that are missing
type Error struct {
	Missing []string
}

func (e *Error) Error() string {
	return "missing required configuration: " + strings.Join(e.Missing, ", ")
}

// Load loads configuration from environment variables.
// Validation problems are not fatal: call Validate and surface them per endpoint.
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("APP_ENV", "development"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		HTTPTimeout:     getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),

		CMSEndpoint:      getEnv("HASHNODE_ENDPOINT", "https://gql.hashnode.com"),
		CMSHost:          getEnv("HASHNODE_HOST", ""),
		CMSAccessToken:   getEnv("HASHNODE_ACCESS_TOKEN", ""),
		CMSPublicationID: getEnv("HASHNODE_PUBLICATION_ID", ""),
		CMSTimeout:       getEnvAsDuration("CMS_TIMEOUT", 10*time.Second),
		CMSRetryCount:    getEnvAsInt("CMS_RETRY_COUNT", 2),

		PostsPerPage:       getEnvAsInt("POSTS_PER_PAGE", 6),
		FetchAllBatchSize:  getEnvAsInt("FETCH_ALL_BATCH_SIZE", 20),
		FetchAllMaxAttempt: getEnvAsInt("FETCH_ALL_MAX_ATTEMPTS", 20),
		FetchAllDelay:      getEnvAsDuration("FETCH_ALL_DELAY", 200*time.Millisecond),

		SearchCacheTTL:       getEnvAsDuration("SEARCH_CACHE_TTL", 30*time.Minute),
		SearchMaxResults:     getEnvAsInt("SEARCH_MAX_RESULTS", 15),
		SearchMinQueryLength: getEnvAsInt("SEARCH_MIN_QUERY_LENGTH", 3),

		ImageAllowedHost:  getEnv("IMAGE_ALLOWED_HOST", "cdn.hashnode.com"),
		ImageFetchTimeout: getEnvAsDuration("IMAGE_FETCH_TIMEOUT", 15*time.Second),
		ImageCacheSize:    getEnvAsInt("IMAGE_CACHE_SIZE", 256),
		ImageCacheTTL:     getEnvAsDuration("IMAGE_CACHE_TTL", time.Hour),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFile:   getEnv("LOG_FILE", ""),
		LogPretty: getEnvAsBool("LOG_PRETTY", true),

		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
	}
}

// Validate returns a *Error naming every missing required value
func (c *Config) Validate() error {
	var missing []string
	if c.CMSEndpoint == "" {
		missing = append(missing, "HASHNODE_ENDPOINT")
	}
	if c.CMSHost == "" {
		missing = append(missing, "HASHNODE_HOST")
	}
	if len(missing) > 0 {
		return &Error{Missing: missing}
	}
	return nil
}

// LogOutput is where the logger should write
func (c *Config) LogOutput() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return "stdout"
}

// Helper functions for environment variable handling
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %d", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %t", name, err, defaultVal)
		return defaultVal
	}
	return value
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(name, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid %s value: %v, using default: %v", name, err, defaultVal)
		return defaultVal
	}
	return value
}
