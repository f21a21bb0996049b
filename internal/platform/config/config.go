package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration returns the duration value of the environment variable named
// by key. Both Go duration strings ("10s", "5m") and bare integers, read as
// seconds, are accepted. Unset, empty, invalid or non-positive values yield
// fallback.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return fallback
		}
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return fallback
}

// Settings is the full configuration surface of the exporter.
type Settings struct {
	Port                string
	UsageFeedURL        string
	StatusURL           string
	DirectoryListURL    string
	DirectoryStreamsURL string
	ScrapeInterval      time.Duration
	RefreshInterval     time.Duration
	HTTPTimeout         time.Duration
	StreamsTimeout      time.Duration
	MaxPages            int
	Concurrency         int
	LogLevel            string
	LogFormat           string
}

// FromEnv reads Settings from the environment, applying defaults.
func FromEnv() Settings {
	return Settings{
		Port:                GetEnv("EXPORTER_PORT", "9101"),
		UsageFeedURL:        GetEnv("USAGE_FEED_URL", "http://localhost:3903/metrics"),
		StatusURL:           GetEnv("STATUS_URL", ""),
		DirectoryListURL:    GetEnv("DIRECTORY_LIST_URL", "http://localhost:8000/api/tv-channels"),
		DirectoryStreamsURL: GetEnv("DIRECTORY_STREAMS_URL", "http://localhost:8000/api/tv-channels/{channel_id}/acestreams"),
		ScrapeInterval:      GetEnvDuration("SCRAPE_INTERVAL", 10*time.Second),
		RefreshInterval:     GetEnvDuration("DIRECTORY_REFRESH_INTERVAL", 300*time.Second),
		HTTPTimeout:         GetEnvDuration("HTTP_TIMEOUT", 5*time.Second),
		StreamsTimeout:      GetEnvDuration("DIRECTORY_STREAMS_TIMEOUT", 2*time.Second),
		MaxPages:            GetEnvInt("DIRECTORY_MAX_PAGES", 500),
		Concurrency:         GetEnvInt("DIRECTORY_CONCURRENCY", 4),
		LogLevel:            GetEnv("LOG_LEVEL", "info"),
		LogFormat:           GetEnv("LOG_FORMAT", "json"),
	}
}
