package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Typesense  TypesenseConfig
	Cache      CacheConfig
	Geocoding  GeocodingConfig
	Directions DirectionsConfig
	Routing    RoutingConfig
	Search     SearchConfig
	Roster     RosterConfig
	OTEL       OTELConfig
	Log        LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host              string
	Port              int
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	ShutdownTimeout   time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	Enabled bool
	URL     string
	APIKey  string
}

// CacheConfig selects the CacheProvider backend
type CacheConfig struct {
	Backend    string // redis | memory
	MemorySize int
	MemoryTTL  time.Duration
}

// GeocodingConfig holds geocoding collaborator configuration
type GeocodingConfig struct {
	Provider          string // google | nominatim | mock
	APIKey            string
	BaseURL           string
	UserAgent         string
	Region            string
	CountryCodes      string
	RequestsPerSecond float64
	CacheTTLSeconds   int
}

// DirectionsConfig holds travel-time collaborator configuration
type DirectionsConfig struct {
	Provider         string // ors | google | none
	APIKey           string
	BaseURL          string
	Profile          string
	BreakerFailures  int
	BreakerOpenFor   time.Duration
	CacheTTLSeconds  int
	GeohashPrecision int
}

// RoutingConfig holds route-path collaborator configuration
type RoutingConfig struct {
	Provider string // osrm | none
	BaseURL  string
	Profile  string
}

// SearchConfig holds search, ranking and enrichment tuning
type SearchConfig struct {
	MaxRadiusKm           float64
	MaxResults            int
	CompactMaxRadiusKm    float64
	CompactMaxResults     int
	SuggestDebounce       time.Duration
	SuggestMinLength      int
	SuggestLimit          int
	RequestTimeout        time.Duration
	FallbackSpeedKmh      float64
	PostalCodePattern     string
	EnrichmentConcurrency int
	SessionTTL            time.Duration
}

// RosterConfig selects where the provider roster is read from when no database is configured
type RosterConfig struct {
	File            string
	CacheTTLSeconds int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Env   string
	Level string
}

// Load loads configuration from an optional .env file and environment variables
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	if err := godotenv.Load(getEnv("ENV_FILE", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:              getEnv("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			AllowedOrigins:    getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
			HeartbeatInterval: getEnvAsDuration("SSE_HEARTBEAT_INTERVAL", 30*time.Second),
			ShutdownTimeout:   getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvAsBool("DB_ENABLED", true),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "fieldservice_locator"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Typesense: TypesenseConfig{
			Enabled: getEnvAsBool("TYPESENSE_ENABLED", false),
			URL:     getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey:  getEnv("TYPESENSE_API_KEY", "xyz"),
		},
		Cache: CacheConfig{
			Backend:    getEnv("CACHE_BACKEND", "redis"),
			MemorySize: getEnvAsInt("CACHE_MEMORY_SIZE", 10000),
			MemoryTTL:  getEnvAsDuration("CACHE_MEMORY_TTL", time.Hour),
		},
		Geocoding: GeocodingConfig{
			Provider:          getEnv("GEOCODING_PROVIDER", "mock"),
			APIKey:            getEnv("GEOCODING_API_KEY", ""),
			BaseURL:           getEnv("GEOCODING_BASE_URL", ""),
			UserAgent:         getEnv("GEOCODING_USER_AGENT", "fieldservice-locator/1.0"),
			Region:            getEnv("GEOCODING_REGION", "br"),
			CountryCodes:      getEnv("GEOCODING_COUNTRY_CODES", "br"),
			RequestsPerSecond: getEnvAsFloat("GEOCODING_RPS", 1),
			CacheTTLSeconds:   getEnvAsInt("GEOCODING_CACHE_TTL_SECONDS", 60*60*24*7),
		},
		Directions: DirectionsConfig{
			Provider:         getEnv("DIRECTIONS_PROVIDER", "none"),
			APIKey:           getEnv("DIRECTIONS_API_KEY", ""),
			BaseURL:          getEnv("DIRECTIONS_BASE_URL", ""),
			Profile:          getEnv("DIRECTIONS_PROFILE", "driving-car"),
			BreakerFailures:  getEnvAsInt("DIRECTIONS_BREAKER_FAILURES", 5),
			BreakerOpenFor:   getEnvAsDuration("DIRECTIONS_BREAKER_OPEN_FOR", 30*time.Second),
			CacheTTLSeconds:  getEnvAsInt("DIRECTIONS_CACHE_TTL_SECONDS", 15*60),
			GeohashPrecision: getEnvAsInt("DIRECTIONS_GEOHASH_PRECISION", 7),
		},
		Routing: RoutingConfig{
			Provider: getEnv("ROUTING_PROVIDER", "none"),
			BaseURL:  getEnv("ROUTING_BASE_URL", "https://router.project-osrm.org"),
			Profile:  getEnv("ROUTING_PROFILE", "driving"),
		},
		Search: SearchConfig{
			MaxRadiusKm:           getEnvAsFloat("SEARCH_MAX_RADIUS_KM", 50),
			MaxResults:            getEnvAsInt("SEARCH_MAX_RESULTS", 10),
			CompactMaxRadiusKm:    getEnvAsFloat("SEARCH_COMPACT_MAX_RADIUS_KM", 25),
			CompactMaxResults:     getEnvAsInt("SEARCH_COMPACT_MAX_RESULTS", 20),
			SuggestDebounce:       getEnvAsDuration("SEARCH_SUGGEST_DEBOUNCE", 250*time.Millisecond),
			SuggestMinLength:      getEnvAsInt("SEARCH_SUGGEST_MIN_LENGTH", 3),
			SuggestLimit:          getEnvAsInt("SEARCH_SUGGEST_LIMIT", 5),
			RequestTimeout:        getEnvAsDuration("SEARCH_REQUEST_TIMEOUT", 10*time.Second),
			FallbackSpeedKmh:      getEnvAsFloat("SEARCH_FALLBACK_SPEED_KMH", 30),
			PostalCodePattern:     getEnv("SEARCH_POSTAL_CODE_PATTERN", `^\d{5}-?\d{3}$`),
			EnrichmentConcurrency: getEnvAsInt("SEARCH_ENRICHMENT_CONCURRENCY", 8),
			SessionTTL:            getEnvAsDuration("SEARCH_SESSION_TTL", 30*time.Minute),
		},
		Roster: RosterConfig{
			File:            getEnv("ROSTER_FILE", ""),
			CacheTTLSeconds: getEnvAsInt("ROSTER_CACHE_TTL_SECONDS", 60),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "fieldservice-locator"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Log: LogConfig{
			Env:   getEnv("APP_ENV", "development"),
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configuration values the services cannot run with
func (c *Config) Validate() error {
	var errs []error

	s := c.Search
	if s.RequestTimeout < 5*time.Second || s.RequestTimeout > 15*time.Second {
		errs = append(errs, fmt.Errorf("SEARCH_REQUEST_TIMEOUT must be between 5s and 15s, got %s", s.RequestTimeout))
	}
	if s.SuggestDebounce < 100*time.Millisecond || s.SuggestDebounce > 300*time.Millisecond {
		errs = append(errs, fmt.Errorf("SEARCH_SUGGEST_DEBOUNCE must be between 100ms and 300ms, got %s", s.SuggestDebounce))
	}
	if s.FallbackSpeedKmh <= 0 {
		errs = append(errs, fmt.Errorf("SEARCH_FALLBACK_SPEED_KMH must be positive"))
	}
	if _, err := regexp.Compile(s.PostalCodePattern); err != nil {
		errs = append(errs, fmt.Errorf("SEARCH_POSTAL_CODE_PATTERN is invalid: %w", err))
	}
	if s.EnrichmentConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("SEARCH_ENRICHMENT_CONCURRENCY must be positive"))
	}

	switch c.Cache.Backend {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend))
	}

	switch strings.ToLower(c.Directions.Provider) {
	case "ors", "google":
		if c.Directions.APIKey == "" {
			errs = append(errs, fmt.Errorf("DIRECTIONS_API_KEY is required for provider %q", c.Directions.Provider))
		}
	case "none", "":
	default:
		errs = append(errs, fmt.Errorf("unknown DIRECTIONS_PROVIDER %q", c.Directions.Provider))
	}

	return errors.Join(errs...)
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Address returns the HTTP listen address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
