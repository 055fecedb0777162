package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	KurrentDB  KurrentDBConfig
	Auth       AuthConfig
	Classifier ClassifierConfig
	EHR        EHRConfig
	Executor   ExecutorConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB),
// used for the append-only audit trail and domain event streams.
type KurrentDBConfig struct {
	// Host is the KurrentDB server hostname
	Host string
	// Port is the gRPC port (default 2113)
	Port int
	// Insecure disables TLS (for development)
	Insecure bool
	// Username for authentication (optional)
	Username string
	// Password for authentication (optional)
	Password string
}

type AuthConfig struct {
	// JWTSecret signs and verifies hospital and clinician access tokens
	JWTSecret string
	// TokenTTL is the lifetime of issued emergency access tokens
	TokenTTL time.Duration
}

// ClassifierConfig holds the tunables of the hybrid classification engine.
// Thresholds are static configuration: they are read at request time but
// never mutated by the engine itself.
type ClassifierConfig struct {
	// MaxInputChars rejects directive text above this length before
	// normalization. The source system left the cap unspecified; 10000
	// characters is the documented platform default.
	MaxInputChars int
	// ReviewThreshold marks analyses below this confidence for human review
	ReviewThreshold float64
	// ReviewLengthChars marks analyses for review when the raw text is
	// longer than this, regardless of confidence
	ReviewLengthChars int
	// EscalationThreshold accepts the local result without escalation at
	// or above this aggregate confidence
	EscalationThreshold float64
	// ExternalURL is the base URL of the escalation classifier service
	ExternalURL string
	// ExternalTimeout bounds a single escalation attempt; expiry is
	// treated as escalation failure and falls back to the local result
	ExternalTimeout time.Duration
	// ExternalEnabled disables escalation entirely when false (local
	// results are accepted at any confidence)
	ExternalEnabled bool
}

// EHRConfig holds EHR adapter configuration.
type EHRConfig struct {
	// Adapter: "fhir", "legacy" or "none"
	Adapter string
	// FHIRBaseURL is the FHIR R4 endpoint for the "fhir" adapter
	FHIRBaseURL string
	// Legacy HIS connection (SQL Server) for the "legacy" adapter
	LegacyHost     string
	LegacyPort     int
	LegacyDatabase string
	LegacyUser     string
	LegacyPassword string
}

// ExecutorConfig holds directive executor configuration.
type ExecutorConfig struct {
	// Enabled controls whether the executor module is mounted
	Enabled bool
	// OrganNetworks lists the coordination networks alerts are fanned out to
	OrganNetworks []string
	// ResearchInstitutions receives anonymized data under DATA_CONSENT
	ResearchInstitutions []string
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "echoledger"),
			Password: getEnv("DB_PASSWORD", "echoledger"),
			Database: getEnv("DB_NAME", "echoledger"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		KurrentDB: KurrentDBConfig{
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
			TokenTTL:  getEnvDuration("AUTH_TOKEN_TTL", 15*time.Minute),
		},
		Classifier: ClassifierConfig{
			MaxInputChars:       getEnvInt("CLASSIFIER_MAX_INPUT_CHARS", 10000),
			ReviewThreshold:     getEnvFloat("CLASSIFIER_REVIEW_THRESHOLD", 0.85),
			ReviewLengthChars:   getEnvInt("CLASSIFIER_REVIEW_LENGTH_CHARS", 1000),
			EscalationThreshold: getEnvFloat("CLASSIFIER_ESCALATION_THRESHOLD", 0.90),
			ExternalURL:         getEnv("CLASSIFIER_EXTERNAL_URL", "http://localhost:5000"),
			ExternalTimeout:     getEnvDuration("CLASSIFIER_EXTERNAL_TIMEOUT", 5*time.Second),
			ExternalEnabled:     getEnvBool("CLASSIFIER_EXTERNAL_ENABLED", true),
		},
		EHR: EHRConfig{
			Adapter:        getEnv("EHR_ADAPTER", "none"),
			FHIRBaseURL:    getEnv("EHR_FHIR_BASE_URL", "http://localhost:8090/fhir"),
			LegacyHost:     getEnv("EHR_LEGACY_HOST", "localhost"),
			LegacyPort:     getEnvInt("EHR_LEGACY_PORT", 1433),
			LegacyDatabase: getEnv("EHR_LEGACY_DATABASE", "his"),
			LegacyUser:     getEnv("EHR_LEGACY_USER", "sa"),
			LegacyPassword: getEnv("EHR_LEGACY_PASSWORD", ""),
		},
		Executor: ExecutorConfig{
			Enabled: getEnvBool("EXECUTOR_ENABLED", true),
			OrganNetworks: getEnvSlice("EXECUTOR_ORGAN_NETWORKS",
				[]string{"UNOS", "Eurotransplant", "ANZOD"}),
			ResearchInstitutions: getEnvSlice("EXECUTOR_RESEARCH_INSTITUTIONS", []string{
				"National Cancer Institute",
				"Memorial Sloan Kettering Cancer Center",
				"MD Anderson Cancer Center",
				"Dana-Farber Cancer Institute",
				"Fred Hutchinson Cancer Research Center",
			}),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, v := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
