// ============================================================================
// backend/internal/shared/config.go
// Grading service configuration and environment variable helpers
// ============================================================================

package shared

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers accepted by STORAGE_DRIVER
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// ============================================================================
// Configuration Structs
// ============================================================================

// ServiceConfig holds the configuration for the grading service and its tools
type ServiceConfig struct {
	ServiceName string
	HTTPPort    string
	GRPCPort    string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error

	Storage  StorageConfig
	MongoDB  MongoConfig
	Postgres PostgresConfig
	Security SecurityConfig
	Grading  GradingConfig
	CORS     CORSConfig
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver  string
	Timeout time.Duration // upper bound for every single storage call
}

// PostgresConfig holds the SQL backend connection settings
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
}

// SecurityConfig holds the bearer token settings used by the gateway
type SecurityConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// GradingConfig holds grading policy knobs. It can be overlaid from a YAML file.
type GradingConfig struct {
	UndoCapacity                   int  `yaml:"undo_capacity"`
	FinalizeWithScaleNormalization bool `yaml:"finalize_with_scale_normalization"`
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int // in seconds
}

// gradingFile is the on-disk shape of GRADING_CONFIG_FILE
type gradingFile struct {
	Grading *GradingConfig `yaml:"grading"`
}

// ============================================================================
// Configuration Loading Functions
// ============================================================================

// LoadEnv loads environment variables from .env file
func LoadEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}

	if err := godotenv.Load(envFile); err != nil {
		log.Printf("Warning: %s file not found, using system environment variables", envFile)
		return err
	}

	log.Printf("Successfully loaded environment from %s", envFile)
	return nil
}

// LoadServiceConfig builds the configuration from the environment and the
// optional grading policy file.
func LoadServiceConfig(serviceName string) (*ServiceConfig, error) {
	config := &ServiceConfig{
		ServiceName: serviceName,
		HTTPPort:    GetEnv("HTTP_PORT", DefaultHTTPPort),
		GRPCPort:    GetEnv("GRPC_PORT", DefaultGRPCPort),
		Environment: GetEnv("ENVIRONMENT", "development"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
	}

	config.Storage = StorageConfig{
		Driver:  strings.ToLower(GetEnv("STORAGE_DRIVER", DriverMongo)),
		Timeout: GetDurationEnv("STORAGE_TIMEOUT", 10*time.Second),
	}

	config.MongoDB = MongoConfig{
		URI:            GetEnv("MONGO_URI", ""),
		Database:       GetEnv("MONGO_DB_NAME", "univ_erp"),
		ConnectTimeout: GetDurationEnv("MONGO_CONNECT_TIMEOUT", 20*time.Second),
		MaxPoolSize:    uint64(GetIntEnv("MONGO_MAX_POOL_SIZE", 50)),
		MinPoolSize:    uint64(GetIntEnv("MONGO_MIN_POOL_SIZE", 5)),
		MaxIdleTime:    GetDurationEnv("MONGO_MAX_IDLE_TIME", 30*time.Second),
	}

	config.Postgres = PostgresConfig{
		DSN:          GetEnv("POSTGRES_DSN", ""),
		MaxOpenConns: GetIntEnv("POSTGRES_MAX_OPEN_CONNS", 20),
		MaxIdleConns: GetIntEnv("POSTGRES_MAX_IDLE_CONNS", 10),
		MaxIdleTime:  GetDurationEnv("POSTGRES_MAX_IDLE_TIME", 60*time.Second),
	}

	config.Security = SecurityConfig{
		JWTSecret: GetEnv("JWT_SECRET", ""),
		TokenTTL:  GetDurationEnv("JWT_TTL", 8*time.Hour),
	}

	config.Grading = GradingConfig{
		UndoCapacity:                   GetIntEnv("UNDO_CAPACITY", 1),
		FinalizeWithScaleNormalization: GetBoolEnv("FINALIZE_WITH_SCALE_NORMALIZATION", false),
	}

	config.CORS = CORSConfig{
		AllowedOrigins:   GetStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		AllowedMethods:   GetStringSliceEnv("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		AllowedHeaders:   GetStringSliceEnv("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type"}),
		AllowCredentials: GetBoolEnv("CORS_ALLOW_CREDENTIALS", true),
		MaxAge:           GetIntEnv("CORS_MAX_AGE", 300),
	}

	if path := GetEnv("GRADING_CONFIG_FILE", ""); path != "" {
		if err := LoadGradingFile(path, &config.Grading); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// LoadGradingFile overlays the grading block of a YAML file onto cfg.
// Keys missing from the file keep their current value.
func LoadGradingFile(path string, cfg *GradingConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read grading config %s: %w", path, err)
	}

	file := gradingFile{Grading: cfg}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("failed to parse grading config %s: %w", path, err)
	}

	log.Printf("Loaded grading policy from %s", path)
	return nil
}

// ============================================================================
// Environment Variable Helper Functions
// ============================================================================

// GetEnv retrieves an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetIntEnv retrieves an integer environment variable or returns a default value
func GetIntEnv(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// GetBoolEnv retrieves a boolean environment variable or returns a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean value for %s: %s, using default: %t", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// GetDurationEnv retrieves a duration like "30s" or "5m" or returns a default value
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration value for %s: %s, using default: %v", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// GetStringSliceEnv retrieves a comma-separated string list or returns a default value
func GetStringSliceEnv(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var result []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// ============================================================================
// Configuration Validation
// ============================================================================

// ValidateServiceConfig validates service configuration
func ValidateServiceConfig(config *ServiceConfig) error {
	if config.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if config.HTTPPort == "" {
		return fmt.Errorf("HTTP port is required")
	}

	if config.Storage.Timeout <= 0 {
		return fmt.Errorf("storage timeout must be positive")
	}

	switch config.Storage.Driver {
	case DriverMongo:
		if config.MongoDB.URI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo storage driver")
		}
		if config.MongoDB.Database == "" {
			return fmt.Errorf("MongoDB database name is required")
		}
	case DriverPostgres:
		if config.Postgres.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres storage driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
	}

	if IsProduction(config) && config.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}

	if config.Grading.UndoCapacity < 1 {
		return fmt.Errorf("undo capacity must be at least 1, got %d", config.Grading.UndoCapacity)
	}

	return nil
}

// ============================================================================
// Configuration Display (for debugging)
// ============================================================================

// PrintConfig prints configuration (sanitized) for debugging
func PrintConfig(config *ServiceConfig) {
	log.Println("=== Service Configuration ===")
	log.Printf("Service Name: %s", config.ServiceName)
	log.Printf("HTTP Port: %s", config.HTTPPort)
	log.Printf("gRPC Port: %s", config.GRPCPort)
	log.Printf("Environment: %s", config.Environment)
	log.Printf("Log Level: %s", config.LogLevel)
	log.Println("=== Storage Configuration ===")
	log.Printf("Driver: %s", config.Storage.Driver)
	log.Printf("Call Timeout: %v", config.Storage.Timeout)
	switch config.Storage.Driver {
	case DriverMongo:
		log.Printf("Database: %s", config.MongoDB.Database)
		log.Printf("Max Pool Size: %d", config.MongoDB.MaxPoolSize)
	case DriverPostgres:
		log.Printf("Max Open Conns: %d", config.Postgres.MaxOpenConns)
	}
	log.Println("=== Grading Policy ===")
	log.Printf("Undo Capacity: %d", config.Grading.UndoCapacity)
	log.Printf("Finalize With Scale Normalization: %t", config.Grading.FinalizeWithScaleNormalization)
	log.Printf("JWT Secret Set: %t", config.Security.JWTSecret != "")
	log.Println("=============================")
}

// ============================================================================
// Default Ports
// ============================================================================

const (
	DefaultHTTPPort = "8080"
	DefaultGRPCPort = "50054"
)

// IsProduction checks if running in production environment
func IsProduction(config *ServiceConfig) bool {
	return config.Environment == "production"
}
