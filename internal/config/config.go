package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	ObjectStoreS3     = "s3"
	ObjectStoreMemory = "memory"

	MetadataStoreSQLite   = "sqlite"
	MetadataStoreDynamoDB = "dynamodb"
)

type Config struct {
	Port     string
	LogLevel string

	// StorageEnabled switches the whole work item subsystem off when false.
	StorageEnabled bool

	// Object store
	ObjectStore       string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3BucketName      string
	S3UseSSL          bool
	S3Region          string

	// Metadata store
	MetadataStore    string
	DatabaseURL      string
	DynamoDBTable    string
	DynamoDBEndpoint string
	AWSRegion        string
	AWSMaxAttempts   int

	// Upload limits
	TokenLimit           int
	MaxFileSize          int64
	MaxTotalUnpackedSize int64
	MaxSupportingDocSize int64
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		StorageEnabled:    getEnv("STORAGE_ENABLED", "true") == "true",
		ObjectStore:       getEnv("OBJECT_STORE", ObjectStoreS3),
		S3Endpoint:        getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", "minioadmin"),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", "minioadmin"),
		S3BucketName:      getEnv("S3_BUCKET_NAME", "iac-work-items"),
		S3UseSSL:          getEnv("S3_USE_SSL", "false") == "true",
		S3Region:          getEnv("S3_REGION", ""),
		MetadataStore:     getEnv("METADATA_STORE", MetadataStoreSQLite),
		DatabaseURL:       getEnv("DATABASE_URL", "data/work_items.db"),
		DynamoDBTable:     getEnv("DYNAMODB_TABLE", "work-items"),
		DynamoDBEndpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
	}

	var err error
	if cfg.AWSMaxAttempts, err = getEnvInt("AWS_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.TokenLimit, err = getEnvInt("TOKEN_LIMIT", 200000); err != nil {
		return nil, err
	}
	if cfg.MaxFileSize, err = getEnvInt64("MAX_FILE_SIZE", 100<<20); err != nil {
		return nil, err
	}
	if cfg.MaxTotalUnpackedSize, err = getEnvInt64("MAX_TOTAL_UNPACKED_SIZE", 500<<20); err != nil {
		return nil, err
	}
	if cfg.MaxSupportingDocSize, err = getEnvInt64("MAX_SUPPORTING_DOC_SIZE", 4_500_000); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.ObjectStore {
	case ObjectStoreS3, ObjectStoreMemory:
	default:
		return fmt.Errorf("OBJECT_STORE must be %q or %q, got %q", ObjectStoreS3, ObjectStoreMemory, c.ObjectStore)
	}

	switch c.MetadataStore {
	case MetadataStoreSQLite, MetadataStoreDynamoDB:
	default:
		return fmt.Errorf("METADATA_STORE must be %q or %q, got %q", MetadataStoreSQLite, MetadataStoreDynamoDB, c.MetadataStore)
	}

	if c.TokenLimit <= 0 {
		return fmt.Errorf("TOKEN_LIMIT must be positive")
	}
	if c.MaxFileSize <= 0 || c.MaxTotalUnpackedSize <= 0 || c.MaxSupportingDocSize <= 0 {
		return fmt.Errorf("size limits must be positive")
	}
	if c.AWSMaxAttempts <= 0 {
		return fmt.Errorf("AWS_MAX_ATTEMPTS must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
