package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	IdentityCognito  = "cognito"
	IdentityUserInfo = "userinfo"

	MetadataDynamoDB = "dynamodb"
	MetadataPostgres = "postgres"
	MetadataMemory   = "memory"

	ObjectS3    = "s3"
	ObjectMinio = "minio"
	ObjectFS    = "fs"
)

type Config struct {
	Env  string
	Port string

	AWSRegion         string
	S3BucketName      string
	DynamoDBTableName string

	IdentityProvider string
	UserInfoURL      string

	MetadataBackend string
	DBURL           string

	ObjectBackend  string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	FSRoot         string

	RedisURL      string
	TitleLockTTL  time.Duration
	ClickhouseURL string

	ClickhouseDatabase string
	ClickhouseUsername string
	ClickhousePassword string

	AllowedOrigins       []string
	MaxUploadBytes       int64
	MaxConcurrentUploads int64
	DefaultPageSize      int
	RateLimitPerMinute   int
	TracingEnabled       bool
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	// a missing .env is fine outside development
	_ = godotenv.Load()

	cfg := &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8080"),

		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		S3BucketName:      getEnv("S3_BUCKET_NAME", ""),
		DynamoDBTableName: getEnv("DYNAMODB_TABLE_NAME", ""),

		IdentityProvider: getEnv("IDENTITY_PROVIDER", IdentityCognito),
		UserInfoURL:      getEnv("USERINFO_URL", ""),

		MetadataBackend: getEnv("METADATA_BACKEND", MetadataDynamoDB),
		DBURL:           getEnv("DB_URL", ""),

		ObjectBackend:  getEnv("OBJECT_BACKEND", ObjectS3),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		FSRoot:         getEnv("FS_ROOT", "./data"),

		RedisURL:      getEnv("REDIS_URL", ""),
		ClickhouseURL: getEnv("CLICKHOUSE_URL", ""),

		ClickhouseDatabase: getEnv("CLICKHOUSE_DATABASE", "default"),
		ClickhouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickhousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.MinioUseSSL, err = getBool("MINIO_USE_SSL", true); err != nil {
		return nil, err
	}
	if cfg.TracingEnabled, err = getBool("TRACING_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.TitleLockTTL, err = getDuration("TITLE_LOCK_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes, err = getInt64("MAX_UPLOAD_BYTES", 1<<30); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentUploads, err = getInt64("MAX_CONCURRENT_UPLOADS", 8); err != nil {
		return nil, err
	}
	pageSize, err := getInt64("DEFAULT_PAGE_SIZE", 10)
	if err != nil {
		return nil, err
	}
	cfg.DefaultPageSize = int(pageSize)
	rate, err := getInt64("RATE_LIMIT_PER_MINUTE", 200)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitPerMinute = int(rate)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env != "production"
}

// Validate rejects settings the selected backends cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.IdentityProvider {
	case IdentityCognito:
	case IdentityUserInfo:
		if c.UserInfoURL == "" {
			errs = append(errs, errors.New("USERINFO_URL is required when IDENTITY_PROVIDER=userinfo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown IDENTITY_PROVIDER %q", c.IdentityProvider))
	}

	switch c.MetadataBackend {
	case MetadataDynamoDB:
		if c.DynamoDBTableName == "" {
			errs = append(errs, errors.New("DYNAMODB_TABLE_NAME is required when METADATA_BACKEND=dynamodb"))
		}
	case MetadataPostgres:
		if c.DBURL == "" {
			errs = append(errs, errors.New("DB_URL is required when METADATA_BACKEND=postgres"))
		}
	case MetadataMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown METADATA_BACKEND %q", c.MetadataBackend))
	}

	switch c.ObjectBackend {
	case ObjectS3, ObjectFS:
		if c.S3BucketName == "" {
			errs = append(errs, errors.New("S3_BUCKET_NAME is required"))
		}
	case ObjectMinio:
		if c.S3BucketName == "" {
			errs = append(errs, errors.New("S3_BUCKET_NAME is required"))
		}
		if c.MinioEndpoint == "" {
			errs = append(errs, errors.New("MINIO_ENDPOINT is required when OBJECT_BACKEND=minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown OBJECT_BACKEND %q", c.ObjectBackend))
	}

	if strings.Contains(c.S3BucketName, "/") {
		errs = append(errs, errors.New("S3_BUCKET_NAME must not contain '/'"))
	}
	if c.DefaultPageSize < 1 || c.DefaultPageSize > 100 {
		errs = append(errs, errors.New("DEFAULT_PAGE_SIZE must be between 1 and 100"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.MaxConcurrentUploads <= 0 {
		errs = append(errs, errors.New("MAX_CONCURRENT_UPLOADS must be positive"))
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_PER_MINUTE must be positive"))
	}

	return errors.Join(errs...)
}

// getEnv retrieves the value of an environment variable or returns a default value if not set
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
