package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string `validate:"required"`
	DBDSN      string `validate:"required"`
	TableName  string `validate:"required,max=63"`

	ImageBackend   string `validate:"oneof=disk s3"`
	ImageDir       string `validate:"required_if=ImageBackend disk"`
	S3Endpoint     string
	S3Bucket       string `validate:"required_if=ImageBackend s3"`
	S3Region       string
	S3AccessKey    string
	S3SecretKey    string
	UploadMaxBytes int64 `validate:"gt=0"`

	// APIBaseURL is injected into the browser client. Empty means same origin.
	APIBaseURL string `validate:"omitempty,url"`

	NATSURL            string `validate:"omitempty,url"`
	EventSubjectPrefix string `validate:"required"`

	LogLevel  string `validate:"oneof=trace debug info warn error"`
	LogFormat string `validate:"oneof=console json"`

	EnableMetrics   bool
	EnableSwagger   bool
	ShutdownTimeout time.Duration `validate:"gt=0"`
	Environment     string
}

// LoadDotEnv reads a .env file into the process environment when one exists.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func Load() *Config {
	config := &Config{
		ListenAddr:         getEnv("LISTEN_ADDR", ":3001"),
		DBDSN:              getEnv("DB_DSN", "./Inshokuten.sqlite3"),
		TableName:          getEnv("TABLE_NAME", "TestTable"),
		ImageBackend:       strings.ToLower(getEnv("IMAGE_BACKEND", "disk")),
		ImageDir:           getEnv("IMAGE_DIR", "./public/images"),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Region:           getEnv("S3_REGION", "us-east-1"),
		S3AccessKey:        getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:        getEnv("S3_SECRET_KEY", ""),
		UploadMaxBytes:     10 << 20,
		APIBaseURL:         strings.TrimRight(getEnv("API_BASE_URL", ""), "/"),
		NATSURL:            getEnv("NATS_URL", ""),
		EventSubjectPrefix: getEnv("EVENT_SUBJECT_PREFIX", "inventory.items"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "json")),
		EnableMetrics:      os.Getenv("ENABLE_METRICS") == "true",
		EnableSwagger:      os.Getenv("ENABLE_SWAGGER") == "true",
		ShutdownTimeout:    10 * time.Second,
		Environment:        getEnv("ENVIRONMENT", "development"),
	}

	if v := os.Getenv("UPLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.UploadMaxBytes = n
		}
	}

	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ShutdownTimeout = d
		}
	}

	return config
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration and reports every failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func LoadAndValidate() (*Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
