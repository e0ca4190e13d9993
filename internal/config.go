package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Ledger        LedgerConfig        `mapstructure:"ledger"`
	Notification  NotificationConfig  `mapstructure:"notification"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source" validate:"required"`
}

type SecurityConfig struct {
	AccessTokenSecret    string        `mapstructure:"access_token_secret" validate:"required,min=32"`
	RefreshTokenSecret   string        `mapstructure:"refresh_token_secret" validate:"required,min=32"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration" validate:"required,min=1m,max=24h"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration" validate:"required,min=1h"`
	BCryptCost           int           `mapstructure:"bcrypt_cost" validate:"required,min=4,max=15"`
}

// LedgerConfig tunes the payment recorder and status reconciler.
type LedgerConfig struct {
	ReceiptPrefix string `mapstructure:"receipt_prefix"`
	// RecomputeStatusOnReversal re-derives training_fee_status after a rejected payment is reversed.
	// Off by default: rejection only moves paid/due amounts.
	RecomputeStatusOnReversal bool          `mapstructure:"recompute_status_on_reversal"`
	MaxWriteRetries           int           `mapstructure:"max_write_retries" validate:"min=0,max=10"`
	RetryBackoff              time.Duration `mapstructure:"retry_backoff"`
}

type NotificationConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	EmailAPIURL  string        `mapstructure:"email_api_url" validate:"required_if=Enabled true,omitempty,url"`
	SMSAPIURL    string        `mapstructure:"sms_api_url" validate:"omitempty,url"`
	APIKey       string        `mapstructure:"api_key"`
	FromAddress  string        `mapstructure:"from_address" validate:"omitempty,email"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxWorkers   int           `mapstructure:"max_workers" validate:"min=0"`
	JobQueueSize int           `mapstructure:"job_queue_size" validate:"min=0"`
}

type StorageConfig struct {
	Driver         string    `mapstructure:"driver" validate:"omitempty,oneof=local oss"`
	UploadDir      string    `mapstructure:"upload_dir" validate:"required"`
	PublicBaseURL  string    `mapstructure:"public_base_url"`
	MaxUploadBytes int64     `mapstructure:"max_upload_bytes" validate:"min=0"`
	OSS            OSSConfig `mapstructure:"oss"`
}

// OSSConfig points attachment storage at an Alibaba Cloud OSS bucket.
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	SecurityToken   string `mapstructure:"security_token"`
	Prefix          string `mapstructure:"prefix"`
	PublicBaseURL   string `mapstructure:"public_base_url" validate:"omitempty,url"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
}

// ApplyDefaults fills the optional knobs that config files commonly leave out.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Ledger.ReceiptPrefix == "" {
		c.Ledger.ReceiptPrefix = "DCTREC"
	}
	if c.Ledger.MaxWriteRetries == 0 {
		c.Ledger.MaxWriteRetries = 3
	}
	if c.Ledger.RetryBackoff == 0 {
		c.Ledger.RetryBackoff = 20 * time.Millisecond
	}
	if c.Notification.Timeout == 0 {
		c.Notification.Timeout = 10 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "local"
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "uploads"
	}
	if c.Storage.MaxUploadBytes == 0 {
		c.Storage.MaxUploadBytes = 5 << 20
	}
}

// ----------------- ENV -----------------

// LoadConfigFromEnv builds the config from environment variables, reading an optional .env file first.
func LoadConfigFromEnv() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:           getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:        getEnv("HTTP_BASE_URL", ""),
			AllowedOrigins: getEnv("HTTP_ALLOWED_ORIGINS", "*"),
			ReadTimeout:    getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			AccessTokenSecret:    getEnv("JWT_ACCESS_SECRET", ""),
			RefreshTokenSecret:   getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenDuration:  getEnvAsDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenDuration: getEnvAsDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
			BCryptCost:           getEnvAsInt("BCRYPT_COST", 12),
		},
		Ledger: LedgerConfig{
			ReceiptPrefix:             getEnv("LEDGER_RECEIPT_PREFIX", "DCTREC"),
			RecomputeStatusOnReversal: getEnvAsBool("LEDGER_RECOMPUTE_STATUS_ON_REVERSAL", false),
			MaxWriteRetries:           getEnvAsInt("LEDGER_MAX_WRITE_RETRIES", 3),
			RetryBackoff:              getEnvAsDuration("LEDGER_RETRY_BACKOFF", 20*time.Millisecond),
		},
		Notification: NotificationConfig{
			Enabled:      getEnvAsBool("NOTIFY_ENABLED", false),
			EmailAPIURL:  getEnv("NOTIFY_EMAIL_API_URL", ""),
			SMSAPIURL:    getEnv("NOTIFY_SMS_API_URL", ""),
			APIKey:       getEnv("NOTIFY_API_KEY", ""),
			FromAddress:  getEnv("NOTIFY_FROM_ADDRESS", ""),
			Timeout:      getEnvAsDuration("NOTIFY_TIMEOUT", 10*time.Second),
			MaxWorkers:   getEnvAsInt("NOTIFY_MAX_WORKERS", 4),
			JobQueueSize: getEnvAsInt("NOTIFY_JOB_QUEUE_SIZE", 100),
		},
		Storage: StorageConfig{
			Driver:         getEnv("STORAGE_DRIVER", "local"),
			UploadDir:      getEnv("STORAGE_UPLOAD_DIR", "uploads"),
			PublicBaseURL:  getEnv("STORAGE_PUBLIC_BASE_URL", "/uploads"),
			MaxUploadBytes: int64(getEnvAsInt("STORAGE_MAX_UPLOAD_BYTES", 5<<20)),
			OSS: OSSConfig{
				Endpoint:        getEnv("OSS_ENDPOINT", ""),
				Bucket:          getEnv("OSS_BUCKET_NAME", ""),
				AccessKeyID:     getEnv("OSS_ACCESS_KEY_ID", ""),
				AccessKeySecret: getEnv("OSS_ACCESS_KEY_SECRET", ""),
				SecurityToken:   getEnv("OSS_SECURITY_TOKEN", ""),
				Prefix:          getEnv("OSS_PREFIX", "fee-receipts"),
				PublicBaseURL:   getEnv("OSS_PUBLIC_BASE_URL", ""),
			},
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *StorageConfig) Validate() error {
	if c.Driver != "oss" {
		return nil
	}
	var missing []string
	if c.OSS.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.OSS.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if c.OSS.AccessKeyID == "" || c.OSS.AccessKeySecret == "" {
		missing = append(missing, "access keys")
	}
	if len(missing) > 0 {
		return fmt.Errorf("oss driver requires %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}
