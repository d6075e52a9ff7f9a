package global

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Conf global config
var Conf Config

const (
	// hard platform ceiling for the PBKDF2 work factor; hashes created
	// above it cannot be verified on this host
	MaxPbkdf2Iterations = 100000
	MinPbkdf2Iterations = 10000
)

type Config struct {
	Host    string
	Port    int
	Mode    string // debug or release
	Version string

	Sipar   SiparConfig
	CouchDB CouchDBConfig
	Redis   RedisConfig
	Queue   QueueConfig
	Storage StorageConfig
	Mailer  MailerConfig
	Webhook WebhookConfig
	Metrics MetricsConfig
}

type SiparConfig struct {
	// the single organization domain aliases live under
	Domain            string
	DefaultAliasLimit int
	SessionTTLSeconds int
	ResetTTLSeconds   int
	MaxRawBytes       int64
	MaxBodyChars      int
	Pbkdf2Iterations  int
	CookieName        string
}

type CouchDBConfig struct {
	Host     string
	Port     int
	Scheme   string
	Username string
	Password string
}

type RedisConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

type QueueConfig struct {
	Concurrency int
}

// StorageConfig is the optional S3 raw-message archive. Archival is off
// when Bucket is empty.
type StorageConfig struct {
	Key    string
	Secret string
	Bucket string
	Region string
}

// MailerConfig is the outbound transactional email provider used for
// reset-token delivery. Delivery is off when APIURL is empty.
type MailerConfig struct {
	APIURL string
	APIKey string
	From   string
}

type WebhookConfig struct {
	// shared key the inbound SMTP provider authenticates with
	Key string
}

type MetricsConfig struct {
	Enabled  bool
	Username string
	Password string
}

// LoadConfig reads the environment into Conf. A .env file in the
// working directory is honored in development; a missing file is fine.
func LoadConfig() error {
	_ = godotenv.Load()

	Conf = Config{
		Host:    envString("SIPAR_HOST", "0.0.0.0"),
		Port:    envInt("SIPAR_PORT", 8080),
		Mode:    envString("SIPAR_MODE", "release"),
		Version: envString("SIPAR_VERSION", "dev"),
		Sipar: SiparConfig{
			Domain:            envString("SIPAR_DOMAIN", ""),
			DefaultAliasLimit: envInt("SIPAR_DEFAULT_ALIAS_LIMIT", 10),
			SessionTTLSeconds: envInt("SIPAR_SESSION_TTL_SECONDS", 7*24*3600),
			ResetTTLSeconds:   envInt("SIPAR_RESET_TTL_SECONDS", 3600),
			MaxRawBytes:       int64(envInt("SIPAR_MAX_RAW_BYTES", 25*1024*1024)),
			MaxBodyChars:      envInt("SIPAR_MAX_BODY_CHARS", 1024*1024),
			Pbkdf2Iterations:  envInt("SIPAR_PBKDF2_ITERATIONS", 60000),
			CookieName:        envString("SIPAR_COOKIE_NAME", "sipar_session"),
		},
		CouchDB: CouchDBConfig{
			Host:     envString("COUCHDB_HOST", "localhost"),
			Port:     envInt("COUCHDB_PORT", 5984),
			Scheme:   envString("COUCHDB_SCHEME", "http"),
			Username: envString("COUCHDB_USERNAME", "admin"),
			Password: envString("COUCHDB_PASSWORD", ""),
		},
		Redis: RedisConfig{
			Host:     envString("REDIS_HOST", "localhost"),
			Port:     envInt("REDIS_PORT", 6379),
			Username: envString("REDIS_USERNAME", ""),
			Password: envString("REDIS_PASSWORD", ""),
		},
		Queue: QueueConfig{
			Concurrency: envInt("QUEUE_CONCURRENCY", 50),
		},
		Storage: StorageConfig{
			Key:    envString("S3_KEY", ""),
			Secret: envString("S3_SECRET", ""),
			Bucket: envString("S3_BUCKET", ""),
			Region: envString("S3_REGION", "us-east-1"),
		},
		Mailer: MailerConfig{
			APIURL: envString("MAIL_API_URL", ""),
			APIKey: envString("MAIL_API_KEY", ""),
			From:   envString("MAIL_FROM", ""),
		},
		Webhook: WebhookConfig{
			Key: envString("WEBHOOK_KEY", ""),
		},
		Metrics: MetricsConfig{
			Enabled:  envBool("METRICS_ENABLED", false),
			Username: envString("METRICS_USERNAME", "prometheus"),
			Password: envString("METRICS_PASSWORD", ""),
		},
	}

	if Conf.Sipar.Domain == "" {
		return fmt.Errorf("SIPAR_DOMAIN is required")
	}
	if Conf.Sipar.Pbkdf2Iterations > MaxPbkdf2Iterations {
		return fmt.Errorf("SIPAR_PBKDF2_ITERATIONS %d exceeds platform ceiling %d", Conf.Sipar.Pbkdf2Iterations, MaxPbkdf2Iterations)
	}
	if Conf.Sipar.Pbkdf2Iterations < MinPbkdf2Iterations {
		Conf.Sipar.Pbkdf2Iterations = MinPbkdf2Iterations
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
