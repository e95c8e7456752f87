package config

import (
	"time"

	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"12222"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	PodName     string `env:"POD_NAME" envDefault:"local"`
	Namespace   string `env:"POD_NAMESPACE" envDefault:"default"`
	LeaderLock  string `env:"MAILSYNC_LEADER_LOCK" envDefault:"mailsync-leader"`
	Logger      *logger.Config
	Tracing     *tracing.JaegerConfig
}

type MailsyncDatabaseConfig struct {
	Driver          string `env:"MAILSYNC_DB_DRIVER" envDefault:"postgres"`
	SQLitePath      string `env:"MAILSYNC_SQLITE_PATH" envDefault:"mailsync.db"`
	Host            string `env:"MAILSYNC_POSTGRES_HOST"`
	Port            string `env:"MAILSYNC_POSTGRES_PORT" envDefault:"5432"`
	User            string `env:"MAILSYNC_POSTGRES_USER"`
	DBName          string `env:"MAILSYNC_POSTGRES_DB_NAME"`
	Password        string `env:"MAILSYNC_POSTGRES_PASSWORD"`
	MaxConn         int    `env:"MAILSYNC_POSTGRES_DB_MAX_CONN" envDefault:"25"`
	MaxIdleConn     int    `env:"MAILSYNC_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"MAILSYNC_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"MAILSYNC_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILSYNC_POSTGRES_SSL_MODE" envDefault:"require"`
}

// SyncConfig holds the process-wide defaults. Values stored in the root
// preferences table override them at runtime.
type SyncConfig struct {
	WorkerPoolSize         int           `env:"MAILSYNC_WORKER_POOL_SIZE" envDefault:"8"`
	FetchBatchSize         int           `env:"MAILSYNC_FETCH_BATCH_SIZE" envDefault:"50"`
	ConnectTimeout         time.Duration `env:"MAILSYNC_CONNECT_TIMEOUT" envDefault:"1m"`
	IdleTimeout            time.Duration `env:"MAILSYNC_IDLE_TIMEOUT" envDefault:"10m"`
	StopTimeout            time.Duration `env:"MAILSYNC_STOP_TIMEOUT" envDefault:"10s"`
	ReconnectInitialDelay  time.Duration `env:"MAILSYNC_RECONNECT_INITIAL_DELAY" envDefault:"1s"`
	ReconnectMaxDelay      time.Duration `env:"MAILSYNC_RECONNECT_MAX_DELAY" envDefault:"2m"`
	AutoStart              bool          `env:"MAILSYNC_AUTO_START" envDefault:"true"`
	SyntheticMessageDomain string        `env:"MAILSYNC_SYNTHETIC_MESSAGE_DOMAIN" envDefault:"mailsync.local"`
}

type SearchConfig struct {
	Enabled     bool `env:"MAILSYNC_SEARCH_ENABLED" envDefault:"true"`
	MaxBodySize int  `env:"MAILSYNC_SEARCH_MAX_BODY_SIZE" envDefault:"65536"`
	ResultLimit int  `env:"MAILSYNC_SEARCH_RESULT_LIMIT" envDefault:"50"`
}

type CryptoConfig struct {
	// Armored OpenPGP public keyring; empty disables signature verification.
	KeyringPath string `env:"MAILSYNC_PGP_KEYRING"`
}

// ArchiveConfig points at an S3 compatible bucket for raw message bytes.
// An empty bucket disables archiving.
type ArchiveConfig struct {
	Provider        string `env:"MAILSYNC_ARCHIVE_PROVIDER" envDefault:"s3"`
	Bucket          string `env:"MAILSYNC_ARCHIVE_BUCKET"`
	Prefix          string `env:"MAILSYNC_ARCHIVE_PREFIX" envDefault:"raw"`
	Region          string `env:"MAILSYNC_ARCHIVE_REGION" envDefault:"us-east-1"`
	Endpoint        string `env:"MAILSYNC_ARCHIVE_ENDPOINT"`
	R2AccountID     string `env:"MAILSYNC_ARCHIVE_R2_ACCOUNT_ID"`
	AccessKeyID     string `env:"MAILSYNC_ARCHIVE_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"MAILSYNC_ARCHIVE_ACCESS_KEY_SECRET"`
}
