package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8060"`
	SeedData bool   `env:"SEED_DATA" envDefault:"false"`

	Log      Log      `envPrefix:"LOG_"`
	Database Database `envPrefix:"DB_"`
	Lock     Lock
	Mail     Mail
	Queue    Queue   `envPrefix:"QUEUE_"`
	Overdue  Overdue `envPrefix:"OVERDUE_"`
}

type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

type Database struct {
	Driver        string        `env:"DRIVER" envDefault:"postgres"`
	Host          string        `env:"HOST" envDefault:"postgres"`
	Port          string        `env:"PORT" envDefault:"5432"`
	User          string        `env:"USER" envDefault:"program"`
	Password      string        `env:"PASSWORD" envDefault:"test"`
	Name          string        `env:"NAME" envDefault:"library"`
	SQLitePath    string        `env:"SQLITE_PATH" envDefault:"library.db"`
	MaxRetries    int           `env:"MAX_RETRIES" envDefault:"10"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`
	MaxOpenConns  int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns  int           `env:"MAX_IDLE_CONNS" envDefault:"10"`
	ConnLifetime  time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN returns the postgres connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port)
}

type Lock struct {
	Backend  string `env:"LOCK_BACKEND" envDefault:"database"`
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
}

type Mail struct {
	ServerToken    string        `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken   string        `env:"POSTMARK_ACCOUNT_TOKEN"`
	From           string        `env:"DEFAULT_FROM_EMAIL" envDefault:"library@example.com"`
	DevDir         string        `env:"MAIL_DEV_DIR" envDefault:"mail"`
	FailSilently   bool          `env:"NOTIFY_FAIL_SILENTLY" envDefault:"false"`
	BreakerLimit   int           `env:"NOTIFY_BREAKER_FAILURES" envDefault:"5"`
	BreakerTimeout time.Duration `env:"NOTIFY_BREAKER_TIMEOUT" envDefault:"30s"`
}

type Queue struct {
	Workers      int           `env:"WORKERS" envDefault:"4"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	Lease        time.Duration `env:"LEASE" envDefault:"5m"`
	MaxRetries   int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryBackoff time.Duration `env:"RETRY_BACKOFF" envDefault:"30s"`
}

type Overdue struct {
	ScanInterval time.Duration `env:"SCAN_INTERVAL" envDefault:"24h"`
	LockTTL      time.Duration `env:"LOCK_TTL" envDefault:"300s"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"50"`
	PageSize     int           `env:"PAGE_SIZE" envDefault:"500"`
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (Config, error) {
	// a missing .env file is fine
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: unknown DB_DRIVER %q", ErrInvalidConfig, c.Database.Driver)
	}
	switch c.Lock.Backend {
	case "memory", "database", "redis":
	default:
		return fmt.Errorf("%w: unknown LOCK_BACKEND %q", ErrInvalidConfig, c.Lock.Backend)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown LOG_FORMAT %q", ErrInvalidConfig, c.Log.Format)
	}
	if c.Overdue.BatchSize <= 0 {
		return fmt.Errorf("%w: OVERDUE_BATCH_SIZE must be positive", ErrInvalidConfig)
	}
	if c.Overdue.PageSize <= 0 {
		return fmt.Errorf("%w: OVERDUE_PAGE_SIZE must be positive", ErrInvalidConfig)
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("%w: QUEUE_WORKERS must be positive", ErrInvalidConfig)
	}
	return nil
}
