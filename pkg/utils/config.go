package utils

import (
	"errors"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Rabbit    RabbitConfig
	Email     EmailConfig
	Lifecycle LifecycleConfig
	Sweeper   SweeperConfig
	Notify    NotifyConfig
	Security  SecurityConfig
}

type AppConfig struct {
	Name            string
	Port            string
	Debug           bool
	LogPath         string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	StoreDriver     string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RabbitConfig struct {
	URL             string
	PaymentExchange string
	PaymentQueue    string
	NotifyExchange  string
}

type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// LifecycleConfig holds the payment deadline policy. PaymentWindow is owned
// by booking creation; PaymentMaxExtension caps how far ahead an extended
// or revived deadline may be set.
type LifecycleConfig struct {
	PaymentWindow       time.Duration
	PaymentMaxExtension time.Duration
}

type SweeperConfig struct {
	Interval     time.Duration
	BatchSize    int
	TickTimeout  time.Duration
	StoreRetries int
	LockTTL      time.Duration
}

type NotifyConfig struct {
	Transport   string
	Workers     int
	QueueSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

type SecurityConfig struct {
	WebhookKeyHash string
}

func LoadConfig() (*Config, error) {
	return LoadConfigFile(".env")
}

// LoadConfigFile reads an env-style file (optional) and the process
// environment, environment winning.
func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")

	// Set defaults
	v.SetDefault("APP_NAME", "tour-booking")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DEBUG", false)
	v.SetDefault("LOG_PATH", "logs/")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "20s")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("PAYMENT_EXCHANGE", "payment.exchange")
	v.SetDefault("PAYMENT_QUEUE", "booking.payment.q")
	v.SetDefault("NOTIFY_EXCHANGE", "notification.exchange")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("PAYMENT_WINDOW", "24h")
	v.SetDefault("PAYMENT_MAX_EXTENSION", "168h")
	v.SetDefault("SWEEP_INTERVAL", "60s")
	v.SetDefault("SWEEP_BATCH_SIZE", 100)
	v.SetDefault("SWEEP_TICK_TIMEOUT", "45s")
	v.SetDefault("SWEEP_STORE_RETRIES", 3)
	v.SetDefault("SWEEP_LOCK_TTL", "50s")
	v.SetDefault("NOTIFY_TRANSPORT", "log")
	v.SetDefault("NOTIFY_WORKERS", 4)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 1024)
	v.SetDefault("NOTIFY_MAX_ATTEMPTS", 5)
	v.SetDefault("NOTIFY_BASE_DELAY", "2s")
	v.SetDefault("NOTIFY_MAX_DELAY", "1m")

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v.AutomaticEnv()

	config := &Config{
		App: AppConfig{
			Name:            v.GetString("APP_NAME"),
			Port:            v.GetString("PORT"),
			Debug:           v.GetBool("DEBUG"),
			LogPath:         v.GetString("LOG_PATH"),
			RequestTimeout:  v.GetDuration("REQUEST_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
			StoreDriver:     v.GetString("STORE_DRIVER"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASS"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Rabbit: RabbitConfig{
			URL:             v.GetString("RABBIT_URL"),
			PaymentExchange: v.GetString("PAYMENT_EXCHANGE"),
			PaymentQueue:    v.GetString("PAYMENT_QUEUE"),
			NotifyExchange:  v.GetString("NOTIFY_EXCHANGE"),
		},
		Email: EmailConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			User:     v.GetString("SMTP_USER"),
			Password: v.GetString("SMTP_PASS"),
			From:     v.GetString("EMAIL_FROM"),
		},
		Lifecycle: LifecycleConfig{
			PaymentWindow:       v.GetDuration("PAYMENT_WINDOW"),
			PaymentMaxExtension: v.GetDuration("PAYMENT_MAX_EXTENSION"),
		},
		Sweeper: SweeperConfig{
			Interval:     v.GetDuration("SWEEP_INTERVAL"),
			BatchSize:    v.GetInt("SWEEP_BATCH_SIZE"),
			TickTimeout:  v.GetDuration("SWEEP_TICK_TIMEOUT"),
			StoreRetries: v.GetInt("SWEEP_STORE_RETRIES"),
			LockTTL:      v.GetDuration("SWEEP_LOCK_TTL"),
		},
		Notify: NotifyConfig{
			Transport:   v.GetString("NOTIFY_TRANSPORT"),
			Workers:     v.GetInt("NOTIFY_WORKERS"),
			QueueSize:   v.GetInt("NOTIFY_QUEUE_SIZE"),
			MaxAttempts: v.GetInt("NOTIFY_MAX_ATTEMPTS"),
			BaseDelay:   v.GetDuration("NOTIFY_BASE_DELAY"),
			MaxDelay:    v.GetDuration("NOTIFY_MAX_DELAY"),
		},
		Security: SecurityConfig{
			WebhookKeyHash: v.GetString("WEBHOOK_KEY_HASH"),
		},
	}

	return config, nil
}
