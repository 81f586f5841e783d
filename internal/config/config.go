package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/integration/quickbooks"
	"github.com/Dhoini/steadybooks-integration/internal/resilience"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	QuickBooks QuickBooksConfig `mapstructure:"quickbooks"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	GRPC       GRPCConfig       `mapstructure:"grpc"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

type AppConfig struct {
	Port     string `mapstructure:"port" validate:"required"`
	Env      string `mapstructure:"env" validate:"oneof=development staging production test"`
	LogLevel string `mapstructure:"logLevel"`
}

// DatabaseConfig пустой DSN включает хранилище в памяти (только не в production).
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

// RedisConfig пустой Addr отключает кэш подписок.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// KafkaConfig пустой список брокеров отключает публикацию событий.
type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	ClientID    string   `mapstructure:"clientId"`
	EnsureTopic bool     `mapstructure:"ensureTopics"`
}

type StripeConfig struct {
	SecretKey       string                `mapstructure:"secretKey" validate:"required"`
	WebhookSecret   string                `mapstructure:"webhookSecret" validate:"required"`
	SuccessURL      string                `mapstructure:"successUrl" validate:"required,url"`
	CancelURL       string                `mapstructure:"cancelUrl" validate:"required,url"`
	PortalReturnURL string                `mapstructure:"portalReturnUrl" validate:"omitempty,url"`
	Prices          map[string]PlanPrices `mapstructure:"prices"`
}

// PlanPrices Price ID плана по периодам. Ключи карты Prices это имена планов без учета регистра.
type PlanPrices struct {
	Month string `mapstructure:"month"`
	Year  string `mapstructure:"year"`
}

type QuickBooksConfig struct {
	ClientID          string   `mapstructure:"clientId" validate:"required"`
	ClientSecret      string   `mapstructure:"clientSecret" validate:"required"`
	Environment       string   `mapstructure:"environment" validate:"oneof=Sandbox Production"`
	RedirectURI       string   `mapstructure:"redirectUri" validate:"required,url"`
	Scopes            []string `mapstructure:"scopes"`
	RequestsPerMinute int      `mapstructure:"requestsPerMinute" validate:"gte=0"`
}

// QuickBooksEndpoints адреса OAuth и API для окружения.
type QuickBooksEndpoints struct {
	AuthURL    string
	TokenURL   string
	APIBaseURL string
}

// Endpoints выводит адреса из Environment. Sandbox отличается только хостом API.
func (c QuickBooksConfig) Endpoints() QuickBooksEndpoints {
	return QuickBooksEndpoints{
		AuthURL:    quickbooks.AuthURL,
		TokenURL:   quickbooks.TokenURL,
		APIBaseURL: quickbooks.APIBaseURLFor(c.Environment),
	}
}

type RetryConfig struct {
	MaxRetryAttempts int `mapstructure:"maxRetryAttempts" validate:"gte=1"`
	InitialDelayMs   int `mapstructure:"initialDelayMs" validate:"gte=1"`
	MaxDelayMs       int `mapstructure:"maxDelayMs" validate:"gtefield=InitialDelayMs"`
}

type CircuitBreakerConfig struct {
	FailureRatio            float64 `mapstructure:"failureRatio" validate:"gt=0,lte=1"`
	SamplingDurationSeconds int     `mapstructure:"samplingDurationSeconds" validate:"gte=1"`
	MinimumThroughput       int     `mapstructure:"minimumThroughput" validate:"gte=1"`
	BreakDurationSeconds    int     `mapstructure:"breakDurationSeconds" validate:"gte=1"`
}

type TimeoutConfig struct {
	HTTPTimeoutSeconds     int `mapstructure:"httpTimeoutSeconds" validate:"gte=1"`
	DatabaseTimeoutSeconds int `mapstructure:"databaseTimeoutSeconds" validate:"gte=1"`
}

type ResilienceConfig struct {
	Retry          RetryConfig          `mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuitBreaker"`
	Timeout        TimeoutConfig        `mapstructure:"timeout"`
}

// Settings переводит конфигурацию в параметры политик. У хранилища нет предохранителя,
// а базовая пауза между повторами вдвое больше, чем у внешнего API.
func (c ResilienceConfig) Settings() resilience.Settings {
	initial := time.Duration(c.Retry.InitialDelayMs) * time.Millisecond
	maxDelay := time.Duration(c.Retry.MaxDelayMs) * time.Millisecond

	return resilience.Settings{
		OutboundAPI: resilience.ClassSettings{
			Retry: resilience.RetrySettings{
				MaxAttempts:  c.Retry.MaxRetryAttempts,
				InitialDelay: initial,
				MaxDelay:     maxDelay,
			},
			Breaker: &resilience.BreakerSettings{
				FailureRatio:      c.CircuitBreaker.FailureRatio,
				SamplingDuration:  time.Duration(c.CircuitBreaker.SamplingDurationSeconds) * time.Second,
				MinimumThroughput: c.CircuitBreaker.MinimumThroughput,
				BreakDuration:     time.Duration(c.CircuitBreaker.BreakDurationSeconds) * time.Second,
			},
			Timeout: time.Duration(c.Timeout.HTTPTimeoutSeconds) * time.Second,
		},
		Storage: resilience.ClassSettings{
			Retry: resilience.RetrySettings{
				MaxAttempts:  c.Retry.MaxRetryAttempts,
				InitialDelay: 2 * initial,
				MaxDelay:     maxDelay,
			},
			Timeout: time.Duration(c.Timeout.DatabaseTimeoutSeconds) * time.Second,
		},
	}
}

// GRPCConfig пустой Port отключает gRPC сервер.
type GRPCConfig struct {
	Port     string `mapstructure:"port"`
	UseTLS   bool   `mapstructure:"useTLS"`
	CertFile string `mapstructure:"certFile" validate:"required_if=UseTLS true"`
	KeyFile  string `mapstructure:"keyFile" validate:"required_if=UseTLS true"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret" validate:"required,min=16"`
}

// IsProduction true для окружения production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// LoadConfig загружает конфигурацию из каталога path: .env (кроме production),
// затем config.yml. Переменные окружения перекрывают файл: app.port читается из APP_PORT.
func LoadConfig(path string) (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		err := godotenv.Load(filepath.Join(path, ".env"))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate проверяет обязательные поля.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.IsProduction() && c.Database.DSN == "" {
		return errors.New("invalid config: database.dsn is required in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.logLevel", "info")

	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 30*time.Minute)

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 15*time.Minute)

	v.SetDefault("kafka.clientId", "steadybooks-integration")
	v.SetDefault("kafka.ensureTopics", true)

	v.SetDefault("quickbooks.environment", "Sandbox")
	v.SetDefault("quickbooks.scopes", []string{quickbooks.AccountingScope})
	v.SetDefault("quickbooks.requestsPerMinute", 400)

	v.SetDefault("resilience.retry.maxRetryAttempts", 3)
	v.SetDefault("resilience.retry.initialDelayMs", 100)
	v.SetDefault("resilience.retry.maxDelayMs", 5000)
	v.SetDefault("resilience.circuitBreaker.failureRatio", 0.5)
	v.SetDefault("resilience.circuitBreaker.samplingDurationSeconds", 30)
	v.SetDefault("resilience.circuitBreaker.minimumThroughput", 10)
	v.SetDefault("resilience.circuitBreaker.breakDurationSeconds", 30)
	v.SetDefault("resilience.timeout.httpTimeoutSeconds", 10)
	v.SetDefault("resilience.timeout.databaseTimeoutSeconds", 30)

	v.SetDefault("grpc.port", "9090")
	v.SetDefault("grpc.useTLS", false)

	// Ключи без значений по умолчанию регистрируются, чтобы AutomaticEnv увидел их при Unmarshal.
	for _, key := range []string{
		"database.dsn",
		"redis.addr", "redis.password",
		"kafka.brokers",
		"stripe.secretKey", "stripe.webhookSecret", "stripe.successUrl", "stripe.cancelUrl", "stripe.portalReturnUrl",
		"quickbooks.clientId", "quickbooks.clientSecret", "quickbooks.redirectUri",
		"grpc.certFile", "grpc.keyFile",
		"auth.jwtSecret",
	} {
		v.SetDefault(key, "")
	}
}
