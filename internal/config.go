package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	GatewaySandbox    = "sandbox"
	GatewayProduction = "production"

	SandboxBaseURL    = "https://api-sandbox.asaas.com/v3"
	ProductionBaseURL = "https://api.asaas.com/v3"

	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"http_server"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Product  ProductConfig  `mapstructure:"product"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Events   EventsConfig   `mapstructure:"events"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	FrontendURL       string        `mapstructure:"frontend_url"`
	PublicURL         string        `mapstructure:"public_url"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type GatewayConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Environment string        `mapstructure:"environment"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type ProductConfig struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	// Price is kept as text so "289,00" and "289.00" are both accepted.
	Price string `mapstructure:"price"`
}

type PaymentConfig struct {
	ReferencePrefix       string        `mapstructure:"reference_prefix"`
	TestModeEnabled       bool          `mapstructure:"test_mode_enabled"`
	CheckoutExpireMinutes int           `mapstructure:"checkout_expire_minutes"`
	ReconcileInterval     time.Duration `mapstructure:"reconcile_interval"`
	ReconcileWorkers      int           `mapstructure:"reconcile_workers"`
}

type WebhookConfig struct {
	Token      string `mapstructure:"token"`
	DedupeSize int    `mapstructure:"dedupe_size"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type EventsConfig struct {
	KafkaBrokers string `mapstructure:"kafka_brokers"`
	KafkaTopic   string `mapstructure:"kafka_topic"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfigFromEnv builds a Config from the plain environment names used by the deployment scripts.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvAsInt("PORT", 0),
			FrontendURL: getEnv("FRONTEND_URL", ""),
			PublicURL:   getEnv("API_URL", ""),
		},
		Gateway: GatewayConfig{
			APIKey:      getEnv("ASAAS_API_KEY", ""),
			Environment: getEnv("ASAAS_ENVIRONMENT", ""),
			BaseURL:     getEnv("ASAAS_BASE_URL", ""),
			Timeout:     getEnvAsDuration("ASAAS_TIMEOUT", 0),
		},
		Product: ProductConfig{
			Name:        getEnv("PRODUCT_NAME", ""),
			Description: getEnv("PRODUCT_DESCRIPTION", ""),
			Price:       getEnv("PRODUCT_PRICE", ""),
		},
		Payment: PaymentConfig{
			ReferencePrefix:       getEnv("PAYMENT_REFERENCE_PREFIX", ""),
			TestModeEnabled:       getEnvAsBool("PAYMENT_TEST_MODE_ENABLED", true),
			CheckoutExpireMinutes: getEnvAsInt("CHECKOUT_EXPIRE_MINUTES", 0),
			ReconcileInterval:     getEnvAsDuration("RECONCILE_INTERVAL", 0),
			ReconcileWorkers:      getEnvAsInt("RECONCILE_WORKERS", 0),
		},
		Webhook: WebhookConfig{
			Token:      getEnv("ASAAS_WEBHOOK_TOKEN", ""),
			DedupeSize: getEnvAsInt("WEBHOOK_DEDUPE_SIZE", 0),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", ""),
		},
		Database: DatabaseConfig{
			Source: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Events: EventsConfig{
			KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
			KafkaTopic:   getEnv("KAFKA_TOPIC", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", ""),
			Format: getEnv("LOG_FORMAT", ""),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every zero value that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3001
	}
	if c.Server.FrontendURL == "" {
		c.Server.FrontendURL = "http://localhost:3000"
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Gateway.Environment == "" {
		c.Gateway.Environment = GatewaySandbox
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = 20 * time.Second
	}

	if c.Product.Name == "" {
		c.Product.Name = "Protocolo Gut Reset"
	}
	if c.Product.Description == "" {
		c.Product.Description = "Protocolo exclusivo de 15 dias"
	}

	if c.Payment.ReferencePrefix == "" {
		c.Payment.ReferencePrefix = "GR"
	}
	if c.Payment.CheckoutExpireMinutes == 0 {
		c.Payment.CheckoutExpireMinutes = 120
	}
	if c.Payment.ReconcileWorkers == 0 {
		c.Payment.ReconcileWorkers = 4
	}

	if c.Webhook.DedupeSize == 0 {
		c.Webhook.DedupeSize = 1024
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Database.ConnMaxIdleTime == 0 {
		c.Database.ConnMaxIdleTime = 5 * time.Minute
	}

	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "nutri:payments"
	}

	if c.Events.KafkaTopic == "" {
		c.Events.KafkaTopic = "payment-events"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
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

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.Source == "" {
			errs = append(errs, "storage config: postgres driver requires database.source")
		}
	case StorageRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, "storage config: redis driver requires redis.addr")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage config: unknown driver %q", c.Storage.Driver))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging config: invalid level %q", c.Logging.Level))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := url.ParseRequestURI(c.FrontendURL); err != nil {
		return fmt.Errorf("invalid frontend_url %s: %w", c.FrontendURL, err)
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *GatewayConfig) Validate() error {
	if c.Environment != GatewaySandbox && c.Environment != GatewayProduction {
		return fmt.Errorf("environment must be %s or %s, got %q", GatewaySandbox, GatewayProduction, c.Environment)
	}
	if c.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
	}
	if c.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	return nil
}

// ResolvedBaseURL prefers an explicit base_url over the environment selector.
func (c *GatewayConfig) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Environment == GatewayProduction {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

func (c *PaymentConfig) Validate() error {
	if c.CheckoutExpireMinutes < 0 {
		return errors.New("checkout_expire_minutes cannot be negative")
	}
	if c.ReconcileWorkers < 1 {
		return errors.New("reconcile_workers must be at least 1")
	}
	if c.ReconcileInterval < 0 {
		return errors.New("reconcile_interval cannot be negative")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

// Brokers splits the comma separated broker list; empty means forwarding is disabled.
func (c *EventsConfig) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
