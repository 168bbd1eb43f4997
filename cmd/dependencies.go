package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gsPatrick/nutri-lp/internal"
	"github.com/gsPatrick/nutri-lp/internal/core/events"
	"github.com/gsPatrick/nutri-lp/internal/ledger"
	ledgerpostgres "github.com/gsPatrick/nutri-lp/internal/ledger/postgres"
	ledgerredis "github.com/gsPatrick/nutri-lp/internal/ledger/redis"
	"github.com/gsPatrick/nutri-lp/internal/payment"
	"github.com/gsPatrick/nutri-lp/internal/paymentgateway"
	"github.com/gsPatrick/nutri-lp/internal/pricing"
	"github.com/gsPatrick/nutri-lp/internal/transport/rest"
	"github.com/gsPatrick/nutri-lp/pkg/logger"
)

// Dependencies is everything the server and the worker share.
type Dependencies struct {
	Config         *internal.Config
	Logger         *slog.Logger
	DB             *sqlx.DB
	Redis          *redis.Client
	Ledger         *ledger.Ledger
	EventBus       *events.EventBus
	Forwarder      *events.KafkaForwarder
	Gateway        *paymentgateway.Client
	PaymentService *payment.Service
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	lg := logger.Init(config.Logging.Level, config.Logging.Format)
	deps := &Dependencies{Config: config, Logger: lg}

	store, err := deps.openStore(ctx)
	if err != nil {
		deps.Close(ctx)
		return nil, err
	}

	deps.EventBus = events.NewEventBus(lg)
	payment.NewEventHandler(lg).RegisterEventHandlers(deps.EventBus)

	if brokers := config.Events.Brokers(); len(brokers) > 0 {
		forwarder, err := events.NewKafkaForwarder(brokers, config.Events.KafkaTopic, lg)
		if err != nil {
			deps.Close(ctx)
			return nil, fmt.Errorf("failed to connect to kafka: %w", err)
		}
		deps.Forwarder = forwarder
		deps.EventBus.Subscribe(events.WildcardEventType, forwarder.Handle)
		lg.Info("forwarding payment events to kafka", "brokers", brokers, "topic", config.Events.KafkaTopic)
	}

	deps.Ledger = ledger.New(store, deps.EventBus, lg)

	if config.Gateway.APIKey == "" {
		lg.Warn("gateway api key is empty, charges will be rejected")
	}
	deps.Gateway = paymentgateway.NewClient(paymentgateway.Config{
		BaseURL:        config.Gateway.ResolvedBaseURL(),
		APIKey:         config.Gateway.APIKey,
		Timeout:        config.Gateway.Timeout,
		FrontendURL:    config.Server.FrontendURL,
		CheckoutExpiry: time.Duration(config.Payment.CheckoutExpireMinutes) * time.Minute,
	}, lg)

	deps.PaymentService = payment.NewService(
		deps.Gateway,
		deps.Ledger,
		payment.NewReferenceGenerator(config.Payment.ReferencePrefix),
		payment.Settings{
			ProductName:        config.Product.Name,
			ProductDescription: config.Product.Description,
			BasePrice:          pricing.BasePrice(config.Product.Price),
			TestModeEnabled:    config.Payment.TestModeEnabled,
		},
		lg,
	)

	lg.Info("dependencies initialized",
		"storage", config.Storage.Driver,
		"gateway_environment", config.Gateway.Environment,
		"test_mode_enabled", config.Payment.TestModeEnabled)
	return deps, nil
}

func (d *Dependencies) openStore(ctx context.Context) (ledger.Store, error) {
	switch d.Config.Storage.Driver {
	case internal.StoragePostgres:
		db, err := initDB(d.Config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		d.DB = db

		gdb, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open gorm session: %w", err)
		}
		return ledgerpostgres.NewStore(gdb), nil

	case internal.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     d.Config.Redis.Addr,
			Password: d.Config.Redis.Password,
			DB:       d.Config.Redis.DB,
		})
		d.Redis = client
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return ledgerredis.NewStore(client, d.Config.Redis.KeyPrefix), nil

	default:
		d.Logger.Warn("using in-memory payment ledger, records are lost on restart")
		return ledger.NewMemoryStore(), nil
	}
}

// Pingers lists what the readiness check checks.
func (d *Dependencies) Pingers() map[string]rest.Pinger {
	pingers := map[string]rest.Pinger{}
	if d.Ledger != nil {
		pingers["ledger"] = d.Ledger
	}
	if d.DB != nil {
		pingers["postgres"] = rest.PingerFunc(d.DB.PingContext)
	}
	return pingers
}

// Close drains in-flight events and releases connections.
func (d *Dependencies) Close(ctx context.Context) {
	if d.EventBus != nil {
		if err := d.EventBus.Wait(ctx); err != nil {
			d.Logger.Warn("event handlers still running at shutdown", "error", err)
		}
	}
	if d.Forwarder != nil {
		if err := d.Forwarder.Close(); err != nil {
			d.Logger.Error("kafka producer close error", "error", err)
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error("database close error", "error", err)
		}
	}
}

// initDB opens the pgx pool shared by gorm and the readiness check.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return dbConn, nil
}
