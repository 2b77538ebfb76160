package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/vehicle-rental/internal"
	"github.com/frahmantamala/vehicle-rental/internal/booking"
	bookingpg "github.com/frahmantamala/vehicle-rental/internal/booking/postgres"
	"github.com/frahmantamala/vehicle-rental/internal/core/database"
	"github.com/frahmantamala/vehicle-rental/internal/core/events"
	"github.com/frahmantamala/vehicle-rental/internal/driver"
	driverpg "github.com/frahmantamala/vehicle-rental/internal/driver/postgres"
	"github.com/frahmantamala/vehicle-rental/internal/lock"
	"github.com/frahmantamala/vehicle-rental/internal/payment"
	paymentpg "github.com/frahmantamala/vehicle-rental/internal/payment/postgres"
	"github.com/frahmantamala/vehicle-rental/internal/paymentgateway"
	"github.com/frahmantamala/vehicle-rental/internal/pricing"
	"github.com/frahmantamala/vehicle-rental/internal/vehicle"
	vehiclepg "github.com/frahmantamala/vehicle-rental/internal/vehicle/postgres"
	"github.com/frahmantamala/vehicle-rental/pkg/logger"
)

const busDrainTimeout = 10 * time.Second

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	Gorm   *gorm.DB
	Redis  *redis.Client
	Logger *slog.Logger
	Bus    *events.EventBus

	Vehicles     *vehicle.Service
	Drivers      *driver.Service
	Payments     *payment.Service
	Orchestrator *payment.Orchestrator
	Bookings     *booking.Service
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	gormDB, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	deps := &Dependencies{
		Config: config,
		DB:     db,
		Gorm:   gormDB,
		Logger: log,
		Bus:    events.NewEventBus(log),
	}

	locker, err := deps.initLocker()
	if err != nil {
		deps.Close()
		return nil, err
	}

	tx := database.NewTransactor(gormDB)

	deps.Vehicles = vehicle.NewService(vehiclepg.NewVehicleRepository(gormDB), log)
	deps.Drivers = driver.NewService(driverpg.NewDriverRepository(gormDB), log)
	deps.Payments = payment.NewService(
		paymentpg.NewPaymentRepository(gormDB),
		tx,
		locker,
		deps.Bus,
		config.Payment.CommissionRate,
		log,
	)
	deps.Orchestrator = payment.NewOrchestrator(deps.Payments, initGateways(config.Payment, log), config.Payment.AttemptTimeout, log)
	deps.Bookings = booking.NewService(booking.Dependencies{
		Repo:       bookingpg.NewBookingRepository(gormDB),
		Vehicles:   deps.Vehicles,
		Drivers:    deps.Drivers,
		Refunds:    deps.Payments,
		Calculator: pricing.NewCalculator(config.Booking.TaxRate, config.Booking.CommissionRate),
		Locker:     locker,
		Tx:         tx,
		Publisher:  deps.Bus,
	}, booking.Config{
		Currency:           config.Booking.Currency,
		NumberPrefix:       config.Booking.NumberPrefix,
		CancellationCutoff: config.Booking.CancellationCutoff,
		NoShowGrace:        config.Booking.NoShowGrace,
	}, log)

	driver.NewStatusUpdater(deps.Drivers, log).Register(deps.Bus)
	deps.Vehicles.Register(deps.Bus)
	deps.Bookings.Register(deps.Bus)

	return deps, nil
}

func (d *Dependencies) initLocker() (lock.Locker, error) {
	if d.Config.Redis.URL == "" {
		d.Logger.Info("using in-process locks")
		return lock.NewKeyedMutex(), nil
	}

	client, err := lock.NewRedisClient(d.Config.Redis.URL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	d.Redis = client
	d.Logger.Info("using redis locks", "lock_ttl", d.Config.Redis.LockTTL)
	return lock.NewRedisLocker(client, d.Config.Redis.LockTTL, d.Logger), nil
}

// initGateways orders the processors Stripe first, then the HTTP fallback.
// With neither configured every charge waits for a manual bank transfer.
func initGateways(cfg internal.PaymentConfig, log *slog.Logger) []paymentgateway.Gateway {
	var gateways []paymentgateway.Gateway
	if cfg.StripeSecretKey != "" {
		gateways = append(gateways, paymentgateway.NewStripeGateway(stripe.NewClient(cfg.StripeSecretKey), log))
	}
	if cfg.FallbackURL != "" {
		gateways = append(gateways, paymentgateway.NewHTTPGateway(paymentgateway.Config{
			BaseURL: cfg.FallbackURL,
			APIKey:  cfg.FallbackAPIKey,
		}, log))
	}
	if len(gateways) == 0 {
		log.Warn("no payment gateway configured, charges will await bank transfer")
	}
	return gateways
}

// Close drains in-flight event deliveries before releasing connections.
func (d *Dependencies) Close() {
	drainCtx, cancel := context.WithTimeout(context.Background(), busDrainTimeout)
	defer cancel()
	if err := d.Bus.Wait(drainCtx); err != nil {
		d.Logger.Warn("event deliveries still running at shutdown", "error", err)
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("database close error", "error", err)
	}
}

func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	db, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// initGorm shares the sqlx pool with gorm.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
}
