package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sensor-ingest/confs"
	"sensor-ingest/entities"
	"sensor-ingest/errs"
	"sensor-ingest/pkg/retry"
)

// Connect opens the Postgres store with bounded retries, configures the pool
// and runs migrations. Exhausting the attempts is fatal for the process.
func Connect(ctx context.Context, cfg confs.DatabaseConfig, log *slog.Logger) (Database, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, errs.Fatal("db connect", err)
	}
	if cfg.URL != "" {
		log.Info("connecting to database using DB_URL")
	} else {
		log.Info("connecting to database using discrete parameters", "host", cfg.Host, "name", cfg.Name)
	}

	var gdb *gorm.DB
	err = retry.Do(ctx, retry.Config{
		MaxAttempts: cfg.ConnectAttempts,
		Delay:       cfg.ConnectDelay,
		OnRetry: func(attempt int, err error) {
			log.Warn("database connect failed, retrying", "attempt", attempt, "of", cfg.ConnectAttempts, "error", err)
		},
	}, func(ctx context.Context) error {
		d, err := gorm.Open(postgres.Open(dsn), GormConfig(cfg.LogLevel))
		if err != nil {
			return err
		}
		sqlDB, err := d.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return err
		}
		gdb = d
		return nil
	})
	if err != nil {
		return nil, errs.Fatal("db connect", fmt.Errorf("%w: %w", errs.ErrStoreUnavailable, err))
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(0)
	log.Info("database connection established", "max_open_conns", cfg.MaxOpenConns)

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	log.Info("database migrations completed")

	return &GormDatabase{DB: gdb}, nil
}

// GormConfig is shared by the Postgres connection and test databases.
// TranslateError maps driver errors to gorm sentinels such as
// gorm.ErrDuplicatedKey and gorm.ErrCheckConstraintViolated.
func GormConfig(level string) *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel(level)),
		PrepareStmt:    true,
		TranslateError: true,
	}
}

func logLevel(s string) logger.LogLevel {
	switch strings.ToLower(s) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}

// Migrate creates or updates the devices, measurement and alert tables with
// their foreign keys and range check constraints.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&entities.Device{},
		&entities.AirMeasurement{},
		&entities.SoundMeasurement{},
		&entities.WaterMeasurement{},
		&entities.Alert{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
