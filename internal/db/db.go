package db

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"tajong-backend/config"
	"tajong-backend/internal/model"
)

// DefaultSetName is the name of the schedule set created on first start.
const DefaultSetName = "기본"

// Init opens the configured database, runs migrations and seeds the default set.
func Init(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// One writer; the scheduler assumes exclusive single-writer access.
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Info("running database migrations", zap.String("driver", cfg.Driver))
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := Seed(db); err != nil {
		return nil, err
	}

	log.Info("database initialization complete")
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Sound{},
		&model.ScheduleSet{},
		&model.Schedule{},
		&model.Setting{},
		&model.Override{},
		&model.EventLog{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

// Seed makes sure a schedule set exists, that one of them is recorded as
// active, and that schedules without a set belong to the active one.
func Seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var first model.ScheduleSet
		err := tx.Order("id ASC").First(&first).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			first = model.ScheduleSet{Name: DefaultSetName}
			if err := tx.Create(&first).Error; err != nil {
				return fmt.Errorf("failed to create default schedule set: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to look up schedule sets: %w", err)
		}

		var active model.Setting
		err = tx.First(&active, "key = ?", model.SettingActiveSetID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			active = model.Setting{Key: model.SettingActiveSetID, Value: strconv.FormatInt(first.ID, 10)}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&active).Error; err != nil {
				return fmt.Errorf("failed to record active schedule set: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to read active schedule set: %w", err)
		}

		activeID, err := strconv.ParseInt(active.Value, 10, 64)
		if err != nil || activeID == 0 {
			return nil
		}
		if err := tx.Model(&model.Schedule{}).
			Where("set_id = 0 OR set_id IS NULL").
			Update("set_id", activeID).Error; err != nil {
			return fmt.Errorf("failed to back-fill schedule sets: %w", err)
		}
		return nil
	})
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
