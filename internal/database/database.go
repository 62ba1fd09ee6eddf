package database

import (
	"fmt"
	"time"

	"potledger/config"
	"potledger/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens the MySQL pool, retrying with exponential backoff while the
// database comes up.
func NewDB(cfg *config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	backoff := time.Second
	attempts := cfg.ConnectRetries
	if attempts < 1 {
		attempts = 1
	}
	for i := 1; i <= attempts; i++ {
		db, err = gorm.Open(mysql.Open(cfg.DSN), Config())
		if err == nil {
			break
		}
		log.Warn("database not ready", zap.Int("attempt", i), zap.Error(err))
		if i < attempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect after %d attempts: %w", attempts, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// Config is the gorm configuration shared by every dialector.
func Config() *gorm.Config {
	return &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Error), // Only log errors, not every SQL query
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Wallet{},
		&models.Pot{},
		&models.PotTransaction{},
		&models.PotNotification{},
		&models.SystemSetting{},
		&models.Compensation{},
	)
}
