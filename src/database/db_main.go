package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tradeledger/src/model"
)

// MainDB is the primary read/write database connection used by the
// application. It is the local system of record for strategy attribution
// and audit history; the venue stays authoritative for live state.
var MainDB *gorm.DB

// InitMainDB initializes the main database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB() error {
	config := GetConfig()

	db, err := gorm.Open(postgres.Open(config.DatabaseURLMain),
		&gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to get DB from GORM")
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.Info("[database] MainDB connection established")

	if err := Migrate(MainDB); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	logrus.Info("[database] MainDB migrations completed")

	return nil
}

// Migrate runs AutoMigrate for all ledger tables and seeds the singleton
// gate row. Exposed separately so tests can run it against their own DB.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Order{},
		&model.Position{},
		&model.TradingGate{},
		&model.GateTransition{},
		&model.ReconciliationCursor{},
		&model.Exception{},
	); err != nil {
		return err
	}

	// The gate table must hold exactly one row at all times.
	gate := model.TradingGate{
		ID:        model.TradingGateRowID,
		Active:    false,
		Reason:    "initialized",
		ChangedAt: time.Now().UTC(),
	}
	return db.Where("id = ?", model.TradingGateRowID).
		FirstOrCreate(&gate).Error
}
