package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"go-payment-service/pkg/log"
)

type Config interface {
	Host() string
	Port() string
	User() string
	Password() string
	Name() string
	SSLMode() string
	MaxOpenConns() int
	MaxIdleConns() int
	ConnMaxLifetime() time.Duration
	EnableLog() bool
	LogLevel() string
}

func getDSN(cfg Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.Host(),
		cfg.User(),
		cfg.Password(),
		cfg.Name(),
		cfg.Port(),
		cfg.SSLMode())
}

func getNamingStrategy() schema.NamingStrategy {
	return schema.NamingStrategy{
		SingularTable: false,
		NoLowerCase:   false,
	}
}

func gormLogLevel(cfg Config) logger.LogLevel {
	if !cfg.EnableLog() {
		return logger.Silent
	}
	switch cfg.LogLevel() {
	case "info":
		return logger.Info
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

func newLogger(l log.Logger, cfg Config) logger.Interface {
	return logger.New(l, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormLogLevel(cfg),
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true, // keep account numbers out of the SQL log
		Colorful:                  false,
	})
}

// Connect opens the pool. TranslateError makes unique violations surface as
// gorm.ErrDuplicatedKey, which the enrollment repository relies on.
func Connect(cfg Config, l log.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  getDSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		NamingStrategy: getNamingStrategy(),
		Logger:         newLogger(l, cfg),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sDB.SetMaxIdleConns(cfg.MaxIdleConns())
	sDB.SetMaxOpenConns(cfg.MaxOpenConns())
	sDB.SetConnMaxLifetime(cfg.ConnMaxLifetime())

	return db, nil
}

// Close releases the underlying pool.
func Close(db *gorm.DB) error {
	sDB, err := db.DB()
	if err != nil {
		return err
	}
	return sDB.Close()
}
