package models

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// BaseModel contains common columns for all tables
type BaseModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate will set a UUID rather than numeric ID when the caller did not assign one.
func (base *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if base.ID == "" {
		base.ID = uuid.New().String()
	}
	return nil
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string
	DSN    string
	Debug  bool
}

// InitDB opens the configured database and migrates the schema.
func InitDB(config DatabaseConfig) (*gorm.DB, error) {
	dialector, err := openDialector(config)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{Logger: newGormLogger(os.Stdout, config.Debug)}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, err
	}

	if config.Driver == "sqlite" {
		// SQLite allows a single writer; serialize access through one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// newGormLogger logs slow queries and failures. Record-not-found is a normal
// lookup miss and is not logged.
func newGormLogger(w io.Writer, debug bool) logger.Interface {
	level := logger.Warn
	if debug {
		level = logger.Info
	}
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  true,
	})
}

// Migrate auto-migrates every table owned by the application.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Patient{},
		&DisplayIDCounter{},
		&ExaminationSession{},
		&MedicalRecord{},
		&User{},
		&RefreshToken{},
	)
}

func openDialector(config DatabaseConfig) (gorm.Dialector, error) {
	switch config.Driver {
	case "", "sqlite":
		if config.DSN != ":memory:" && filepath.Dir(config.DSN) != "." {
			if err := os.MkdirAll(filepath.Dir(config.DSN), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.Open(config.DSN), nil
	case "mysql":
		return mysql.Open(config.DSN), nil
	case "postgres":
		return postgres.Open(config.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}
}
