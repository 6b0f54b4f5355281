package db

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to a SQL database with the given driver name
// (sqlite, mysql or postgres) and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	dialector, err := dialectorFor(driver, dsn)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(os.Stderr),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if err := AutoMigrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// newGormLogger logs slow queries and errors. A missing row is an expected
// outcome of lookups and is not logged.
func newGormLogger(w io.Writer) logger.Interface {
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  true,
	})
}

// AutoMigrate creates or updates the chat and user tables
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&Chat{}, &User{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "sqlite":
		if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" && !isURI(dsn) {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create sqlite dir %s: %w", dir, err)
			}
		}
		return sqlite.Open(dsn), nil

	case "mysql":
		cfg, err := mysqldriver.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		// Timestamps are scanned into time.Time.
		cfg.ParseTime = true
		cfg.Loc = time.UTC
		connector, err := mysqldriver.NewConnector(cfg)
		if err != nil {
			return nil, fmt.Errorf("mysql connector: %w", err)
		}
		return mysql.New(mysql.Config{Conn: sql.OpenDB(connector)}), nil

	case "postgres":
		connector, err := pq.NewConnector(dsn)
		if err != nil {
			return nil, fmt.Errorf("postgres connector: %w", err)
		}
		return postgres.New(postgres.Config{Conn: sql.OpenDB(connector)}), nil

	default:
		return nil, fmt.Errorf("unsupported sql driver: %s", driver)
	}
}

func isURI(dsn string) bool {
	return len(dsn) > 5 && dsn[:5] == "file:"
}
