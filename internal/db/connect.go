package db

import (
	"fmt"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/zulandar/minutes/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN from the database config.
func DSN(cfg config.DatabaseConfig) string {
	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = cfg.Host + ":" + strconv.Itoa(cfg.Port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	return mc.FormatDSN()
}

// SQLiteDSN returns the sqlite connection string for path with a busy
// timeout so concurrent workers wait on the write lock instead of failing.
func SQLiteDSN(path string) string {
	return path + "?_busy_timeout=5000&_foreign_keys=on"
}

// Connect opens a GORM connection for the configured driver.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(DSN(cfg))
	case "sqlite", "":
		dialector = sqlite.Open(SQLiteDSN(cfg.Path))
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect %s: %w", describe(cfg), err)
	}
	return db, nil
}

func describe(cfg config.DatabaseConfig) string {
	if cfg.Driver == "mysql" {
		return fmt.Sprintf("mysql %s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
	}
	return "sqlite " + cfg.Path
}
