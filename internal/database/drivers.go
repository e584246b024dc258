package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openSQLite(cfg Config) (*gorm.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		path := strings.TrimSpace(cfg.Path)
		switch {
		case path == "", strings.EqualFold(path, ":memory:"):
			dsn = "file::memory:?cache=shared&_foreign_keys=1"
		default:
			if dir := filepath.Dir(path); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, err
				}
			}
			dsn = fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", filepath.ToSlash(path))
		}
	}

	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		if cfg.User == "" || cfg.Name == "" {
			return nil, errors.New("postgres configuration requires user and database name")
		}
		host := cfg.Host
		if host == "" {
			host = "localhost"
		}
		port := cfg.Port
		if port == 0 {
			port = 5432
		}
		parts := []string{
			fmt.Sprintf("host=%s", host),
			fmt.Sprintf("port=%d", port),
			fmt.Sprintf("user=%s", cfg.User),
			fmt.Sprintf("dbname=%s", cfg.Name),
			"sslmode=disable",
		}
		if cfg.Password != "" {
			parts = append(parts, fmt.Sprintf("password=%s", cfg.Password))
		}
		dsn = strings.Join(parts, " ")
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		if cfg.User == "" || cfg.Name == "" {
			return nil, errors.New("mysql configuration requires user and database name")
		}
		host := cfg.Host
		if host == "" {
			host = "127.0.0.1"
		}
		port := cfg.Port
		if port == 0 {
			port = 3306
		}
		user := cfg.User
		if cfg.Password != "" {
			user = fmt.Sprintf("%s:%s", cfg.User, cfg.Password)
		}
		dsn = fmt.Sprintf("%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local", user, host, port, cfg.Name)
	}
	return gorm.Open(mysql.Open(dsn), &gorm.Config{})
}
