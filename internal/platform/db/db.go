package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nasirkhansayyad132/advanced-school-management/internal/platform/config"
)

// Connect: driver に応じて接続し、Dialect と一緒に返す
func Connect(c config.DatabaseConfig) (*sql.DB, Dialect, error) {
	switch c.Driver {
	case "sqlite3":
		return connectSQLite(c.Path)
	default:
		return connectMySQL(c)
	}
}

func connectMySQL(c config.DatabaseConfig) (*sql.DB, Dialect, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("接続準備に失敗: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("DB接続に失敗: %w", err)
	}

	// 接続プール（合算がMySQLの max_connections を超えないよう配分する）
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, MySQL{}, nil
}

// OpenSQLite は dev モードとテストで使う。
// SQLite は書き込みが1本なので接続も1本に絞ってTxを直列化する。
func OpenSQLite(path string) (*sql.DB, Dialect, error) {
	return connectSQLite(path)
}

func connectSQLite(path string) (*sql.DB, Dialect, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate&_loc=UTC", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("接続準備に失敗: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("DB接続に失敗: %w", err)
	}
	return db, SQLite{}, nil
}
