package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// Dialect は MySQL(本番) と SQLite(dev/テスト) で書き方が違う部分だけを吸収する。
// プレースホルダはどちらも "?"。
type Dialect interface {
	Name() string
	// Upsert は INSERT ... VALUES (...) の後ろに付ける競合時の更新句
	Upsert(conflict []string, update []string) string
	// InsertIgnore は "INSERT IGNORE INTO" 相当
	InsertIgnore() string
	// ForUpdate は SELECT の末尾に付ける行ロック句（SQLite は空）
	ForUpdate() string
	IsDuplicateKey(err error) bool
	IsRetryable(err error) bool
}

type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Upsert(_ []string, update []string) string {
	sets := make([]string, 0, len(update))
	for _, c := range update {
		sets = append(sets, c+" = VALUES("+c+")")
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

func (MySQL) InsertIgnore() string { return "INSERT IGNORE INTO" }
func (MySQL) ForUpdate() string    { return " FOR UPDATE" }

func (MySQL) IsDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return false
}

// 1213: deadlock, 1205: lock wait timeout
func (MySQL) IsRetryable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1213 || me.Number == 1205
	}
	return false
}

type SQLite struct{}

func (SQLite) Name() string { return "sqlite3" }

func (SQLite) Upsert(conflict []string, update []string) string {
	sets := make([]string, 0, len(update))
	for _, c := range update {
		sets = append(sets, c+" = excluded."+c)
	}
	return " ON CONFLICT(" + strings.Join(conflict, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

func (SQLite) InsertIgnore() string { return "INSERT OR IGNORE INTO" }
func (SQLite) ForUpdate() string    { return "" }

func (SQLite) IsDuplicateKey(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func (SQLite) IsRetryable(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// Placeholders は "(?, ?, ?)" を n 行ぶん "," で繋いだ文字列を返す
func Placeholders(rows, cols int) string {
	one := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"
	out := make([]string, rows)
	for i := range out {
		out[i] = one
	}
	return strings.Join(out, ", ")
}
