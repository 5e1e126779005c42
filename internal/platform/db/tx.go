package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type TxFunc func(ctx context.Context, tx DBTX) error

// Txを開始して fn を実行。fn が nil を返せば COMMIT、エラー(またはpanic)なら ROLLBACK。
func RunInTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFunc) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RunInTxRetry はデッドロック / ロック待ちタイムアウトのときだけ Tx 全体をやり直す。
// fn は何度呼ばれても同じ結果になるように書くこと（Tx外の副作用を持たない）。
func RunInTxRetry(ctx context.Context, db *sql.DB, d Dialect, attempts int, fn TxFunc) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = RunInTx(ctx, db, nil, fn)
		if err == nil || !d.IsRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * 20 * time.Millisecond):
		}
	}
	return err
}

// 読み取り専用Tx
func ReadOnly(ctx context.Context, db *sql.DB, fn TxFunc) error {
	return RunInTx(ctx, db, &sql.TxOptions{ReadOnly: true}, fn)
}
