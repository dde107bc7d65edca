package database

import (
	"context"
	"database/sql"
)

// Tx はデータベーストランザクションのインターフェースです。
// Writer はバッチごとに一つの Tx を使用し、失敗時は Rollback します。
// sql.Tx の必要なメソッドを抽象化します。
type Tx interface {
	Commit() error
	Rollback() error
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DBConnection はデータベース接続のインターフェースです。
// sql.DB の必要なメソッドを抽象化します。
type DBConnection interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	Close() error
	PingContext(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// *sql.Tx はそのまま Tx を満たします。
var _ Tx = (*sql.Tx)(nil)

// sqlDBAdapter は sql.DB を database.DBConnection インターフェースに適合させるアダプターです。
type sqlDBAdapter struct {
	db *sql.DB
}

// NewSQLDBAdapter は新しい sqlDBAdapter のインスタンスを作成します。
func NewSQLDBAdapter(db *sql.DB) DBConnection {
	return &sqlDBAdapter{db: db}
}

// BeginTx は sql.DB の BeginTx メソッドを呼び出し、結果を database.Tx でラップします。
func (a *sqlDBAdapter) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := a.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// DB は元の *sql.DB を返します。マイグレーションやプール設定で使用します。
func (a *sqlDBAdapter) DB() *sql.DB {
	return a.db
}

// Close は sql.DB の Close メソッドを呼び出します。
func (a *sqlDBAdapter) Close() error {
	return a.db.Close()
}

// PingContext は sql.DB の PingContext メソッドを呼び出します。
func (a *sqlDBAdapter) PingContext(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// ExecContext は sql.DB の ExecContext メソッドを呼び出します。
func (a *sqlDBAdapter) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return a.db.ExecContext(ctx, query, args...)
}

// QueryContext は sql.DB の QueryContext メソッドを呼び出します。
func (a *sqlDBAdapter) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return a.db.QueryContext(ctx, query, args...)
}

// QueryRowContext は sql.DB の QueryRowContext メソッドを呼び出します。
func (a *sqlDBAdapter) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return a.db.QueryRowContext(ctx, query, args...)
}
