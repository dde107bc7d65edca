package writer

import (
	"context"
	"fmt"

	"harvester/pkg/batch/database"
	exception "harvester/pkg/batch/util/exception"
	logger "harvester/pkg/batch/util/logger"
)

const sqlWriterModule = "sql_batch_writer"

// BatchInserter はテーブル固有の書き込み処理です。与えられたトランザクション内で items を書き込みます。
type BatchInserter[T any] interface {
	InsertBatch(ctx context.Context, tx database.Tx, items []T) error
}

// BatchInserterFunc は関数を BatchInserter として扱うためのアダプターです。
type BatchInserterFunc[T any] func(ctx context.Context, tx database.Tx, items []T) error

func (f BatchInserterFunc[T]) InsertBatch(ctx context.Context, tx database.Tx, items []T) error {
	return f(ctx, tx, items)
}

// SQLBatchWriter はバッチごとに一つのトランザクションで書き込む ItemWriter です。
// 書き込みに失敗した場合はロールバックし、バッチ内のアイテムは一件も残りません。
type SQLBatchWriter[T any] struct {
	name     string
	db       database.DBConnection
	inserter BatchInserter[T]
	opened   bool
}

// NewSQLBatchWriter は新しい SQLBatchWriter を作成します。
func NewSQLBatchWriter[T any](name string, db database.DBConnection, inserter BatchInserter[T]) *SQLBatchWriter[T] {
	return &SQLBatchWriter[T]{name: name, db: db, inserter: inserter}
}

// OpenWriter は接続の疎通を確認します。
func (w *SQLBatchWriter[T]) OpenWriter(ctx context.Context) error {
	if w.db == nil || w.inserter == nil {
		return exception.NewConfigurationError(sqlWriterModule, fmt.Sprintf("Writer '%s' にデータベース接続または Inserter が設定されていません", w.name))
	}
	if err := w.db.PingContext(ctx); err != nil {
		return exception.NewWriterError(sqlWriterModule, fmt.Sprintf("Writer '%s' の接続確認に失敗しました", w.name), err)
	}
	w.opened = true
	logger.Debugf("Writer '%s' をオープンしました。", w.name)
	return nil
}

// Write は一件のアイテムを書き込みます。
func (w *SQLBatchWriter[T]) Write(ctx context.Context, item T) error {
	return w.WriteBatch(ctx, []T{item})
}

// WriteBatch は items を一つのトランザクションで書き込みます。
func (w *SQLBatchWriter[T]) WriteBatch(ctx context.Context, items []T) (err error) {
	if !w.opened {
		return exception.NewBatchError(sqlWriterModule, fmt.Sprintf("Writer '%s' はオープンされていません", w.name), nil, false, false)
	}
	if len(items) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return exception.NewWriterError(sqlWriterModule, "トランザクションの開始に失敗しました", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Errorf("Writer '%s' のロールバックに失敗しました: %v", w.name, rbErr)
		}
	}()

	if err = w.inserter.InsertBatch(ctx, tx, items); err != nil {
		return exception.NewWriterError(sqlWriterModule, fmt.Sprintf("%d 件の書き込みに失敗しました", len(items)), err)
	}
	if err = tx.Commit(); err != nil {
		return exception.NewWriterError(sqlWriterModule, "トランザクションのコミットに失敗しました", err)
	}
	logger.Debugf("Writer '%s': %d 件をコミットしました。", w.name, len(items))
	return nil
}

// CloseWriter は Writer を閉じます。データベース接続自体はアプリケーションが所有するため閉じません。
func (w *SQLBatchWriter[T]) CloseWriter(ctx context.Context) error {
	w.opened = false
	logger.Debugf("Writer '%s' をクローズしました。", w.name)
	return nil
}

var _ ItemWriter[any] = (*SQLBatchWriter[any])(nil)
