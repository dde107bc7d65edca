package reader

import (
	"context"
	"io"

	core "harvester/pkg/batch/job/core"
)

// ItemReader はアイテムを遅延的に一件ずつ供給するステップ部品のインターフェースです。
// T は読み込まれるアイテムの型です。
//
// Read は終端に達すると io.EOF を返します。それ以外の読み込み失敗は Source エラーとして返します。
// Open はソースを先頭から読み直せる状態にします。
type ItemReader[T any] interface {
	Open(ctx context.Context, sc *core.SharedContext) error
	Read(ctx context.Context) (T, error)
	Close(ctx context.Context) error
}

// SliceReader はメモリ上のスライスからアイテムを読み込む ItemReader です。
type SliceReader[T any] struct {
	items []T
	pos   int
}

// NewSliceReader は新しい SliceReader を作成します。
func NewSliceReader[T any](items []T) *SliceReader[T] {
	return &SliceReader[T]{items: items}
}

func (r *SliceReader[T]) Open(ctx context.Context, sc *core.SharedContext) error {
	r.pos = 0
	return nil
}

func (r *SliceReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if r.pos >= len(r.items) {
		return zero, io.EOF
	}
	item := r.items[r.pos]
	r.pos++
	return item, nil
}

func (r *SliceReader[T]) Close(ctx context.Context) error {
	return nil
}

var _ ItemReader[string] = (*SliceReader[string])(nil)
