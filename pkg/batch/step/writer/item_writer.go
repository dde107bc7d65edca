package writer

import (
	"context"
)

// ItemWriter はアイテムを永続化するステップ部品のインターフェースです。
// T は書き込まれるアイテムの型です。
//
// OpenWriter と CloseWriter はステップの実行ごとに一度ずつ呼び出されます。
// WriteBatch はバッチ全体を一つの単位として書き込み、失敗した場合はそのバッチの部分的な書き込みを取り消して
// Writer エラーを返します。
type ItemWriter[T any] interface {
	OpenWriter(ctx context.Context) error
	Write(ctx context.Context, item T) error
	WriteBatch(ctx context.Context, items []T) error
	CloseWriter(ctx context.Context) error
}
