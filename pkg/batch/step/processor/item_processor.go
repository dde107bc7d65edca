package processor

import (
	"context"
	"errors"

	core "harvester/pkg/batch/job/core"
)

// ItemProcessor はアイテムを一件ずつ変換するステップ部品のインターフェースです。
// I は入力アイテムの型、O は出力アイテムの型です。
//
// Init は最初の Process の前に一度だけ呼び出され、Destroy は処理の成否に関わらず最後に呼び出されます。
// Process は前回の呼び出しのアイテムに依存する状態を保持してはいけません。
// 変換に失敗した場合は、アイテムの識別子を含む exception.NewProcessError を返します。
type ItemProcessor[I, O any] interface {
	Init(ctx context.Context) error
	Process(ctx context.Context, item I, sc *core.SharedContext) (O, error)
	Destroy(ctx context.Context)
}

// ErrFilterItem を返したアイテムは書き込まれず、FilterCount に数えられます。
var ErrFilterItem = errors.New("item filtered")

// Func は関数を状態を持たない ItemProcessor として扱うためのアダプターです。
type Func[I, O any] func(ctx context.Context, item I, sc *core.SharedContext) (O, error)

func (f Func[I, O]) Init(ctx context.Context) error { return nil }

func (f Func[I, O]) Process(ctx context.Context, item I, sc *core.SharedContext) (O, error) {
	return f(ctx, item, sc)
}

func (f Func[I, O]) Destroy(ctx context.Context) {}

// PassThrough は入力をそのまま出力する ItemProcessor を返します。
func PassThrough[T any]() ItemProcessor[T, T] {
	return Func[T, T](func(ctx context.Context, item T, sc *core.SharedContext) (T, error) {
		return item, nil
	})
}
