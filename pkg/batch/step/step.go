package step

import (
	"context"
	"fmt"

	"go.uber.org/atomic"

	core "harvester/pkg/batch/job/core"
	exception "harvester/pkg/batch/util/exception"
)

// baseStep は各ステップ実装に共通する名前、リスナー、キャンセルフラグを保持します。
type baseStep struct {
	name          string
	stepListeners []core.StepExecutionListener
	sc            *core.SharedContext
	cancelled     atomic.Bool
}

// StepName はステップ名を返します。
func (b *baseStep) StepName() string {
	return b.name
}

// Cancel は協調的キャンセルを要求します。任意のゴルーチンから呼び出せます。
func (b *baseStep) Cancel() {
	b.cancelled.Store(true)
}

// AddStepListener は StepExecutionListener を登録します。
func (b *baseStep) AddStepListener(l core.StepExecutionListener) {
	if l != nil {
		b.stepListeners = append(b.stepListeners, l)
	}
}

// stopRequested はキャンセル要求またはコンテキストの終了を検出した場合に Cancelled エラーを返します。
func (b *baseStep) stopRequested(ctx context.Context) error {
	if b.cancelled.Load() {
		return exception.NewCancelledError(b.name, fmt.Sprintf("ステップ '%s' はキャンセルされました", b.name), nil)
	}
	if err := ctx.Err(); err != nil {
		return exception.NewCancelledError(b.name, fmt.Sprintf("ステップ '%s' はキャンセルされました", b.name), err)
	}
	return nil
}

func (b *baseStep) requireContext() error {
	if b.sc == nil {
		return exception.NewConfigurationError(b.name, fmt.Sprintf("ステップ '%s' の PreStep が呼び出されていません", b.name))
	}
	return nil
}

func (b *baseStep) requireParams(sc *core.SharedContext, keys []core.SharedParameter) error {
	for _, key := range keys {
		if !sc.Has(key) {
			return exception.NewConfigurationError(b.name, fmt.Sprintf("ステップ '%s' に必要なパラメータ %s がありません", b.name, key))
		}
	}
	return nil
}

func (b *baseStep) notifyBeforeStep(ctx context.Context, se *core.StepExecution) {
	for _, l := range b.stepListeners {
		l.BeforeStep(ctx, se)
	}
}

func (b *baseStep) notifyAfterStep(ctx context.Context, se *core.StepExecution) {
	for _, l := range b.stepListeners {
		l.AfterStep(ctx, se)
	}
}

// finish はエラーの種類に応じて StepExecution の終了状態を設定します。
func finish(se *core.StepExecution, err error) {
	switch {
	case err == nil:
		se.MarkAsCompleted()
	case exception.KindOf(err) == exception.KindCancelled:
		se.MarkAsCancelled(err)
	default:
		se.MarkAsFailed(err)
	}
}
