package core

import (
	"context"

	"github.com/Azure/go-asynctask"
)

// Job は実行可能なバッチジョブのインターフェースです。
// 一つの Job インスタンスは一回の実行にのみ使用します。同じインスタンスで DoJob を重ねて呼び出した場合の動作は未定義です。
type Job interface {
	JobName() string
	// DoJob はステップを順番に実行します。jobExecution は NOT_STARTED 状態である必要があります。
	DoJob(ctx context.Context, jobExecution *JobExecution) error
	// Cancel は実行中のジョブに協調的キャンセルを要求します。任意のゴルーチンから呼び出せます。
	Cancel()
	SharedContext() *SharedContext
}

// Step はジョブ内で実行される単一のステップのインターフェースです。
// Job は PreStep → DoStep → PostStep の順に呼び出し、PostStep は失敗時も必ず呼び出されます。
type Step interface {
	StepName() string
	// PreStep は前提条件を検証し、内部コンポーネントを初期化します。
	// 必要な SharedContext の値が無い場合は Configuration エラーを返します。
	PreStep(ctx context.Context, sc *SharedContext) error
	DoStep(ctx context.Context, stepExecution *StepExecution) error
	// PostStep はステップスコープのリソースを解放します。
	PostStep(ctx context.Context)
	// Cancel はバッチ境界で観測される協調的キャンセルを要求します。
	Cancel()
}

// Tasklet は単一の同期的な操作を実行するステップ部品です。
type Tasklet interface {
	Execute(ctx context.Context, sc *SharedContext, stepExecution *StepExecution) error
	Close(ctx context.Context) error
}

// ItemTask は特定のアイテムに紐づかない一度きりの非同期処理です。
// Execute は設定エラーを同期的に返し、成功した場合のみバックグラウンド処理を開始します。
// 終了結果は SharedContext に格納された Callback と、返された Waitable の両方で通知されます。
type ItemTask interface {
	TaskName() string
	Execute(ctx context.Context, sc *SharedContext) (asynctask.Waitable, error)
	AddItemProgressListener(listener ItemProgressListener)
}

// Callback は非同期タスクの終了を通知するハンドルです。
// タスクは OnSuccess と OnFailure のどちらか一方を、ちょうど一回だけ呼び出します。
type Callback interface {
	OnSuccess()
	OnFailure(err error)
}

// CallbackFuncs は関数から Callback を組み立てるアダプターです。
type CallbackFuncs struct {
	Success func()
	Failure func(err error)
}

func (c CallbackFuncs) OnSuccess() {
	if c.Success != nil {
		c.Success()
	}
}

func (c CallbackFuncs) OnFailure(err error) {
	if c.Failure != nil {
		c.Failure(err)
	}
}

// ItemProgressListener は (ラベル, 現在値, 合計) の進捗通知を受け取ります。
type ItemProgressListener interface {
	OnProgress(label string, current, total int)
}

// ItemProgressListenerFunc は関数を ItemProgressListener として扱うためのアダプターです。
type ItemProgressListenerFunc func(label string, current, total int)

func (f ItemProgressListenerFunc) OnProgress(label string, current, total int) {
	f(label, current, total)
}

// StepExecutionListener はステップ実行イベントを処理するためのインターフェースです。
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, stepExecution *StepExecution)
	AfterStep(ctx context.Context, stepExecution *StepExecution)
}

// JobExecutionListener はジョブ実行イベントを処理するためのインターフェースです。
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution *JobExecution)
	AfterJob(ctx context.Context, jobExecution *JobExecution)
}

// ItemProcessListener はアイテム処理イベントを処理するためのインターフェースです。
type ItemProcessListener interface {
	OnProcessError(ctx context.Context, item interface{}, err error)
}

// ItemWriteListener はアイテム書き込みイベントを処理するためのインターフェースです。
type ItemWriteListener interface {
	OnWriteError(ctx context.Context, items []interface{}, err error)
}

// SkipListener はアイテムスキップイベントを処理するためのインターフェースです。
type SkipListener interface {
	OnSkipProcess(ctx context.Context, item interface{}, err error)
}
