package task

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/go-asynctask"
	"go.uber.org/atomic"

	core "harvester/pkg/batch/job/core"
	exception "harvester/pkg/batch/util/exception"
	logger "harvester/pkg/batch/util/logger"
)

const (
	module = "completeness_task"

	DefaultPollInterval   = time.Second
	DefaultStallThreshold = 10
	DefaultProgressLabel  = "occurrence_raw"
)

// WatchState は完了確認タスクの状態です。
type WatchState string

const (
	StateWaiting     WatchState = "WAITING"
	StateProgressing WatchState = "PROGRESSING"
	StateStalled     WatchState = "STALLED"
	StateSucceeded   WatchState = "SUCCEEDED"
	StateTimedOut    WatchState = "TIMED_OUT"
	StateErrored     WatchState = "ERRORED"
	StateCancelled   WatchState = "CANCELLED"
)

// IsTerminal は終了状態かどうかを返します。
func (s WatchState) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateTimedOut, StateErrored, StateCancelled:
		return true
	default:
		return false
	}
}

// CountQuery はデータセットの現在の可視レコード数を返す外部コラボレーターです。
type CountQuery interface {
	CountRecords(ctx context.Context, datasetShortname string) (int, error)
}

// CountQueryFunc は関数を CountQuery として扱うためのアダプターです。
type CountQueryFunc func(ctx context.Context, datasetShortname string) (int, error)

func (f CountQueryFunc) CountRecords(ctx context.Context, datasetShortname string) (int, error) {
	return f(ctx, datasetShortname)
}

// WatchResult は監視ループの最終結果です。
type WatchResult struct {
	State     WatchState
	LastCount int
	Ticks     int
}

// Option は CheckProcessingCompletenessTask の設定を変更します。
type Option func(*CheckProcessingCompletenessTask)

// WithPollInterval はポーリング間隔を変更します。
func WithPollInterval(d time.Duration) Option {
	return func(t *CheckProcessingCompletenessTask) {
		if d > 0 {
			t.pollInterval = d
		}
	}
}

// WithStallThreshold は停滞とみなす連続無変化ティック数を変更します。
func WithStallThreshold(n int) Option {
	return func(t *CheckProcessingCompletenessTask) {
		if n > 0 {
			t.stallThreshold = n
		}
	}
}

// WithProgressLabel は進捗通知のラベルを変更します。
func WithProgressLabel(label string) Option {
	return func(t *CheckProcessingCompletenessTask) {
		t.label = label
	}
}

// CheckProcessingCompletenessTask は下流に書き込まれたレコード数が期待値に達するまで待つタスクです。
// 一定間隔でカウントを問い合わせ、期待値に達すれば成功、連続して変化が無ければタイムアウトとして
// SharedContext の Callback をちょうど一回呼び出します。
//
// 進捗通知は監視ゴルーチン上で同期的に行われるため、遅いリスナーは次のティックを遅らせます。
type CheckProcessingCompletenessTask struct {
	countQuery     CountQuery
	pollInterval   time.Duration
	stallThreshold int
	label          string
	listeners      core.ProgressListeners
	state          *atomic.String
}

// NewCheckProcessingCompletenessTask は新しいタスクを作成します。
func NewCheckProcessingCompletenessTask(countQuery CountQuery, opts ...Option) *CheckProcessingCompletenessTask {
	t := &CheckProcessingCompletenessTask{
		countQuery:     countQuery,
		pollInterval:   DefaultPollInterval,
		stallThreshold: DefaultStallThreshold,
		label:          DefaultProgressLabel,
		state:          atomic.NewString(string(StateWaiting)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TaskName はタスク名を返します。
func (t *CheckProcessingCompletenessTask) TaskName() string {
	return "checkProcessingCompleteness"
}

// AddItemProgressListener は進捗リスナーを登録します。監視開始前に登録してください。
func (t *CheckProcessingCompletenessTask) AddItemProgressListener(listener core.ItemProgressListener) {
	t.listeners.Add(listener)
}

// State は現在の監視状態を返します。
func (t *CheckProcessingCompletenessTask) State() WatchState {
	return WatchState(t.state.Load())
}

// Execute は core.ItemTask の実装です。
func (t *CheckProcessingCompletenessTask) Execute(ctx context.Context, sc *core.SharedContext) (asynctask.Waitable, error) {
	task, err := t.Start(ctx, sc)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// Start は SharedContext から NUMBER_OF_RECORDS, DATASET_SHORTNAME, CALLBACK を取得し、監視を開始します。
// いずれかが欠けている場合はゴルーチンを起動せずに Configuration エラーを返します。
func (t *CheckProcessingCompletenessTask) Start(ctx context.Context, sc *core.SharedContext) (*asynctask.Task[WatchResult], error) {
	if t.countQuery == nil {
		return nil, exception.NewConfigurationError(module, "CountQuery が設定されていません")
	}
	expected, err := sc.Int(core.ParamNumberOfRecords)
	if err != nil {
		logger.Errorf("タスクの設定が不正です。numberOfRecords, datasetShortname, callback が必要です: %v", err)
		return nil, err
	}
	if expected < 0 {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("NUMBER_OF_RECORDS が負の値です: %d", expected))
	}
	dataset, err := sc.String(core.ParamDatasetShortname)
	if err != nil {
		logger.Errorf("タスクの設定が不正です。numberOfRecords, datasetShortname, callback が必要です: %v", err)
		return nil, err
	}
	cb, err := sc.CallbackValue(core.ParamCallback)
	if err != nil {
		logger.Errorf("タスクの設定が不正です。numberOfRecords, datasetShortname, callback が必要です: %v", err)
		return nil, err
	}

	once := NewOnceCallback(cb)
	t.state.Store(string(StateWaiting))
	logger.Infof("データセット '%s' の処理完了待ちを開始します。期待レコード数: %d", dataset, expected)
	return asynctask.Start(ctx, func(ctx context.Context) (*WatchResult, error) {
		return t.watch(ctx, dataset, expected, once)
	}), nil
}

// watch は監視ループ本体です。どの経路で終了しても Callback は defer 内で一度だけ解決されます。
func (t *CheckProcessingCompletenessTask) watch(ctx context.Context, dataset string, expected int, cb core.Callback) (result *WatchResult, err error) {
	res := &WatchResult{State: StateWaiting, LastCount: -1}
	defer func() {
		if r := recover(); r != nil {
			res.State = StateErrored
			err = exception.NewBatchError(module, fmt.Sprintf("監視中にパニックが発生しました: %v", r), nil, false, false)
		}
		t.state.Store(string(res.State))
		if err != nil {
			logger.Warnf("データセット '%s' の完了確認が %s で終了しました: %v", dataset, res.State, err)
			cb.OnFailure(err)
		} else {
			logger.Infof("データセット '%s' の処理が完了しました。レコード数: %d/%d", dataset, res.LastCount, expected)
			cb.OnSuccess()
		}
		result = res
	}()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	previous := -1
	stalled := 0
	for {
		current, qerr := t.countQuery.CountRecords(ctx, dataset)
		res.Ticks++
		if qerr != nil {
			if ctx.Err() != nil {
				res.State = StateCancelled
				return res, exception.NewCancelledError(module, "完了確認が中断されました", ctx.Err())
			}
			res.State = StateErrored
			return res, exception.NewQueryError(module, fmt.Sprintf("データセット '%s' のレコード数取得に失敗しました", dataset), qerr)
		}

		// 停滞は値の一致のみで判定する。減少も変化として扱う。
		if current == previous {
			stalled++
			res.State = StateStalled
		} else {
			stalled = 0
			res.State = StateProgressing
		}
		previous = current
		res.LastCount = current
		t.state.Store(string(res.State))
		logger.Debugf("完了確認 tick=%d dataset=%s current=%d expected=%d stalled=%d", res.Ticks, dataset, current, expected, stalled)

		t.listeners.Notify(t.label, current, expected)

		if current >= expected {
			res.State = StateSucceeded
			return res, nil
		}
		if stalled >= t.stallThreshold {
			res.State = StateTimedOut
			return res, exception.NewTimeoutError(module, fmt.Sprintf("%d 回連続で進捗がありませんでした", t.stallThreshold))
		}

		select {
		case <-ctx.Done():
			res.State = StateCancelled
			return res, exception.NewCancelledError(module, "完了確認が中断されました", ctx.Err())
		case <-ticker.C:
		}
	}
}

var _ core.ItemTask = (*CheckProcessingCompletenessTask)(nil)
