package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/go-asynctask"
	"go.uber.org/atomic"

	core "harvester/pkg/batch/job/core"
	exception "harvester/pkg/batch/util/exception"
	logger "harvester/pkg/batch/util/logger"
)

// ProcessingJob は順序付きのステップを一つの SharedContext で実行する core.Job の実装です。
//
// ステップは PreStep → DoStep → PostStep の順に一つずつ実行され、最初の失敗またはキャンセルで停止します。
// ステップが起動した ItemTask は最後のステップの後で待ち合わせ、全ての Callback が解決してから COMPLETED になります。
//
// 一つのインスタンスは一回の実行専用です。同じインスタンスで DoJob を並行に呼び出してはいけません。
type ProcessingJob struct {
	name      string
	steps     []core.Step
	sc        *core.SharedContext
	listeners []core.JobExecutionListener

	cancelRequested atomic.Bool
	mu              sync.Mutex
	cancelFn        context.CancelFunc
	current         core.Step
}

// NewProcessingJob は新しい ProcessingJob を作成します。sc が nil の場合は空の SharedContext を使用します。
func NewProcessingJob(name string, steps []core.Step, sc *core.SharedContext, listeners ...core.JobExecutionListener) *ProcessingJob {
	if sc == nil {
		sc = core.NewSharedContext()
	}
	return &ProcessingJob{
		name:      name,
		steps:     steps,
		sc:        sc,
		listeners: listeners,
	}
}

func (j *ProcessingJob) JobName() string {
	return j.name
}

func (j *ProcessingJob) SharedContext() *core.SharedContext {
	return j.sc
}

// Steps は登録されたステップを返します。
func (j *ProcessingJob) Steps() []core.Step {
	return j.steps
}

// Cancel はジョブに協調的キャンセルを要求します。最初の呼び出しのみ有効で、以降は何もしません。
// 実行中のステップと、起動済みの ItemTask にキャンセルが伝わります。
func (j *ProcessingJob) Cancel() {
	if !j.cancelRequested.CompareAndSwap(false, true) {
		return
	}
	logger.Warnf("ジョブ '%s' にキャンセルが要求されたよ。", j.name)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.current != nil {
		j.current.Cancel()
	}
	if j.cancelFn != nil {
		j.cancelFn()
	}
}

// DoJob はステップを順番に実行します。jobExecution は NOT_STARTED である必要があり、
// それ以外の場合は状態を変更せずに Configuration エラーを返します。
func (j *ProcessingJob) DoJob(ctx context.Context, jobExecution *core.JobExecution) error {
	if jobExecution == nil {
		return exception.NewConfigurationError(j.name, "JobExecution が nil です")
	}
	if err := jobExecution.MarkAsRunning(); err != nil {
		return err
	}
	logger.Infof("ジョブ '%s' (Execution ID: %s) を始めるよ。", j.name, jobExecution.ID)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	j.mu.Lock()
	j.cancelFn = cancel
	j.mu.Unlock()
	if j.cancelRequested.Load() {
		cancel()
	}

	for _, l := range j.listeners {
		l.BeforeJob(jobCtx, jobExecution)
	}

	var pending []core.PendingTask
	failure := j.runSteps(jobCtx, jobExecution, &pending)

	if failure == nil && len(pending) > 0 {
		failure = j.awaitTasks(jobCtx, pending)
	}
	if failure != nil && len(pending) > 0 {
		// 起動済みのタスクを止め、Callback が解決されるまで待つ
		cancel()
		j.drain(pending)
	}

	switch {
	case failure == nil:
		jobExecution.MarkAsCompleted()
	case j.cancelRequested.Load() || exception.KindOf(failure) == exception.KindCancelled:
		jobExecution.MarkAsCancelled(failure)
	default:
		jobExecution.MarkAsFailed(failure)
	}

	j.mu.Lock()
	j.current = nil
	j.mu.Unlock()

	for _, l := range j.listeners {
		l.AfterJob(ctx, jobExecution)
	}
	logger.Infof("ジョブ '%s' (Execution ID: %s) が終了したよ。最終ステータス: %s", j.name, jobExecution.ID, jobExecution.Status())
	return failure
}

// runSteps はステップを順番に実行し、最初のエラーを返します。
func (j *ProcessingJob) runSteps(ctx context.Context, jobExecution *core.JobExecution, pending *[]core.PendingTask) error {
	for i, step := range j.steps {
		if j.cancelRequested.Load() || ctx.Err() != nil {
			logger.Warnf("ジョブ '%s': ステップ '%s' の前でキャンセルされたよ。", j.name, step.StepName())
			return exception.NewCancelledError(j.name, fmt.Sprintf("ステップ '%s' の実行前にキャンセルされました", step.StepName()), ctx.Err())
		}

		j.mu.Lock()
		j.current = step
		j.mu.Unlock()
		if j.cancelRequested.Load() {
			// current を設定する前に Cancel された場合
			step.Cancel()
		}

		jobExecution.SetCurrentStepName(step.StepName())
		se := core.NewStepExecution(step.StepName())
		jobExecution.AddStepExecution(se)
		logger.Debugf("ジョブ '%s': ステップ %d/%d '%s' を実行するよ。", j.name, i+1, len(j.steps), step.StepName())

		err := j.runStep(ctx, step, se)
		*pending = append(*pending, se.PendingTasks...)
		if err != nil {
			logger.Errorf("ジョブ '%s': ステップ '%s' の実行中にエラーが発生したよ: %v", j.name, step.StepName(), err)
			return err
		}
	}
	return nil
}

func (j *ProcessingJob) runStep(ctx context.Context, step core.Step, se *core.StepExecution) (err error) {
	defer step.PostStep(ctx)
	if err = step.PreStep(ctx, j.sc); err != nil {
		se.MarkAsFailed(err)
		return err
	}
	return step.DoStep(ctx, se)
}

// awaitTasks は起動済みタスクの終了を待ちます。いずれかが失敗した時点でそのエラーを返します。
func (j *ProcessingJob) awaitTasks(ctx context.Context, pending []core.PendingTask) error {
	names := make([]string, 0, len(pending))
	waitables := make([]asynctask.Waitable, 0, len(pending))
	for _, p := range pending {
		names = append(names, p.Name)
		waitables = append(waitables, p.Waitable)
	}
	logger.Infof("ジョブ '%s': タスク %v の完了を待つよ。", j.name, names)

	if err := asynctask.WaitAll(ctx, &asynctask.WaitAllOptions{FailFast: true}, waitables...); err != nil {
		if j.cancelRequested.Load() || ctx.Err() != nil {
			return exception.NewCancelledError(j.name, "タスクの完了待ち中にキャンセルされました", err)
		}
		return err
	}
	return nil
}

// drain はキャンセル済みのタスクが終了するのを待ちます。
func (j *ProcessingJob) drain(pending []core.PendingTask) {
	for _, p := range pending {
		if err := p.Waitable.Wait(context.Background()); err != nil {
			logger.Debugf("ジョブ '%s': タスク '%s' は %v で終了したよ。", j.name, p.Name, err)
		}
	}
}

var _ core.Job = (*ProcessingJob)(nil)
