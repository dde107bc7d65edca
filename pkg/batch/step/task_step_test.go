package step

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/go-asynctask"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "harvester/pkg/batch/job/core"
	exception "harvester/pkg/batch/util/exception"
)

// blockingTask は release が閉じられるまで終了しない ItemTask です。
type blockingTask struct {
	name      string
	release   chan struct{}
	listeners []core.ItemProgressListener
	startErr  error
	started   int
}

func (b *blockingTask) TaskName() string { return b.name }

func (b *blockingTask) AddItemProgressListener(l core.ItemProgressListener) {
	b.listeners = append(b.listeners, l)
}

func (b *blockingTask) Execute(ctx context.Context, sc *core.SharedContext) (asynctask.Waitable, error) {
	if b.startErr != nil {
		return nil, b.startErr
	}
	cb, err := sc.CallbackValue(core.ParamCallback)
	if err != nil {
		return nil, err
	}
	b.started++
	return asynctask.Start(ctx, func(ctx context.Context) (*struct{}, error) {
		select {
		case <-b.release:
			cb.OnSuccess()
			return nil, nil
		case <-ctx.Done():
			cb.OnFailure(ctx.Err())
			return nil, ctx.Err()
		}
	}), nil
}

func TestTaskStep_ReturnsImmediatelyWithPendingTask(t *testing.T) {
	task := &blockingTask{name: "watch", release: make(chan struct{})}
	s := NewTaskStep("checkCompleteness", task)
	s.AddItemProgressListener(core.ItemProgressListenerFunc(func(string, int, int) {}))

	sc := core.NewSharedContext()
	se, err := runStep(t, s, sc)
	require.NoError(t, err)

	assert.Equal(t, core.BatchStatusCompleted, se.Status)
	require.Len(t, se.PendingTasks, 1)
	assert.Equal(t, "watch", se.PendingTasks[0].Name)
	assert.Len(t, task.listeners, 1)
	assert.True(t, sc.Has(core.ParamCallback), "ログ出力用の Callback が公開される")

	close(task.release)
	assert.NoError(t, se.PendingTasks[0].Waitable.Wait(context.Background()))
}

func TestTaskStep_KeepsCallerCallback(t *testing.T) {
	task := &blockingTask{name: "watch", release: make(chan struct{})}
	close(task.release)
	done := make(chan struct{})
	sc := core.NewSharedContext()
	sc.Put(core.ParamCallback, core.CallbackFuncs{Success: func() { close(done) }})

	se, err := runStep(t, NewTaskStep("check", task), sc)
	require.NoError(t, err)
	require.NoError(t, se.PendingTasks[0].Waitable.Wait(context.Background()))
	<-done
}

func TestTaskStep_StartFailureFailsStep(t *testing.T) {
	task := &blockingTask{name: "watch", startErr: exception.NewConfigurationError("test", "NUMBER_OF_RECORDS がありません")}
	se, err := runStep(t, NewTaskStep("check", task), core.NewSharedContext())

	assert.ErrorIs(t, err, exception.ErrConfiguration)
	assert.Equal(t, core.BatchStatusFailed, se.Status)
	assert.Empty(t, se.PendingTasks)
}

func TestTaskStep_WithoutTasksIsConfigurationError(t *testing.T) {
	err := NewTaskStep("empty").PreStep(context.Background(), core.NewSharedContext())
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}

func TestTaskStep_CancelledBeforeLaunch(t *testing.T) {
	task := &blockingTask{name: "watch", release: make(chan struct{})}
	s := NewTaskStep("check", task)
	s.Cancel()

	se, err := runStep(t, s, core.NewSharedContext())
	assert.ErrorIs(t, err, exception.ErrCancelled)
	assert.Equal(t, core.BatchStatusCancelled, se.Status)
	assert.Equal(t, 0, task.started)
}

type recordingTasklet struct {
	err    error
	calls  int
	closed int
}

func (r *recordingTasklet) Execute(ctx context.Context, sc *core.SharedContext, se *core.StepExecution) error {
	r.calls++
	return r.err
}

func (r *recordingTasklet) Close(ctx context.Context) error {
	r.closed++
	return nil
}

func TestTaskletStep_ExecutesOnceAndCloses(t *testing.T) {
	tl := &recordingTasklet{}
	se, err := runStep(t, NewTaskletStep("move", tl), core.NewSharedContext())
	require.NoError(t, err)
	assert.Equal(t, 1, tl.calls)
	assert.Equal(t, 1, tl.closed)
	assert.Equal(t, core.BatchStatusCompleted, se.Status)
}

func TestTaskletStep_FailureIsRecorded(t *testing.T) {
	tl := &recordingTasklet{err: errors.New("relation does not exist")}
	se, err := runStep(t, NewTaskletStep("move", tl), core.NewSharedContext())
	require.Error(t, err)
	assert.Equal(t, core.BatchStatusFailed, se.Status)
	require.Len(t, se.Failures, 1)
	assert.Equal(t, 1, tl.closed)
}

func TestTaskletStep_RequiredParams(t *testing.T) {
	err := NewTaskletStep("move", &recordingTasklet{}, core.ParamDatasetShortname).PreStep(context.Background(), core.NewSharedContext())
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}
