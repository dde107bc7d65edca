package task

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	core "harvester/pkg/batch/job/core"
	exception "harvester/pkg/batch/util/exception"
)

// fakeCountQuery は事前に決めた値を順に返します。値が尽きた後は最後の値を返し続けます。
type fakeCountQuery struct {
	mu     sync.Mutex
	counts []int
	errAt  int // 1 始まりの呼び出し番号。0 ならエラーなし
	calls  int
}

func (f *fakeCountQuery) CountRecords(ctx context.Context, dataset string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.errAt > 0 && f.calls == f.errAt {
		return 0, errors.New("relation buffer.occurrence_raw does not exist")
	}
	idx := f.calls - 1
	if idx >= len(f.counts) {
		idx = len(f.counts) - 1
	}
	return f.counts[idx], nil
}

func (f *fakeCountQuery) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// countingCallback は呼び出し回数と最後のエラーを記録します。
type countingCallback struct {
	mu        sync.Mutex
	successes int
	failures  int
	lastErr   error
}

func (c *countingCallback) OnSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes++
}

func (c *countingCallback) OnFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures++
	c.lastErr = err
}

func (c *countingCallback) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.successes + c.failures
}

type progressEvent struct {
	label          string
	current, total int
}

type recordingListener struct {
	mu     sync.Mutex
	events []progressEvent
}

func (r *recordingListener) OnProgress(label string, current, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, progressEvent{label, current, total})
}

func newSharedContext(expected int, cb core.Callback) *core.SharedContext {
	sc := core.NewSharedContext()
	sc.Put(core.ParamNumberOfRecords, expected)
	sc.Put(core.ParamDatasetShortname, "trt-occurrence")
	sc.Put(core.ParamCallback, cb)
	return sc
}

func TestCompletenessTask_TimesOutAfterTenUnchangedTicks(t *testing.T) {
	query := &fakeCountQuery{counts: []int{0, 10, 25}}
	cb := &countingCallback{}
	listener := &recordingListener{}
	task := NewCheckProcessingCompletenessTask(query, WithPollInterval(time.Millisecond))
	task.AddItemProgressListener(listener)

	running, err := task.Start(context.Background(), newSharedContext(100, cb))
	require.NoError(t, err)

	res, err := running.Result(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrTimeout)

	assert.Equal(t, 1, cb.failures)
	assert.Equal(t, 0, cb.successes)
	assert.ErrorIs(t, cb.lastErr, exception.ErrTimeout)
	assert.Equal(t, StateTimedOut, task.State())
	// 0, 10, 25 の後に 25 が 10 回続いた時点で終了する
	assert.Equal(t, 13, query.Calls())
	if res != nil {
		assert.Equal(t, 13, res.Ticks)
	}

	expected := []progressEvent{
		{DefaultProgressLabel, 0, 100},
		{DefaultProgressLabel, 10, 100},
	}
	for i := 0; i < 11; i++ {
		expected = append(expected, progressEvent{DefaultProgressLabel, 25, 100})
	}
	assert.Equal(t, expected, listener.events)
}

func TestCompletenessTask_DoesNotTimeOutEarly(t *testing.T) {
	// 9 回停滞した後に進捗があり、期待値に到達する
	counts := []int{5}
	for i := 0; i < 9; i++ {
		counts = append(counts, 5)
	}
	counts = append(counts, 50)
	query := &fakeCountQuery{counts: counts}
	cb := &countingCallback{}
	task := NewCheckProcessingCompletenessTask(query, WithPollInterval(time.Millisecond))

	running, err := task.Start(context.Background(), newSharedContext(50, cb))
	require.NoError(t, err)
	require.NoError(t, running.Wait(context.Background()))

	assert.Equal(t, 1, cb.successes)
	assert.Equal(t, 0, cb.failures)
	assert.Equal(t, StateSucceeded, task.State())
	assert.Equal(t, 11, query.Calls())
}

func TestCompletenessTask_ZeroExpectedSucceedsOnFirstTick(t *testing.T) {
	query := &fakeCountQuery{counts: []int{0}}
	cb := &countingCallback{}
	listener := &recordingListener{}
	// 間隔を長くしても最初のティックで終わることを確認する
	task := NewCheckProcessingCompletenessTask(query, WithPollInterval(time.Hour))
	task.AddItemProgressListener(listener)

	running, err := task.Start(context.Background(), newSharedContext(0, cb))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, running.Wait(ctx))

	assert.Equal(t, 1, cb.successes)
	assert.Equal(t, 1, query.Calls())
	assert.Equal(t, []progressEvent{{DefaultProgressLabel, 0, 0}}, listener.events)
}

func TestCompletenessTask_QueryErrorResolvesImmediately(t *testing.T) {
	query := &fakeCountQuery{counts: []int{1, 1, 1, 1}, errAt: 3}
	cb := &countingCallback{}
	listener := &recordingListener{}
	task := NewCheckProcessingCompletenessTask(query, WithPollInterval(time.Millisecond))
	task.AddItemProgressListener(listener)

	running, err := task.Start(context.Background(), newSharedContext(10, cb))
	require.NoError(t, err)

	err = running.Wait(context.Background())
	assert.ErrorIs(t, err, exception.ErrQuery)
	assert.Equal(t, 1, cb.failures)
	assert.ErrorIs(t, cb.lastErr, exception.ErrQuery)
	assert.Equal(t, StateErrored, task.State())
	assert.Equal(t, 3, query.Calls())
	// エラーになったティックでは進捗を通知しない
	assert.Len(t, listener.events, 2)
}

func TestCompletenessTask_DecreasingCountIsNotAStall(t *testing.T) {
	query := &fakeCountQuery{counts: []int{5, 3, 3, 3}}
	cb := &countingCallback{}
	task := NewCheckProcessingCompletenessTask(query, WithPollInterval(time.Millisecond), WithStallThreshold(2))

	running, err := task.Start(context.Background(), newSharedContext(10, cb))
	require.NoError(t, err)

	err = running.Wait(context.Background())
	assert.ErrorIs(t, err, exception.ErrTimeout)
	assert.Equal(t, 4, query.Calls())
}

func TestCompletenessTask_CancellationResolvesCallbackOnce(t *testing.T) {
	query := &fakeCountQuery{counts: []int{1, 2, 3, 4, 5, 6, 7, 8, 9}}
	cb := &countingCallback{}
	task := NewCheckProcessingCompletenessTask(query, WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	running, err := task.Start(ctx, newSharedContext(100, cb))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return query.Calls() >= 1 }, time.Second, time.Millisecond)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	_ = running.Wait(waitCtx)

	require.Eventually(t, func() bool { return cb.total() == 1 }, time.Second, time.Millisecond)
	assert.ErrorIs(t, cb.lastErr, exception.ErrCancelled)
	assert.Equal(t, StateCancelled, task.State())
}

func TestCompletenessTask_MissingParametersSpawnNoWatcher(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cb := &countingCallback{}
	tests := []struct {
		name  string
		setup func(sc *core.SharedContext)
	}{
		{"no expected count", func(sc *core.SharedContext) { sc.Delete(core.ParamNumberOfRecords) }},
		{"expected count wrong shape", func(sc *core.SharedContext) { sc.Put(core.ParamNumberOfRecords, "100") }},
		{"negative expected count", func(sc *core.SharedContext) { sc.Put(core.ParamNumberOfRecords, -1) }},
		{"no dataset", func(sc *core.SharedContext) { sc.Delete(core.ParamDatasetShortname) }},
		{"no callback", func(sc *core.SharedContext) { sc.Delete(core.ParamCallback) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := &fakeCountQuery{counts: []int{0}}
			sc := newSharedContext(100, cb)
			tt.setup(sc)

			waitable, err := NewCheckProcessingCompletenessTask(query).Execute(context.Background(), sc)

			assert.Nil(t, waitable)
			assert.ErrorIs(t, err, exception.ErrConfiguration)
			assert.Equal(t, 0, query.Calls())
		})
	}
	assert.Equal(t, 0, cb.total())
}

func TestCompletenessTask_CallbackExactlyOnceAcrossRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(20261016))
	for i := 0; i < 200; i++ {
		expected := rng.Intn(20)
		n := 1 + rng.Intn(15)
		counts := make([]int, n)
		current := 0
		for j := range counts {
			if rng.Intn(3) > 0 {
				current += rng.Intn(4)
			}
			counts[j] = current
		}
		errAt := 0
		if rng.Intn(4) == 0 {
			errAt = 1 + rng.Intn(n)
		}
		query := &fakeCountQuery{counts: counts, errAt: errAt}
		cb := &countingCallback{}
		task := NewCheckProcessingCompletenessTask(query, WithPollInterval(time.Microsecond), WithStallThreshold(3))

		running, err := task.Start(context.Background(), newSharedContext(expected, cb))
		require.NoError(t, err)
		_ = running.Wait(context.Background())

		assert.Equal(t, 1, cb.total(), "sequence %v expected %d errAt %d", counts, expected, errAt)
		assert.True(t, task.State().IsTerminal())
	}
}

func TestOnceCallback_DropsSecondResolution(t *testing.T) {
	cb := &countingCallback{}
	once := NewOnceCallback(cb)

	assert.False(t, once.Resolved())
	once.OnFailure(errors.New("first"))
	once.OnSuccess()
	once.OnFailure(errors.New("third"))

	assert.True(t, once.Resolved())
	assert.Equal(t, 1, cb.failures)
	assert.Equal(t, 0, cb.successes)
	assert.Equal(t, 2, once.Dropped())
}
