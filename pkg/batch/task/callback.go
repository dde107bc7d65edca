package task

import (
	"sync"

	"go.uber.org/atomic"

	core "harvester/pkg/batch/job/core"
)

// OnceCallback は委譲先の Callback をちょうど一回だけ呼び出すラッパーです。
// 二回目以降の呼び出しは無視され、Dropped で件数を確認できます。
type OnceCallback struct {
	delegate core.Callback
	once     sync.Once
	resolved atomic.Bool
	dropped  atomic.Int32
}

// NewOnceCallback は新しい OnceCallback を作成します。
func NewOnceCallback(delegate core.Callback) *OnceCallback {
	return &OnceCallback{delegate: delegate}
}

// OnSuccess は最初の呼び出しであれば委譲先の OnSuccess を呼び出します。
func (c *OnceCallback) OnSuccess() {
	c.resolve(func() { c.delegate.OnSuccess() })
}

// OnFailure は最初の呼び出しであれば委譲先の OnFailure を呼び出します。
func (c *OnceCallback) OnFailure(err error) {
	c.resolve(func() { c.delegate.OnFailure(err) })
}

func (c *OnceCallback) resolve(fn func()) {
	called := false
	c.once.Do(func() {
		called = true
		c.resolved.Store(true)
		fn()
	})
	if !called {
		c.dropped.Inc()
	}
}

// Resolved は既に結果が通知されたかどうかを返します。
func (c *OnceCallback) Resolved() bool {
	return c.resolved.Load()
}

// Dropped は無視された呼び出しの件数を返します。
func (c *OnceCallback) Dropped() int {
	return int(c.dropped.Load())
}

var _ core.Callback = (*OnceCallback)(nil)
