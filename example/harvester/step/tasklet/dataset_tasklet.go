package tasklet

import (
	"context"

	core "harvester/pkg/batch/job/core"
	"harvester/pkg/batch/util/logger"
)

// DatasetTasklet は DatasetShortname を受け取る単一の SQL 操作を Tasklet として実行します。
type DatasetTasklet struct {
	name string
	fn   func(ctx context.Context, dataset string) (int64, error)
}

// NewDatasetTasklet は fn を実行する DatasetTasklet を作成します。fn は処理した件数を返します。
func NewDatasetTasklet(name string, fn func(ctx context.Context, dataset string) (int64, error)) *DatasetTasklet {
	return &DatasetTasklet{name: name, fn: fn}
}

func (t *DatasetTasklet) Execute(ctx context.Context, sc *core.SharedContext, se *core.StepExecution) error {
	dataset, err := sc.String(core.ParamDatasetShortname)
	if err != nil {
		return err
	}
	n, err := t.fn(ctx, dataset)
	if err != nil {
		return err
	}
	se.WriteCount += int(n)
	logger.Infof("%s: データセット '%s' の %d 件を処理しました。", t.name, dataset, n)
	return nil
}

func (t *DatasetTasklet) Close(ctx context.Context) error { return nil }

// FuncTasklet は SharedContext を必要としない操作を Tasklet として実行します。
type FuncTasklet func(ctx context.Context) error

func (f FuncTasklet) Execute(ctx context.Context, sc *core.SharedContext, se *core.StepExecution) error {
	return f(ctx)
}

func (f FuncTasklet) Close(ctx context.Context) error { return nil }

var (
	_ core.Tasklet = (*DatasetTasklet)(nil)
	_ core.Tasklet = FuncTasklet(nil)
)
