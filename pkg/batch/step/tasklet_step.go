package step

import (
	"context"
	"fmt"

	core "harvester/pkg/batch/job/core"
	exception "harvester/pkg/batch/util/exception"
	logger "harvester/pkg/batch/util/logger"
)

// TaskletStep は core.Tasklet をラップし、core.Step インターフェースを実装します。
// アーカイブの取得やスキーマ間のデータ移動など、一回で完結する同期処理に使用します。
type TaskletStep struct {
	baseStep
	tasklet        core.Tasklet
	requiredParams []core.SharedParameter
}

// NewTaskletStep は新しい TaskletStep のインスタンスを作成します。
func NewTaskletStep(name string, tasklet core.Tasklet, requiredParams ...core.SharedParameter) *TaskletStep {
	return &TaskletStep{
		baseStep:       baseStep{name: name},
		tasklet:        tasklet,
		requiredParams: requiredParams,
	}
}

func (s *TaskletStep) PreStep(ctx context.Context, sc *core.SharedContext) error {
	if s.tasklet == nil {
		return exception.NewConfigurationError(s.name, fmt.Sprintf("ステップ '%s' に Tasklet が設定されていません", s.name))
	}
	if sc == nil {
		return exception.NewConfigurationError(s.name, "SharedContext が nil です")
	}
	if err := s.requireParams(sc, s.requiredParams); err != nil {
		return err
	}
	s.sc = sc
	return nil
}

// DoStep は Tasklet を一回実行します。
func (s *TaskletStep) DoStep(ctx context.Context, se *core.StepExecution) (err error) {
	if err := s.requireContext(); err != nil {
		return err
	}
	logger.Infof("Taskletステップ '%s' (Execution ID: %s) を開始します。", s.name, se.ID)
	se.MarkAsStarted()
	s.notifyBeforeStep(ctx, se)
	defer func() {
		finish(se, err)
		s.notifyAfterStep(ctx, se)
	}()

	if err = s.stopRequested(ctx); err != nil {
		return err
	}
	if err = s.tasklet.Execute(ctx, s.sc, se); err != nil {
		if ctx.Err() != nil && exception.KindOf(err) != exception.KindCancelled {
			err = exception.NewCancelledError(s.name, "Tasklet の実行中にキャンセルされました", err)
		}
		logger.Errorf("Taskletステップ '%s' の実行中にエラーが発生しました: %v", s.name, err)
		return err
	}
	logger.Infof("Taskletステップ '%s' が正常に完了しました。", s.name)
	return nil
}

// PostStep は Tasklet の Close を呼び出します。
func (s *TaskletStep) PostStep(ctx context.Context) {
	if s.tasklet == nil {
		return
	}
	if err := s.tasklet.Close(ctx); err != nil {
		logger.Errorf("Taskletステップ '%s': Tasklet のクローズに失敗しました: %v", s.name, err)
	}
}

var _ core.Step = (*TaskletStep)(nil)
