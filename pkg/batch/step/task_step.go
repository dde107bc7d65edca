package step

import (
	"context"
	"fmt"

	core "harvester/pkg/batch/job/core"
	exception "harvester/pkg/batch/util/exception"
	logger "harvester/pkg/batch/util/logger"
)

// TaskStep は一つ以上の ItemTask を起動するステップです。
// DoStep はタスクを起動した時点で戻り、起動したタスクの Waitable を StepExecution.PendingTasks に追加します。
// ジョブは最後のステップの後でそれらの終了を待ちます。
//
// SharedContext に Callback が無い場合は、結果をログに出力する Callback を公開します。
// 一つの Callback を複数のタスクで共有した場合、Callback はタスクごとに一回ずつ呼び出されます。
type TaskStep struct {
	baseStep
	tasks             []core.ItemTask
	progressListeners []core.ItemProgressListener
	registered        bool
}

// NewTaskStep は新しい TaskStep を作成します。
func NewTaskStep(name string, tasks ...core.ItemTask) *TaskStep {
	return &TaskStep{
		baseStep: baseStep{name: name},
		tasks:    tasks,
	}
}

// AddItemProgressListener は起動する全てのタスクに登録する進捗リスナーを追加します。PreStep の前に呼び出してください。
func (s *TaskStep) AddItemProgressListener(l core.ItemProgressListener) {
	if l != nil {
		s.progressListeners = append(s.progressListeners, l)
	}
}

// PreStep はタスクの有無を検証し、進捗リスナーをタスクに登録します。
func (s *TaskStep) PreStep(ctx context.Context, sc *core.SharedContext) error {
	if len(s.tasks) == 0 {
		return exception.NewConfigurationError(s.name, fmt.Sprintf("ステップ '%s' にタスクが設定されていません", s.name))
	}
	if sc == nil {
		return exception.NewConfigurationError(s.name, "SharedContext が nil です")
	}
	s.sc = sc
	if !s.registered {
		for _, task := range s.tasks {
			for _, l := range s.progressListeners {
				task.AddItemProgressListener(l)
			}
		}
		s.registered = true
	}
	return nil
}

// DoStep はタスクを順に起動します。起動に失敗した場合はそれまでに起動したタスクを残してステップを失敗させます。
// タスクには ctx がそのまま渡されるため、ジョブのキャンセルは実行中のタスクにも伝わります。
func (s *TaskStep) DoStep(ctx context.Context, se *core.StepExecution) (err error) {
	if err := s.requireContext(); err != nil {
		return err
	}
	se.MarkAsStarted()
	s.notifyBeforeStep(ctx, se)
	defer func() {
		finish(se, err)
		s.notifyAfterStep(ctx, se)
	}()

	if !s.sc.Has(core.ParamCallback) {
		s.sc.Put(core.ParamCallback, loggingCallback(s.name))
	}

	for _, task := range s.tasks {
		if err = s.stopRequested(ctx); err != nil {
			return err
		}
		waitable, terr := task.Execute(ctx, s.sc)
		if terr != nil {
			logger.Errorf("ステップ '%s': タスク '%s' を起動できませんでした: %v", s.name, task.TaskName(), terr)
			return terr
		}
		se.PendingTasks = append(se.PendingTasks, core.PendingTask{Name: task.TaskName(), Waitable: waitable})
		logger.Infof("ステップ '%s': タスク '%s' を起動しました。", s.name, task.TaskName())
	}
	return nil
}

// PostStep は何も解放しません。起動したタスクはジョブの合流点まで動作を続けます。
func (s *TaskStep) PostStep(ctx context.Context) {}

func loggingCallback(stepName string) core.Callback {
	return core.CallbackFuncs{
		Success: func() {
			logger.Infof("ステップ '%s' のタスクが成功しました。", stepName)
		},
		Failure: func(err error) {
			logger.Warnf("ステップ '%s' のタスクが失敗しました: %v", stepName, err)
		},
	}
}

var _ core.Step = (*TaskStep)(nil)
