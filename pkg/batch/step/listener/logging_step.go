package listener

import (
	"context"

	core "harvester/pkg/batch/job/core"
	"harvester/pkg/batch/util/logger"
)

// LoggingStepListener はステップの開始と終了をログ出力する StepExecutionListener の実装です。
type LoggingStepListener struct{}

func NewLoggingStepListener() *LoggingStepListener {
	return &LoggingStepListener{}
}

func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Infof("ステップ '%s' を開始します。", stepExecution.StepName)
}

func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Infof("ステップ '%s' が終了しました。ステータス: %s, 読込: %d, 書込: %d, スキップ: %d, コミット: %d, ロールバック: %d",
		stepExecution.StepName, stepExecution.Status, stepExecution.ReadCount, stepExecution.WriteCount,
		stepExecution.SkipCount, stepExecution.CommitCount, stepExecution.RollbackCount)
	for _, f := range stepExecution.Failures {
		logger.Errorf("ステップ '%s' のエラー: %v", stepExecution.StepName, f)
	}
}

var _ core.StepExecutionListener = (*LoggingStepListener)(nil)
