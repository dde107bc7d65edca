package listener

import (
	"context"

	config "harvester/pkg/batch/config"
	core "harvester/pkg/batch/job/core"
	"harvester/pkg/batch/util/logger"
)

// LoggingJobListener はジョブの開始と終了をログ出力する JobExecutionListener の実装です。
type LoggingJobListener struct {
	config *config.LoggingConfig
}

func NewLoggingJobListener(cfg *config.LoggingConfig) *LoggingJobListener {
	return &LoggingJobListener{config: cfg}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *core.JobExecution) {
	logger.Infof("Job '%s' (ID: %s) の実行を開始します。", jobExecution.JobName, jobExecution.ID)
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *core.JobExecution) {
	snap := jobExecution.Snapshot()
	elapsed := snap.EndTime.Sub(snap.StartTime)
	switch snap.Status {
	case core.BatchStatusCompleted:
		logger.Infof("Job '%s' の実行が正常に完了しました。ステップ: %v, 所要時間: %s", snap.JobName, snap.StepNames, elapsed)
	case core.BatchStatusCancelled:
		logger.Warnf("Job '%s' はキャンセルされました。最後のステップ: %s", snap.JobName, snap.CurrentStepName)
	default:
		logger.Errorf("Job '%s' が %s で終了しました: %v", snap.JobName, snap.Status, snap.Failure)
	}
}

var _ core.JobExecutionListener = (*LoggingJobListener)(nil)
