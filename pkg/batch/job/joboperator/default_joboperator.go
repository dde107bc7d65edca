package joboperator

import (
	"context"
	"fmt"
	"sync"

	core "harvester/pkg/batch/job/core"
	"harvester/pkg/batch/job/runner"
	"harvester/pkg/batch/repository"
	exception "harvester/pkg/batch/util/exception"
	logger "harvester/pkg/batch/util/logger"
)

// JobCreator はジョブ種別から実行可能なジョブを作成します。factory.JobFactory が実装します。
type JobCreator interface {
	CreateJob(jobKind string) (*runner.ProcessingJob, error)
}

// DefaultJobOperator は JobOperator インターフェースのデフォルト実装です。
// 同時に実行できるジョブは一つだけで、実行中に Start を呼び出すとエラーになります。
type DefaultJobOperator struct {
	jobFactory JobCreator
	importLog  repository.ImportLogRepository

	mu      sync.Mutex
	current *runner.ProcessingJob
	lastRun *core.JobExecution
}

// DefaultJobOperator が JobOperator インターフェースを満たすことを確認します。
var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator は新しい DefaultJobOperator のインスタンスを作成します。
// importLog が nil の場合、インポートログは記録しません。
func NewDefaultJobOperator(jobFactory JobCreator, importLog repository.ImportLogRepository) *DefaultJobOperator {
	return &DefaultJobOperator{
		jobFactory: jobFactory,
		importLog:  importLog,
	}
}

// Start は JobOperator インターフェースの実装です。
func (o *DefaultJobOperator) Start(ctx context.Context, jobKind string, params map[core.SharedParameter]any) (*core.JobExecution, error) {
	logger.Infof("JobOperator: Start メソッドが呼び出されたよ。Job: %s", jobKind)

	job, err := o.jobFactory.CreateJob(jobKind)
	if err != nil {
		return nil, exception.NewBatchError("job_operator", fmt.Sprintf("Job '%s' の作成に失敗しました", jobKind), err, false, false)
	}
	sc := job.SharedContext()
	for k, v := range params {
		sc.Put(k, v)
	}
	jobExecution := core.NewJobExecution(job.JobName())

	if err := o.register(job, jobExecution); err != nil {
		return nil, err
	}
	defer o.unregister()

	runErr := job.DoJob(ctx, jobExecution)
	if runErr != nil {
		logger.Errorf("JobOperator: Job '%s' (ID: %s) が %s で終了しました: %v", jobKind, jobExecution.ID, jobExecution.Status(), runErr)
	} else {
		logger.Infof("JobOperator: Job '%s' (ID: %s) が正常に完了したよ。", jobKind, jobExecution.ID)
	}

	o.recordImportLog(ctx, jobExecution, sc)
	return jobExecution, runErr
}

func (o *DefaultJobOperator) register(job *runner.ProcessingJob, jobExecution *core.JobExecution) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		return exception.NewConfigurationError("job_operator", fmt.Sprintf("Job '%s' が実行中のため新しいジョブを開始できません", o.current.JobName()))
	}
	o.current = job
	o.lastRun = jobExecution
	return nil
}

func (o *DefaultJobOperator) unregister() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = nil
}

// recordImportLog はジョブの結果をインポートログに保存します。保存の失敗はジョブの結果に影響しません。
func (o *DefaultJobOperator) recordImportLog(ctx context.Context, jobExecution *core.JobExecution, sc *core.SharedContext) {
	if o.importLog == nil {
		return
	}
	entry := repository.NewImportLog(jobExecution, sc)
	if err := o.importLog.Save(context.WithoutCancel(ctx), entry); err != nil {
		logger.Errorf("JobOperator: インポートログの保存に失敗しました (ID: %s): %v", entry.ID, err)
	}
}

// Cancel は JobOperator インターフェースの実装です。
func (o *DefaultJobOperator) Cancel() error {
	o.mu.Lock()
	job := o.current
	o.mu.Unlock()
	if job == nil {
		return exception.NewConfigurationError("job_operator", "実行中のジョブがありません")
	}
	logger.Infof("JobOperator: Job '%s' にキャンセルを要求したよ。", job.JobName())
	job.Cancel()
	return nil
}

// GetStatus は JobOperator インターフェースの実装です。
func (o *DefaultJobOperator) GetStatus() *core.JobExecution {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRun
}

// OnNodeError は JobOperator インターフェースの実装です。
func (o *DefaultJobOperator) OnNodeError() {
	logger.Warnf("JobOperator: ノードエラーを受信しました。実行中のジョブをキャンセルします。")
	if err := o.Cancel(); err != nil {
		logger.Debugf("JobOperator: キャンセル対象のジョブはありませんでした: %v", err)
	}
}
