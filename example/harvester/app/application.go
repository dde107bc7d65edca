package app

import (
	"context"
	"errors"

	godotenv "github.com/joho/godotenv"

	appRepo "harvester/example/harvester/repository"
	config "harvester/pkg/batch/config"
	initializer "harvester/pkg/batch/initializer"
	core "harvester/pkg/batch/job/core"
	joboperator "harvester/pkg/batch/job/joboperator"
	"harvester/pkg/batch/repository"
	exception "harvester/pkg/batch/util/exception"
	logger "harvester/pkg/batch/util/logger"
)

// Job kinds defined in resources/job.yaml.
const (
	JobImportDwca          = "importDwca"
	JobMoveToPublicSchema  = "moveToPublicSchema"
	JobComputeUniqueValues = "computeUniqueValues"
)

// Application は初期化済みのハーベスターの部品をまとめたものです。
type Application struct {
	initializer *initializer.BatchInitializer
	Config      *config.Config
	Operator    joboperator.JobOperator
	Resources   appRepo.ResourceRepository
	ImportLog   repository.ImportLogRepository
}

// setupApplication はアプリケーションの初期化処理を実行し、必要なコンポーネントを返します。
func setupApplication(ctx context.Context, envFilePath string, embeddedConfig, embeddedJSL []byte) (*Application, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env ファイル '%s' のロードに失敗しました (本番環境では環境変数を使用): %v", envFilePath, err)
		} else {
			logger.Infof(".env ファイル '%s' をロードしました。", envFilePath)
		}
	} else {
		logger.Debugf(".env ファイルのパスが指定されていないため、ロードをスキップします。")
	}

	batchInitializer := initializer.NewBatchInitializer(&config.Config{EmbeddedConfig: embeddedConfig})
	batchInitializer.JSLDefinitionBytes = embeddedJSL

	jobOperator, jobFactory, err := batchInitializer.Initialize(ctx)
	if err != nil {
		return nil, exception.NewBatchError("app", "バッチアプリケーションの初期化に失敗しました", err, false, false)
	}

	cfg := batchInitializer.Config
	buffer, err := appRepo.NewBufferRepository(cfg.Database.Type, batchInitializer.DBConnection)
	if err != nil {
		batchInitializer.Close()
		return nil, err
	}
	resources, err := appRepo.NewResourceRepository(cfg.Database.Type, batchInitializer.DBConnection)
	if err != nil {
		batchInitializer.Close()
		return nil, err
	}
	registerApplicationComponents(jobFactory, batchInitializer.DBConnection, buffer, resources)
	logger.Infof("バッチアプリケーションの初期化が完了しました。")

	return &Application{
		initializer: batchInitializer,
		Config:      cfg,
		Operator:    jobOperator,
		Resources:   resources,
		ImportLog:   batchInitializer.ImportLogRepository,
	}, nil
}

// Close はアプリケーションが保持するリソースを解放します。
func (a *Application) Close() {
	if err := a.initializer.Close(); err != nil {
		logger.Errorf("バッチアプリケーションのリソースクローズ中にエラーが発生しました: %v", err)
	}
}

// runJob は指定されたジョブを実行し、失敗した場合はエラーを返します。
func (a *Application) runJob(ctx context.Context, jobKind string, params map[core.SharedParameter]any) error {
	logger.Infof("実行する Job: '%s'", jobKind)
	jobExecution, err := a.Operator.Start(ctx, jobKind, params)
	return handleApplicationError(err, jobExecution, jobKind)
}

// handleApplicationError はジョブの結果をログ出力し、失敗の場合はエラーを返します。
func handleApplicationError(err error, jobExecution *core.JobExecution, jobKind string) error {
	if err == nil && jobExecution != nil && jobExecution.Status() == core.BatchStatusCompleted {
		return nil
	}

	if jobExecution != nil {
		snap := jobExecution.Snapshot()
		logger.Errorf("Job '%s' (Execution ID: %s) の最終状態: %s, 最後のステップ: %s",
			jobKind, snap.ID, snap.Status, snap.CurrentStepName)
		for _, se := range jobExecution.StepExecutions() {
			for i, f := range se.Failures {
				logger.Errorf("  - ステップ '%s' の失敗 %d: %v", se.StepName, i+1, f)
			}
		}
	} else {
		logger.Errorf("Job '%s' の起動処理中にエラーが発生しました: %v", jobKind, err)
	}

	var be *exception.BatchError
	if errors.As(err, &be) && be.StackTrace != "" {
		logger.Debugf("BatchError StackTrace:\n%s", be.StackTrace)
	}
	if err == nil {
		err = exception.NewBatchErrorf("app", "Job '%s' は %s で終了しました", jobKind, jobExecution.Status())
	}
	return err
}
