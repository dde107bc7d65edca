package initializer

import (
	"context"
	"fmt"
	"strconv"

	config "harvester/pkg/batch/config"
	"harvester/pkg/batch/database"
	"harvester/pkg/batch/database/connector"
	core "harvester/pkg/batch/job/core"
	factory "harvester/pkg/batch/job/factory"
	batch_joboperator "harvester/pkg/batch/job/joboperator"
	jsl "harvester/pkg/batch/job/jsl"
	jobListener "harvester/pkg/batch/job/listener"
	repository "harvester/pkg/batch/repository"
	stepListener "harvester/pkg/batch/step/listener"
	exception "harvester/pkg/batch/util/exception"
	logger "harvester/pkg/batch/util/logger"
)

// BatchInitializer はバッチアプリケーションの初期化処理を担当します。
type BatchInitializer struct {
	Config             *config.Config
	JSLDefinitionBytes []byte // JSL定義のバイトスライス
	RetryPolicy        connector.RetryPolicy

	DBConnection        database.DBConnection
	ImportLogRepository repository.ImportLogRepository
	JobFactory          *factory.JobFactory
	JobOperator         batch_joboperator.JobOperator
}

// NewBatchInitializer は新しい BatchInitializer のインスタンスを作成します。
func NewBatchInitializer(cfg *config.Config) *BatchInitializer {
	return &BatchInitializer{
		Config:      cfg,
		RetryPolicy: connector.DefaultRetryPolicy,
	}
}

// Initialize はバッチアプリケーションの初期化処理を実行します。
// 返された JobFactory にアプリケーション固有のステップビルダーを登録してから JobOperator を使用してください。
func (bi *BatchInitializer) Initialize(ctx context.Context) (batch_joboperator.JobOperator, *factory.JobFactory, error) {
	logger.Debugf("BatchInitializer.Initialize が呼び出されました。")

	// Step 1: 設定のロード
	cfg, err := config.NewBytesConfigLoader(bi.Config.EmbeddedConfig).Load()
	if err != nil {
		return nil, nil, exception.NewBatchError("initializer", "設定のロードに失敗しました", err, false, false)
	}
	bi.Config = cfg
	logger.SetLogLevel(bi.Config.System.Logging.Level)
	logger.Infof("ロギングレベルを '%s' に設定しました。", bi.Config.System.Logging.Level)

	// Step 2: データベース接続 (リトライ付き) とマイグレーション
	dbConn, err := connector.ConnectWithRetry(ctx, bi.Config.Database, bi.RetryPolicy)
	if err != nil {
		return nil, nil, exception.NewBatchError("initializer", "データベースへの接続に失敗しました", err, false, false)
	}
	bi.DBConnection = dbConn

	if err := database.RunMigrations(bi.Config.Database.Type, bi.Config.Database.ConnectionString(), bi.Config.Database.AppMigrationPath); err != nil {
		bi.Close()
		return nil, nil, exception.NewBatchError("initializer", "アプリケーションのマイグレーションに失敗しました", err, false, false)
	}

	// Step 3: インポートログリポジトリの生成
	importLog, err := repository.NewSQLImportLogRepository(bi.Config.Database.Type, dbConn)
	if err != nil {
		bi.Close()
		return nil, nil, exception.NewBatchError("initializer", "インポートログリポジトリの生成に失敗しました", err, false, false)
	}
	bi.ImportLogRepository = importLog

	// Step 4: JSL 定義のロード
	if err := jsl.LoadJSLDefinitionFromBytes(bi.JSLDefinitionBytes); err != nil {
		bi.Close()
		return nil, nil, exception.NewBatchError("initializer", "JSL 定義のロードに失敗しました", err, false, false)
	}

	// Step 5: JobFactory の生成と共通リスナーの登録
	bi.JobFactory = factory.NewJobFactory(bi.Config)
	RegisterDefaultListeners(bi.JobFactory)

	// Step 6: JobOperator の生成
	bi.JobOperator = batch_joboperator.NewDefaultJobOperator(bi.JobFactory, bi.ImportLogRepository)
	logger.Infof("DefaultJobOperator を生成しました。")

	return bi.JobOperator, bi.JobFactory, nil
}

// RegisterDefaultListeners はフレームワーク共通のロギングリスナーを JobFactory に登録します。
func RegisterDefaultListeners(f *factory.JobFactory) {
	f.RegisterJobListenerBuilder("loggingJobListener", func(cfg *config.Config) (core.JobExecutionListener, error) {
		return jobListener.NewLoggingJobListener(&cfg.System.Logging), nil
	})
	f.RegisterStepListenerBuilder("loggingStepListener", func(cfg *config.Config) (core.StepExecutionListener, error) {
		return stepListener.NewLoggingStepListener(), nil
	})
	f.RegisterItemProgressListenerBuilder("loggingProgressListener", func(cfg *config.Config, properties map[string]string) (core.ItemProgressListener, error) {
		stepPercent := 10
		if v, ok := properties["step-percent"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, exception.NewConfigurationError("initializer", fmt.Sprintf("step-percent が不正です: %s", v))
			}
			stepPercent = n
		}
		return stepListener.NewLoggingProgressListener(stepPercent), nil
	})
}

// Close は BatchInitializer が保持するリソースを解放します。
func (bi *BatchInitializer) Close() error {
	if bi.DBConnection == nil {
		return nil
	}
	if err := bi.DBConnection.Close(); err != nil {
		logger.Errorf("データベース接続のクローズに失敗しました: %v", err)
		return fmt.Errorf("データベース接続クローズエラー: %w", err)
	}
	bi.DBConnection = nil
	logger.Infof("データベース接続を正常にクローズしました。")
	return nil
}
