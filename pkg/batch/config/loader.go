package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// BytesConfigLoader はバイトスライスから設定をロードする ConfigLoader の実装です。
type BytesConfigLoader struct {
	data []byte
}

// NewBytesConfigLoader は新しい BytesConfigLoader のインスタンスを作成します。
func NewBytesConfigLoader(data []byte) *BytesConfigLoader {
	return &BytesConfigLoader{data: data}
}

// Load は埋め込まれたバイトスライスから設定をロードします。
// YAML に書かれていない項目は NewConfig のデフォルト値のまま残ります。
func (l *BytesConfigLoader) Load() (*Config, error) {
	cfg := NewConfig()
	if err := yaml.Unmarshal(l.data, cfg); err != nil {
		return nil, fmt.Errorf("YAML設定のパースに失敗しました: %w", err)
	}
	cfg.EmbeddedConfig = l.data

	// 環境変数で個別の設定値を上書き
	loadEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証します。
func (c *Config) Validate() error {
	if c.Batch.ChunkSize <= 0 {
		return fmt.Errorf("batch.chunk_size は正の値である必要があります: %d", c.Batch.ChunkSize)
	}
	if c.Batch.ItemSkip.SkipLimit < 0 {
		return fmt.Errorf("batch.item_skip.skip_limit は 0 以上である必要があります: %d", c.Batch.ItemSkip.SkipLimit)
	}
	if c.Batch.CompletionCheck.PollIntervalMillis <= 0 {
		return fmt.Errorf("batch.completion_check.poll_interval_millis は正の値である必要があります: %d", c.Batch.CompletionCheck.PollIntervalMillis)
	}
	if c.Batch.CompletionCheck.StallThreshold <= 0 {
		return fmt.Errorf("batch.completion_check.stall_threshold は正の値である必要があります: %d", c.Batch.CompletionCheck.StallThreshold)
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "警告: %s の値 '%s' が無効です。デフォルト値または設定ファイルの値を使用します。\n", key, v)
		return
	}
	*dst = n
}

// 環境変数で個別の設定値を上書きする関数
func loadEnvVars(cfg *Config) {
	// Database 設定
	envString("DATABASE_TYPE", &cfg.Database.Type)
	envString("DATABASE_HOST", &cfg.Database.Host)
	envInt("DATABASE_PORT", &cfg.Database.Port)
	envString("DATABASE_DATABASE", &cfg.Database.Database)
	envString("DATABASE_USER", &cfg.Database.User)
	envString("DATABASE_PASSWORD", &cfg.Database.Password)
	envString("DATABASE_SSLMODE", &cfg.Database.Sslmode)
	envString("DATABASE_ACCOUNT", &cfg.Database.Account)
	envString("DATABASE_WAREHOUSE", &cfg.Database.Warehouse)
	envString("DATABASE_SCHEMA", &cfg.Database.Schema)
	envString("DATABASE_APP_MIGRATION_PATH", &cfg.Database.AppMigrationPath)
	envInt("DATABASE_MAX_OPEN_CONNS", &cfg.Database.ConnectionPool.MaxOpenConns)
	envInt("DATABASE_MAX_IDLE_CONNS", &cfg.Database.ConnectionPool.MaxIdleConns)
	envInt("DATABASE_CONN_MAX_LIFETIME_SECONDS", &cfg.Database.ConnectionPool.ConnMaxLifetimeSeconds)

	// Batch 設定
	envString("BATCH_JOB_NAME", &cfg.Batch.JobName)
	envInt("BATCH_CHUNK_SIZE", &cfg.Batch.ChunkSize)
	envInt("BATCH_SKIP_LIMIT", &cfg.Batch.ItemSkip.SkipLimit)
	envInt("BATCH_COMPLETION_POLL_INTERVAL_MILLIS", &cfg.Batch.CompletionCheck.PollIntervalMillis)
	envInt("BATCH_COMPLETION_STALL_THRESHOLD", &cfg.Batch.CompletionCheck.StallThreshold)

	// Harvester 設定
	envString("HARVESTER_WORK_DIR", &cfg.Harvester.WorkDir)
	envInt("HARVESTER_HTTP_TIMEOUT_SECONDS", &cfg.Harvester.HTTPTimeoutSeconds)
	envInt("HARVESTER_DOWNLOAD_MAX_RETRIES", &cfg.Harvester.DownloadRetry.MaxRetries)

	// System 設定
	envString("SYSTEM_LOGGING_LEVEL", &cfg.System.Logging.Level)
}
