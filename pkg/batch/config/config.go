package config

import (
	"fmt"
	"strings"
	"time"
)

// EmbeddedConfig は、設定ファイルの内容を保持するためのフィールドです。
// main.go から渡される埋め込み設定を格納します。
type EmbeddedConfig []byte

// ConnectionPoolConfig はデータベースコネクションプールの設定を保持します。
type ConnectionPoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime_seconds"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Sslmode  string `yaml:"sslmode"`
	// Snowflake 用
	Account   string `yaml:"account"`
	Warehouse string `yaml:"warehouse"`
	Schema    string `yaml:"schema"`
	// アプリケーション固有のマイグレーションファイルのパス
	AppMigrationPath string               `yaml:"app_migration_path"`
	ConnectionPool   ConnectionPoolConfig `yaml:"connection_pool"`
}

// ConnectionString はドライバに渡す DSN を返します。
func (c DatabaseConfig) ConnectionString() string {
	switch strings.ToLower(c.Type) {
	case "postgres", "redshift":
		// golang-migrate/migrate が期待する形式に合わせる
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.Database, c.Sslmode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "snowflake":
		return fmt.Sprintf("%s:%s@%s/%s/%s?warehouse=%s",
			c.User, c.Password, c.Account, c.Database, c.Schema, c.Warehouse)
	default:
		return ""
	}
}

// ItemSkipConfig はアイテムレベルのスキップ設定です。
// SkipLimit が 0 の場合、処理エラーは常にステップを失敗させます。
type ItemSkipConfig struct {
	SkipLimit int `yaml:"skip_limit"`
}

// CompletionCheckConfig は完了確認タスクのポーリング設定です。
type CompletionCheckConfig struct {
	PollIntervalMillis int `yaml:"poll_interval_millis"`
	StallThreshold     int `yaml:"stall_threshold"`
}

// PollInterval はポーリング間隔を time.Duration で返します。
func (c CompletionCheckConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

type BatchConfig struct {
	JobName         string                `yaml:"job_name"`
	ChunkSize       int                   `yaml:"chunk_size"`
	ItemSkip        ItemSkipConfig        `yaml:"item_skip"`
	CompletionCheck CompletionCheckConfig `yaml:"completion_check"`
}

// DownloadRetryConfig はアーカイブ取得のリトライ設定です。
type DownloadRetryConfig struct {
	MaxRetries            int `yaml:"max_retries"`
	InitialIntervalMillis int `yaml:"initial_interval_millis"`
}

type HarvesterConfig struct {
	WorkDir            string              `yaml:"work_dir"`
	HTTPTimeoutSeconds int                 `yaml:"http_timeout_seconds"`
	DownloadRetry      DownloadRetryConfig `yaml:"download_retry"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

type Config struct {
	Database       DatabaseConfig  `yaml:"database"`
	Batch          BatchConfig     `yaml:"batch"`
	Harvester      HarvesterConfig `yaml:"harvester"`
	System         SystemConfig    `yaml:"system"`
	EmbeddedConfig EmbeddedConfig  `yaml:"-"` // 埋め込み設定を格納するためのフィールド。YAMLからは読み込まない。
}

// NewConfig はデフォルト値を設定した Config の新しいインスタンスを返します。
func NewConfig() *Config {
	return &Config{
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO"},
		},
		Batch: BatchConfig{
			ChunkSize: 100,
			ItemSkip:  ItemSkipConfig{SkipLimit: 0},
			CompletionCheck: CompletionCheckConfig{
				PollIntervalMillis: 1000,
				StallThreshold:     10,
			},
		},
		Harvester: HarvesterConfig{
			WorkDir:            "./work",
			HTTPTimeoutSeconds: 60,
			DownloadRetry: DownloadRetryConfig{
				MaxRetries:            3,
				InitialIntervalMillis: 500,
			},
		},
	}
}
