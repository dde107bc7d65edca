package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"    // MySQL ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // PostgreSQL および Redshift ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/source/file"       // ファイルソースドライバを登録

	"harvester/pkg/batch/util/exception"
	"harvester/pkg/batch/util/logger"
)

// DefaultMigrationsTable はハーベスターのマイグレーション履歴テーブル名です。
const DefaultMigrationsTable = "harvester_schema_migrations"

// MigrationURL は golang-migrate が期待するデータベース URL を組み立てます。
func MigrationURL(dbType, connectionString, migrationsTable string) (string, error) {
	var databaseURL string
	switch strings.ToLower(dbType) {
	case "postgres", "redshift":
		databaseURL = connectionString
	case "mysql":
		databaseURL = "mysql://" + connectionString
	default:
		return "", exception.NewConfigurationError("migration", fmt.Sprintf("マイグレーションに対応していないデータベースタイプ: %s", dbType))
	}
	if migrationsTable == "" {
		return databaseURL, nil
	}
	if strings.Contains(databaseURL, "?") {
		databaseURL += "&"
	} else {
		databaseURL += "?"
	}
	return databaseURL + "x-migrations-table=" + migrationsTable, nil
}

// RunMigrations は指定されたデータベースにマイグレーションを実行します。
//
// dbType: データベースの種類 (例: "postgres", "mysql", "redshift")
// connectionString: config.DatabaseConfig.ConnectionString() の形式
// migrationsPath: SQL マイグレーションファイルのディレクトリ
func RunMigrations(dbType, connectionString, migrationsPath string) error {
	if migrationsPath == "" {
		logger.Infof("マイグレーションパスが指定されていません。スキップします。")
		return nil
	}
	if strings.EqualFold(dbType, "snowflake") {
		logger.Warnf("Snowflake ではマイグレーションを実行しません。スキーマは事前に作成してください。")
		return nil
	}
	logger.Infof("データベースマイグレーションを開始します。DBタイプ: %s, マイグレーションパス: %s", dbType, migrationsPath)

	databaseURL, err := MigrationURL(dbType, connectionString, DefaultMigrationsTable)
	if err != nil {
		return err
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		return exception.NewBatchError("migration", "マイグレーションインスタンスの作成に失敗しました", err, false, false)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warnf("マイグレーションのクローズに失敗しました: source=%v database=%v", srcErr, dbErr)
		}
	}()

	if err = m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("マイグレーションは不要です。データベースは最新の状態です。")
			return nil
		}
		return exception.NewBatchError("migration", "マイグレーションの実行に失敗しました", err, false, false)
	}

	logger.Infof("データベースマイグレーションが正常に完了しました。")
	return nil
}
