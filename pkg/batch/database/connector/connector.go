package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"harvester/pkg/batch/config"
	"harvester/pkg/batch/database"
	"harvester/pkg/batch/util/exception"
	"harvester/pkg/batch/util/logger"
)

// DBConnector は特定のデータベースタイプへの接続を確立するためのインターフェースです。
type DBConnector interface {
	Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error)
}

var (
	mu         sync.RWMutex
	connectors = make(map[string]DBConnector)
)

// RegisterConnector は指定されたタイプ名で DBConnector を登録します。同名の登録は上書きされます。
func RegisterConnector(dbType string, connector DBConnector) {
	mu.Lock()
	defer mu.Unlock()
	key := strings.ToLower(dbType)
	if _, exists := connectors[key]; exists {
		logger.Warnf("DBConnector '%s' は既に登録されています。上書きします。", dbType)
	}
	connectors[key] = connector
}

func lookup(dbType string) (DBConnector, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := connectors[strings.ToLower(dbType)]
	return c, ok
}

// GetSQLDB は設定に基づいて登録済みのコネクタを選び、接続を確立します。
func GetSQLDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	connector, ok := lookup(cfg.Type)
	if !ok {
		return nil, exception.NewConfigurationError("database", fmt.Sprintf("未対応のデータベースタイプ: %s", cfg.Type))
	}
	return connector.Connect(ctx, cfg)
}

// RetryPolicy は接続リトライの設定です。
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryPolicy はコンテナ起動直後のデータベースを想定したリトライ設定です。
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      10,
	InitialInterval: time.Second,
	MaxElapsedTime:  time.Minute,
}

// ConnectWithRetry は指数バックオフで接続を試み、成功した接続を DBConnection として返します。
// 設定エラーはリトライしません。
func ConnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, policy RetryPolicy) (database.DBConnection, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = policy.InitialInterval
	expBackoff.MaxElapsedTime = policy.MaxElapsedTime
	b := backoff.WithContext(backoff.WithMaxRetries(expBackoff, policy.MaxRetries), ctx)

	var db *sql.DB
	attempt := 0
	operation := func() error {
		attempt++
		logger.Debugf("データベース接続を試行中 (試行 %d/%d)...", attempt, policy.MaxRetries+1)
		conn, err := GetSQLDB(ctx, cfg)
		if err != nil {
			if exception.KindOf(err) == exception.KindConfiguration {
				return backoff.Permanent(err)
			}
			return err
		}
		db = conn
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warnf("データベース接続に失敗しました。%v 後に再試行します: %v", wait, err)
	}

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if exception.KindOf(err) == exception.KindConfiguration {
			return nil, err
		}
		return nil, exception.NewBatchError("database", fmt.Sprintf("データベースへの接続に %d 回失敗しました", attempt), err, true, false)
	}
	logger.Infof("データベース接続に成功しました。タイプ: %s", cfg.Type)
	return database.NewSQLDBAdapter(db), nil
}

// openPool は sql.Open と接続プール設定、疎通確認を行う共通処理です。
func openPool(ctx context.Context, driverName, label string, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName, cfg.ConnectionString())
	if err != nil {
		return nil, exception.NewBatchError("database", fmt.Sprintf("%s への接続に失敗しました", label), err, false, false)
	}

	pool := cfg.ConnectionPool
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetimeSeconds > 0 {
		db.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeSeconds) * time.Second)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, exception.NewBatchError("database", fmt.Sprintf("%s への Ping に失敗しました", label), err, true, false)
	}

	logger.Debugf("%s に正常に接続しました。MaxOpenConns: %d, MaxIdleConns: %d, ConnMaxLifetime: %d秒",
		label, pool.MaxOpenConns, pool.MaxIdleConns, pool.ConnMaxLifetimeSeconds)
	return db, nil
}
