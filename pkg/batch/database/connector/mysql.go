package connector

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql" // MySQL ドライバ

	"harvester/pkg/batch/config"
)

// mysqlConnector は MySQL への接続を確立する DBConnector の実装です。
type mysqlConnector struct{}

// Connect は MySQL への接続を確立し、*sql.DB を返します。
func (c *mysqlConnector) Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	return openPool(ctx, "mysql", "MySQL", cfg)
}

func init() {
	RegisterConnector("mysql", &mysqlConnector{})
}
