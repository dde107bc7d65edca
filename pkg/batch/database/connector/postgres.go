package connector

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL ドライバ

	"harvester/pkg/batch/config"
)

// postgresConnector は PostgreSQL への接続を確立する DBConnector の実装です。
type postgresConnector struct{}

// Connect は PostgreSQL への接続を確立し、*sql.DB を返します。
func (c *postgresConnector) Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	return openPool(ctx, "postgres", "PostgreSQL", cfg)
}

func init() {
	RegisterConnector("postgres", &postgresConnector{})
}
