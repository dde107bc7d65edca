package connector

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // Redshift は PostgreSQL プロトコル互換

	"harvester/pkg/batch/config"
)

// redshiftConnector は Redshift への接続を確立する DBConnector の実装です。
type redshiftConnector struct{}

// Connect は Redshift への接続を確立し、*sql.DB を返します。
func (c *redshiftConnector) Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	return openPool(ctx, "postgres", "Redshift", cfg)
}

func init() {
	RegisterConnector("redshift", &redshiftConnector{})
}
