package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvester/pkg/batch/util/exception"
)

func TestMigrationURL(t *testing.T) {
	tests := []struct {
		name   string
		dbType string
		dsn    string
		table  string
		want   string
	}{
		{"postgres with query", "postgres", "postgres://u:p@h:5432/db?sslmode=disable", "t", "postgres://u:p@h:5432/db?sslmode=disable&x-migrations-table=t"},
		{"redshift", "REDSHIFT", "postgres://u:p@h:5439/db", "t", "postgres://u:p@h:5439/db?x-migrations-table=t"},
		{"mysql", "mysql", "u:p@tcp(h:3306)/db?parseTime=true", "t", "mysql://u:p@tcp(h:3306)/db?parseTime=true&x-migrations-table=t"},
		{"no table", "postgres", "postgres://h/db", "", "postgres://h/db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MigrationURL(tt.dbType, tt.dsn, tt.table)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMigrationURL_UnsupportedType(t *testing.T) {
	_, err := MigrationURL("oracle", "x", "")
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}

func TestRunMigrations_SkipsWithoutPath(t *testing.T) {
	assert.NoError(t, RunMigrations("postgres", "postgres://h/db", ""))
}
