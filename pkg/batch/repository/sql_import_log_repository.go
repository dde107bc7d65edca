package repository

import (
	"context"
	"database/sql"
	"fmt"

	"harvester/pkg/batch/database"
	core "harvester/pkg/batch/job/core"
	exception "harvester/pkg/batch/util/exception"
	logger "harvester/pkg/batch/util/logger"
)

// SQLImportLogRepository は ImportLogRepository の SQL データベース実装です。
type SQLImportLogRepository struct {
	dbConnection database.DBConnection
	ph           Placeholder
}

// NewSQLImportLogRepository は新しい SQLImportLogRepository のインスタンスを作成します。
func NewSQLImportLogRepository(dbType string, dbConn database.DBConnection) (*SQLImportLogRepository, error) {
	if dbConn == nil {
		return nil, exception.NewConfigurationError("import_log_repository", "DBConnection が nil です")
	}
	ph, err := PlaceholderFor(dbType)
	if err != nil {
		return nil, err
	}
	return &SQLImportLogRepository{dbConnection: dbConn, ph: ph}, nil
}

// Save は ImportLog を import_log テーブルに保存します。
func (r *SQLImportLogRepository) Save(ctx context.Context, entry ImportLog) error {
	query := fmt.Sprintf(`
    INSERT INTO import_log (id, job_name, dataset, status, start_time, end_time, record_count, error_message)
    VALUES (%s);
  `, Placeholders(r.ph, 1, 8))
	_, err := r.dbConnection.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.JobName,
		sql.NullString{String: entry.Dataset, Valid: entry.Dataset != ""},
		string(entry.Status),
		sql.NullTime{Time: entry.StartTime, Valid: !entry.StartTime.IsZero()},
		sql.NullTime{Time: entry.EndTime, Valid: !entry.EndTime.IsZero()},
		entry.RecordCount,
		sql.NullString{String: entry.ErrorMessage, Valid: entry.ErrorMessage != ""},
	)
	if err != nil {
		return exception.NewBatchError("import_log_repository", fmt.Sprintf("ImportLog (ID: %s) の保存に失敗しました", entry.ID), err, false, false)
	}
	logger.Debugf("ImportLog (ID: %s, Job: %s, Status: %s) を保存しました。", entry.ID, entry.JobName, entry.Status)
	return nil
}

// FindRecent は end_time の新しい順に最大 limit 件の ImportLog を返します。
func (r *SQLImportLogRepository) FindRecent(ctx context.Context, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		return nil, exception.NewConfigurationError("import_log_repository", fmt.Sprintf("limit は 1 以上である必要があります: %d", limit))
	}
	query := fmt.Sprintf(`
    SELECT id, job_name, dataset, status, start_time, end_time, record_count, error_message
    FROM import_log
    ORDER BY end_time DESC
    LIMIT %s;
  `, r.ph(1))
	rows, err := r.dbConnection.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, exception.NewBatchError("import_log_repository", "ImportLog の検索に失敗しました", err, false, false)
	}
	defer rows.Close()

	var logs []ImportLog
	for rows.Next() {
		var (
			entry     ImportLog
			status    string
			dataset   sql.NullString
			errMsg    sql.NullString
			startTime sql.NullTime
			endTime   sql.NullTime
		)
		if err := rows.Scan(&entry.ID, &entry.JobName, &dataset, &status, &startTime, &endTime, &entry.RecordCount, &errMsg); err != nil {
			return nil, exception.NewBatchError("import_log_repository", "ImportLog の読み取りに失敗しました", err, false, false)
		}
		entry.Dataset = dataset.String
		entry.Status = core.JobStatus(status)
		entry.StartTime = startTime.Time
		entry.EndTime = endTime.Time
		entry.ErrorMessage = errMsg.String
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, exception.NewBatchError("import_log_repository", "ImportLog の読み取り中にエラーが発生しました", err, false, false)
	}
	return logs, nil
}

var _ ImportLogRepository = (*SQLImportLogRepository)(nil)
