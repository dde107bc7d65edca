package repository

import (
	"context"
	"time"

	core "harvester/pkg/batch/job/core"
)

// ImportLog は終了したジョブ実行一回分の記録です。
type ImportLog struct {
	ID           string
	JobName      string
	Dataset      string
	Status       core.JobStatus
	StartTime    time.Time
	EndTime      time.Time
	RecordCount  int
	ErrorMessage string
}

// NewImportLog は JobExecution と SharedContext から ImportLog を組み立てます。
// SharedContext に値が無い項目はゼロ値のままにします。
func NewImportLog(exec *core.JobExecution, sc *core.SharedContext) ImportLog {
	snap := exec.Snapshot()
	entry := ImportLog{
		ID:        snap.ID,
		JobName:   snap.JobName,
		Status:    snap.Status,
		StartTime: snap.StartTime,
		EndTime:   snap.EndTime,
	}
	if snap.Failure != nil {
		entry.ErrorMessage = snap.Failure.Error()
	}
	if sc != nil {
		if ds, err := sc.String(core.ParamDatasetShortname); err == nil {
			entry.Dataset = ds
		}
		if n, err := sc.Int(core.ParamNumberOfRecords); err == nil {
			entry.RecordCount = n
		}
	}
	return entry
}

// ImportLogRepository はインポートログの永続化と取得を行います。
type ImportLogRepository interface {
	// Save は ImportLog を保存します。
	Save(ctx context.Context, entry ImportLog) error
	// FindRecent は新しい順に最大 limit 件の ImportLog を返します。
	FindRecent(ctx context.Context, limit int) ([]ImportLog, error)
}
