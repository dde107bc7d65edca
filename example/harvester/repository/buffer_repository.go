package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"harvester/example/harvester/domain/entity"
	"harvester/pkg/batch/database"
	batchRepo "harvester/pkg/batch/repository"
	"harvester/pkg/batch/util/exception"
	"harvester/pkg/batch/util/logger"
)

const (
	bufferTable       = "buffer.occurrence_raw"
	publicTable       = "public.occurrence"
	uniqueValuesTable = "public.unique_values"
)

// occurrenceColumns は buffer と public で共通の列です。順序は OccurrenceRaw の値の並びと一致します。
var occurrenceColumns = []string{
	"dwca_id", "sourcefileid", "catalognumber", "institutioncode", "collectioncode", "basisofrecord",
	"scientificname", "country", "stateprovince", "locality", "decimallatitude", "decimallongitude",
	"eventdate", "recordedby", "loaded_at",
}

// uniqueValueColumns は unique_values を集計する列です。
var uniqueValueColumns = []string{
	"country", "stateprovince", "scientificname", "institutioncode", "collectioncode", "basisofrecord",
}

// BufferRepository はオカレンスのバッファスキーマと公開スキーマへのアクセスを提供します。
type BufferRepository interface {
	// InsertOccurrences は渡されたトランザクション内で items を buffer に挿入します。
	InsertOccurrences(ctx context.Context, tx database.Tx, items []entity.OccurrenceRaw) error
	// CountRecords はデータセットの buffer 上のレコード数を返します。
	CountRecords(ctx context.Context, datasetShortname string) (int, error)
	// DeleteDataset はデータセットの buffer 上のレコードを削除します。
	DeleteDataset(ctx context.Context, datasetShortname string) (int64, error)
	// MoveToPublic はデータセットを一つのトランザクションで公開スキーマへ移し、移動した件数を返します。
	MoveToPublic(ctx context.Context, datasetShortname string) (int64, error)
	// ComputeUniqueValues は公開スキーマの unique_values を再計算します。
	ComputeUniqueValues(ctx context.Context) error
}

// SQLBufferRepository は BufferRepository の SQL 実装です。
type SQLBufferRepository struct {
	db database.DBConnection
	ph batchRepo.Placeholder
}

// NewBufferRepository はデータベース種別に応じた BufferRepository を生成します。
func NewBufferRepository(dbType string, db database.DBConnection) (*SQLBufferRepository, error) {
	if db == nil {
		return nil, exception.NewConfigurationError("buffer_repository", "DBConnection が nil です")
	}
	ph, err := batchRepo.PlaceholderFor(dbType)
	if err != nil {
		return nil, err
	}
	return &SQLBufferRepository{db: db, ph: ph}, nil
}

func occurrenceValues(o entity.OccurrenceRaw) []any {
	loadedAt := o.LoadedAt
	if loadedAt.IsZero() {
		loadedAt = time.Now()
	}
	return []any{
		o.DwcaID, o.SourceFileID, o.CatalogNumber, o.InstitutionCode, o.CollectionCode, o.BasisOfRecord,
		o.ScientificName, o.Country, o.StateProvince, o.Locality, o.DecimalLatitude, o.DecimalLongitude,
		o.EventDate, o.RecordedBy, loadedAt,
	}
}

func (r *SQLBufferRepository) InsertOccurrences(ctx context.Context, tx database.Tx, items []entity.OccurrenceRaw) error {
	if len(items) == 0 {
		return nil
	}

	insertStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s);",
		bufferTable, strings.Join(occurrenceColumns, ", "), batchRepo.Placeholders(r.ph, 1, len(occurrenceColumns)),
	))
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement for %s: %w", bufferTable, err)
	}
	defer insertStmt.Close()

	for _, item := range items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, err := insertStmt.ExecContext(ctx, occurrenceValues(item)...); err != nil {
			return fmt.Errorf("failed to insert occurrence '%s' into %s: %w", item.DwcaID, bufferTable, err)
		}
	}
	logger.Debugf("%s に %d 件挿入しました。", bufferTable, len(items))
	return nil
}

func (r *SQLBufferRepository) CountRecords(ctx context.Context, datasetShortname string) (int, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE sourcefileid = %s;", bufferTable, r.ph(1))
	if err := r.db.QueryRowContext(ctx, query, datasetShortname).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count records of '%s': %w", datasetShortname, err)
	}
	return count, nil
}

func (r *SQLBufferRepository) DeleteDataset(ctx context.Context, datasetShortname string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE sourcefileid = %s;", bufferTable, r.ph(1))
	res, err := r.db.ExecContext(ctx, query, datasetShortname)
	if err != nil {
		return 0, exception.NewWriterError("buffer_repository", fmt.Sprintf("データセット '%s' のバッファ削除に失敗しました", datasetShortname), err)
	}
	n, _ := res.RowsAffected()
	logger.Infof("データセット '%s' のバッファレコードを %d 件削除しました。", datasetShortname, n)
	return n, nil
}

func (r *SQLBufferRepository) MoveToPublic(ctx context.Context, datasetShortname string) (moved int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, exception.NewWriterError("buffer_repository", "トランザクションの開始に失敗しました", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Errorf("トランザクションのロールバックに失敗しました: %v", rbErr)
			}
		}
	}()

	cols := strings.Join(occurrenceColumns, ", ")
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE sourcefileid = %s;", publicTable, r.ph(1)), datasetShortname); err != nil {
		return 0, exception.NewWriterError("buffer_repository", fmt.Sprintf("データセット '%s' の公開レコード削除に失敗しました", datasetShortname), err)
	}
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WHERE sourcefileid = %s;", publicTable, cols, cols, bufferTable, r.ph(1)),
		datasetShortname)
	if err != nil {
		return 0, exception.NewWriterError("buffer_repository", fmt.Sprintf("データセット '%s' の公開スキーマへのコピーに失敗しました", datasetShortname), err)
	}
	moved, _ = res.RowsAffected()
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE sourcefileid = %s;", bufferTable, r.ph(1)), datasetShortname); err != nil {
		return 0, exception.NewWriterError("buffer_repository", fmt.Sprintf("データセット '%s' のバッファ削除に失敗しました", datasetShortname), err)
	}
	if err = tx.Commit(); err != nil {
		return 0, exception.NewWriterError("buffer_repository", "トランザクションのコミットに失敗しました", err)
	}
	return moved, nil
}

func (r *SQLBufferRepository) ComputeUniqueValues(ctx context.Context) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return exception.NewWriterError("buffer_repository", "トランザクションの開始に失敗しました", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logger.Errorf("トランザクションのロールバックに失敗しました: %v", rbErr)
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s;", uniqueValuesTable)); err != nil {
		return exception.NewWriterError("buffer_repository", "unique_values の削除に失敗しました", err)
	}
	for _, col := range uniqueValueColumns {
		query := fmt.Sprintf(
			"INSERT INTO %s (key, value, occurrence_count) SELECT '%s', %s, COUNT(*) FROM %s WHERE %s IS NOT NULL AND %s <> '' GROUP BY %s;",
			uniqueValuesTable, col, col, publicTable, col, col, col,
		)
		if _, err = tx.ExecContext(ctx, query); err != nil {
			return exception.NewWriterError("buffer_repository", fmt.Sprintf("'%s' の unique_values 集計に失敗しました", col), err)
		}
	}
	if err = tx.Commit(); err != nil {
		return exception.NewWriterError("buffer_repository", "トランザクションのコミットに失敗しました", err)
	}
	return nil
}

var _ BufferRepository = (*SQLBufferRepository)(nil)
