package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"harvester/example/harvester/domain/entity"
	"harvester/pkg/batch/database"
	batchRepo "harvester/pkg/batch/repository"
	"harvester/pkg/batch/util/exception"
	"harvester/pkg/batch/util/logger"
)

// ErrResourceNotFound は指定された ID のリソースが存在しないことを表します。
var ErrResourceNotFound = errors.New("resource not found")

// ResourceRepository は取り込み対象リソースの管理を行います。
type ResourceRepository interface {
	List(ctx context.Context) ([]entity.Resource, error)
	FindByID(ctx context.Context, id int64) (entity.Resource, error)
	// Save は ID が 0 の場合は新規作成、それ以外は更新し、保存したリソースを返します。
	Save(ctx context.Context, resource entity.Resource) (entity.Resource, error)
}

// SQLResourceRepository は ResourceRepository の SQL 実装です。
type SQLResourceRepository struct {
	db        database.DBConnection
	ph        batchRepo.Placeholder
	returning bool // INSERT ... RETURNING が使えるか
}

// NewResourceRepository はデータベース種別に応じた ResourceRepository を生成します。
func NewResourceRepository(dbType string, db database.DBConnection) (*SQLResourceRepository, error) {
	if db == nil {
		return nil, exception.NewConfigurationError("resource_repository", "DBConnection が nil です")
	}
	ph, err := batchRepo.PlaceholderFor(dbType)
	if err != nil {
		return nil, err
	}
	t := strings.ToLower(dbType)
	return &SQLResourceRepository{db: db, ph: ph, returning: t == "postgres"}, nil
}

func (r *SQLResourceRepository) List(ctx context.Context) ([]entity.Resource, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT resource_id, name, archive_url, source_file_id FROM public.resource_management ORDER BY resource_id;")
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []entity.Resource
	for rows.Next() {
		var res entity.Resource
		if err := rows.Scan(&res.ID, &res.Name, &res.ArchiveURL, &res.SourceFileID); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resources: %w", err)
	}
	return resources, nil
}

func (r *SQLResourceRepository) FindByID(ctx context.Context, id int64) (entity.Resource, error) {
	var res entity.Resource
	query := fmt.Sprintf("SELECT resource_id, name, archive_url, source_file_id FROM public.resource_management WHERE resource_id = %s;", r.ph(1))
	err := r.db.QueryRowContext(ctx, query, id).Scan(&res.ID, &res.Name, &res.ArchiveURL, &res.SourceFileID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Resource{}, fmt.Errorf("resource %d: %w", id, ErrResourceNotFound)
	}
	if err != nil {
		return entity.Resource{}, fmt.Errorf("failed to find resource %d: %w", id, err)
	}
	return res, nil
}

func (r *SQLResourceRepository) Save(ctx context.Context, resource entity.Resource) (entity.Resource, error) {
	if err := resource.Validate(); err != nil {
		return entity.Resource{}, exception.NewConfigurationError("resource_repository", err.Error())
	}

	if resource.ID != 0 {
		query := fmt.Sprintf("UPDATE public.resource_management SET name = %s, archive_url = %s, source_file_id = %s WHERE resource_id = %s;",
			r.ph(1), r.ph(2), r.ph(3), r.ph(4))
		res, err := r.db.ExecContext(ctx, query, resource.Name, resource.ArchiveURL, resource.SourceFileID, resource.ID)
		if err != nil {
			return entity.Resource{}, fmt.Errorf("failed to update resource %d: %w", resource.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return entity.Resource{}, fmt.Errorf("resource %d: %w", resource.ID, ErrResourceNotFound)
		}
		logger.Infof("リソース %d (%s) を更新しました。", resource.ID, resource.Name)
		return resource, nil
	}

	insert := fmt.Sprintf("INSERT INTO public.resource_management (name, archive_url, source_file_id) VALUES (%s)",
		batchRepo.Placeholders(r.ph, 1, 3))
	if r.returning {
		if err := r.db.QueryRowContext(ctx, insert+" RETURNING resource_id;", resource.Name, resource.ArchiveURL, resource.SourceFileID).Scan(&resource.ID); err != nil {
			return entity.Resource{}, fmt.Errorf("failed to insert resource: %w", err)
		}
	} else {
		res, err := r.db.ExecContext(ctx, insert+";", resource.Name, resource.ArchiveURL, resource.SourceFileID)
		if err != nil {
			return entity.Resource{}, fmt.Errorf("failed to insert resource: %w", err)
		}
		if resource.ID, err = res.LastInsertId(); err != nil {
			return entity.Resource{}, fmt.Errorf("failed to read inserted resource id: %w", err)
		}
	}
	logger.Infof("リソース %d (%s) を登録しました。", resource.ID, resource.Name)
	return resource, nil
}

var _ ResourceRepository = (*SQLResourceRepository)(nil)
