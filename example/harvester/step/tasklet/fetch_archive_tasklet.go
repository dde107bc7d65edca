package tasklet

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-resty/resty/v2"

	"harvester/example/harvester/domain/entity"
	config "harvester/pkg/batch/config"
	core "harvester/pkg/batch/job/core"
	"harvester/pkg/batch/util/exception"
	"harvester/pkg/batch/util/logger"
)

const fetchModule = "fetch_archive"

// DefaultCoreFile は DwC-A から取り出すコアファイル名です。
const DefaultCoreFile = "occurrence.txt"

// ResourceFinder は ResourceID からリソースを取得します。
type ResourceFinder interface {
	FindByID(ctx context.Context, id int64) (entity.Resource, error)
}

// FetchArchiveTasklet は取り込み対象の DwC-A を用意し、コアファイルのパスを DwcaPath に設定します。
//
// 取得元は次の優先順で決まります。
//   - ResourceID: リソース管理テーブルのアーカイブ URL からダウンロード
//   - ArchiveURL: 指定された URL からダウンロード
//   - DwcaPath: ローカルの zip、展開済みディレクトリ、またはコアファイルそのもの
//
// DatasetShortname が未設定の場合はリソースのソースファイル ID、またはアーカイブ名を設定します。
type FetchArchiveTasklet struct {
	resources       ResourceFinder
	client          *resty.Client
	workDir         string
	coreFile        string
	maxRetries      uint64
	initialInterval time.Duration
}

// NewFetchArchiveTasklet は新しい FetchArchiveTasklet を作成します。resources は nil でも構いません。
func NewFetchArchiveTasklet(resources ResourceFinder, cfg config.HarvesterConfig, coreFile string) *FetchArchiveTasklet {
	if coreFile == "" {
		coreFile = DefaultCoreFile
	}
	client := resty.New().SetTimeout(time.Duration(cfg.HTTPTimeoutSeconds) * time.Second)
	return &FetchArchiveTasklet{
		resources:       resources,
		client:          client,
		workDir:         cfg.WorkDir,
		coreFile:        coreFile,
		maxRetries:      uint64(cfg.DownloadRetry.MaxRetries),
		initialInterval: time.Duration(cfg.DownloadRetry.InitialIntervalMillis) * time.Millisecond,
	}
}

func (t *FetchArchiveTasklet) Execute(ctx context.Context, sc *core.SharedContext, se *core.StepExecution) error {
	archiveURL, localPath, dataset, err := t.resolveSource(ctx, sc)
	if err != nil {
		return err
	}
	if !sc.Has(core.ParamDatasetShortname) {
		sc.Put(core.ParamDatasetShortname, dataset)
	}
	dataset, err = sc.String(core.ParamDatasetShortname)
	if err != nil {
		return err
	}

	if archiveURL != "" {
		if err := os.MkdirAll(t.workDir, 0o755); err != nil {
			return exception.NewSourceError(fetchModule, fmt.Sprintf("作業ディレクトリ '%s' を作成できません", t.workDir), err)
		}
		localPath = filepath.Join(t.workDir, dataset+".zip")
		if err := t.download(ctx, archiveURL, localPath); err != nil {
			return err
		}
	}

	corePath, err := t.locateCoreFile(localPath, dataset)
	if err != nil {
		return err
	}
	sc.Put(core.ParamDwcaPath, corePath)
	logger.Infof("データセット '%s' のコアファイルを用意しました: %s", dataset, corePath)
	return nil
}

func (t *FetchArchiveTasklet) resolveSource(ctx context.Context, sc *core.SharedContext) (archiveURL, localPath, dataset string, err error) {
	switch {
	case sc.Has(core.ParamResourceID):
		if t.resources == nil {
			return "", "", "", exception.NewConfigurationError(fetchModule, "ResourceID が指定されましたがリソースリポジトリが設定されていません")
		}
		id, err := sc.Int(core.ParamResourceID)
		if err != nil {
			return "", "", "", err
		}
		res, err := t.resources.FindByID(ctx, int64(id))
		if err != nil {
			return "", "", "", exception.NewSourceError(fetchModule, fmt.Sprintf("リソース %d の取得に失敗しました", id), err)
		}
		return res.ArchiveURL, "", res.SourceFileID, nil
	case sc.Has(core.ParamArchiveURL):
		u, err := sc.String(core.ParamArchiveURL)
		if err != nil {
			return "", "", "", err
		}
		return u, "", archiveName(u), nil
	case sc.Has(core.ParamDwcaPath):
		p, err := sc.String(core.ParamDwcaPath)
		if err != nil {
			return "", "", "", err
		}
		return "", p, archiveName(p), nil
	default:
		return "", "", "", exception.NewConfigurationError(fetchModule, "ResourceID, ArchiveURL, DwcaPath のいずれかが必要です")
	}
}

// archiveName は URL またはパスの末尾から拡張子とクエリを除いた名前を返します。
func archiveName(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	base := filepath.Base(strings.TrimRight(s, "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (t *FetchArchiveTasklet) download(ctx context.Context, archiveURL, dest string) error {
	expo := backoff.NewExponentialBackOff()
	if t.initialInterval > 0 {
		expo.InitialInterval = t.initialInterval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(expo, t.maxRetries), ctx)

	attempts := 0
	operation := func() error {
		attempts++
		resp, err := t.client.R().SetContext(ctx).SetOutput(dest).Get(archiveURL)
		if err != nil {
			return err
		}
		switch code := resp.StatusCode(); {
		case code == http.StatusOK:
			return nil
		case code == http.StatusTooManyRequests || code >= 500:
			return fmt.Errorf("%s から %d が返されました", archiveURL, code)
		default:
			_ = os.Remove(dest)
			return backoff.Permanent(exception.NewSourceError(fetchModule, fmt.Sprintf("%s から %d が返されました", archiveURL, code), nil))
		}
	}
	notify := func(err error, wait time.Duration) {
		logger.Warnf("アーカイブのダウンロードに失敗しました (試行 %d)。%s 後に再試行します: %v", attempts, wait, err)
	}

	logger.Infof("アーカイブをダウンロードします: %s", archiveURL)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		_ = os.Remove(dest)
		if exception.KindOf(err) == exception.KindSource {
			return err
		}
		return exception.NewSourceError(fetchModule, fmt.Sprintf("アーカイブのダウンロードに失敗しました (試行 %d 回)", attempts), err)
	}
	logger.Infof("アーカイブをダウンロードしました: %s (試行 %d 回)", dest, attempts)
	return nil
}

// locateCoreFile は path がディレクトリ、zip、コアファイルのいずれかに応じてコアファイルのパスを返します。
func (t *FetchArchiveTasklet) locateCoreFile(path, dataset string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", exception.NewSourceError(fetchModule, fmt.Sprintf("'%s' にアクセスできません", path), err)
	}
	if info.IsDir() {
		return filepath.Join(path, t.coreFile), nil
	}
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return path, nil
	}
	return t.extractCoreFile(path, filepath.Join(t.workDir, dataset))
}

func (t *FetchArchiveTasklet) extractCoreFile(zipPath, destDir string) (string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", exception.NewSourceError(fetchModule, fmt.Sprintf("'%s' は zip として開けません", zipPath), err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(filepath.Base(f.Name), t.coreFile) {
			continue
		}
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return "", exception.NewSourceError(fetchModule, fmt.Sprintf("展開先 '%s' を作成できません", destDir), err)
		}
		dest := filepath.Join(destDir, t.coreFile)
		if err := copyZipEntry(f, dest); err != nil {
			return "", exception.NewSourceError(fetchModule, fmt.Sprintf("'%s' の展開に失敗しました", f.Name), err)
		}
		return dest, nil
	}
	return "", exception.NewSourceError(fetchModule, fmt.Sprintf("'%s' に %s が含まれていません", zipPath, t.coreFile), nil)
}

func copyZipEntry(f *zip.File, dest string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (t *FetchArchiveTasklet) Close(ctx context.Context) error {
	return nil
}

var _ core.Tasklet = (*FetchArchiveTasklet)(nil)
