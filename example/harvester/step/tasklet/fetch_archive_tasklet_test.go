package tasklet

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"harvester/example/harvester/domain/entity"
	config "harvester/pkg/batch/config"
	core "harvester/pkg/batch/job/core"
	"harvester/pkg/batch/util/exception"
)

const coreContent = "id\tscientificName\n1\tAcer saccharum\n"

// MockResourceFinder は ResourceFinder のモックです。
type MockResourceFinder struct {
	mock.Mock
}

func (m *MockResourceFinder) FindByID(ctx context.Context, id int64) (entity.Resource, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(entity.Resource), args.Error(1)
}

func buildArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("dwca/meta.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<archive/>"))
	require.NoError(t, err)
	w, err = zw.Create("dwca/occurrence.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte(coreContent))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testConfig(t *testing.T) config.HarvesterConfig {
	return config.HarvesterConfig{
		WorkDir:            t.TempDir(),
		HTTPTimeoutSeconds: 5,
		DownloadRetry:      config.DownloadRetryConfig{MaxRetries: 3, InitialIntervalMillis: 1},
	}
}

func TestFetchArchive_DownloadsResourceArchiveWithRetry(t *testing.T) {
	archive := buildArchive(t)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	finder := new(MockResourceFinder)
	finder.On("FindByID", mock.Anything, int64(4)).
		Return(entity.Resource{ID: 4, Name: "Vascan", ArchiveURL: srv.URL + "/archive.do?r=vascan", SourceFileID: "vascan"}, nil)

	cfg := testConfig(t)
	sc := core.NewSharedContext()
	sc.Put(core.ParamResourceID, 4)

	tasklet := NewFetchArchiveTasklet(finder, cfg, "")
	require.NoError(t, tasklet.Execute(context.Background(), sc, core.NewStepExecution("fetch")))

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	dataset, err := sc.String(core.ParamDatasetShortname)
	require.NoError(t, err)
	assert.Equal(t, "vascan", dataset)

	path, err := sc.String(core.ParamDwcaPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.WorkDir, "vascan", DefaultCoreFile), path)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, coreContent, string(got))
	finder.AssertExpectations(t)
}

func TestFetchArchive_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	sc := core.NewSharedContext()
	sc.Put(core.ParamArchiveURL, srv.URL+"/missing.zip")

	err := NewFetchArchiveTasklet(nil, testConfig(t), "").Execute(context.Background(), sc, core.NewStepExecution("fetch"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrSource))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.False(t, sc.Has(core.ParamDwcaPath))
}

func TestFetchArchive_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sc := core.NewSharedContext()
	sc.Put(core.ParamArchiveURL, srv.URL+"/flaky.zip")

	err := NewFetchArchiveTasklet(nil, testConfig(t), "").Execute(context.Background(), sc, core.NewStepExecution("fetch"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrSource))
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestFetchArchive_LocalPaths(t *testing.T) {
	dir := t.TempDir()
	corePath := filepath.Join(dir, DefaultCoreFile)
	require.NoError(t, os.WriteFile(corePath, []byte(coreContent), 0o644))
	zipPath := filepath.Join(dir, "flora.zip")
	require.NoError(t, os.WriteFile(zipPath, buildArchive(t), 0o644))

	cases := map[string]struct {
		input   string
		dataset string
	}{
		"directory": {input: dir, dataset: filepath.Base(dir)},
		"core file": {input: corePath, dataset: "occurrence"},
		"zip":       {input: zipPath, dataset: "flora"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			sc := core.NewSharedContext()
			sc.Put(core.ParamDwcaPath, tc.input)

			require.NoError(t, NewFetchArchiveTasklet(nil, cfg, "").Execute(context.Background(), sc, core.NewStepExecution("fetch")))

			dataset, err := sc.String(core.ParamDatasetShortname)
			require.NoError(t, err)
			assert.Equal(t, tc.dataset, dataset)
			path, err := sc.String(core.ParamDwcaPath)
			require.NoError(t, err)
			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, coreContent, string(got))
		})
	}
}

func TestFetchArchive_KeepsCallerDataset(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultCoreFile), []byte(coreContent), 0o644))

	sc := core.NewSharedContext()
	sc.Put(core.ParamDwcaPath, dir)
	sc.Put(core.ParamDatasetShortname, "custom")

	require.NoError(t, NewFetchArchiveTasklet(nil, testConfig(t), "").Execute(context.Background(), sc, core.NewStepExecution("fetch")))
	dataset, _ := sc.String(core.ParamDatasetShortname)
	assert.Equal(t, "custom", dataset)
}

func TestFetchArchive_RequiresASource(t *testing.T) {
	err := NewFetchArchiveTasklet(nil, testConfig(t), "").Execute(context.Background(), core.NewSharedContext(), core.NewStepExecution("fetch"))
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}

func TestDatasetTasklet_CountsProcessedRows(t *testing.T) {
	var got string
	tl := NewDatasetTasklet("move", func(ctx context.Context, dataset string) (int64, error) {
		got = dataset
		return 12, nil
	})
	sc := core.NewSharedContext()
	sc.Put(core.ParamDatasetShortname, "vascan")
	se := core.NewStepExecution("move")

	require.NoError(t, tl.Execute(context.Background(), sc, se))
	assert.Equal(t, "vascan", got)
	assert.Equal(t, 12, se.WriteCount)

	err := tl.Execute(context.Background(), core.NewSharedContext(), se)
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}
