package reader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "harvester/pkg/batch/job/core"
	exception "harvester/pkg/batch/util/exception"
)

type row struct {
	ID   string
	Name string
}

func rowMapper(header, fields []string, line int) (row, error) {
	idx := HeaderIndex(header)
	r := row{}
	if i, ok := idx["id"]; ok && i < len(fields) {
		r.ID = fields[i]
	}
	if i, ok := idx["scientificName"]; ok && i < len(fields) {
		r.Name = fields[i]
	}
	return r, nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "occurrence.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSliceReader_ReadsUntilEOFAndRewinds(t *testing.T) {
	ctx := context.Background()
	r := NewSliceReader([]int{1, 2})
	require.NoError(t, r.Open(ctx, core.NewSharedContext()))

	v, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, r.Open(ctx, core.NewSharedContext()))
	v, err = r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestTabFileReader_MapsRowsByHeader(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, "id\tscientificName\n1\tPicea glauca\n2\tAcer \"saccharum\"\n")
	sc := core.NewSharedContext()
	sc.Put(core.ParamDwcaPath, path)

	r := NewTabFileReader(core.ParamDwcaPath, rowMapper)
	require.NoError(t, r.Open(ctx, sc))
	defer r.Close(ctx)

	first, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, row{ID: "1", Name: "Picea glauca"}, first)

	second, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", second.ID)

	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTabFileReader_MissingPathIsConfigurationError(t *testing.T) {
	r := NewTabFileReader(core.ParamDwcaPath, rowMapper)
	err := r.Open(context.Background(), core.NewSharedContext())
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}

func TestTabFileReader_UnreadableFileIsSourceError(t *testing.T) {
	sc := core.NewSharedContext()
	sc.Put(core.ParamDwcaPath, filepath.Join(t.TempDir(), "missing.txt"))

	r := NewTabFileReader(core.ParamDwcaPath, rowMapper)
	err := r.Open(context.Background(), sc)
	assert.ErrorIs(t, err, exception.ErrSource)
}

func TestTabFileReader_EmptyFileIsSourceError(t *testing.T) {
	sc := core.NewSharedContext()
	sc.Put(core.ParamDwcaPath, writeFile(t, ""))

	r := NewTabFileReader(core.ParamDwcaPath, rowMapper)
	err := r.Open(context.Background(), sc)
	assert.ErrorIs(t, err, exception.ErrSource)
}
