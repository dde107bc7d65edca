package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvester/example/harvester/domain/entity"
	core "harvester/pkg/batch/job/core"
	batchProcessor "harvester/pkg/batch/step/processor"
	"harvester/pkg/batch/util/exception"
)

func newProcessor(t *testing.T) (*OccurrenceProcessor, *core.SharedContext) {
	t.Helper()
	p := NewOccurrenceProcessor()
	fixed := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }
	require.NoError(t, p.Init(context.Background()))

	sc := core.NewSharedContext()
	sc.Put(core.ParamDatasetShortname, "vascan")
	return p, sc
}

func TestOccurrenceProcessor_CopiesRawValues(t *testing.T) {
	p, sc := newProcessor(t)

	out, err := p.Process(context.Background(), entity.DwcRecord{Line: 2, Fields: map[string]string{
		"id": "occ-1", "scientificName": "Acer saccharum", "country": "Canada", "decimalLatitude": "45.5",
	}}, sc)
	require.NoError(t, err)
	assert.Equal(t, "occ-1", out.DwcaID)
	assert.Equal(t, "vascan", out.SourceFileID)
	assert.Equal(t, "Acer saccharum", out.ScientificName)
	assert.Equal(t, "45.5", out.DecimalLatitude)
	assert.Equal(t, 2026, out.LoadedAt.Year())
}

func TestOccurrenceProcessor_FallsBackToOccurrenceID(t *testing.T) {
	p, sc := newProcessor(t)

	out, err := p.Process(context.Background(), entity.DwcRecord{Fields: map[string]string{"occurrenceID": "urn:1"}}, sc)
	require.NoError(t, err)
	assert.Equal(t, "urn:1", out.DwcaID)
}

func TestOccurrenceProcessor_MissingIDIsSkippable(t *testing.T) {
	p, sc := newProcessor(t)

	_, err := p.Process(context.Background(), entity.DwcRecord{Line: 7, Fields: map[string]string{"country": "Canada"}}, sc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrProcess))
	assert.True(t, exception.IsSkippable(err))
	assert.Contains(t, err.Error(), "line 7")
}

func TestOccurrenceProcessor_BlankRowIsFiltered(t *testing.T) {
	p, sc := newProcessor(t)

	_, err := p.Process(context.Background(), entity.DwcRecord{Fields: map[string]string{"id": "", "country": ""}}, sc)
	assert.ErrorIs(t, err, batchProcessor.ErrFilterItem)
}

func TestOccurrenceProcessor_RequiresDataset(t *testing.T) {
	p := NewOccurrenceProcessor()
	require.NoError(t, p.Init(context.Background()))

	_, err := p.Process(context.Background(), entity.DwcRecord{Fields: map[string]string{"id": "1"}}, core.NewSharedContext())
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}
