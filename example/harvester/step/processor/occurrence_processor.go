package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"harvester/example/harvester/domain/entity"
	core "harvester/pkg/batch/job/core"
	batchProcessor "harvester/pkg/batch/step/processor"
	"harvester/pkg/batch/util/exception"
	"harvester/pkg/batch/util/logger"
)

var errMissingID = errors.New("レコードに id がありません")

// OccurrenceProcessor は DwcRecord を buffer 用の OccurrenceRaw に変換します。
// 値の正規化は行わず、ソースの文字列をそのまま保持します。
type OccurrenceProcessor struct {
	now     func() time.Time
	dataset string
}

func NewOccurrenceProcessor() *OccurrenceProcessor {
	return &OccurrenceProcessor{now: time.Now}
}

func (p *OccurrenceProcessor) Init(ctx context.Context) error {
	p.dataset = ""
	return nil
}

// Process は一レコードを変換します。id の無いレコードはスキップ可能な ProcessError、
// 全ての列が空のレコードは ErrFilterItem になります。
func (p *OccurrenceProcessor) Process(ctx context.Context, rec entity.DwcRecord, sc *core.SharedContext) (entity.OccurrenceRaw, error) {
	if p.dataset == "" {
		ds, err := sc.String(core.ParamDatasetShortname)
		if err != nil {
			return entity.OccurrenceRaw{}, err
		}
		p.dataset = ds
	}

	if isBlank(rec) {
		return entity.OccurrenceRaw{}, batchProcessor.ErrFilterItem
	}
	id := rec.Get("id")
	if id == "" {
		id = rec.Get("occurrenceID")
	}
	if id == "" {
		return entity.OccurrenceRaw{}, exception.NewProcessError("occurrence_processor", fmt.Sprintf("line %d", rec.Line), errMissingID, true)
	}

	return entity.OccurrenceRaw{
		DwcaID:           id,
		SourceFileID:     p.dataset,
		CatalogNumber:    rec.Get("catalogNumber"),
		InstitutionCode:  rec.Get("institutionCode"),
		CollectionCode:   rec.Get("collectionCode"),
		BasisOfRecord:    rec.Get("basisOfRecord"),
		ScientificName:   rec.Get("scientificName"),
		Country:          rec.Get("country"),
		StateProvince:    rec.Get("stateProvince"),
		Locality:         rec.Get("locality"),
		DecimalLatitude:  rec.Get("decimalLatitude"),
		DecimalLongitude: rec.Get("decimalLongitude"),
		EventDate:        rec.Get("eventDate"),
		RecordedBy:       rec.Get("recordedBy"),
		LoadedAt:         p.now(),
	}, nil
}

func (p *OccurrenceProcessor) Destroy(ctx context.Context) {
	logger.Debugf("OccurrenceProcessor (dataset: %s) を破棄します。", p.dataset)
	p.dataset = ""
}

func isBlank(rec entity.DwcRecord) bool {
	for _, v := range rec.Fields {
		if v != "" {
			return false
		}
	}
	return true
}

var _ batchProcessor.ItemProcessor[entity.DwcRecord, entity.OccurrenceRaw] = (*OccurrenceProcessor)(nil)
