package reader

import (
	"strings"

	"harvester/example/harvester/domain/entity"
	core "harvester/pkg/batch/job/core"
	batchReader "harvester/pkg/batch/step/reader"
)

// NewOccurrenceReader は DwC-A のコアファイル (occurrence.txt) を読み込む ItemReader を作成します。
// ファイルパスは SharedContext の DwcaPath から取得します。
func NewOccurrenceReader() *batchReader.DelimitedFileReader[entity.DwcRecord] {
	return batchReader.NewTabFileReader(core.ParamDwcaPath, mapDwcRecord)
}

// mapDwcRecord はヘッダーの用語名をキーにした DwcRecord を組み立てます。
// 用語が URI で書かれている場合は末尾の名前を使用します。足りない列は空文字になります。
func mapDwcRecord(header, fields []string, line int) (entity.DwcRecord, error) {
	rec := entity.DwcRecord{Line: line, Fields: make(map[string]string, len(header))}
	for i, term := range header {
		name := term
		if idx := strings.LastIndexAny(term, "/#"); idx >= 0 {
			name = term[idx+1:]
		}
		if i < len(fields) {
			rec.Fields[name] = strings.TrimSpace(fields[i])
		} else {
			rec.Fields[name] = ""
		}
	}
	return rec, nil
}
