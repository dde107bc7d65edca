package entity

import "time"

// DwcRecord は Darwin Core 形式のタブ区切りファイル一行分の生データです。
// キーはヘッダー行の用語名 (例: "scientificName") です。
type DwcRecord struct {
	Line   int
	Fields map[string]string
}

// Get は用語の値を返します。列が無い場合は空文字です。
func (r DwcRecord) Get(term string) string {
	return r.Fields[term]
}

// OccurrenceRaw は buffer.occurrence_raw に格納される未加工のオカレンスレコードです。
type OccurrenceRaw struct {
	DwcaID           string
	SourceFileID     string
	CatalogNumber    string
	InstitutionCode  string
	CollectionCode   string
	BasisOfRecord    string
	ScientificName   string
	Country          string
	StateProvince    string
	Locality         string
	DecimalLatitude  string
	DecimalLongitude string
	EventDate        string
	RecordedBy       string
	LoadedAt         time.Time
}
