package entity

import (
	"fmt"
	"strings"
)

// Resource は取り込み対象の DwC-A リソースです。
type Resource struct {
	ID           int64
	Name         string
	ArchiveURL   string
	SourceFileID string
}

// Validate は必須項目 (名前、アーカイブ URL、ソースファイル ID) が揃っているかを検証します。
func (r Resource) Validate() error {
	var missing []string
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(r.ArchiveURL) == "" {
		missing = append(missing, "archive_url")
	}
	if strings.TrimSpace(r.SourceFileID) == "" {
		missing = append(missing, "source_file_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("リソースの必須項目が不足しています: %s", strings.Join(missing, ", "))
	}
	return nil
}
