package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	core "harvester/pkg/batch/job/core"
	exception "harvester/pkg/batch/util/exception"
	logger "harvester/pkg/batch/util/logger"
)

const delimitedModule = "delimited_reader"

// RecordMapper はヘッダー行と一行分のフィールドからアイテムを組み立てます。
// line はヘッダーを 1 行目とした行番号です。
type RecordMapper[T any] func(header []string, fields []string, line int) (T, error)

// DelimitedFileReader は区切り文字形式のファイルを一行ずつ読み込む ItemReader です。
// ファイルパスは Open 時に SharedContext の pathKey から取得します。先頭行はヘッダーとして扱います。
type DelimitedFileReader[T any] struct {
	pathKey   core.SharedParameter
	delimiter rune
	mapper    RecordMapper[T]

	file   *os.File
	csv    *csv.Reader
	header []string
	line   int
}

// NewDelimitedFileReader は新しい DelimitedFileReader を作成します。
func NewDelimitedFileReader[T any](pathKey core.SharedParameter, delimiter rune, mapper RecordMapper[T]) *DelimitedFileReader[T] {
	return &DelimitedFileReader[T]{
		pathKey:   pathKey,
		delimiter: delimiter,
		mapper:    mapper,
	}
}

// NewTabFileReader はタブ区切りファイル用の DelimitedFileReader を作成します。
func NewTabFileReader[T any](pathKey core.SharedParameter, mapper RecordMapper[T]) *DelimitedFileReader[T] {
	return NewDelimitedFileReader(pathKey, '\t', mapper)
}

// Open はファイルを先頭から開き直し、ヘッダー行を読み込みます。
func (r *DelimitedFileReader[T]) Open(ctx context.Context, sc *core.SharedContext) error {
	path, err := sc.String(r.pathKey)
	if err != nil {
		return err
	}
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}

	f, err := os.Open(path)
	if err != nil {
		return exception.NewSourceError(delimitedModule, fmt.Sprintf("ファイル '%s' を開けませんでした", path), err)
	}
	cr := csv.NewReader(f)
	cr.Comma = r.delimiter
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		_ = f.Close()
		if errors.Is(err, io.EOF) {
			return exception.NewSourceError(delimitedModule, fmt.Sprintf("ファイル '%s' にヘッダー行がありません", path), err)
		}
		return exception.NewSourceError(delimitedModule, fmt.Sprintf("ファイル '%s' のヘッダー読み込みに失敗しました", path), err)
	}

	r.file = f
	r.csv = cr
	r.header = append([]string(nil), header...)
	r.line = 1
	logger.Debugf("ファイル '%s' を開きました。列数: %d", path, len(header))
	return nil
}

// Read は次の一行をアイテムに変換して返します。終端では io.EOF を返します。
func (r *DelimitedFileReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.csv == nil {
		return zero, exception.NewSourceError(delimitedModule, "Open が呼び出されていません", nil)
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	fields, err := r.csv.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return zero, io.EOF
		}
		return zero, exception.NewSourceError(delimitedModule, fmt.Sprintf("%d 行目の読み込みに失敗しました", r.line+1), err)
	}
	r.line++

	item, err := r.mapper(r.header, fields, r.line)
	if err != nil {
		return zero, exception.NewSourceError(delimitedModule, fmt.Sprintf("%d 行目を変換できませんでした", r.line), err)
	}
	return item, nil
}

// Close はファイルを閉じます。複数回呼び出しても安全です。
func (r *DelimitedFileReader[T]) Close(ctx context.Context) error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.csv = nil
	if err != nil {
		return exception.NewSourceError(delimitedModule, "ファイルのクローズに失敗しました", err)
	}
	return nil
}

// HeaderIndex はヘッダー名から列位置への対応表を作ります。
func HeaderIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	return idx
}

var _ ItemReader[[]string] = (*DelimitedFileReader[[]string])(nil)
