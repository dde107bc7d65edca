package core

import (
	"fmt"
	"strings"
	"sync"

	exception "harvester/pkg/batch/util/exception"
)

// SharedParameter は SharedContext のキーとなる閉じた列挙です。
type SharedParameter string

const (
	ParamNumberOfRecords  SharedParameter = "NUMBER_OF_RECORDS"
	ParamDatasetShortname SharedParameter = "DATASET_SHORTNAME"
	ParamCallback         SharedParameter = "CALLBACK"
	ParamResourceID       SharedParameter = "RESOURCE_ID"
	ParamDwcaPath         SharedParameter = "DWCA_PATH"
	ParamArchiveURL       SharedParameter = "ARCHIVE_URL"
)

var knownParameters = []SharedParameter{
	ParamNumberOfRecords,
	ParamDatasetShortname,
	ParamCallback,
	ParamResourceID,
	ParamDwcaPath,
	ParamArchiveURL,
}

// ParseSharedParameter は文字列を SharedParameter に変換します。
// 大文字小文字とアンダースコアは区別しないので DWCA_PATH と DwcaPath は同じキーになります。
func ParseSharedParameter(s string) (SharedParameter, error) {
	want := normalizeParameter(s)
	for _, p := range knownParameters {
		if normalizeParameter(string(p)) == want {
			return p, nil
		}
	}
	return "", exception.NewConfigurationError("shared_context", fmt.Sprintf("不明なパラメータです: %s", s))
}

func normalizeParameter(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", ""))
}

// SharedContext はジョブの実行期間中に共有される型付きのキー-値ストアです。
// ステップは順番に実行されるため書き込みは一度に一つのステップからのみ行われますが、
// 起動済みの ItemTask が別ゴルーチンから読み出すためロックで保護しています。
// タスクが参照しているキーを後続のステップが上書きしてはいけません。
type SharedContext struct {
	mu     sync.RWMutex
	values map[SharedParameter]interface{}
}

// NewSharedContext は空の SharedContext を作成します。
func NewSharedContext() *SharedContext {
	return &SharedContext{values: make(map[SharedParameter]interface{})}
}

// Put は値を設定します。
func (sc *SharedContext) Put(key SharedParameter, value interface{}) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.values[key] = value
}

// Get は値を取得します。
func (sc *SharedContext) Get(key SharedParameter) (interface{}, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	v, ok := sc.values[key]
	return v, ok
}

// Has はキーが存在するかどうかを返します。
func (sc *SharedContext) Has(key SharedParameter) bool {
	_, ok := sc.Get(key)
	return ok
}

// Delete はキーを削除します。
func (sc *SharedContext) Delete(key SharedParameter) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.values, key)
}

func missing(key SharedParameter) error {
	return exception.NewConfigurationError("shared_context", fmt.Sprintf("必須パラメータ %s が設定されていません", key))
}

func wrongShape(key SharedParameter, want string, got interface{}) error {
	return exception.NewConfigurationError("shared_context", fmt.Sprintf("パラメータ %s の型が不正です: 期待値 %s, 実際 %T", key, want, got))
}

// Int は整数値を取得します。int 以外の整数型も受け付けます。
// 存在しない場合や型が不正な場合は Configuration エラーを返します。
func (sc *SharedContext) Int(key SharedParameter) (int, error) {
	v, ok := sc.Get(key)
	if !ok || v == nil {
		return 0, missing(key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	default:
		return 0, wrongShape(key, "int", v)
	}
}

// String は空でない文字列値を取得します。
func (sc *SharedContext) String(key SharedParameter) (string, error) {
	v, ok := sc.Get(key)
	if !ok || v == nil {
		return "", missing(key)
	}
	s, isString := v.(string)
	if !isString {
		return "", wrongShape(key, "string", v)
	}
	if s == "" {
		return "", missing(key)
	}
	return s, nil
}

// CallbackValue は Callback を取得します。
func (sc *SharedContext) CallbackValue(key SharedParameter) (Callback, error) {
	v, ok := sc.Get(key)
	if !ok || v == nil {
		return nil, missing(key)
	}
	cb, isCallback := v.(Callback)
	if !isCallback {
		return nil, wrongShape(key, "core.Callback", v)
	}
	return cb, nil
}

// Snapshot は現在の値のコピーを返します。Callback はログや永続化に向かないため除外します。
func (sc *SharedContext) Snapshot() map[SharedParameter]interface{} {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	out := make(map[SharedParameter]interface{}, len(sc.values))
	for k, v := range sc.values {
		if k == ParamCallback {
			continue
		}
		out[k] = v
	}
	return out
}
