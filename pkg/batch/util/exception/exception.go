package exception

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind はエラーの分類です。
type Kind string

const (
	KindInternal      Kind = "INTERNAL"
	KindConfiguration Kind = "CONFIGURATION"
	KindSource        Kind = "SOURCE"
	KindProcess       Kind = "PROCESS"
	KindWriter        Kind = "WRITER"
	KindQuery         Kind = "QUERY"
	KindTimeout       Kind = "TIMEOUT"
	KindCancelled     Kind = "CANCELLED"
)

// kindError は errors.Is で Kind を判定するための番兵です。
type kindError struct {
	kind Kind
}

func (k *kindError) Error() string {
	return strings.ToLower(string(k.kind)) + " error"
}

// errors.Is(err, exception.ErrTimeout) のように使用します。
var (
	ErrConfiguration error = &kindError{KindConfiguration}
	ErrSource        error = &kindError{KindSource}
	ErrProcess       error = &kindError{KindProcess}
	ErrWriter        error = &kindError{KindWriter}
	ErrQuery         error = &kindError{KindQuery}
	ErrTimeout       error = &kindError{KindTimeout}
	ErrCancelled     error = &kindError{KindCancelled}
)

// BatchError はバッチ処理中に発生するカスタムエラー型です。
// エラーの発生元モジュール、メッセージ、ラップされた元のエラー、分類、
// そしてリトライ可能か、スキップ可能かのフラグを保持します。
type BatchError struct {
	Module      string // エラーが発生したモジュール (例: "reader", "processor", "writer", "task")
	Message     string // エラーの簡潔な説明
	OriginalErr error  // ラップされた元のエラー
	Kind        Kind
	ItemID      string // ProcessError の場合のみ。処理に失敗したアイテムの識別子
	isRetryable bool
	isSkippable bool
	StackTrace  string // スタックトレース (デバッグ用)
}

func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// NewBatchError は新しい BatchError のインスタンスを作成します。Kind は INTERNAL になります。
func NewBatchError(module, message string, originalErr error, isRetryable, isSkippable bool) *BatchError {
	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		Kind:        KindInternal,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  captureStack(),
	}
}

// NewBatchErrorf はフォーマット文字列を使用して新しい BatchError のインスタンスを作成します。
// 引数の末尾が error の場合は OriginalErr として扱い、メッセージには含めません。
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	if n := len(a); n > 0 {
		if err, ok := a[n-1].(error); ok && strings.Count(format, "%") < n {
			originalErr = err
			a = a[:n-1]
		}
	}
	return NewBatchError(module, fmt.Sprintf(format, a...), originalErr, false, false)
}

func newKindError(kind Kind, module, message string, originalErr error) *BatchError {
	be := NewBatchError(module, message, originalErr, false, false)
	be.Kind = kind
	return be
}

// NewConfigurationError は必須パラメータの欠落や不正値を表すエラーを作成します。
func NewConfigurationError(module, message string) *BatchError {
	return newKindError(KindConfiguration, module, message, nil)
}

// NewSourceError はアイテム読み込み失敗を表すエラーを作成します。
func NewSourceError(module, message string, originalErr error) *BatchError {
	return newKindError(KindSource, module, message, originalErr)
}

// NewProcessError はアイテム単位の変換失敗を表すエラーを作成します。
// skippable が true の場合、スキップ上限の範囲内でステップはこのアイテムを読み飛ばせます。
func NewProcessError(module, itemID string, originalErr error, skippable bool) *BatchError {
	be := newKindError(KindProcess, module, fmt.Sprintf("アイテム '%s' の処理に失敗しました", itemID), originalErr)
	be.ItemID = itemID
	be.isSkippable = skippable
	return be
}

// NewWriterError は永続化失敗を表すエラーを作成します。
func NewWriterError(module, message string, originalErr error) *BatchError {
	be := newKindError(KindWriter, module, message, originalErr)
	be.isRetryable = true
	return be
}

// NewQueryError は完了確認クエリの失敗を表すエラーを作成します。
func NewQueryError(module, message string, originalErr error) *BatchError {
	return newKindError(KindQuery, module, message, originalErr)
}

// NewTimeoutError は停滞検知によるタイムアウトを表すエラーを作成します。
func NewTimeoutError(module, message string) *BatchError {
	return newKindError(KindTimeout, module, message, nil)
}

// NewCancelledError は協調的キャンセルによる中断を表すエラーを作成します。
func NewCancelledError(module, message string, originalErr error) *BatchError {
	return newKindError(KindCancelled, module, message, originalErr)
}

// Error は error インターフェースの実装です。
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap は errors.Unwrap のために元のエラーを返します。
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// Is は番兵エラーとの Kind 比較を行います。
func (e *BatchError) Is(target error) bool {
	ke, ok := target.(*kindError)
	return ok && e.Kind == ke.kind
}

// IsRetryable はこのエラーがリトライ可能かどうかを返します。
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable はこのエラーがスキップ可能かどうかを返します。
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// KindOf はエラーチェーン中で最も外側の BatchError の Kind を返します。
// BatchError を含まない場合は INTERNAL です。
func KindOf(err error) Kind {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// IsSkippable はエラーチェーン中の BatchError がスキップ可能かどうかを返します。
func IsSkippable(err error) bool {
	var be *BatchError
	return errors.As(err, &be) && be.IsSkippable()
}

// IsTemporary は一時的なエラーかどうかを判定します。
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset")
}
