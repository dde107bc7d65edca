package step

import (
	"context"
	"errors"
	"fmt"
	"io"

	core "harvester/pkg/batch/job/core"
	"harvester/pkg/batch/step/processor"
	"harvester/pkg/batch/step/reader"
	"harvester/pkg/batch/step/writer"
	exception "harvester/pkg/batch/util/exception"
	logger "harvester/pkg/batch/util/logger"
)

// CompletionHook はチャンクステップが正常終了した後に呼び出され、後続ステップ向けの値を SharedContext に公開します。
type CompletionHook func(ctx context.Context, sc *core.SharedContext, se *core.StepExecution) error

// ChunkStep はチャンク指向のステップを実装します。
// Reader から最大 chunkSize 件を読み込み、一件ずつ Processor で変換し、バッチ単位で Writer に書き込みます。
// キャンセルはバッチの境界で確認されます。
type ChunkStep[I, O any] struct {
	baseStep
	reader    reader.ItemReader[I]
	processor processor.ItemProcessor[I, O]
	writer    writer.ItemWriter[O]
	chunkSize int
	skipLimit int

	requiredParams   []core.SharedParameter
	processListeners []core.ItemProcessListener
	writeListeners   []core.ItemWriteListener
	skipListeners    []core.SkipListener
	completionHooks  []CompletionHook

	processorReady bool
}

// ChunkStepOption は ChunkStep の設定を変更します。
type ChunkStepOption[I, O any] func(*ChunkStep[I, O])

// WithSkipLimit はスキップ可能な ProcessError を読み飛ばす上限件数を設定します。
func WithSkipLimit[I, O any](limit int) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.skipLimit = limit }
}

// WithRequiredParams は PreStep で存在を確認する SharedContext のキーを設定します。
func WithRequiredParams[I, O any](keys ...core.SharedParameter) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.requiredParams = append(cs.requiredParams, keys...) }
}

func WithChunkStepListener[I, O any](l core.StepExecutionListener) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.AddStepListener(l) }
}

func WithProcessListener[I, O any](l core.ItemProcessListener) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.processListeners = append(cs.processListeners, l) }
}

func WithWriteListener[I, O any](l core.ItemWriteListener) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.writeListeners = append(cs.writeListeners, l) }
}

func WithSkipListener[I, O any](l core.SkipListener) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.skipListeners = append(cs.skipListeners, l) }
}

// WithCompletionHook は正常終了時に呼び出すフックを追加します。
func WithCompletionHook[I, O any](hook CompletionHook) ChunkStepOption[I, O] {
	return func(cs *ChunkStep[I, O]) { cs.completionHooks = append(cs.completionHooks, hook) }
}

// NewChunkStep は新しい ChunkStep のインスタンスを作成します。
func NewChunkStep[I, O any](
	name string,
	r reader.ItemReader[I],
	p processor.ItemProcessor[I, O],
	w writer.ItemWriter[O],
	chunkSize int,
	opts ...ChunkStepOption[I, O],
) *ChunkStep[I, O] {
	cs := &ChunkStep[I, O]{
		baseStep:  baseStep{name: name},
		reader:    r,
		processor: p,
		writer:    w,
		chunkSize: chunkSize,
	}
	for _, opt := range opts {
		opt(cs)
	}
	return cs
}

// PreStep は部品と必須パラメータを検証し、Processor を初期化します。
func (cs *ChunkStep[I, O]) PreStep(ctx context.Context, sc *core.SharedContext) error {
	if cs.reader == nil || cs.processor == nil || cs.writer == nil {
		return exception.NewConfigurationError(cs.name, fmt.Sprintf("ステップ '%s' の Reader, Processor, Writer のいずれかが設定されていません", cs.name))
	}
	if cs.chunkSize <= 0 {
		return exception.NewConfigurationError(cs.name, fmt.Sprintf("チャンクサイズは 1 以上である必要があります: %d", cs.chunkSize))
	}
	if sc == nil {
		return exception.NewConfigurationError(cs.name, "SharedContext が nil です")
	}
	if err := cs.requireParams(sc, cs.requiredParams); err != nil {
		return err
	}
	cs.sc = sc

	if err := cs.processor.Init(ctx); err != nil {
		return exception.NewBatchError(cs.name, "Processor の初期化に失敗しました", err, false, false)
	}
	cs.processorReady = true
	return nil
}

// DoStep はバッチ単位の読み込み、変換、書き込みを終端まで繰り返します。
func (cs *ChunkStep[I, O]) DoStep(ctx context.Context, se *core.StepExecution) (err error) {
	if err := cs.requireContext(); err != nil {
		return err
	}
	se.MarkAsStarted()
	cs.notifyBeforeStep(ctx, se)
	defer func() {
		finish(se, err)
		cs.notifyAfterStep(ctx, se)
	}()

	if err = cs.reader.Open(ctx, cs.sc); err != nil {
		return err
	}
	defer func() {
		if cerr := cs.reader.Close(ctx); cerr != nil {
			logger.Warnf("ステップ '%s': Reader のクローズに失敗しました: %v", cs.name, cerr)
		}
	}()

	if err = cs.writer.OpenWriter(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := cs.writer.CloseWriter(ctx); cerr != nil {
			logger.Warnf("ステップ '%s': Writer のクローズに失敗しました: %v", cs.name, cerr)
		}
	}()

	for {
		if err = cs.stopRequested(ctx); err != nil {
			logger.Warnf("ステップ '%s' はバッチ境界でキャンセルされました。読込済み: %d", cs.name, se.ReadCount)
			return err
		}

		items, eof, rerr := cs.readBatch(ctx, se)
		if rerr != nil {
			return rerr
		}

		outputs, perr := cs.processBatch(ctx, items, se)
		if perr != nil {
			return perr
		}

		if len(outputs) > 0 {
			if werr := cs.writer.WriteBatch(ctx, outputs); werr != nil {
				se.RollbackCount++
				for _, l := range cs.writeListeners {
					l.OnWriteError(ctx, toInterfaceSlice(outputs), werr)
				}
				return werr
			}
			se.CommitCount++
			se.WriteCount += len(outputs)
			logger.Debugf("ステップ '%s': %d 件を書き込みました。累計 %d 件", cs.name, len(outputs), se.WriteCount)
		}

		if eof {
			break
		}
	}

	for _, hook := range cs.completionHooks {
		if err = hook(ctx, cs.sc, se); err != nil {
			return err
		}
	}
	return nil
}

// readBatch は最大 chunkSize 件を読み込みます。終端に達した場合は eof が true になります。
func (cs *ChunkStep[I, O]) readBatch(ctx context.Context, se *core.StepExecution) ([]I, bool, error) {
	items := make([]I, 0, cs.chunkSize)
	for len(items) < cs.chunkSize {
		item, err := cs.reader.Read(ctx)
		if errors.Is(err, io.EOF) {
			return items, true, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, exception.NewCancelledError(cs.name, "読み込み中にキャンセルされました", err)
			}
			var be *exception.BatchError
			if !errors.As(err, &be) {
				err = exception.NewSourceError(cs.name, "アイテムの読み込みに失敗しました", err)
			}
			return nil, false, err
		}
		items = append(items, item)
		se.ReadCount++
	}
	return items, false, nil
}

// processBatch はバッチ内のアイテムを順に変換します。スキップ上限を超えた ProcessError はバッチ全体を中断します。
func (cs *ChunkStep[I, O]) processBatch(ctx context.Context, items []I, se *core.StepExecution) ([]O, error) {
	outputs := make([]O, 0, len(items))
	for i, item := range items {
		out, err := cs.processor.Process(ctx, item, cs.sc)
		if err == nil {
			outputs = append(outputs, out)
			continue
		}
		if errors.Is(err, processor.ErrFilterItem) {
			se.FilterCount++
			continue
		}

		var be *exception.BatchError
		if !errors.As(err, &be) {
			err = exception.NewProcessError(cs.name, fmt.Sprintf("#%d", se.ReadCount-len(items)+i+1), err, false)
		}
		for _, l := range cs.processListeners {
			l.OnProcessError(ctx, item, err)
		}
		if exception.IsSkippable(err) && se.SkipCount < cs.skipLimit {
			se.SkipCount++
			for _, l := range cs.skipListeners {
				l.OnSkipProcess(ctx, item, err)
			}
			continue
		}
		return nil, err
	}
	return outputs, nil
}

// PostStep は Processor の Destroy を呼び出します。失敗したステップでも必ず呼び出されます。
func (cs *ChunkStep[I, O]) PostStep(ctx context.Context) {
	if !cs.processorReady {
		return
	}
	cs.processorReady = false
	cs.processor.Destroy(ctx)
	logger.Debugf("ステップ '%s' の Processor を破棄しました。", cs.name)
}

// toInterfaceSlice はリスナーに渡すためにスライスを []interface{} に変換します。
func toInterfaceSlice[T any](slice []T) []interface{} {
	result := make([]interface{}, len(slice))
	for i, v := range slice {
		result[i] = v
	}
	return result
}

var _ core.Step = (*ChunkStep[any, any])(nil)
