package joboperator

import (
	"context"

	core "harvester/pkg/batch/job/core"
)

// JobOperator はジョブの起動と管理を行うためのインターフェースです。
type JobOperator interface {
	// Start は jobKind のジョブを新しく作成し、params を SharedContext に設定してから同期的に実行します。
	// ジョブが終了状態になった JobExecution を返します。
	Start(ctx context.Context, jobKind string, params map[core.SharedParameter]any) (*core.JobExecution, error)

	// Cancel は実行中のジョブにキャンセルを要求します。実行中のジョブが無い場合はエラーを返します。
	Cancel() error

	// GetStatus は実行中、または最後に実行された JobExecution を返します。一度も実行していない場合は nil です。
	GetStatus() *core.JobExecution

	// OnNodeError は処理ノードの異常通知を受け取り、実行中のジョブをキャンセルします。
	OnNodeError()
}
