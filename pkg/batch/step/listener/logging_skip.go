package listener

import (
	"context"

	core "harvester/pkg/batch/job/core"
	"harvester/pkg/batch/util/logger"
)

// LoggingSkipListener はアイテムスキップイベントをログ出力する SkipListener の実装です。
type LoggingSkipListener struct{}

func NewLoggingSkipListener() *LoggingSkipListener {
	return &LoggingSkipListener{}
}

// OnSkipProcess は処理中にスキップされたアイテムに対して呼び出されます。
func (l *LoggingSkipListener) OnSkipProcess(ctx context.Context, item interface{}, err error) {
	logger.Warnf("アイテムの処理中にスキップされました (アイテム: %+v): %v", item, err)
}

var _ core.SkipListener = (*LoggingSkipListener)(nil)
