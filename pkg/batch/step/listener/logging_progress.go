package listener

import (
	core "harvester/pkg/batch/job/core"
	"harvester/pkg/batch/util/logger"
)

// LoggingProgressListener は進捗を一定の割合ごとにログ出力する ItemProgressListener の実装です。
// 同じ値の通知が続いても、前回出力から stepPercent 以上進まない限り出力しません。
type LoggingProgressListener struct {
	stepPercent int
	lastPercent int
}

// NewLoggingProgressListener は stepPercent 刻みで出力するリスナーを作成します。0 以下の場合は毎回出力します。
func NewLoggingProgressListener(stepPercent int) *LoggingProgressListener {
	return &LoggingProgressListener{stepPercent: stepPercent, lastPercent: -1}
}

func (l *LoggingProgressListener) OnProgress(label string, current, total int) {
	percent := 100
	if total > 0 {
		percent = current * 100 / total
	}
	if l.stepPercent > 0 && l.lastPercent >= 0 && percent-l.lastPercent < l.stepPercent && percent < 100 {
		logger.Debugf("進捗 [%s] %d/%d", label, current, total)
		return
	}
	l.lastPercent = percent
	logger.Infof("進捗 [%s] %d/%d (%d%%)", label, current, total, percent)
}

var _ core.ItemProgressListener = (*LoggingProgressListener)(nil)
