package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ログレベルは実行中に SetLogLevel で切り替えられます。
var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

var sugar = newSugaredLogger()

func newSugaredLogger() *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// SetLogLevel はログレベルを設定します。
func SetLogLevel(lvl string) {
	switch strings.ToUpper(lvl) {
	case "DEBUG":
		level.SetLevel(zapcore.DebugLevel)
	case "INFO":
		level.SetLevel(zapcore.InfoLevel)
	case "WARN":
		level.SetLevel(zapcore.WarnLevel)
	case "ERROR":
		level.SetLevel(zapcore.ErrorLevel)
	case "FATAL":
		level.SetLevel(zapcore.FatalLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
		sugar.Warnf("不明なログレベル '%s' が指定されました。INFO レベルで続行します。", lvl)
	}
}

// Level は現在のログレベル名を返します。
func Level() string {
	return strings.ToUpper(level.Level().String())
}

// Sync はバッファされたログをフラッシュします。
func Sync() {
	if err := sugar.Sync(); err != nil {
		// stderr への Sync は一部の環境で EINVAL を返す
		fmt.Fprintf(os.Stderr, "logger sync: %v\n", err)
	}
}

// Debugf は DEBUG レベルのログを出力します。
func Debugf(format string, v ...interface{}) {
	sugar.Debugf(format, v...)
}

// Infof は INFO レベルのログを出力します。
func Infof(format string, v ...interface{}) {
	sugar.Infof(format, v...)
}

// Warnf は WARN レベルのログを出力します。
func Warnf(format string, v ...interface{}) {
	sugar.Warnf(format, v...)
}

// Errorf は ERROR レベルのログを出力します。
func Errorf(format string, v ...interface{}) {
	sugar.Errorf(format, v...)
}

// Fatalf は FATAL レベルのログを出力し、プログラムを終了します。
func Fatalf(format string, v ...interface{}) {
	sugar.Fatalf(format, v...)
}
