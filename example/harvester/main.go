package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "embed"

	"harvester/example/harvester/app"
	"harvester/pkg/batch/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte // application.yaml の内容をバイトスライスとして埋め込む

//go:embed resources/job.yaml
var embeddedJSL []byte // JSL YAML ファイルを埋め込む

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング (Ctrl+C などで安全に終了するため)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Warnf("シグナル '%v' を受信しました。ジョブの停止を試みます...", sig)
		cancel()
		<-sigChan
		os.Exit(1)
	}()

	rootCmd := app.NewRootCommand(embeddedConfig, embeddedJSL)
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Errorf("harvester failed: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}
