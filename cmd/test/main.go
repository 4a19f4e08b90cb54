// Command test sweeps every configured model through the resilience client, once with
// a plain generation and once streaming, and prints a pass/fail matrix.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	logger, err := glog.NewConsoleWithName("sweep", glog.LevelInfo)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("regression sweep failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
