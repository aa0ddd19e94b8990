package main

import (
	"context"
	"os"

	"github.com/outofforest/logger"
	"go.uber.org/zap"

	"github.com/willibrandon/chronosnap/pkg/cli"
)

func main() {
	log := logger.New(logger.DefaultConfig)
	ctx := logger.WithLogger(context.Background(), log)

	if err := cli.NewRootCommand(cli.DelveConnector).ExecuteContext(ctx); err != nil {
		log.Error("Command failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}
