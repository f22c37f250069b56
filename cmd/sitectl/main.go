package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tansive/sitestore/internal/cli"
	"github.com/tansive/sitestore/internal/common/logtrace"
)

func init() {
	logtrace.InitLogger()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cli.Execute(ctx)
}
