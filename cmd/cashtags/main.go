package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/yanqian/cashtags/internal/interface/cli"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand()
	root.Version = version
	if err := root.ExecuteContext(ctx); err != nil {
		root.PrintErrln("Error:", err)
		stop()
		os.Exit(1)
	}
}
