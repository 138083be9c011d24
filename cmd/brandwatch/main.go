package main

import (
	"context"
	"os"

	"charm.land/fang/v2"

	"github.com/FranksOps/brandwatch/internal/cli"
)

func main() {
	rootCmd := cli.NewRootCmd()
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
