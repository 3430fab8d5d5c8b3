package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/JonMunkholm/equipstat/internal/cli"
	"github.com/JonMunkholm/equipstat/internal/core"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		msg := err.Error()
		if !core.IsValidationError(err) && core.IsUserFacing(err) {
			msg = core.FormatUserError(err)
		}
		fmt.Fprintln(os.Stderr, "Error:", msg)
		os.Exit(1)
	}
}
