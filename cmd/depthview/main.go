package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"depthview/internal/app"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./depthview.yaml", "path to config (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	// The driver loop owns the main goroutine.
	runErr := a.Run(ctx)

	reason := app.StopDriverExit
	switch {
	case a.Err() != nil:
		reason = app.StopFatalError
	case ctx.Err() != nil:
		reason = app.StopSignal
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), a.ShutdownTimeout())
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if err := errors.Join(runErr, a.Err()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		stopCancel()
		os.Exit(1)
	}
}
