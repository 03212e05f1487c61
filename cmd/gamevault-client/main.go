package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantumauth-io/gamevault-client/internal/setup"
	"github.com/quantumauth-io/gamevault-client/internal/vaulterr"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(newCLI(setup.BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	}))

	if err := root.ExecuteContext(ctx); err != nil {
		if !vaulterr.Silent(err) {
			_, _ = fmt.Fprintln(os.Stderr, "error:", describeError(err))
		}
		stop()
		os.Exit(1)
	}
}

func describeError(err error) string {
	if vaulterr.KindOf(err) == vaulterr.KindUnknown {
		return err.Error()
	}
	return vaulterr.UserMessage(err)
}
