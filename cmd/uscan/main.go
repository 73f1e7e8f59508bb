package main

import (
	"log/slog"
	"os"

	"github.com/uscan-cli/uscan/cmd/uscan/commands"
)

func main() {
	// Structured logs go to stderr; stdout is for user-facing output.
	// The level var is adjusted by the --quiet/--debug flags.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: commands.LogLevel,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
