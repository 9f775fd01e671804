package main

import (
	"log/slog"

	"github.com/aashish-nayak/WatchTOgather/internal/cli"
	"github.com/aashish-nayak/WatchTOgather/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init(slog.LevelWarn)
	cli.Execute()
}
