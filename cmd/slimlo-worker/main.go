// Command slimlo-worker is the child process a Supervisor spawns: it owns
// exactly one embedded conversion engine for its entire lifetime and speaks
// the length-prefixed wire protocol over stdin/stdout. It never opens a
// listening socket and never talks to anything but its parent's pipes.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/ocx/slimlo/internal/engine"
	"github.com/ocx/slimlo/internal/workerproc"
)

func main() {
	enginePath := flag.String("engine-binary", "", "path to the soffice-compatible headless binary (default: look up \"soffice\" on PATH)")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil)).With("component", "slimlo-worker", "pid", os.Getpid())
	slog.SetDefault(log)

	eng := engine.NewSofficeEngine(*enginePath)
	loop := workerproc.New(os.Stdin, os.Stdout, eng, log)

	log.Info("worker starting")
	if err := loop.Run(); err != nil {
		log.Error("worker loop exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("worker exiting")
}
