// cmd/cannode/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/FabianPetersen/cantelemetry/config"
	"github.com/FabianPetersen/cantelemetry/node"
	"github.com/FabianPetersen/cantelemetry/scheduler"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: cannode <profile.yaml>")
	}

	// --------------------
	// Load + validate profile
	// --------------------

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		log.Fatalf("profile load failed: %v", err)
	}

	logger := node.NewLogger(cfg.Log, os.Stderr)
	logger.Info("profile loaded",
		"path", os.Args[1],
		"version", cfg.Version,
		"node", cfg.Node.ID,
		"bus", cfg.Bus.Driver,
	)

	// --------------------
	// Build + boot
	// --------------------

	n, err := node.Build(cfg, scheduler.SystemClock{}, logger)
	if err != nil {
		log.Fatalf("node build failed: %v", err)
	}
	defer n.Close()

	// A bus that fails to come up leaves the node running without telemetry.
	if err := n.Scheduler.Boot(); err != nil {
		logger.Error("boot finished without bus", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Scheduler.Run(ctx); err != nil {
		logger.Error("scheduler stopped", "error", err)
	}
	logger.Info("shutting down")
}
