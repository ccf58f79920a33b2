// Command eastseanode is the core binary: it parses the node's command
// line, wires a coordinator.Node, and either runs until a signal arrives
// or, under --demo, runs a scripted two-node-in-process bootstrap-and-mine
// sequence and exits. Grounded on the teacher's empower1d: a runNode-style
// initialization function separated from main so tests can drive it
// directly, and the same os/signal shutdown channel shape.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/kjaylee/eastsea-node/internal/bootstrap"
	"github.com/kjaylee/eastsea-node/internal/config"
	"github.com/kjaylee/eastsea-node/internal/coordinator"
	"github.com/kjaylee/eastsea-node/internal/logctx"
	"github.com/kjaylee/eastsea-node/internal/rpc"
)

var log = logctx.Logger("MAIN")

// runNode parses argv, constructs and starts a Node, and returns it
// running. Separated from main so tests can drive the sequence directly
// without touching os.Args or process signals.
func runNode(argv []string) (*coordinator.Node, *rpc.Service, error) {
	cfg, err := config.Parse(argv)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	n, err := coordinator.New(cfg, addr, nil, "")
	if err != nil {
		return nil, nil, fmt.Errorf("constructing node: %w", err)
	}

	if cfg.BootstrapPort != 0 {
		n.SetSeeds([]bootstrap.PeerAddr{{Host: "127.0.0.1", Port: cfg.BootstrapPort}})
	}

	if err := n.Start(context.Background()); err != nil {
		return nil, nil, fmt.Errorf("starting node: %w", err)
	}

	return n, rpc.New(n), nil
}

func main() {
	logctx.Init()

	if containsDemoFlag(os.Args[1:]) {
		if err := runDemo(); err != nil {
			log.Errorf("demo failed: %v", err)
			os.Exit(1)
		}
		log.Infof("demo completed successfully")
		os.Exit(0)
	}

	node, _, err := runNode(os.Args[1:])
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.Errorf("startup failed: %v", err)
		os.Exit(1)
	}

	log.Infof("node running on %s, press Ctrl+C to stop", node.SelfAddr)
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)
	sig := <-shutdownCh
	log.Infof("caught signal %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := node.Shutdown(ctx); err != nil {
		log.Errorf("shutdown error: %v", err)
		os.Exit(1)
	}
	log.Infof("shut down gracefully")
}

func containsDemoFlag(args []string) bool {
	for _, a := range args {
		if a == "--demo" {
			return true
		}
	}
	return false
}
