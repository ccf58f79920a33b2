package main

import (
	"context"
	"fmt"
	"time"

	"github.com/kjaylee/eastsea-node/internal/bootstrap"
	"github.com/kjaylee/eastsea-node/internal/chain"
	"github.com/kjaylee/eastsea-node/internal/config"
	"github.com/kjaylee/eastsea-node/internal/coordinator"
)

// runDemo spins up two coordinator.Nodes in-process on loopback, has the
// second bootstrap from the first, submits one transaction to the first,
// and waits for the second to observe the resulting mined block. It
// exercises the same startup/shutdown path runNode does, without needing
// two separate processes or real peers.
func runDemo() error {
	const (
		portA = 19990
		portB = 19991
	)

	cfgA := demoConfig(portA)
	nodeA, err := coordinator.New(cfgA, fmt.Sprintf("127.0.0.1:%d", portA), []string{"leader"}, "leader")
	if err != nil {
		return fmt.Errorf("constructing node A: %w", err)
	}

	cfgB := demoConfig(portB)
	nodeB, err := coordinator.New(cfgB, fmt.Sprintf("127.0.0.1:%d", portB), []string{"leader"}, "")
	if err != nil {
		return fmt.Errorf("constructing node B: %w", err)
	}
	nodeB.SetSeeds([]bootstrap.PeerAddr{{Host: "127.0.0.1", Port: portA}})

	if err := nodeA.Start(context.Background()); err != nil {
		return fmt.Errorf("starting node A: %w", err)
	}
	if err := nodeB.Start(context.Background()); err != nil {
		return fmt.Errorf("starting node B: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = nodeA.Shutdown(ctx)
		_ = nodeB.Shutdown(ctx)
	}()

	log.Infof("demo: node A (leader) at %s, node B at %s bootstrapped from A", nodeA.SelfAddr, nodeB.SelfAddr)

	handle := nodeA.SubmitTransaction(chain.NewTransaction("alice", "bob", 10, 0))
	log.Infof("demo: submitted transaction, rpc_id=%s", handle)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if nodeB.Chain.Height() > 0 {
			log.Infof("demo: node B observed mined block, height=%d", nodeB.Chain.Height())
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("node B never observed a mined block, height=%d", nodeB.Chain.Height())
}

func demoConfig(port uint16) *config.Config {
	cfg := &config.Config{}
	cfg.Port = port
	cfg.SlotDurationMS = 50
	cfg.TicksPerSlot = 4
	cfg.Difficulty = 1
	cfg.MiningReward = 50
	cfg.DHTTTLSeconds = 3600
	cfg.Alpha = 3
	cfg.KBucketSize = 20
	cfg.BootstrapReannounceSeconds = 60
	cfg.MaxStartupOutboundDials = 8
	cfg.LookupTimeoutMS = 500
	cfg.SweepIntervalMS = 500
	cfg.SendQueueSize = 64
	cfg.DrainDeadlineMS = 500
	cfg.PingIntervalMS = 2000
	cfg.PongTimeoutMS = 4000
	return cfg
}
