// Package config defines the core binary's command-line surface and the
// default tunables named throughout §4, parsed with
// github.com/jessevdk/go-flags the way EXCCoin-exccd's exccd.conf/excctl
// parse their option structs.
package config

import (
	"fmt"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// Positional holds the two positional arguments the core binary accepts:
// a required listen port and an optional bootstrap peer port on loopback.
type Positional struct {
	Port          uint16 `positional-arg-name:"port" description:"TCP port this node listens on"`
	BootstrapPort uint16 `positional-arg-name:"bootstrap_port" optional:"yes" description:"optional loopback port of a seed node to bootstrap from"`
}

// Config is the full set of flags and defaults the core binary accepts.
// Durations are expressed on the command line in milliseconds or, for the
// flags ending in -seconds, in seconds (go-flags has no native
// time.Duration kind) and converted by the accessor methods below.
type Config struct {
	Positional `positional-args:"yes"`

	RPCPort uint16 `long:"rpc-port" default:"8545" description:"in-process RPC listen port placeholder"`
	Demo    bool   `long:"demo" description:"run a scripted two-node-in-process sequence and exit"`

	DHTSalt string `long:"dht-salt" description:"opt-in salt folded into this node's DHT-Id, escaping the documented ip+port collision"`

	PingIntervalMS int `long:"ping-interval-ms" default:"30000" description:"keepalive ping interval"`
	PongTimeoutMS  int `long:"pong-timeout-ms" default:"60000" description:"keepalive pong timeout before a peer is marked Unresponsive"`

	SlotDurationMS int    `long:"slot-duration-ms" default:"400" description:"wall-clock slot window"`
	TicksPerSlot   uint64 `long:"ticks-per-slot" default:"64" description:"PoH ticks emitted per slot"`

	Difficulty   uint32 `long:"difficulty" default:"4" description:"required leading zero hex characters in a mined block's hash"`
	MiningReward uint64 `long:"mining-reward" default:"50" description:"reward credited to the synthetic reward transaction"`

	DHTTTLSeconds     int `long:"dht-ttl-seconds" default:"3600" description:"lifetime of a DHT STORE'd value absent refresh"`
	Alpha             int `long:"alpha" default:"3" description:"DHT lookup concurrency factor; parsed but not read by the node, lookups use dht.Alpha (3)"`
	KBucketSize       int `long:"k-bucket-size" default:"20" description:"k-bucket capacity; parsed but not read by the node, the routing table uses dht.K (20)"`

	BootstrapReannounceSeconds int `long:"bootstrap-reannounce-seconds" default:"300" description:"interval between BootstrapAnnounce re-sends"`
	MaxStartupOutboundDials    int `long:"max-startup-outbound-dials" default:"8" description:"cap on new outbound dials performed at startup; parsed but not read by the node, the bootstrap client uses bootstrap.MaxStartupOutboundDials (8)"`

	LookupTimeoutMS  int `long:"lookup-timeout-ms" default:"2000" description:"per-RPC timeout for DHT lookups and bootstrap calls; parsed but not read by the node, lookups use dht.LookupTimeout (2s)"`
	SweepIntervalMS  int `long:"sweep-interval-ms" default:"60000" description:"periodic DHT store purge interval"`

	SendQueueSize     int `long:"send-queue-size" default:"1024" description:"bounded per-peer outbound queue capacity"`
	DrainDeadlineMS   int `long:"drain-deadline-ms" default:"2000" description:"graceful shutdown queue drain deadline"`
}

// Parse parses argv (excluding the program name) into a Config, applying
// every default above. It returns a *flags.Error with ErrorType
// ErrHelp when -h/--help was requested, matching go-flags' own contract.
func Parse(argv []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(argv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PingInterval returns the keepalive ping interval as a time.Duration.
func (c *Config) PingInterval() time.Duration { return time.Duration(c.PingIntervalMS) * time.Millisecond }

// PongTimeout returns the keepalive pong timeout as a time.Duration.
func (c *Config) PongTimeout() time.Duration { return time.Duration(c.PongTimeoutMS) * time.Millisecond }

// SlotDuration returns the PoH slot window as a time.Duration.
func (c *Config) SlotDuration() time.Duration { return time.Duration(c.SlotDurationMS) * time.Millisecond }

// DHTTTL returns the DHT value TTL as a time.Duration.
func (c *Config) DHTTTL() time.Duration { return time.Duration(c.DHTTTLSeconds) * time.Second }

// BootstrapReannounceInterval returns the re-announce interval as a
// time.Duration.
func (c *Config) BootstrapReannounceInterval() time.Duration {
	return time.Duration(c.BootstrapReannounceSeconds) * time.Second
}

// LookupTimeout returns the per-RPC DHT/bootstrap timeout as a
// time.Duration.
func (c *Config) LookupTimeout() time.Duration { return time.Duration(c.LookupTimeoutMS) * time.Millisecond }

// SweepInterval returns the DHT store purge interval as a time.Duration.
func (c *Config) SweepInterval() time.Duration { return time.Duration(c.SweepIntervalMS) * time.Millisecond }

// DrainDeadline returns the graceful-shutdown drain deadline as a
// time.Duration.
func (c *Config) DrainDeadline() time.Duration { return time.Duration(c.DrainDeadlineMS) * time.Millisecond }

// Validate checks the parsed config for the ConfigInvalid exit condition
// §7 names: a zero listen port is never valid.
func (c *Config) Validate() error {
	if c.Port == 0 {
		return fmt.Errorf("config: port must be nonzero")
	}
	return nil
}
