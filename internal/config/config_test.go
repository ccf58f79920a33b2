package config

import "testing"

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]string{"8000"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.Port != 8000 {
		t.Fatalf("Port = %d, want 8000", cfg.Port)
	}
	if cfg.RPCPort != 8545 {
		t.Fatalf("RPCPort = %d, want 8545", cfg.RPCPort)
	}
	if cfg.PingIntervalMS != 30000 || cfg.PongTimeoutMS != 60000 {
		t.Fatalf("keepalive defaults wrong: ping=%d pong=%d", cfg.PingIntervalMS, cfg.PongTimeoutMS)
	}
	if cfg.Difficulty != 4 || cfg.MiningReward != 50 {
		t.Fatalf("mining defaults wrong: difficulty=%d reward=%d", cfg.Difficulty, cfg.MiningReward)
	}
	if cfg.Alpha != 3 || cfg.KBucketSize != 20 {
		t.Fatalf("dht defaults wrong: alpha=%d k=%d", cfg.Alpha, cfg.KBucketSize)
	}
}

func TestParseBootstrapPortPositional(t *testing.T) {
	cfg, err := Parse([]string{"8001", "8000"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.BootstrapPort != 8000 {
		t.Fatalf("BootstrapPort = %d, want 8000", cfg.BootstrapPort)
	}
}

func TestValidateRejectsZeroPort(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero port")
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg, err := Parse([]string{"8000"})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if cfg.PingInterval().Seconds() != 30 {
		t.Fatalf("PingInterval() = %v, want 30s", cfg.PingInterval())
	}
	if cfg.DHTTTL().Hours() != 1 {
		t.Fatalf("DHTTTL() = %v, want 1h", cfg.DHTTTL())
	}
}
