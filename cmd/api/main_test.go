package main

import (
	"testing"
	"time"

	"github.com/zhouzirui/hmo-callconsole/backend/internal/config"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/model/call"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/service/backend"
)

func TestBackendConfigSelectsSimulatorWithoutToken(t *testing.T) {
	cfg := &config.Config{
		Simulator: config.SimulatorConfig{TickInterval: time.Second, TranscriptEvery: 8, TransferDelay: time.Second},
	}

	got := backendConfig(cfg, call.NewMemoryStore(nil))
	if got.Kind != backend.KindSimulated {
		t.Fatalf("expected simulated backend, got %s", got.Kind)
	}
	if got.Simulator.Targets == nil || got.Simulator.TranscriptEvery != 8 {
		t.Fatalf("unexpected simulator config: %+v", got.Simulator)
	}
}

func TestBackendConfigSelectsRealtimeWithToken(t *testing.T) {
	cfg := &config.Config{
		Backend: config.BackendConfig{
			Token:        "tok",
			Endpoint:     "wss://pbx.example.com/ws",
			DialTimeout:  3 * time.Second,
			PingInterval: 15 * time.Second,
		},
	}

	got := backendConfig(cfg, call.NewMemoryStore(nil))
	if got.Kind != backend.KindRealtime || got.Token != "tok" || got.Endpoint != "wss://pbx.example.com/ws" {
		t.Fatalf("unexpected realtime config: %+v", got)
	}
	if got.Realtime.HandshakeTimeout != 3*time.Second || got.Realtime.PingInterval != 15*time.Second {
		t.Fatalf("unexpected realtime options: %+v", got.Realtime)
	}
}
