package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/hmo-callconsole/backend/internal/config"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/handler"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/model/call"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/service/backend"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	targets := call.NewMemoryStore(call.SeedTargets())

	adapter, err := backend.New(ctx, backendConfig(cfg, targets))
	if err != nil {
		log.Fatalf("failed to initialize call backend: %v", err)
	}
	defer adapter.Close()

	if cfg.Backend.Realtime() {
		log.Printf("call backend: realtime (%s)", cfg.Backend.Endpoint)
	} else {
		log.Println("CALL_BACKEND_TOKEN 未配置，使用模拟呼叫后端")
	}

	controller := session.NewController(adapter)
	defer controller.Close()

	router := handler.NewRouter(controller, targets)

	startServer(ctx, cfg.Server, router)
}

// backendConfig maps environment configuration onto the adapter factory.
func backendConfig(cfg *config.Config, targets call.TargetStore) backend.Config {
	if cfg.Backend.Realtime() {
		opts := backend.DefaultRealtimeOptions()
		opts.HandshakeTimeout = cfg.Backend.DialTimeout
		opts.PingInterval = cfg.Backend.PingInterval
		return backend.Config{
			Kind:     backend.KindRealtime,
			Endpoint: cfg.Backend.Endpoint,
			Token:    cfg.Backend.Token,
			Realtime: opts,
		}
	}

	return backend.Config{
		Kind: backend.KindSimulated,
		Simulator: backend.SimulatorConfig{
			TickInterval:    cfg.Simulator.TickInterval,
			TranscriptEvery: cfg.Simulator.TranscriptEvery,
			TransferDelay:   cfg.Simulator.TransferDelay,
			Targets:         targets,
		},
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("HMO call console listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
