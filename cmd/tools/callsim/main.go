package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/hmo-callconsole/backend/internal/handler"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/handler/relay"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/model/call"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/service/backend"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	rootCmd := &cobra.Command{
		Use:   "callsim",
		Short: "Simulated realtime call backend for the HMO call console",
	}
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// serveOptions 绑定 serve 子命令的参数
type serveOptions struct {
	addr            string
	token           string
	ringAfter       time.Duration
	tick            time.Duration
	transcriptEvery int
	transferDelay   time.Duration
}

func (o *serveOptions) relayConfig() relay.Config {
	token := o.token
	if token == "" {
		token = os.Getenv("CALL_BACKEND_TOKEN")
	}
	return relay.Config{
		Token:     token,
		RingAfter: o.ringAfter,
		Simulator: backend.SimulatorConfig{
			TickInterval:    o.tick,
			TranscriptEvery: o.transcriptEvery,
			TransferDelay:   o.transferDelay,
			Targets:         call.NewMemoryStore(call.SeedTargets()),
		},
	}
}

func serveCmd() *cobra.Command {
	return newServeCmd(&serveOptions{})
}

func newServeCmd(opts *serveOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the call protocol over WebSocket at /ws",
		RunE: func(cmd *cobra.Command, args []string) error {
			router := handler.NewRelayRouter(opts.relayConfig())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts.addr, router)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", ":8090", "Listen address")
	cmd.Flags().StringVar(&opts.token, "token", "", "Token agents must present (defaults to CALL_BACKEND_TOKEN)")
	cmd.Flags().DurationVar(&opts.ringAfter, "ring-after", 3*time.Second, "Delay before ringing a new call after connect or hang-up")
	cmd.Flags().DurationVar(&opts.tick, "tick", time.Second, "Elapsed-time tick interval")
	cmd.Flags().IntVar(&opts.transcriptEvery, "transcript-every", 8, "Emit an assistant transcript turn every N ticks")
	cmd.Flags().DurationVar(&opts.transferDelay, "transfer-delay", 900*time.Millisecond, "Delay before a transfer target picks up")
	return cmd
}

func serve(ctx context.Context, addr string, router http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Printf("[callsim] listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
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
