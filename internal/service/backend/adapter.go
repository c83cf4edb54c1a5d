package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/hmo-callconsole/backend/internal/service/clock"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/service/events"
)

var (
	ErrUnknownBackendKind = errors.New("unknown call backend kind")
	ErrMissingToken       = errors.New("realtime backend requires an endpoint token")
	ErrMissingEndpoint    = errors.New("realtime backend requires an endpoint")
)

// Adapter is the capability contract a session controller drives.
//
// Commands are requests, not transactions: they return nothing and the
// resulting state change, if any, arrives later through Events().
type Adapter interface {
	Answer(ctx context.Context, callID string)
	End(ctx context.Context, callID string)
	Transfer(ctx context.Context, callID, targetID string)
	Schedule(ctx context.Context, callID, whenISO string)
	Events() *events.Channel
	Close() error
}

// Ringer is implemented by backends that can fabricate an inbound call on demand.
type Ringer interface {
	Ring(ctx context.Context, callID string)
}

// Kind selects the adapter built by New.
type Kind string

const (
	KindSimulated Kind = "simulated"
	KindRealtime  Kind = "realtime"
)

// Config describes which adapter to build and how.
type Config struct {
	Kind Kind

	// realtime
	Endpoint string
	Token    string
	Realtime *RealtimeOptions

	// simulated
	Simulator SimulatorConfig
	Clock     clock.Clock
}

// New builds the adapter named by cfg.Kind.
func New(ctx context.Context, cfg Config) (Adapter, error) {
	switch cfg.Kind {
	case KindSimulated:
		clk := cfg.Clock
		if clk == nil {
			clk = clock.Real{}
		}
		return NewSimulator(clk, cfg.Simulator), nil
	case KindRealtime:
		if strings.TrimSpace(cfg.Token) == "" {
			return nil, ErrMissingToken
		}
		if strings.TrimSpace(cfg.Endpoint) == "" {
			return nil, ErrMissingEndpoint
		}
		return NewRealtime(ctx, cfg.Endpoint, cfg.Token, cfg.Realtime), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackendKind, cfg.Kind)
	}
}
