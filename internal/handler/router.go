package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	callHandler "github.com/zhouzirui/hmo-callconsole/backend/internal/handler/call"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/handler/relay"
	middlewarePkg "github.com/zhouzirui/hmo-callconsole/backend/internal/middleware"
	"github.com/zhouzirui/hmo-callconsole/backend/internal/model/call"
	"github.com/zhouzirui/hmo-callconsole/backend/pkg/utils"
)

// NewRouter wires the call console HTTP routes to the session controller.
func NewRouter(console callHandler.Console, targets call.TargetStore) http.Handler {
	r := newBaseRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		callHandler.New(console, targets).RegisterRoutes(api)
	})

	return r
}

// NewRelayRouter wires the simulated realtime call backend.
func NewRelayRouter(cfg relay.Config) http.Handler {
	r := newBaseRouter()
	relay.NewWebSocketHandler(cfg).RegisterRoutes(r)
	return r
}

func newBaseRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	return r
}
