package call

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zhouzirui/hmo-callconsole/backend/internal/model/call"
	"github.com/zhouzirui/hmo-callconsole/backend/pkg/utils"
)

// Console 抽象会话控制器，便于测试与替换实现
type Console interface {
	Snapshot() call.Session
	OnChange(fn func(call.Session)) func()
	SelectCall(ctx context.Context, callID string)
	Answer(ctx context.Context)
	End(ctx context.Context)
	Transfer(ctx context.Context, targetID string)
	Schedule(ctx context.Context, when time.Time)
}

// Handler 通话控制台的HTTP处理器
type Handler struct {
	console Console
	targets call.TargetStore
}

// New 创建通话处理器
func New(console Console, targets call.TargetStore) *Handler {
	return &Handler{
		console: console,
		targets: targets,
	}
}

// RegisterRoutes 注册通话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/transfer-targets", h.handleListTargets)

	r.Route("/call", func(cr chi.Router) {
		cr.Get("/", h.handleSnapshot)
		cr.Get("/stream", h.handleStream)
		cr.Post("/select", h.handleSelect)
		cr.Post("/answer", h.handleAnswer)
		cr.Post("/end", h.handleEnd)
		cr.Post("/transfer", h.handleTransfer)
		cr.Post("/schedule", h.handleSchedule)
	})
}

func (h *Handler) handleListTargets(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.targets.List())
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.console.Snapshot())
}

// handleSelect 选择（模拟呼入）一个通话
func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CallID string `json:"callId"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if payload.CallID == "" {
		payload.CallID = uuid.NewString()
	}

	h.console.SelectCall(r.Context(), payload.CallID)
	utils.RespondAccepted(w, payload.CallID)
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	callID, ok := h.requireCall(w)
	if !ok {
		return
	}
	h.console.Answer(r.Context())
	utils.RespondAccepted(w, callID)
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	callID, ok := h.requireCall(w)
	if !ok {
		return
	}
	h.console.End(r.Context())
	utils.RespondAccepted(w, callID)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TargetID string `json:"targetId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.TargetID == "" {
		utils.RespondError(w, http.StatusBadRequest, "targetId is required")
		return
	}
	if _, ok := h.targets.FindByID(payload.TargetID); !ok {
		utils.RespondError(w, http.StatusNotFound, "transfer target not found")
		return
	}

	callID, ok := h.requireCall(w)
	if !ok {
		return
	}
	h.console.Transfer(r.Context(), payload.TargetID)
	utils.RespondAccepted(w, callID)
}

func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		When string `json:"when"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	when, err := time.Parse(time.RFC3339, payload.When)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "when must be an RFC3339 timestamp")
		return
	}

	callID, ok := h.requireCall(w)
	if !ok {
		return
	}
	h.console.Schedule(r.Context(), when)
	utils.RespondAccepted(w, callID)
}

// handleStream 以SSE推送会话快照
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates := make(chan call.Session, 1)
	cancel := h.console.OnChange(func(s call.Session) {
		offerLatest(updates, s)
	})
	defer cancel()

	utils.SetupSSEHeaders(w)
	if err := utils.SendSSEEvent(w, flusher, "session", h.console.Snapshot()); err != nil {
		return
	}

	ctx := r.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-updates:
			if err := utils.SendSSEEvent(w, flusher, "session", s); err != nil {
				log.Printf("[call] stream write failed: %v", err)
				return
			}
		case t := <-heartbeat.C:
			if err := utils.SendSSEEvent(w, flusher, "heartbeat", map[string]string{
				"time": t.UTC().Format(time.RFC3339),
			}); err != nil {
				return
			}
		}
	}
}

// offerLatest 只保留最新快照：客户端跟不上时替换缓冲中的旧值
func offerLatest(updates chan call.Session, s call.Session) {
	for {
		select {
		case updates <- s:
			return
		default:
		}
		select {
		case <-updates:
		default:
		}
	}
}

func (h *Handler) requireCall(w http.ResponseWriter) (string, bool) {
	callID := h.console.Snapshot().CallID
	if callID == "" {
		utils.RespondError(w, http.StatusConflict, "no call selected")
		return "", false
	}
	return callID, true
}
