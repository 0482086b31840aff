package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teemow/inboxagent/internal/agent"
	"github.com/teemow/inboxagent/internal/llm"
	"github.com/teemow/inboxagent/internal/logging"
)

// DefaultHeartbeatInterval is how often an idle event stream receives a
// keep-alive comment.
const DefaultHeartbeatInterval = 15 * time.Second

type handlers struct {
	sc        *ServerContext
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewRouter returns the API handler. Every request is recorded in the HTTP
// metrics under its route pattern.
func NewRouter(sc *ServerContext, health *HealthChecker) http.Handler {
	h := &handlers{sc: sc, logger: sc.deps.Logger, heartbeat: DefaultHeartbeatInterval}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/turns", h.handleTurn)
	mux.HandleFunc("POST /api/cancel", h.handleCancel)
	mux.HandleFunc("GET /api/events", h.handleEvents)
	mux.HandleFunc("GET /api/conversation", h.handleConversation)
	mux.HandleFunc("DELETE /api/conversation", h.handleReset)
	mux.HandleFunc("GET /api/tools", h.handleTools)
	if sc.deps.Prompts != nil {
		mux.HandleFunc("GET /api/prompts", h.handleListPrompts)
		mux.HandleFunc("POST /api/prompts", h.handleSavePrompt)
		mux.HandleFunc("PATCH /api/prompts/{id}", h.handleUpdatePrompt)
		mux.HandleFunc("DELETE /api/prompts/{id}", h.handleDeletePrompt)
		mux.HandleFunc("POST /api/prompts/{id}/run", h.handleRunPrompt)
	}
	if sc.deps.Bridge != nil {
		mux.Handle("GET /dom/ws", sc.deps.Bridge)
	}
	if health != nil {
		health.RegisterHealthEndpoints(mux)
	}
	return instrumentHandler(mux, sc.deps.Metrics)
}

type turnRequest struct {
	Prompt string `json:"prompt"`

	// Continue runs the prompt on top of the stored conversation instead of
	// starting a new one.
	Continue bool `json:"continue,omitempty"`
}

type turnResponse struct {
	TurnID     string        `json:"turnId"`
	State      agent.State   `json:"state"`
	StopReason string        `json:"stopReason,omitempty"`
	Iterations int           `json:"iterations"`
	Messages   []llm.Message `json:"messages"`
	Error      string        `json:"error,omitempty"`
}

func (h *handlers) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	h.runTurn(w, r, req.Prompt, req.Continue)
}

// runTurn blocks until the turn ends. The turn is cancelled when the client
// goes away, when a newer turn starts or on POST /api/cancel.
func (h *handlers) runTurn(w http.ResponseWriter, r *http.Request, prompt string, cont bool) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		writeInvalidRequest(w, "prompt is required")
		return
	}

	surface := h.sc.Surface()
	var (
		res agent.Result
		err error
	)
	if cont {
		res, err = surface.Continue(r.Context(), prompt)
	} else {
		res, err = surface.StartTurn(r.Context(), prompt, nil)
	}

	resp := turnResponse{
		TurnID:     res.TurnID,
		State:      res.State,
		StopReason: res.StopReason,
		Iterations: res.Iterations,
		Messages:   res.History,
	}
	if resp.Messages == nil {
		resp.Messages = []llm.Message{}
	}
	if err != nil {
		h.logger.Warn("turn failed", logging.Operation("turn"), slog.String(logging.KeyTurnID, res.TurnID), logging.Err(err))
		resp.Error = err.Error()
		status, _ := mapError(err)
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleCancel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": h.sc.Surface().Cancel()})
}

type conversationResponse struct {
	Running     bool          `json:"running"`
	CurrentTurn string        `json:"currentTurn,omitempty"`
	Messages    []llm.Message `json:"messages"`
}

func (h *handlers) handleConversation(w http.ResponseWriter, _ *http.Request) {
	surface := h.sc.Surface()
	messages := surface.History()
	if messages == nil {
		messages = []llm.Message{}
	}
	writeJSON(w, http.StatusOK, conversationResponse{
		Running:     surface.Running(),
		CurrentTurn: surface.CurrentTurn(),
		Messages:    messages,
	})
}

func (h *handlers) handleReset(w http.ResponseWriter, _ *http.Request) {
	h.sc.Surface().Reset()
	w.WriteHeader(http.StatusNoContent)
}

type toolResponse struct {
	llm.Tool
	Backend string `json:"backend"`
}

func (h *handlers) handleTools(w http.ResponseWriter, _ *http.Request) {
	reg := h.sc.deps.Registry
	defs := reg.ModelTools()
	out := make([]toolResponse, 0, len(defs))
	for _, t := range defs {
		backend, _ := reg.Backend(t.Name)
		out = append(out, toolResponse{Tool: t, Backend: backend})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

// handleEvents streams the steps of every turn as server-sent events until
// the client disconnects or the server shuts down.
func (h *handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	steps, unsubscribe := h.sc.Events().Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("event stream unsupported", logging.Err(err))
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case step, ok := <-steps:
			if !ok {
				return
			}
			if err := writeStepEvent(w, step); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeStepEvent(w http.ResponseWriter, step agent.Step) error {
	data, err := json.Marshal(step)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", step.Type, data)
	return err
}
