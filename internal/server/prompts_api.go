package server

import (
	"net/http"

	"github.com/teemow/inboxagent/internal/prompts"
)

type promptRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type runPromptRequest struct {
	Continue bool `json:"continue,omitempty"`
}

func (h *handlers) handleListPrompts(w http.ResponseWriter, _ *http.Request) {
	list, err := h.sc.deps.Prompts.List()
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if list == nil {
		list = []prompts.Prompt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": list})
}

func (h *handlers) handleSavePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	p, err := h.sc.deps.Prompts.Save(req.Name, req.Content)
	if err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *handlers) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	if err := h.sc.deps.Prompts.Delete(r.PathValue("id")); err != nil {
		writeMappedError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunPrompt runs a saved prompt, found by id or name, as a turn.
// The body is optional.
func (h *handlers) handleRunPrompt(w http.ResponseWriter, r *http.Request) {
	p, err := h.sc.deps.Prompts.Find(r.PathValue("id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	var req runPromptRequest
	if r.ContentLength > 0 {
		if err := decodeJSONBody(r, &req); err != nil {
			writeInvalidRequest(w, err.Error())
			return
		}
	}
	h.runTurn(w, r, p.Content, req.Continue)
}

// handleUpdatePrompt changes the name or content of a prompt. Empty fields
// keep the stored value.
func (h *handlers) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	p, err := h.sc.deps.Prompts.Update(r.PathValue("id"), req.Name, req.Content)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
