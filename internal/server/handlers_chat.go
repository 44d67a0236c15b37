package server

import (
	"io"
	"net/http"
	"time"
)

// refresh handles HTTP requests on "/chat/refresh" endpoint: one poll cycle.
// Clients call this every few seconds; the engine sweeps expired messages
// before answering.
func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	snapshot, err := h.engine.Refresh(r.Context(), sess, time.Now())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, snapshot)
}

// post handles HTTP requests on "/chat/post" endpoint
func (h *handler) post(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.postPool.Get()
	defer h.parsers.postPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	text, err := stringField(v, "body")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m, err := h.engine.Post(r.Context(), sess, text, time.Now())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, m)
}

// react handles HTTP requests on "/chat/react" endpoint
func (h *handler) react(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.reactPool.Get()
	defer h.parsers.reactPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	id, err := intField(v, "message_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	emoji, err := stringField(v, "emoji")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.AddReaction(r.Context(), id, emoji); err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"reacted": true})
}
