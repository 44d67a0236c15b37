package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/valyala/fastjson"

	"aura/internal/storage"
)

// defaultUserMuteMinutes applies when an admin mutes a user without choosing
// a duration, matching the panel's one-click action.
const defaultUserMuteMinutes = 15

func muteMinutes(v *fastjson.Value, fallback int64) (time.Duration, error) {
	if v == nil || !v.Exists("minutes") {
		if fallback > 0 {
			return time.Duration(fallback) * time.Minute, nil
		}
		return 0, errMissingMinutes
	}

	minutes, err := intField(v, "minutes")
	if err != nil {
		return 0, err
	}

	return time.Duration(minutes) * time.Minute, nil
}

var errMissingMinutes = errors.New(`Missing Field "minutes"`)

// muteChat handles HTTP requests on "/admin/chat/mute" endpoint
func (h *handler) muteChat(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.adminSession(w, r); !ok {
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.adminPool.Get()
	defer h.parsers.adminPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	d, err := muteMinutes(v, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.MuteChat(r.Context(), d, time.Now()); err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"muted": true})
}

// unmuteChat handles HTTP requests on "/admin/chat/unmute" endpoint
func (h *handler) unmuteChat(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.adminSession(w, r); !ok {
		return
	}

	if err := h.engine.UnmuteChat(r.Context(), time.Now()); err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"muted": false})
}

// setGuestLogin handles HTTP requests on "/admin/guest-login" endpoint
func (h *handler) setGuestLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.adminSession(w, r); !ok {
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.adminPool.Get()
	defer h.parsers.adminPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	enabled, err := boolField(v, "enabled")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.SetGuestLogin(r.Context(), enabled); err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

// users handles HTTP requests on "/admin/users" endpoint
func (h *handler) users(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.adminSession(w, r)
	if !ok {
		return
	}

	list, err := h.engine.Users(r.Context(), sess.Username, time.Now())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, list)
}

// muteUser handles HTTP requests on "/admin/users/mute" endpoint
func (h *handler) muteUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.adminSession(w, r); !ok {
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.adminPool.Get()
	defer h.parsers.adminPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	username, err := stringField(v, "username")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d, err := muteMinutes(v, defaultUserMuteMinutes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.MuteUser(r.Context(), username, d, time.Now()); err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"muted": true})
}

// unmuteUser handles HTTP requests on "/admin/users/unmute" endpoint
func (h *handler) unmuteUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.adminSession(w, r); !ok {
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.adminPool.Get()
	defer h.parsers.adminPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	username, err := stringField(v, "username")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.UnmuteUser(r.Context(), username); err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"muted": false})
}

// ban handles HTTP requests on "/admin/users/ban" endpoint
func (h *handler) ban(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, storage.StatusBanned)
}

// unban handles HTTP requests on "/admin/users/unban" endpoint
func (h *handler) unban(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, storage.StatusActive)
}

func (h *handler) setStatus(w http.ResponseWriter, r *http.Request, status string) {
	sess, ok := h.adminSession(w, r)
	if !ok {
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.adminPool.Get()
	defer h.parsers.adminPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	username, err := stringField(v, "username")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.SetStatus(r.Context(), sess.Username, username, status); err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"username": username, "status": status})
}

// resetPassword handles HTTP requests on "/admin/users/reset-password" endpoint:
// the admin flow bypassing current-password verification.
func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.adminSession(w, r); !ok {
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.adminPool.Get()
	defer h.parsers.adminPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	username, err := stringField(v, "username")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	password, err := stringField(v, "new_password")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.ResetPassword(r.Context(), username, password); err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

// clearMessages handles HTTP requests on "/admin/messages/clear" endpoint
func (h *handler) clearMessages(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.adminSession(w, r); !ok {
		return
	}

	if err := h.engine.ClearMessages(r.Context()); err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}
