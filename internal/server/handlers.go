package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"aura/internal/chat"
	"aura/internal/storage"
)

type parsers struct {
	registerPool fastjson.ParserPool
	loginPool    fastjson.ParserPool
	guestPool    fastjson.ParserPool
	passwordPool fastjson.ParserPool
	postPool     fastjson.ParserPool
	reactPool    fastjson.ParserPool
	adminPool    fastjson.ParserPool
}

type handler struct {
	logger  *zap.SugaredLogger
	engine  *chat.Engine
	parsers parsers
}

// stringField extracts a mandatory non-empty string field from a parsed body.
func stringField(v *fastjson.Value, name string) (string, error) {
	if v == nil || !v.Exists(name) {
		return "", fmt.Errorf("Missing Field %q", name)
	}

	value := v.Get(name)
	if value.Type() != fastjson.TypeString {
		return "", fmt.Errorf("Field %q must be a string", name)
	}

	s := string(value.GetStringBytes())
	if len(s) == 0 {
		return "", fmt.Errorf("Field %q must have non-zero length", name)
	}

	return s, nil
}

// intField extracts a mandatory positive integer field from a parsed body.
func intField(v *fastjson.Value, name string) (int64, error) {
	if v == nil || !v.Exists(name) {
		return 0, fmt.Errorf("Missing Field %q", name)
	}

	n, err := v.Get(name).Int64()
	if err != nil {
		return 0, fmt.Errorf("Field %q must be a 64-bit integer value", name)
	}
	if n < 1 {
		return 0, fmt.Errorf("Field %q must be greater than zero", name)
	}

	return n, nil
}

// boolField extracts a mandatory boolean field from a parsed body.
func boolField(v *fastjson.Value, name string) (bool, error) {
	if v == nil || !v.Exists(name) {
		return false, fmt.Errorf("Missing Field %q", name)
	}

	b, err := v.Get(name).Bool()
	if err != nil {
		return false, fmt.Errorf("Field %q must be a boolean", name)
	}

	return b, nil
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(payload); err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// writeEngineError maps expected engine outcomes onto HTTP statuses.
// Anything unrecognized is a storage fault: logged and answered with 500,
// leaving the next poll cycle as the retry.
func (h *handler) writeEngineError(w http.ResponseWriter, err error) {
	var muted *chat.MutedError

	switch {
	case errors.As(err, &muted):
		h.writeJSON(w, http.StatusForbidden, map[string]string{
			"error": "muted",
			"scope": string(muted.Scope),
			"until": muted.Until.UTC().Format(time.RFC3339),
		})
	case errors.Is(err, chat.ErrRateLimited):
		http.Error(w, "You are posting too fast, please wait", http.StatusTooManyRequests)
	case errors.Is(err, storage.ErrDuplicateUsername):
		http.Error(w, "Username already taken", http.StatusBadRequest)
	case errors.Is(err, storage.ErrAccountNotExist):
		http.Error(w, "Account does not exist", http.StatusBadRequest)
	case errors.Is(err, chat.ErrInvalidCredentials):
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
	case errors.Is(err, chat.ErrBanned):
		http.Error(w, "This account has been banned", http.StatusForbidden)
	case errors.Is(err, chat.ErrGuestLoginDisabled):
		http.Error(w, "Guest login is temporarily disabled by an admin", http.StatusForbidden)
	case errors.Is(err, chat.ErrInvalidUsername),
		errors.Is(err, chat.ErrPasswordTooShort),
		errors.Is(err, chat.ErrUnknownAvatar),
		errors.Is(err, chat.ErrSelfStatusChange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

type sessionResponse struct {
	Token           string `json:"token"`
	Username        string `json:"username"`
	Avatar          string `json:"avatar"`
	Role            string `json:"role"`
	DefaultPassword bool   `json:"default_password,omitempty"`
}

// register handles HTTP requests on "/auth/register" endpoint
func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.registerPool.Get()
	defer h.parsers.registerPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	username, err := stringField(v, "username")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	password, err := stringField(v, "password")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	avatar, err := stringField(v, "avatar")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.Register(r.Context(), username, password, avatar); err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"username": username})
}

// login handles HTTP requests on "/auth/login" endpoint
func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.loginPool.Get()
	defer h.parsers.loginPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	username, err := stringField(v, "username")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	password, err := stringField(v, "password")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, defaultPass, err := h.engine.Login(r.Context(), username, password, time.Now())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, sessionResponse{
		Token:           sess.Token,
		Username:        sess.Username,
		Avatar:          sess.Avatar,
		Role:            sess.Role,
		DefaultPassword: defaultPass,
	})
}

// guest handles HTTP requests on "/auth/guest" endpoint
func (h *handler) guest(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.guestPool.Get()
	defer h.parsers.guestPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	username, err := stringField(v, "username")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	avatar, err := stringField(v, "avatar")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess, err := h.engine.GuestJoin(r.Context(), username, avatar, time.Now())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, sessionResponse{
		Token:    sess.Token,
		Username: sess.Username,
		Avatar:   sess.Avatar,
		Role:     sess.Role,
	})
}

// logout handles HTTP requests on "/auth/logout" endpoint
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	h.engine.Sessions().Delete(sess.Token)

	h.writeJSON(w, http.StatusOK, map[string]bool{"logged_out": true})
}

// changePassword handles HTTP requests on "/auth/password" endpoint:
// the self-service flow verifying the current password first.
func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if sess.Role == storage.RoleGuest {
		http.Error(w, "Guests have no password", http.StatusForbidden)
		return
	}

	body, _ := io.ReadAll(r.Body)

	parser := h.parsers.passwordPool.Get()
	defer h.parsers.passwordPool.Put(parser)
	v, _ := parser.ParseBytes(body)

	current, err := stringField(v, "current_password")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	next, err := stringField(v, "new_password")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.engine.ChangePassword(r.Context(), sess.Username, current, next); err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"changed": true})
}
