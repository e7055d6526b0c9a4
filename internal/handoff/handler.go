package handoff

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/crisos/crisos-core/pkg/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// ViewerFunc resolves the signed-in operator of a request.
type ViewerFunc func(r *http.Request) Viewer

// Handler serves the public and operator handoff endpoints.
type Handler struct {
	queue    *Queue
	viewer   ViewerFunc
	validate *validator.Validate
	logger   *logging.Logger
}

func NewHandler(queue *Queue, viewer ViewerFunc, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if viewer == nil {
		viewer = func(*http.Request) Viewer { return Viewer{} }
	}
	return &Handler{queue: queue, viewer: viewer, validate: validator.New(), logger: logger}
}

// PublicRoutes mounts the chat-client side under /api/handoff.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/requests", h.listPublic)
	r.Get("/requests/active", h.active)
	r.Get("/messages", h.messages)
	r.Post("/messages", h.postPublic)
	r.Post("/requests/{requestID}/status", h.statusPublic)
}

// OperatorRoutes mounts the operator side under /api/admin/handoff. The
// caller must install authentication first.
func (h *Handler) OperatorRoutes(r chi.Router) {
	r.Get("/requests", h.listOperator)
	r.Get("/messages", h.messages)
	r.Post("/messages", h.postOperator)
	r.Post("/requests/{requestID}/claim", h.claim)
	r.Post("/requests/{requestID}/status", h.statusOperator)
}

type postMessageRequest struct {
	RequestID int64  `json:"request_id" validate:"required,gt=0"`
	Sender    string `json:"sender" validate:"required,oneof=user agent system"`
	Text      string `json:"text" validate:"required"`
}

type statusRequest struct {
	Status               string `json:"status" validate:"required,oneof=open assigned closed"`
	SuppressCloseMessage bool   `json:"suppress_close_message"`
}

func (h *Handler) listPublic(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, Viewer{})
}

func (h *Handler) listOperator(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.viewer(r))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, viewer Viewer) {
	filter := ListFilter{Viewer: viewer}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter.Status = &status
	}
	requests, err := h.queue.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (h *Handler) active(w http.ResponseWriter, r *http.Request) {
	req, err := h.queue.Active(r.Context(), r.URL.Query().Get("conversation_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request": req})
}

func (h *Handler) messages(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseInt(r.URL.Query().Get("request_id"), 10, 64)
	if err != nil || requestID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request_id required"})
		return
	}
	var afterID int64
	if raw := r.URL.Query().Get("after_id"); raw != "" {
		if afterID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid after_id"})
			return
		}
	}
	msgs, err := h.queue.Messages(r.Context(), requestID, afterID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *Handler) postPublic(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}
	if payload.Sender == string(SenderAgent) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "agent messages require operator sign-in"})
		return
	}
	h.post(w, r, payload, Viewer{})
}

func (h *Handler) postOperator(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodeMessage(w, r)
	if !ok {
		return
	}
	h.post(w, r, payload, h.viewer(r))
}

func (h *Handler) decodeMessage(w http.ResponseWriter, r *http.Request) (postMessageRequest, bool) {
	var payload postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return payload, false
	}
	payload.Sender = strings.ToLower(strings.TrimSpace(payload.Sender))
	if err := h.validate.Struct(payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return payload, false
	}
	return payload, true
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request, payload postMessageRequest, viewer Viewer) {
	sender, err := ParseSender(payload.Sender)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msg, err := h.queue.PostMessage(r.Context(), PostInput{
		RequestID: payload.RequestID,
		Sender:    sender,
		Text:      payload.Text,
		Actor:     viewer,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": msg.ID, "message": msg})
}

func (h *Handler) claim(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	viewer := h.viewer(r)
	result, err := h.queue.Claim(r.Context(), id, viewer.Username)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	switch result {
	case ClaimClaimed:
		writeJSON(w, http.StatusOK, map[string]any{"claimed": true})
	case ClaimAlreadyYours:
		writeJSON(w, http.StatusOK, map[string]any{"claimed": true, "already_yours": true})
	default:
		writeJSON(w, http.StatusConflict, map[string]any{"claimed": false, "error": result.String()})
	}
}

func (h *Handler) statusPublic(w http.ResponseWriter, r *http.Request) {
	h.status(w, r, Viewer{})
}

func (h *Handler) statusOperator(w http.ResponseWriter, r *http.Request) {
	h.status(w, r, h.viewer(r))
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request, viewer Viewer) {
	id, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	var payload statusRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	payload.Status = strings.ToLower(strings.TrimSpace(payload.Status))
	if err := h.validate.Struct(payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	status, err := ParseStatus(payload.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	change := StatusChange{Status: status, Actor: viewer, SuppressCloseMessage: payload.SuppressCloseMessage}
	anonymous := viewer.Username == "" && !viewer.Admin
	if anonymous && status == StatusClosed {
		change.Note = UserLeftText
	}
	req, err := h.queue.SetStatus(r.Context(), id, change)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "request": req})
}

func requestIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request id"})
		return 0, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrRequestNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	case errors.Is(err, ErrAssignedToOther):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "assigned_to_other"})
	case errors.Is(err, ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "invalid_transition"})
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidSender),
		errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrMissingConversation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("handoff request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
