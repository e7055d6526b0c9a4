package conversation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crisos/crisos-core/pkg/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler serves /api/conversations.
type Handler struct {
	engine   *Engine
	validate *validator.Validate
	logger   *logging.Logger
}

func NewHandler(engine *Engine, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, validate: validator.New(), logger: logger}
}

// Routes mounts the turn and state endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/{conversationID}/turns", h.turn)
	r.Get("/{conversationID}/state", h.state)
}

type turnRequest struct {
	Intent   string            `json:"intent" validate:"max=64"`
	Facts    map[string]string `json:"facts" validate:"max=32,dive,keys,required,max=64,endkeys,max=512"`
	Text     string            `json:"text" validate:"max=4000"`
	Channel  string            `json:"channel" validate:"max=32"`
	Metadata *Location         `json:"metadata"`
}

func (h *Handler) turn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	result, err := h.engine.HandleTurn(r.Context(), chi.URLParam(r, "conversationID"), TurnInput{
		Intent:   req.Intent,
		Facts:    req.Facts,
		Text:     req.Text,
		Channel:  req.Channel,
		Metadata: req.Metadata,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, ErrEscalationFailed):
		writeJSON(w, http.StatusServiceUnavailable, result)
	case errors.Is(err, ErrConversationBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conversation busy"})
	case errors.Is(err, ErrMissingConversation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation id required"})
	default:
		h.logger.Error("conversation turn failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Snapshot(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		if errors.Is(err, ErrMissingConversation) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversation id required"})
			return
		}
		h.logger.Error("conversation state failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
