package webchat

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crisos/crisos-core/internal/handoff"
	"github.com/crisos/crisos-core/pkg/logging"
	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is how often a stream checks for new chat messages.
const DefaultPollInterval = time.Second

// MessageSource reads and appends handoff chat messages.
type MessageSource interface {
	Get(ctx context.Context, id int64) (*handoff.Request, error)
	Messages(ctx context.Context, requestID, afterID int64) ([]handoff.Message, error)
	PostMessage(ctx context.Context, in handoff.PostInput) (handoff.Message, error)
}

// Handler streams a handoff request's chat over WebSocket. The public stream
// posts as the user; the operator stream posts as the signed-in agent.
type Handler struct {
	source MessageSource
	viewer handoff.ViewerFunc
	logger *logging.Logger
	poll   time.Duration
}

// Option customizes a Handler.
type Option func(*Handler)

func WithPollInterval(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.poll = d
		}
	}
}

// InboundMessage is what the chat client sends.
type InboundMessage struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what the stream sends.
type OutboundMessage struct {
	Type      string           `json:"type"` // "session", "message", "pong", "error"
	RequestID int64            `json:"request_id,omitempty"`
	Message   *handoff.Message `json:"message,omitempty"`
	Text      string           `json:"text,omitempty"`
}

func NewHandler(source MessageSource, viewer handoff.ViewerFunc, logger *logging.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if viewer == nil {
		viewer = func(*http.Request) handoff.Viewer { return handoff.Viewer{} }
	}
	h := &Handler{source: source, viewer: viewer, logger: logger, poll: DefaultPollInterval}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PublicStream upgrades the chat client's connection.
func (h *Handler) PublicStream(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, handoff.SenderUser, handoff.Viewer{})
}

// OperatorStream upgrades an operator console connection. The caller must
// install authentication first.
func (h *Handler) OperatorStream(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, handoff.SenderAgent, h.viewer(r))
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, sender handoff.Sender, actor handoff.Viewer) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r, sender, actor)
	}).ServeHTTP(w, r)
}

type stream struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *stream) send(msg OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return websocket.JSON.Send(s.conn, msg)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request, sender handoff.Sender, actor handoff.Viewer) {
	// Hijacked connections keep the server's read/write deadlines.
	_ = conn.SetDeadline(time.Time{})
	s := &stream{conn: conn}
	query := r.URL.Query()
	requestID, err := strconv.ParseInt(query.Get("request_id"), 10, 64)
	if err != nil || requestID <= 0 {
		_ = s.send(OutboundMessage{Type: "error", Text: "request_id must be a positive integer"})
		return
	}
	afterID, _ := strconv.ParseInt(query.Get("after_id"), 10, 64)
	if _, err := h.source.Get(r.Context(), requestID); err != nil {
		if !errors.Is(err, handoff.ErrRequestNotFound) {
			h.logger.Error("webchat: failed to load request", "request_id", requestID, "error", err)
		}
		_ = s.send(OutboundMessage{Type: "error", Text: errorText(err)})
		return
	}

	if err := s.send(OutboundMessage{Type: "session", RequestID: requestID}); err != nil {
		return
	}
	h.logger.Info("webchat: stream opened", "request_id", requestID, "sender", sender, "operator", actor.Username)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		return h.pump(ctx, s, requestID, afterID)
	})
	g.Go(func() error {
		defer conn.Close()
		return h.receive(ctx, s, requestID, sender, actor)
	})
	if err := g.Wait(); err != nil {
		h.logger.Debug("webchat: stream closed", "request_id", requestID, "error", err)
	}
}

// pump pushes every message after afterID, then polls for new ones until
// the connection goes away.
func (h *Handler) pump(ctx context.Context, s *stream, requestID, afterID int64) error {
	ticker := time.NewTicker(h.poll)
	defer ticker.Stop()
	for {
		msgs, err := h.source.Messages(ctx, requestID, afterID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			h.logger.Error("webchat: failed to load messages", "request_id", requestID, "error", err)
		}
		for i := range msgs {
			if err := s.send(OutboundMessage{Type: "message", RequestID: requestID, Message: &msgs[i]}); err != nil {
				return err
			}
			afterID = msgs[i].ID
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (h *Handler) receive(ctx context.Context, s *stream, requestID int64, sender handoff.Sender, actor handoff.Viewer) error {
	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(s.conn, &msg); err != nil {
			return err
		}

		if msg.Type == "ping" {
			if err := s.send(OutboundMessage{Type: "pong"}); err != nil {
				return err
			}
			continue
		}
		if msg.Type != "message" || strings.TrimSpace(msg.Text) == "" {
			continue
		}

		_, err := h.source.PostMessage(ctx, handoff.PostInput{
			RequestID: requestID,
			Sender:    sender,
			Text:      msg.Text,
			Actor:     actor,
		})
		if err != nil {
			h.logger.Warn("webchat: message rejected", "request_id", requestID, "error", err)
			if err := s.send(OutboundMessage{Type: "error", Text: errorText(err)}); err != nil {
				return err
			}
		}
	}
}

func errorText(err error) string {
	switch {
	case errors.Is(err, handoff.ErrRequestNotFound):
		return "handoff request not found"
	case errors.Is(err, handoff.ErrAssignedToOther):
		return "request is assigned to another operator"
	case errors.Is(err, handoff.ErrInvalidTransition):
		return "request is closed"
	case errors.Is(err, handoff.ErrInvalidSender):
		return "not allowed to post here"
	default:
		return "message could not be delivered"
	}
}
