// Package webhook provides the HTTP boundary: request framing,
// signature verification, and fan-out of inbound events to the engine.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/ashureev/kiroku/internal/domain"
	"github.com/ashureev/kiroku/internal/engine"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	signatureHeader = "X-Line-Signature"
	maxBodyBytes    = 1 << 20
)

// Handler terminates the inbound webhook. The response is written
// before any outbound delivery happens so the upstream transport never
// times out waiting on the engine.
type Handler struct {
	engine *engine.Engine
	secret string
}

// NewHandler creates a webhook handler. An empty secret disables
// signature verification.
func NewHandler(eng *engine.Engine, secret string) *Handler {
	return &Handler{engine: eng, secret: secret}
}

// RegisterRoutes mounts the webhook endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleLiveness)
	r.Get("/webhook", h.handleLiveness)
	r.Post("/webhook", h.handleWebhook)
}

func (h *Handler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// callbackBody is the webhook envelope. Events is a RawMessage so a
// missing array can be told apart from an empty one.
type callbackBody struct {
	Events json.RawMessage `json:"events"`
}

type eventBody struct {
	Type           string `json:"type"`
	WebhookEventID string `json:"webhookEventId"`
	ReplyToken     string `json:"replyToken"`
	Source         struct {
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if h.secret != "" && !h.verifySignature(body, r.Header.Get(signatureHeader)) {
		slog.Warn("Webhook signature verification failed", "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var cb callbackBody
	if err := json.Unmarshal(body, &cb); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if len(cb.Events) == 0 {
		http.Error(w, "missing events", http.StatusBadRequest)
		return
	}
	var events []eventBody
	if err := json.Unmarshal(cb.Events, &events); err != nil || events == nil && string(cb.Events) != "[]" {
		http.Error(w, "events must be an array", http.StatusBadRequest)
		return
	}

	// Each event runs as an independent task: one failing or slow event
	// must not affect its siblings, and none of them block the response.
	for _, eb := range events {
		ev, ok := toDomainEvent(eb)
		if !ok {
			continue
		}
		go h.engine.HandleEvent(context.Background(), ev)
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) verifySignature(body []byte, header string) bool {
	if header == "" {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// toDomainEvent unwraps one envelope entry. The dedup identifier is the
// platform event ID, the message ID, or a synthesized fallback.
func toDomainEvent(eb eventBody) (domain.Event, bool) {
	ev := domain.Event{
		ID:         eb.WebhookEventID,
		UserID:     eb.Source.UserID,
		ReplyToken: eb.ReplyToken,
	}

	switch eb.Type {
	case "follow":
		ev.Type = domain.EventFollow
	case "message":
		ev.Type = domain.EventMessage
		if eb.Message.Type != "text" {
			return domain.Event{}, false
		}
		ev.IsText = true
		ev.Text = eb.Message.Text
		if ev.ID == "" {
			ev.ID = eb.Message.ID
		}
	default:
		return domain.Event{}, false
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	return ev, true
}

// Sign computes the signature value the platform would send for body.
// Exposed for tests and local tooling.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
