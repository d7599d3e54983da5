package telephony

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"crm-dialer/internal/calls"
	"crm-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CallEvents is the ingestion side of calls.Synchronizer.
type CallEvents interface {
	HandleStatus(ctx context.Context, ev calls.Event) error
	HandleRecording(ctx context.Context, key, url string) error
	HandleTranscription(ctx context.Context, key, text string) error
	Link(ctx context.Context, callID, providerCallID string) error
}

// WebhookHandler serves the provider callbacks.
//
// Every callback except answer is acknowledged with 200 {"received":true} no
// matter what happened internally; failures are logged only. The provider
// must never be pushed into retries or call-setup aborts by this service.
type WebhookHandler struct {
	Calls    CallEvents
	Defaults AnswerDefaults

	// LinkTimeout bounds the answer-time link post-action.
	LinkTimeout time.Duration
	// Go runs post-actions. Defaults to a new goroutine.
	Go func(func())
}

func (h WebhookHandler) Answer(c *gin.Context) {
	log := logger.FromGin(c)

	p, err := ParseParams(c.Request)
	if err != nil {
		log.Warn("answer params partially unreadable", "err", err)
	}

	cc, ok := ParseCallContext(p["custom_data"])
	if !ok && p["custom_data"] != nil {
		log.Warn("answer custom_data malformed, using defaults")
	}

	actions := BuildAnswer(AnswerRequest{
		To:      p.String("to"),
		From:    p.String("from"),
		Context: cc,
	}, h.Defaults)

	providerCallID := p.String("uuid")
	if h.Calls != nil && cc.CorrelationID != "" && providerCallID != "" {
		h.linkLater(log, cc.CorrelationID, providerCallID)
	}

	c.JSON(http.StatusOK, actions)
}

func (h WebhookHandler) Event(c *gin.Context) {
	log := logger.FromGin(c)
	p, err := ParseParams(c.Request)
	if err != nil {
		log.Warn("status event unreadable", "err", err)
		ack(c)
		return
	}

	raw := p.String("status")
	ev := calls.Event{
		ProviderCallID:  p.String("uuid", "call_uuid"),
		ConversationID:  p.String("conversation_uuid"),
		Status:          calls.MapProviderStatus(raw),
		RawStatus:       raw,
		DurationSeconds: p.Int("duration"),
		Timestamp:       p.Time("timestamp"),
		Direction:       p.String("direction"),
	}
	if ev.ProviderCallID == "" || raw == "" {
		log.Warn("status event without uuid or status ignored")
		ack(c)
		return
	}
	if h.Calls == nil {
		log.Error("status event dropped: no call store", "provider_call_id", ev.ProviderCallID)
		ack(c)
		return
	}
	if err := h.Calls.HandleStatus(c.Request.Context(), ev); err != nil {
		log.Error("status event not applied", "provider_call_id", ev.ProviderCallID, "status", raw, "err", err)
	}
	ack(c)
}

func (h WebhookHandler) Recording(c *gin.Context) {
	log := logger.FromGin(c)
	p, err := ParseParams(c.Request)
	if err != nil {
		log.Warn("recording callback unreadable", "err", err)
		ack(c)
		return
	}

	url := p.String("recording_url")
	key := p.String("conversation_uuid", "uuid", "recording_uuid")
	if url == "" || key == "" {
		log.Warn("recording callback without url or call reference ignored")
		ack(c)
		return
	}
	if h.Calls == nil {
		log.Error("recording dropped: no call store", "provider_call_id", key)
		ack(c)
		return
	}
	if err := h.Calls.HandleRecording(c.Request.Context(), key, url); err != nil {
		log.Error("recording not applied", "provider_call_id", key, "err", err)
	}
	ack(c)
}

func (h WebhookHandler) Transcription(c *gin.Context) {
	log := logger.FromGin(c)
	p, err := ParseParams(c.Request)
	if err != nil {
		log.Warn("transcription callback unreadable", "err", err)
		ack(c)
		return
	}

	key := p.String("conversation_uuid", "uuid")
	text := calls.NormalizeTranscription(p.Raw("transcription"))
	if key == "" || text == "" {
		log.Warn("transcription callback without reference or text ignored", "provider_call_id", key)
		ack(c)
		return
	}
	if h.Calls == nil {
		log.Error("transcription dropped: no call store", "provider_call_id", key)
		ack(c)
		return
	}
	if err := h.Calls.HandleTranscription(c.Request.Context(), key, text); err != nil {
		log.Error("transcription not applied", "provider_call_id", key, "err", err)
	}
	ack(c)
}

// Fallback acknowledges anything the provider sends when the primary hooks fail.
func (h WebhookHandler) Fallback(c *gin.Context) {
	logger.FromGin(c).Info("fallback webhook hit", "path", c.Request.URL.Path)
	ack(c)
}

// linkLater stores the provider call id for the correlation id off the
// request path. Its failure is logged and affects nothing else.
func (h WebhookHandler) linkLater(log *slog.Logger, callID, providerCallID string) {
	timeout := h.LinkTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	run := h.Go
	if run == nil {
		run = func(f func()) { go f() }
	}
	run(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := h.Calls.Link(ctx, callID, providerCallID); err != nil {
			log.Warn("answer-time link failed", "call_id", callID, "provider_call_id", providerCallID, "err", err)
		}
	})
}

func ack(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"received": true})
}
