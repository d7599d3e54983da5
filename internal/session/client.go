// Package session owns the realtime provider session and the single in-flight
// outbound call of one softphone.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"crm-dialer/internal/calls"
)

var (
	ErrAuthentication = errors.New("session: authentication failed")
	ErrCallInitiation = errors.New("session: call initiation failed")
	ErrCallInProgress = errors.New("session: a call is already active")
	ErrInvalidDigit   = errors.New("session: invalid dtmf digit")
)

// Handle references the provider call placed by PlaceCall.
type Handle string

// CallContext is echoed by the provider to the answer webhook as custom_data.
type CallContext struct {
	ContactID             string `json:"contactId,omitempty"`
	ProjectID             string `json:"projectId,omitempty"`
	From                  string `json:"from,omitempty"`
	CorrelationID         string `json:"callRecordId,omitempty"`
	TranscriptionLanguage string `json:"transcriptionLanguage,omitempty"`
}

// Client is one realtime session. It is created explicitly by its owner and
// connects on first use; at most one call is in flight at any time.
type Client struct {
	dial Dialer
	log  *slog.Logger

	dialMu sync.Mutex

	// deliverMu orders event forwarding against the backlog flush in PlaceCall.
	deliverMu sync.Mutex

	mu        sync.Mutex
	transport Transport
	authed    bool
	placing   bool
	active    Handle
	answered  bool
	backlog   []calls.Event
	closed    bool

	events chan calls.Event
	done   chan struct{}
}

func NewClient(dial Dialer, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		dial:   dial,
		log:    log,
		events: make(chan calls.Event, 64),
		done:   make(chan struct{}),
	}
}

// Events carries normalized events for the current call only.
func (c *Client) Events() <-chan calls.Event { return c.events }

// Authenticate logs in with a server-issued credential. It is never retried here:
// on ErrAuthentication the caller fetches a fresh credential.
func (c *Client) Authenticate(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: empty credential", ErrAuthentication)
	}
	t, err := c.ensure(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	if err := t.Request(ctx, "session:login", map[string]string{"token": token}, nil); err != nil {
		c.mu.Lock()
		c.authed = false
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	c.mu.Lock()
	c.authed = true
	c.mu.Unlock()
	return nil
}

// PlaceCall starts one outbound call to destination.
func (c *Client) PlaceCall(ctx context.Context, destination string, cc CallContext) (Handle, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return "", fmt.Errorf("%w: destination is required", ErrCallInitiation)
	}

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return "", fmt.Errorf("%w: session closed", ErrCallInitiation)
	case c.placing || c.active != "":
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %w", ErrCallInitiation, ErrCallInProgress)
	case !c.authed || c.transport == nil:
		c.mu.Unlock()
		return "", fmt.Errorf("%w: not authenticated", ErrCallInitiation)
	}
	c.placing = true
	c.backlog = nil
	t := c.transport
	c.mu.Unlock()

	var reply struct {
		CallID string `json:"call_id"`
	}
	params := map[string]any{"to": destination, "custom_data": cc}
	err := t.Request(ctx, "server:call", params, &reply)
	if err == nil && reply.CallID == "" {
		err = errors.New("provider returned no call id")
	}
	if err != nil {
		c.mu.Lock()
		c.placing = false
		c.backlog = nil
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %w", ErrCallInitiation, err)
	}

	h := Handle(reply.CallID)
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	c.mu.Lock()
	c.placing = false
	c.active = h
	c.answered = false
	early := c.backlog
	c.backlog = nil
	c.mu.Unlock()

	// Events can overtake the call id reply.
	for _, ev := range early {
		if ev.ProviderCallID == reply.CallID {
			c.observe(ev)
			c.forward(ev)
		}
	}
	return h, nil
}

// HangUp ends the call behind h. Unknown or already-ended handles are a no-op,
// and provider failures are logged rather than returned.
func (c *Client) HangUp(ctx context.Context, h Handle) error {
	c.mu.Lock()
	if h == "" || h != c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = ""
	c.answered = false
	t := c.transport
	c.mu.Unlock()

	if t == nil {
		return nil
	}
	if err := t.Request(ctx, "rtc:hangup", map[string]string{"call_id": string(h)}, nil); err != nil {
		c.log.Warn("hangup request failed", "provider_call_id", string(h), "err", err)
	}
	return nil
}

// SendTone sends one DTMF digit. It is ignored unless h is the answered call.
func (c *Client) SendTone(ctx context.Context, h Handle, digit string) error {
	if !validDigit(digit) {
		return fmt.Errorf("%w: %q", ErrInvalidDigit, digit)
	}
	c.mu.Lock()
	live := h != "" && h == c.active && c.answered
	t := c.transport
	c.mu.Unlock()
	if !live || t == nil {
		return nil
	}
	return t.Request(ctx, "rtc:dtmf", map[string]string{"call_id": string(h), "digit": digit}, nil)
}

// Close tears the session down. Events is not closed; owners stop reading on their own context.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	t := c.transport
	c.transport = nil
	c.mu.Unlock()
	if t != nil {
		return t.Close()
	}
	return nil
}

func (c *Client) ensure(ctx context.Context) (Transport, error) {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("session closed")
	}
	if c.transport != nil {
		t := c.transport
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	if c.dial == nil {
		return nil, errors.New("no realtime dialer configured")
	}
	t, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.transport = t
	c.authed = false
	c.mu.Unlock()
	go c.pump(t)
	return t, nil
}

func (c *Client) pump(t Transport) {
	for raw := range t.Events() {
		ev, ok := Normalize(raw.Name, raw.Body)
		if !ok {
			c.log.Debug("realtime event ignored", "event", raw.Name)
			continue
		}
		c.route(ev)
	}

	// Transport gone: a live call cannot survive it.
	c.mu.Lock()
	if c.transport == t {
		c.transport = nil
		c.authed = false
	}
	lost := c.active
	c.mu.Unlock()
	if lost != "" {
		c.route(calls.Event{ProviderCallID: string(lost), Status: calls.StatusFailed, RawStatus: "transport_closed"})
	}
}

func (c *Client) route(ev calls.Event) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	switch {
	case c.active != "" && ev.ProviderCallID == string(c.active):
		c.mu.Unlock()
		c.observe(ev)
		c.forward(ev)
	case c.placing:
		c.backlog = append(c.backlog, ev)
		c.mu.Unlock()
	default:
		c.mu.Unlock()
	}
}

// observe tracks answered/ended for the guard and tone gating.
func (c *Client) observe(ev calls.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if string(c.active) != ev.ProviderCallID {
		return
	}
	switch {
	case ev.Status == calls.StatusAnswered:
		c.answered = true
	case ev.Status.IsTerminal():
		c.active = ""
		c.answered = false
	}
}

func (c *Client) forward(ev calls.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func validDigit(d string) bool {
	if len(d) != 1 {
		return false
	}
	ch := d[0]
	return (ch >= '0' && ch <= '9') || ch == '*' || ch == '#'
}
