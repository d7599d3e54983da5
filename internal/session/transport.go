package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Transport is the request/response + event channel to the realtime provider.
type Transport interface {
	// Request sends method with params and decodes the reply body into out (may be nil).
	Request(ctx context.Context, method string, params any, out any) error
	// Events delivers provider-pushed events. It is closed when the transport dies.
	Events() <-chan RawEvent
	Close() error
}

// RawEvent is a provider-pushed message before normalization.
type RawEvent struct {
	Name string
	Body map[string]any
}

// Dialer opens a Transport. It is called lazily on the first operation that needs one.
type Dialer func(ctx context.Context) (Transport, error)

// Frame is the wire envelope on the realtime socket.
type Frame struct {
	Type   string          `json:"type"` // request | response | event
	CID    string          `json:"cid,omitempty"`
	Method string          `json:"method,omitempty"`
	Event  string          `json:"event,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	Error  *FrameError     `json:"error,omitempty"`
}

type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *FrameError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// WSTransport speaks Frame over a gorilla websocket connection.
type WSTransport struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Frame
	closed  bool

	events chan RawEvent
	done   chan struct{}
}

// DialWebSocket returns a Dialer connecting to url.
func DialWebSocket(url string, header http.Header, log *slog.Logger) Dialer {
	return func(ctx context.Context) (Transport, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err != nil {
			return nil, fmt.Errorf("dial realtime: %w", err)
		}
		return NewWSTransport(conn, log), nil
	}
}

func NewWSTransport(conn *websocket.Conn, log *slog.Logger) *WSTransport {
	if log == nil {
		log = slog.Default()
	}
	t := &WSTransport{
		conn:    conn,
		log:     log,
		pending: map[string]chan Frame{},
		events:  make(chan RawEvent, 32),
		done:    make(chan struct{}),
	}
	go t.readPump()
	go t.pingPump()
	return t
}

func (t *WSTransport) Events() <-chan RawEvent { return t.events }

func (t *WSTransport) Request(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}
	cid := uuid.NewString()
	reply := make(chan Frame, 1)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errTransportClosed
	}
	t.pending[cid] = reply
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, cid)
		t.mu.Unlock()
	}()

	if err := t.write(Frame{Type: "request", CID: cid, Method: method, Body: body}); err != nil {
		return err
	}

	select {
	case f := <-reply:
		if f.Error != nil {
			return f.Error
		}
		if out != nil && len(f.Body) > 0 {
			return json.Unmarshal(f.Body, out)
		}
		return nil
	case <-t.done:
		return errTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return t.conn.Close()
}

var errTransportClosed = errors.New("realtime transport closed")

func (t *WSTransport) write(f Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(f)
}

func (t *WSTransport) readPump() {
	defer close(t.events)
	defer t.Close()

	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := t.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Warn("realtime read failed", "err", err)
			}
			return
		}
		switch f.Type {
		case "response":
			t.mu.Lock()
			reply := t.pending[f.CID]
			t.mu.Unlock()
			if reply != nil {
				select {
				case reply <- f:
				default: // duplicate response
				}
			}
		case "event":
			var body map[string]any
			if len(f.Body) > 0 {
				if err := json.Unmarshal(f.Body, &body); err != nil {
					t.log.Debug("realtime event body ignored", "event", f.Event, "err", err)
					continue
				}
			}
			select {
			case t.events <- RawEvent{Name: f.Event, Body: body}:
			case <-t.done:
				return
			}
		default:
			t.log.Debug("realtime frame ignored", "type", f.Type)
		}
	}
}

func (t *WSTransport) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
