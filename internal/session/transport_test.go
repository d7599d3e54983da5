package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider answers session:login and server:call, then pushes a ringing event.
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var f Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			switch f.Method {
			case "session:login":
				var body map[string]string
				_ = json.Unmarshal(f.Body, &body)
				if body["token"] != "good" {
					_ = conn.WriteJSON(Frame{Type: "response", CID: f.CID, Error: &FrameError{Code: "invalid_token"}})
					continue
				}
				_ = conn.WriteJSON(Frame{Type: "response", CID: f.CID})
			case "server:call":
				_ = conn.WriteJSON(Frame{Type: "response", CID: f.CID, Body: json.RawMessage(`{"call_id":"leg-7"}`)})
				_ = conn.WriteJSON(Frame{Type: "event", Event: "leg:status:update", Body: json.RawMessage(`{"call_id":"leg-7","status":"ringing"}`)})
			default:
				_ = conn.WriteJSON(Frame{Type: "response", CID: f.CID})
			}
		}
	}))
}

func TestWSTransport_EndToEnd(t *testing.T) {
	srv := fakeProvider(t)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	c := NewClient(DialWebSocket(url, nil, nil), nil)
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.ErrorIs(t, c.Authenticate(ctx, "bad"), ErrAuthentication)
	require.NoError(t, c.Authenticate(ctx, "good"))

	h, err := c.PlaceCall(ctx, "+31612345678", CallContext{CorrelationID: "call-1", TranscriptionLanguage: "en-US"})
	require.NoError(t, err)
	assert.Equal(t, Handle("leg-7"), h)

	select {
	case ev := <-c.Events():
		assert.Equal(t, "leg-7", ev.ProviderCallID)
		assert.Equal(t, "ringing", string(ev.Status))
	case <-ctx.Done():
		t.Fatal("ringing event not delivered")
	}

	assert.NoError(t, c.HangUp(ctx, h))
}

func TestWSTransport_RequestAfterClose(t *testing.T) {
	srv := fakeProvider(t)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	tr, err := DialWebSocket(url, nil, nil)(context.Background())
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	assert.Error(t, tr.Request(context.Background(), "session:login", map[string]string{"token": "good"}, nil))
}
