package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-dialer/internal/calls"
)

func TestNormalize_LegStatusStyles(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
		want calls.Status
	}{
		{"leg:status:update", map[string]any{"call_id": "c1", "status": "RINGING"}, calls.StatusRinging},
		{"legStatusUpdate", map[string]any{"callId": "c1", "callStatus": "answered"}, calls.StatusAnswered},
		{"call:status", map[string]any{"uuid": "c1", "state": "unanswered"}, calls.StatusFailed},
		{"x", map[string]any{"leg_id": "c1", "status": "machine"}, calls.Status("machine")},
	}
	for _, tc := range cases {
		ev, ok := Normalize(tc.name, tc.body)
		require.True(t, ok, tc.name)
		assert.Equal(t, "c1", ev.ProviderCallID)
		assert.Equal(t, tc.want, ev.Status, tc.name)
	}
}

func TestNormalize_HangupReasons(t *testing.T) {
	ev, ok := Normalize("call:hangup", map[string]any{"call_id": "c1", "reason": "REMOTE_BUSY"})
	require.True(t, ok)
	assert.Equal(t, calls.StatusBusy, ev.Status)
	assert.Equal(t, "remote_busy", ev.RawStatus)

	ev, ok = Normalize("callHangup", map[string]any{"callId": "c1"})
	require.True(t, ok)
	assert.Equal(t, calls.StatusCompleted, ev.Status)
	assert.True(t, ev.Status.IsTerminal())
}

func TestNormalize_OptionalFields(t *testing.T) {
	ev, ok := Normalize("leg:status:update", map[string]any{
		"call_id":         "c1",
		"status":          "completed",
		"duration":        "5",
		"timestamp":       "2024-05-01T10:00:00Z",
		"conversation_id": "CON-1",
	})
	require.True(t, ok)
	require.NotNil(t, ev.DurationSeconds)
	assert.Equal(t, 5, *ev.DurationSeconds)
	require.NotNil(t, ev.Timestamp)
	assert.Equal(t, "CON-1", ev.ConversationID)
}

func TestNormalize_UnrecognizedShapesAreIgnored(t *testing.T) {
	for _, body := range []map[string]any{
		nil,
		{},
		{"status": "ringing"},
		{"call_id": "c1"},
		{"call_id": 42, "status": "ringing"},
	} {
		_, ok := Normalize("leg:status:update", body)
		assert.False(t, ok, "%v", body)
	}
}
