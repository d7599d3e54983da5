package session

import (
	"strconv"
	"strings"
	"time"

	"crm-dialer/internal/calls"
)

// hangupReasons maps the reason carried by a hangup callback to provider status
// vocabulary. Anything unlisted is treated as a normal completion.
var hangupReasons = map[string]string{
	"remote_hangup":            "completed",
	"local_hangup":             "completed",
	"remote_reject":            "rejected",
	"remote_busy":              "busy",
	"remote_no_answer_timeout": "timeout",
	"media_timeout":            "failed",
	"cancelled":                "cancelled",
}

var hangupEvents = map[string]bool{
	"call:hangup": true,
	"callhangup":  true,
	"hangup":      true,
}

// Normalize maps one realtime payload to a calls.Event.
//
// Two callback styles are recognized: leg status updates carrying a status word
// under status, callStatus or state, and hangup callbacks carrying a reason. The
// call is identified by call_id, callId, uuid or leg_id. Payloads that match
// neither shape return ok=false and must be ignored.
func Normalize(name string, body map[string]any) (calls.Event, bool) {
	if body == nil {
		return calls.Event{}, false
	}
	id := firstString(body, "call_id", "callId", "uuid", "leg_id", "legId")
	if id == "" {
		return calls.Event{}, false
	}

	var raw string
	if hangupEvents[strings.ToLower(name)] {
		reason := strings.ToLower(firstString(body, "reason", "hangup_reason", "cause"))
		raw = hangupReasons[reason]
		if raw == "" {
			raw = "completed"
		}
		if reason == "" {
			reason = raw
		}
		ev := calls.Event{ProviderCallID: id, Status: calls.MapProviderStatus(raw), RawStatus: reason}
		fillOptional(&ev, body)
		return ev, true
	}

	raw = strings.ToLower(firstString(body, "status", "callStatus", "state"))
	if raw == "" {
		return calls.Event{}, false
	}
	ev := calls.Event{ProviderCallID: id, Status: calls.MapProviderStatus(raw), RawStatus: raw}
	fillOptional(&ev, body)
	return ev, true
}

func fillOptional(ev *calls.Event, body map[string]any) {
	ev.ConversationID = firstString(body, "conversation_id", "conversationId", "conversation_uuid")
	ev.Direction = firstString(body, "direction")
	if d, ok := intField(body["duration"]); ok {
		ev.DurationSeconds = &d
	}
	if ts := firstString(body, "timestamp"); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ev.Timestamp = &t
		}
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// intField accepts a JSON number or a numeric string.
func intField(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}
