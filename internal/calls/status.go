package calls

import "strings"

// Status is the internal call lifecycle vocabulary stored on call records.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusRinging   Status = "ringing"
	StatusAnswered  Status = "answered"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
	StatusBusy      Status = "busy"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// providerStatuses is the fixed provider → internal vocabulary table.
var providerStatuses = map[string]Status{
	"started":    StatusInitiated,
	"ringing":    StatusRinging,
	"answered":   StatusAnswered,
	"completed":  StatusCompleted,
	"failed":     StatusFailed,
	"rejected":   StatusRejected,
	"busy":       StatusBusy,
	"cancelled":  StatusCancelled,
	"timeout":    StatusTimeout,
	"unanswered": StatusFailed,
}

// MapProviderStatus translates a provider status word. Unknown words pass through
// unchanged so newer provider vocabulary is stored rather than dropped.
func MapProviderStatus(raw string) Status {
	if s, ok := providerStatuses[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return Status(raw)
}

// IsTerminal reports whether s is an internal status that ends a call.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusRejected, StatusBusy, StatusCancelled, StatusTimeout:
		return true
	default:
		return false
	}
}

// IsStart reports whether s marks the beginning of the conversation timeline.
func (s Status) IsStart() bool {
	return s == StatusInitiated || s == StatusAnswered
}

// TerminalStatuses lists the internal terminal statuses, for SQL filters.
func TerminalStatuses() []string {
	return []string{
		string(StatusCompleted),
		string(StatusFailed),
		string(StatusRejected),
		string(StatusBusy),
		string(StatusCancelled),
		string(StatusTimeout),
	}
}

// nextStatus applies the monotonic rule: once terminal, only another terminal
// status can replace it.
func nextStatus(current, incoming Status) Status {
	if incoming == "" {
		return current
	}
	if current.IsTerminal() && !incoming.IsTerminal() {
		return current
	}
	return incoming
}
