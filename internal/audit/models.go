package audit

import "time"

// Entry is one immutable record in the call activity log.
//
// Entries are never updated or deleted. They are internal diagnostics for
// webhook deliveries that did or did not land on a record, and are written
// best-effort: a failed append never blocks the flow that produced it.
type Entry struct {
	ID   string    `json:"id" db:"id"`
	Type EntryType `json:"type" db:"type"`

	// Target identifiers. Unmatched deliveries carry only the provider id.
	CallID         string `json:"call_id,omitempty" db:"call_id"`
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	Status string `json:"status,omitempty" db:"status"`

	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntryType string

const (
	EntryStatus        EntryType = "status"
	EntryRecording     EntryType = "recording"
	EntryTranscription EntryType = "transcription"
	EntryLink          EntryType = "link"
	EntryCredential    EntryType = "credential"
)
