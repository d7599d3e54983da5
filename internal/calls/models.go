package calls

import "time"

// Call is the persisted record of one outbound call.
//
// The record is created by the dialing client before the realtime session exists, so
// ProviderCallID is empty until the provider assigns one. Once set it is the only join
// key webhook deliveries use; the correlation id (CallID) is never sent by the provider
// outside the answer request context.
//
// Nullable columns are pointers so "unknown" and "zero" stay distinct.
type Call struct {
	CallID    string `json:"id" db:"id"`
	ContactID string `json:"contact_id,omitempty" db:"contact_id"`
	ProjectID string `json:"project_id" db:"project_id"`

	To   string `json:"to_number" db:"to_number"`
	From string `json:"from_number" db:"from_number"`

	Status Status `json:"status" db:"status"`

	// DurationSeconds is provider-reported and only known at call end.
	DurationSeconds *int `json:"duration,omitempty" db:"duration"`

	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	RecordingURL  *string `json:"recording_url,omitempty" db:"recording_url"`
	Transcription *string `json:"transcription,omitempty" db:"transcription"`

	ProviderCallID *string `json:"provider_call_id,omitempty" db:"provider_call_id"`
	// ConversationID is the provider's conversation identifier. Recording and
	// transcription callbacks may reference it instead of the leg id.
	ConversationID *string `json:"conversation_id,omitempty" db:"conversation_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Event is a provider status event after vocabulary mapping.
// It is produced both by the realtime session (client side) and by the status webhook.
type Event struct {
	ProviderCallID string `json:"provider_call_id"`
	ConversationID string `json:"conversation_id,omitempty"`

	Status Status `json:"status"`
	// RawStatus keeps the provider's own word for diagnostics only.
	RawStatus string `json:"raw_status,omitempty"`

	DurationSeconds *int       `json:"duration,omitempty"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`
	Direction       string     `json:"direction,omitempty"`
}

// StatusUpdate is the per-field change set derived from one status Event.
// Every field is applied independently; nil means "leave as is".
type StatusUpdate struct {
	Status Status

	DurationSeconds *int

	// StartedAt and EndedAt are the event's own time when present, else ingestion
	// time. Ingestion never precedes the event, so keeping the earliest value
	// keeps the most precise one in any delivery order.
	StartedAt *time.Time
	EndedAt   *time.Time

	ConversationID string

	At time.Time
}

// NewCall is the client-side create request. CallID is minted by the caller when empty.
type NewCall struct {
	CallID    string `json:"id,omitempty"`
	ContactID string `json:"contact_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	To        string `json:"to"`
	From      string `json:"from,omitempty"`
}

func ptr[T any](v T) *T { return &v }
