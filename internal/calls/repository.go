package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)

// Repository is the persistence contract for call records.
//
// Writers are the initiating client (Create, LinkProviderCall) and any number of
// concurrent webhook deliveries. There is no record-level locking: every method
// touches only its own columns so deliveries commute.
type Repository interface {
	Create(ctx context.Context, c Call) error
	Get(ctx context.Context, callID string) (Call, error)

	// LinkProviderCall stores the provider-assigned call id on the record.
	LinkProviderCall(ctx context.Context, callID, providerCallID string, at time.Time) error

	// The methods below match on provider call id or conversation id and return
	// ErrNotFound when no record carries that key yet.
	ApplyStatus(ctx context.Context, providerCallID string, u StatusUpdate) error
	SetRecording(ctx context.Context, providerCallID, url string, at time.Time) error
	SetTranscription(ctx context.Context, providerCallID, text string, at time.Time) error

	ListCalls(ctx context.Context, projectID string, from, to time.Time) ([]Call, error)
}

// applyStatus mutates c with u following the per-field rules. The Postgres
// repository expresses the same rules in SQL.
func applyStatus(c *Call, u StatusUpdate) {
	c.Status = nextStatus(c.Status, u.Status)
	if u.DurationSeconds != nil {
		c.DurationSeconds = ptr(*u.DurationSeconds)
	}
	c.StartedAt = earliest(c.StartedAt, u.StartedAt)
	c.EndedAt = earliest(c.EndedAt, u.EndedAt)
	if u.ConversationID != "" && c.ConversationID == nil {
		c.ConversationID = ptr(u.ConversationID)
	}
	touch(c, u.At)
}

// touch advances UpdatedAt to at, never backwards, so the field commutes like
// the others.
func touch(c *Call, at time.Time) {
	if at.After(c.UpdatedAt) {
		c.UpdatedAt = at
	}
}

func matchesProviderKey(c Call, key string) bool {
	if key == "" {
		return false
	}
	if c.ProviderCallID != nil && *c.ProviderCallID == key {
		return true
	}
	return c.ConversationID != nil && *c.ConversationID == key
}

func earliest(current, incoming *time.Time) *time.Time {
	if incoming == nil {
		return current
	}
	if current == nil || incoming.Before(*current) {
		return ptr(*incoming)
	}
	return current
}
