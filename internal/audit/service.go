package audit

import (
	"context"
	"errors"
	"time"

	"crm-dialer/internal/calls"

	"github.com/google/uuid"
)

// Repository is the persistence contract for activity entries. It is
// append-only: there are no Update or Delete methods.
type Repository interface {
	Append(ctx context.Context, e Entry) error
}

// Service writes the call activity log. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEntry = errors.New("audit: invalid entry")

func (s *Service) Append(ctx context.Context, e Entry) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEntry
	}
	if e.CallID == "" && e.ProviderCallID == "" && e.ActorUserID == "" {
		return ErrInvalidEntry
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// RecordActivity makes Service a calls.ActivityLog.
func (s *Service) RecordActivity(ctx context.Context, a calls.Activity) error {
	return s.Append(ctx, Entry{
		Type:           EntryType(a.Kind),
		CallID:         a.CallID,
		ProviderCallID: a.ProviderCallID,
		Status:         a.Status,
		Message:        a.Message,
	})
}

// LogCredentialIssued records a realtime credential minted by actorUserID for subject.
func (s *Service) LogCredentialIssued(ctx context.Context, actorUserID, ip, subject string) error {
	msg := "realtime credential issued"
	if subject != actorUserID {
		msg += " for " + subject
	}
	return s.Append(ctx, Entry{
		Type:        EntryCredential,
		ActorUserID: actorUserID,
		IPAddress:   ip,
		Message:     msg,
	})
}
