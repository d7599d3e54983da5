package calls

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"crm-dialer/pkg/logger"

	"github.com/google/uuid"
)

// DeliveryKind identifies which webhook side-channel a Delivery came from.
type DeliveryKind string

const (
	DeliveryStatus        DeliveryKind = "status"
	DeliveryRecording     DeliveryKind = "recording"
	DeliveryTranscription DeliveryKind = "transcription"
)

// Delivery is one webhook payload after parsing, in a form that can be parked and replayed.
type Delivery struct {
	Kind DeliveryKind `json:"kind"`

	// Key is the provider call id or conversation id the delivery refers to.
	Key string `json:"key"`

	Event         *Event `json:"event,omitempty"`
	RecordingURL  string `json:"recording_url,omitempty"`
	Transcription string `json:"transcription,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// PendingStore parks deliveries whose key is not linked to any record yet.
type PendingStore interface {
	Park(ctx context.Context, key string, d Delivery) error
	// Drain returns and removes everything parked under key.
	Drain(ctx context.Context, key string) ([]Delivery, error)
}

// Deduper reports whether a delivery key is seen for the first time. Release
// forgets a key whose delivery could not be applied, so a provider re-delivery
// is processed instead of being dropped as a duplicate.
type Deduper interface {
	FirstDelivery(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// ActivityLog receives best-effort activity entries.
type ActivityLog interface {
	RecordActivity(ctx context.Context, a Activity) error
}

// Activity is one entry for the call activity log.
type Activity struct {
	CallID         string
	ProviderCallID string
	Kind           string
	Outcome        Outcome
	Status         string
	Message        string
}

type Outcome string

const (
	OutcomeLinked  Outcome = "linked"
	OutcomeApplied Outcome = "applied"
	OutcomeParked  Outcome = "parked"
)

// Synchronizer folds out-of-band, unordered, at-least-once provider deliveries into
// call records. Every update touches only its own fields, so any delivery order
// produces the same record.
//
// Handle* methods return an error only for the caller to log; the HTTP layer
// acknowledges the provider regardless.
type Synchronizer struct {
	Repo Repository

	// Optional collaborators.
	Pending  PendingStore
	Dedupe   Deduper
	Activity ActivityLog

	Now func() time.Time
	Log *slog.Logger
}

func NewSynchronizer(repo Repository) *Synchronizer {
	return &Synchronizer{Repo: repo, Now: time.Now}
}

// Create persists a new record with status initiated. The id is minted when absent.
func (s *Synchronizer) Create(ctx context.Context, nc NewCall) (Call, error) {
	if s.Repo == nil {
		return Call{}, errors.New("calls: repository not configured")
	}
	if nc.ProjectID == "" || strings.TrimSpace(nc.To) == "" {
		return Call{}, ErrInvalidArgument
	}
	id := nc.CallID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()
	c := Call{
		CallID:    id,
		ContactID: nc.ContactID,
		ProjectID: nc.ProjectID,
		To:        strings.TrimSpace(nc.To),
		From:      strings.TrimSpace(nc.From),
		Status:    StatusInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Create(ctx, c); err != nil {
		return Call{}, err
	}
	return c, nil
}

// Link stores the provider call id on the record and replays anything parked for it.
func (s *Synchronizer) Link(ctx context.Context, callID, providerCallID string) error {
	if callID == "" || providerCallID == "" {
		return ErrInvalidArgument
	}
	if err := s.Repo.LinkProviderCall(ctx, callID, providerCallID, s.now()); err != nil {
		return err
	}
	s.activity(ctx, Activity{CallID: callID, ProviderCallID: providerCallID, Kind: "link", Outcome: OutcomeLinked, Message: "provider call linked"})
	return s.replay(ctx, providerCallID)
}

// HandleStatus applies one status event.
func (s *Synchronizer) HandleStatus(ctx context.Context, ev Event) error {
	if ev.ProviderCallID == "" {
		return fmt.Errorf("%w: status event without call id", ErrInvalidArgument)
	}
	key := "status|" + ev.ProviderCallID + "|" + ev.RawStatus
	if ev.Timestamp != nil {
		key += "|" + ev.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return s.once(ctx, key, Delivery{Kind: DeliveryStatus, Key: ev.ProviderCallID, Event: &ev, ReceivedAt: s.now()})
}

// HandleRecording attaches a recording URL. key may be a provider call id or a conversation id.
func (s *Synchronizer) HandleRecording(ctx context.Context, key, url string) error {
	if key == "" || strings.TrimSpace(url) == "" {
		return fmt.Errorf("%w: recording without key or url", ErrInvalidArgument)
	}
	return s.once(ctx, "recording|"+key+"|"+url, Delivery{Kind: DeliveryRecording, Key: key, RecordingURL: strings.TrimSpace(url), ReceivedAt: s.now()})
}

// HandleTranscription attaches normalized transcription text.
func (s *Synchronizer) HandleTranscription(ctx context.Context, key, text string) error {
	if key == "" {
		return fmt.Errorf("%w: transcription without key", ErrInvalidArgument)
	}
	sum := sha256.Sum256([]byte(text))
	return s.once(ctx, "transcription|"+key+"|"+hex.EncodeToString(sum[:8]), Delivery{Kind: DeliveryTranscription, Key: key, Transcription: text, ReceivedAt: s.now()})
}

// UpdateFromEvent derives the per-field change set for ev. receivedAt stands in for
// a missing event timestamp.
func UpdateFromEvent(ev Event, receivedAt time.Time) StatusUpdate {
	at := receivedAt
	if ev.Timestamp != nil {
		at = *ev.Timestamp
	}
	u := StatusUpdate{
		Status:          ev.Status,
		DurationSeconds: ev.DurationSeconds,
		ConversationID:  ev.ConversationID,
		At:              receivedAt,
	}
	if ev.Status.IsStart() {
		u.StartedAt = ptr(at)
	}
	if ev.Status.IsTerminal() {
		u.EndedAt = ptr(at)
	}
	return u
}

// once applies d unless dedupeKey was already claimed. A failed apply gives the
// claim back.
func (s *Synchronizer) once(ctx context.Context, dedupeKey string, d Delivery) error {
	if !s.first(ctx, dedupeKey) {
		return nil
	}
	err := s.apply(ctx, d)
	if err != nil && s.Dedupe != nil {
		if rerr := s.Dedupe.Release(ctx, dedupeKey); rerr != nil {
			s.log(ctx).Warn("delivery dedupe release failed", "key", dedupeKey, "err", rerr)
		}
	}
	return err
}

func (s *Synchronizer) apply(ctx context.Context, d Delivery) error {
	err := s.write(ctx, d)
	if errors.Is(err, ErrNotFound) && s.Pending != nil {
		if perr := s.Pending.Park(ctx, d.Key, d); perr != nil {
			return fmt.Errorf("calls: park %s delivery: %w", d.Kind, perr)
		}
		s.log(ctx).Info("delivery parked until call is linked", "provider_call_id", d.Key, "kind", d.Kind)
		s.activity(ctx, Activity{ProviderCallID: d.Key, Kind: string(d.Kind), Outcome: OutcomeParked, Status: d.status(), Message: "parked: no linked record"})
		return nil
	}
	if err != nil {
		return err
	}
	s.activity(ctx, Activity{ProviderCallID: d.Key, Kind: string(d.Kind), Outcome: OutcomeApplied, Status: d.status(), Message: "applied"})

	// A status event is what first reveals the conversation id, so side-channel
	// deliveries parked under it can land now.
	if d.Event != nil && d.Event.ConversationID != "" && d.Event.ConversationID != d.Key {
		return s.replay(ctx, d.Event.ConversationID)
	}
	return nil
}

func (s *Synchronizer) write(ctx context.Context, d Delivery) error {
	if s.Repo == nil {
		return errors.New("calls: repository not configured")
	}
	switch d.Kind {
	case DeliveryStatus:
		if d.Event == nil {
			return ErrInvalidArgument
		}
		return s.Repo.ApplyStatus(ctx, d.Key, UpdateFromEvent(*d.Event, d.ReceivedAt))
	case DeliveryRecording:
		return s.Repo.SetRecording(ctx, d.Key, d.RecordingURL, d.ReceivedAt)
	case DeliveryTranscription:
		return s.Repo.SetTranscription(ctx, d.Key, d.Transcription, d.ReceivedAt)
	default:
		return fmt.Errorf("%w: unknown delivery kind %q", ErrInvalidArgument, d.Kind)
	}
}

func (s *Synchronizer) replay(ctx context.Context, key string) error {
	if s.Pending == nil {
		return nil
	}
	parked, err := s.Pending.Drain(ctx, key)
	var errs []error
	if err != nil {
		errs = append(errs, fmt.Errorf("calls: drain parked deliveries: %w", err))
	}
	for _, d := range parked {
		if err := s.write(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("replay %s: %w", d.Kind, err))
		}
	}
	if len(parked) > 0 {
		s.log(ctx).Info("replayed parked deliveries", "provider_call_id", key, "count", len(parked), "failed", len(errs))
	}
	return errors.Join(errs...)
}

// first falls open: a failing dedupe store never blocks processing.
func (s *Synchronizer) first(ctx context.Context, key string) bool {
	if s.Dedupe == nil {
		return true
	}
	ok, err := s.Dedupe.FirstDelivery(ctx, key)
	if err != nil {
		s.log(ctx).Warn("delivery dedupe unavailable", "err", err)
		return true
	}
	if !ok {
		s.log(ctx).Debug("duplicate delivery ignored", "key", key)
	}
	return ok
}

func (s *Synchronizer) activity(ctx context.Context, a Activity) {
	if s.Activity == nil {
		return
	}
	if err := s.Activity.RecordActivity(ctx, a); err != nil {
		s.log(ctx).Warn("activity log append failed", "err", err, "provider_call_id", a.ProviderCallID)
	}
}

func (s *Synchronizer) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// log prefers the request-scoped logger carried by ctx.
func (s *Synchronizer) log(ctx context.Context) *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logger.From(ctx)
}

func (d Delivery) status() string {
	if d.Event != nil {
		return string(d.Event.Status)
	}
	return ""
}
