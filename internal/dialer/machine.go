// Package dialer is the softphone state machine: it turns user intents and
// normalized session events into one CallAttempt at a time.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"crm-dialer/internal/calls"
	"crm-dialer/internal/session"

	"github.com/google/uuid"
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateRinging    State = "ringing"
	StateActive     State = "active"
	StateEnded      State = "ended"
	StateError      State = "error"
)

// Live reports whether a call attempt is in progress.
func (s State) Live() bool {
	return s == StateConnecting || s == StateRinging || s == StateActive
}

var (
	ErrCallActive    = errors.New("dialer: a call is already in progress")
	ErrNoDestination = errors.New("dialer: destination number is required")
	ErrNotConfigured = errors.New("dialer: collaborators not configured")
)

const hangupRequestLimit = 10 * time.Second

// Session is the realtime call session the machine drives.
type Session interface {
	Authenticate(ctx context.Context, token string) error
	PlaceCall(ctx context.Context, destination string, cc session.CallContext) (session.Handle, error)
	HangUp(ctx context.Context, h session.Handle) error
	SendTone(ctx context.Context, h session.Handle, digit string) error
	Events() <-chan calls.Event
}

// Recorder persists the call record.
type Recorder interface {
	CreateCall(ctx context.Context, nc calls.NewCall) (calls.Call, error)
	LinkProviderCall(ctx context.Context, callID, providerCallID string) error
}

// Credentials fetches a fresh realtime credential for every attempt.
type Credentials interface {
	Credential(ctx context.Context) (string, error)
}

type Options struct {
	ContactID   string
	ProjectID   string
	DefaultFrom string
	Language    string

	// SetupTimeout hangs up a call still connecting or ringing after this long.
	// Zero leaves it to the user.
	SetupTimeout time.Duration

	Now      func() time.Time
	OnChange func(Snapshot)
	// OnEnded is the "call ended" collaborator; it runs once per attempt that reaches ended.
	OnEnded func(Snapshot)
	Logger  *slog.Logger
}

// Snapshot is what the UI renders.
type Snapshot struct {
	State          State  `json:"state"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
	Error          string `json:"error,omitempty"`
	CorrelationID  string `json:"correlation_id,omitempty"`
	ProviderCallID string `json:"provider_call_id,omitempty"`
	EndReason      string `json:"end_reason,omitempty"`
}

// Machine holds at most one CallAttempt.
type Machine struct {
	sess  Session
	rec   Recorder
	creds Credentials
	opts  Options

	mu            sync.Mutex
	state         State
	attempt       uint64
	correlationID string
	handle        session.Handle
	answeredAt    time.Time
	elapsed       int
	lastErr       string
	endReason     string
	setupTimer    *time.Timer

	// hangups tracks hangup requests still being sent; Shutdown waits on them.
	hangupMu sync.Mutex
	hangups  []chan struct{}

	wake chan struct{}
}

func New(sess Session, rec Recorder, creds Credentials, opts Options) *Machine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Machine{
		sess:  sess,
		rec:   rec,
		creds: creds,
		opts:  opts,
		state: StateIdle,
		wake:  make(chan struct{}, 1),
	}
}

// StartCall runs the whole setup span: record, credential, session, placement.
// The machine sits in connecting until it returns. A call that is already live
// is rejected with ErrCallActive and left untouched.
func (m *Machine) StartCall(ctx context.Context, number, from string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return ErrNoDestination
	}
	if m.sess == nil || m.rec == nil || m.creds == nil {
		return ErrNotConfigured
	}
	from = strings.TrimSpace(from)
	if from == "" {
		from = m.opts.DefaultFrom
	}

	m.mu.Lock()
	if m.state.Live() {
		m.mu.Unlock()
		return ErrCallActive
	}
	m.clearLocked()
	m.attempt++
	attempt := m.attempt
	m.state = StateConnecting
	m.correlationID = uuid.NewString()
	corr := m.correlationID
	if m.opts.SetupTimeout > 0 {
		m.setupTimer = time.AfterFunc(m.opts.SetupTimeout, func() { m.setupExpired(attempt) })
	}
	m.mu.Unlock()
	m.changed()

	log := m.opts.Logger.With("correlation_id", corr)

	if _, err := m.rec.CreateCall(ctx, calls.NewCall{
		CallID:    corr,
		ContactID: m.opts.ContactID,
		ProjectID: m.opts.ProjectID,
		To:        number,
		From:      from,
	}); err != nil {
		return m.fail(attempt, "could not create call record", err)
	}

	token, err := m.creds.Credential(ctx)
	if err != nil {
		return m.fail(attempt, "could not obtain calling credential", err)
	}
	if err := m.sess.Authenticate(ctx, token); err != nil {
		return m.fail(attempt, "calling session rejected the credential", err)
	}

	h, err := m.sess.PlaceCall(ctx, number, session.CallContext{
		ContactID:             m.opts.ContactID,
		ProjectID:             m.opts.ProjectID,
		From:                  from,
		CorrelationID:         corr,
		TranscriptionLanguage: m.opts.Language,
	})
	if err != nil {
		return m.fail(attempt, "call could not be placed", err)
	}

	m.mu.Lock()
	current := attempt == m.attempt && m.state.Live()
	if current {
		m.handle = h
	}
	m.mu.Unlock()

	if !current {
		// Hung up, timed out or reset while the call was being placed.
		m.hangUpAsync(h)
		return nil
	}
	m.changed()

	if err := m.rec.LinkProviderCall(ctx, corr, string(h)); err != nil {
		log.Warn("provider call link failed", "provider_call_id", string(h), "err", err)
	}
	return nil
}

// HangUp ends the live attempt locally and asks the session to hang up without
// waiting for it. Outside a live attempt it does nothing.
func (m *Machine) HangUp() {
	m.mu.Lock()
	if !m.state.Live() {
		m.mu.Unlock()
		return
	}
	h := m.handle
	m.endLocked("hangup")
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.hangUpAsync(h)
	m.changed()
	m.ended(snap)
}

// Shutdown ends any live attempt and waits until every hangup request issued
// so far has been handed to the session, or ctx is done. Owners call it before
// closing the session so a live call is not left to the provider's socket
// timeout.
func (m *Machine) Shutdown(ctx context.Context) error {
	m.HangUp()

	m.hangupMu.Lock()
	pending := m.hangups
	m.hangups = nil
	m.hangupMu.Unlock()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("dialer: hangup still in flight: %w", ctx.Err())
		}
	}
	return nil
}

// SendTone forwards one DTMF digit while active; in any other state it is ignored.
func (m *Machine) SendTone(ctx context.Context, digit string) error {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return nil
	}
	h := m.handle
	m.mu.Unlock()
	return m.sess.SendTone(ctx, h, digit)
}

// Reset returns a finished attempt to idle.
func (m *Machine) Reset() error {
	m.mu.Lock()
	if m.state.Live() {
		m.mu.Unlock()
		return ErrCallActive
	}
	if m.state == StateIdle {
		m.mu.Unlock()
		return nil
	}
	m.clearLocked()
	m.state = StateIdle
	m.mu.Unlock()
	m.changed()
	return nil
}

// Deliver feeds one normalized session event to the machine.
func (m *Machine) Deliver(ev calls.Event) {
	m.mu.Lock()
	if !m.state.Live() {
		m.mu.Unlock()
		return
	}
	if m.handle != "" && ev.ProviderCallID != "" && ev.ProviderCallID != string(m.handle) {
		m.mu.Unlock()
		return
	}

	ended := false
	switch {
	case ev.Status == calls.StatusRinging:
		if m.state != StateConnecting {
			m.mu.Unlock()
			return
		}
		m.state = StateRinging
	case ev.Status == calls.StatusAnswered:
		if m.state == StateActive {
			m.mu.Unlock()
			return
		}
		m.state = StateActive
		m.answeredAt = m.opts.Now()
		m.elapsed = 0
		m.stopSetupTimerLocked()
	case ev.Status.IsTerminal():
		reason := ev.RawStatus
		if reason == "" {
			reason = string(ev.Status)
		}
		m.endLocked(reason)
		ended = true
	default:
		m.mu.Unlock()
		return
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.changed()
	if ended {
		m.ended(snap)
	}
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Run pumps session events into the machine and refreshes OnChange once a second
// while active. It returns when ctx is done.
func (m *Machine) Run(ctx context.Context) {
	events := m.sess.Events()
	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		active := m.Snapshot().State == StateActive
		switch {
		case active && ticker == nil:
			ticker = time.NewTicker(time.Second)
			tick = ticker.C
		case !active && ticker != nil:
			ticker.Stop()
			ticker, tick = nil, nil
		}

		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.Deliver(ev)
		case <-tick:
			m.changed()
		case <-m.wake:
		}
	}
}

func (m *Machine) fail(attempt uint64, msg string, err error) error {
	m.mu.Lock()
	if attempt != m.attempt || m.state != StateConnecting {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", msg, err)
	}
	m.state = StateError
	m.lastErr = msg
	m.stopSetupTimerLocked()
	m.mu.Unlock()

	m.opts.Logger.Warn("call initiation failed", "reason", msg, "err", err)
	m.changed()
	return fmt.Errorf("%s: %w", msg, err)
}

func (m *Machine) setupExpired(attempt uint64) {
	m.mu.Lock()
	if attempt != m.attempt || (m.state != StateConnecting && m.state != StateRinging) {
		m.mu.Unlock()
		return
	}
	h := m.handle
	m.endLocked("timeout")
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.opts.Logger.Info("call setup timed out", "correlation_id", snap.CorrelationID)
	m.hangUpAsync(h)
	m.changed()
	m.ended(snap)
}

func (m *Machine) hangUpAsync(h session.Handle) {
	if h == "" {
		return
	}
	done := make(chan struct{})
	m.hangupMu.Lock()
	live := m.hangups[:0]
	for _, d := range m.hangups {
		select {
		case <-d:
		default:
			live = append(live, d)
		}
	}
	m.hangups = append(live, done)
	m.hangupMu.Unlock()

	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), hangupRequestLimit)
		defer cancel()
		if err := m.sess.HangUp(ctx, h); err != nil {
			m.opts.Logger.Warn("hangup failed", "provider_call_id", string(h), "err", err)
		}
	}()
}

// endLocked freezes elapsed time. Callers hold mu.
func (m *Machine) endLocked(reason string) {
	if m.state == StateActive {
		m.elapsed = m.elapsedLocked()
	}
	m.state = StateEnded
	m.endReason = reason
	m.stopSetupTimerLocked()
}

func (m *Machine) clearLocked() {
	m.stopSetupTimerLocked()
	m.correlationID = ""
	m.handle = ""
	m.answeredAt = time.Time{}
	m.elapsed = 0
	m.lastErr = ""
	m.endReason = ""
}

func (m *Machine) stopSetupTimerLocked() {
	if m.setupTimer != nil {
		m.setupTimer.Stop()
		m.setupTimer = nil
	}
}

// elapsedLocked is wall-clock based and never goes below the last value shown.
func (m *Machine) elapsedLocked() int {
	if m.state != StateActive {
		return m.elapsed
	}
	secs := int(m.opts.Now().Sub(m.answeredAt) / time.Second)
	if secs > m.elapsed {
		m.elapsed = secs
	}
	return m.elapsed
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		State:          m.state,
		ElapsedSeconds: m.elapsedLocked(),
		Error:          m.lastErr,
		CorrelationID:  m.correlationID,
		ProviderCallID: string(m.handle),
		EndReason:      m.endReason,
	}
}

func (m *Machine) changed() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
	if m.opts.OnChange != nil {
		m.opts.OnChange(m.Snapshot())
	}
}

func (m *Machine) ended(snap Snapshot) {
	if m.opts.OnEnded != nil {
		m.opts.OnEnded(snap)
	}
}
