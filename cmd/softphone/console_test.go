package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"crm-dialer/internal/calls"
	"crm-dialer/internal/dialer"
	"crm-dialer/internal/session"
)

// recordingSession logs the order in which the console drives it.
type recordingSession struct {
	mu     sync.Mutex
	calls  []string
	events chan calls.Event
}

func (s *recordingSession) note(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, v)
}

func (s *recordingSession) log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *recordingSession) Authenticate(ctx context.Context, token string) error { return nil }

func (s *recordingSession) PlaceCall(ctx context.Context, dest string, cc session.CallContext) (session.Handle, error) {
	return "leg-9", nil
}

func (s *recordingSession) HangUp(ctx context.Context, h session.Handle) error {
	// Slow enough that an exit which does not wait would close first.
	time.Sleep(20 * time.Millisecond)
	s.note("hangup " + string(h))
	return nil
}

func (s *recordingSession) SendTone(ctx context.Context, h session.Handle, digit string) error {
	return nil
}

func (s *recordingSession) Events() <-chan calls.Event { return s.events }

func (s *recordingSession) Close() error {
	s.note("close")
	return nil
}

type memoryRecorder struct{ sync *calls.Synchronizer }

func (r memoryRecorder) CreateCall(ctx context.Context, nc calls.NewCall) (calls.Call, error) {
	return r.sync.Create(ctx, nc)
}

func (r memoryRecorder) LinkProviderCall(ctx context.Context, callID, providerCallID string) error {
	return r.sync.Link(ctx, callID, providerCallID)
}

func (r memoryRecorder) Credential(ctx context.Context) (string, error) { return "tok", nil }

func newTestConsole() (*console, *bytes.Buffer) {
	var buf bytes.Buffer
	c := newConsole(context.Background(), &buf)
	c.m = dialer.New(nil, nil, nil, dialer.Options{})
	return c, &buf
}

func TestConsole_Commands(t *testing.T) {
	c, buf := newTestConsole()

	if c.exec("status") {
		t.Fatalf("status should not quit")
	}
	if !strings.Contains(buf.String(), "state=idle elapsed=00:00") {
		t.Fatalf("unexpected status output: %q", buf.String())
	}

	buf.Reset()
	c.exec("dtmf 5")
	if !strings.Contains(buf.String(), "only sent while a call is active") {
		t.Fatalf("expected dtmf refusal, got %q", buf.String())
	}

	buf.Reset()
	c.exec("frobnicate")
	if !strings.Contains(buf.String(), `unknown command "frobnicate"`) {
		t.Fatalf("unexpected output: %q", buf.String())
	}

	buf.Reset()
	c.exec("call")
	if !strings.Contains(buf.String(), "usage: call") {
		t.Fatalf("expected usage, got %q", buf.String())
	}

	if c.exec("   ") {
		t.Fatalf("blank line should not quit")
	}
	if !c.exec("quit") {
		t.Fatalf("quit should quit")
	}
}

func TestConsole_CallWithoutCollaboratorsReportsError(t *testing.T) {
	c, buf := newTestConsole()
	c.exec("call +15551234")
	c.wait()
	if !strings.Contains(buf.String(), "call failed") {
		t.Fatalf("expected failure output, got %q", buf.String())
	}
}

func TestConsole_RenderTransitions(t *testing.T) {
	c, buf := newTestConsole()
	c.render(dialer.Snapshot{State: dialer.StateConnecting})
	c.render(dialer.Snapshot{State: dialer.StateActive})
	c.render(dialer.Snapshot{State: dialer.StateActive, ElapsedSeconds: 65})
	c.render(dialer.Snapshot{State: dialer.StateEnded, ElapsedSeconds: 65, EndReason: "hangup"})

	out := buf.String()
	for _, want := range []string{"[connecting]", "[active]", "01:05", "[ended] hangup"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestConsole_QuitHangsUpBeforeSessionCloses(t *testing.T) {
	var buf bytes.Buffer
	sess := &recordingSession{events: make(chan calls.Event)}
	rec := memoryRecorder{sync: calls.NewSynchronizer(calls.NewMemoryRepo())}
	c := newConsole(context.Background(), &buf)
	c.m = dialer.New(sess, rec, rec, dialer.Options{ProjectID: "p1"})

	c.exec("call +15551234")
	c.wait()
	if got := c.m.Snapshot().ProviderCallID; got != "leg-9" {
		t.Fatalf("expected placed call, got %q (%s)", got, buf.String())
	}

	if !c.exec("quit") {
		t.Fatalf("quit should quit")
	}
	if err := c.shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_ = sess.Close()

	got := sess.log()
	if len(got) != 2 || got[0] != "hangup leg-9" || got[1] != "close" {
		t.Fatalf("expected hangup before close, got %v", got)
	}
	if s := c.m.Snapshot().State; s != dialer.StateEnded {
		t.Fatalf("expected ended, got %s", s)
	}
}

func TestConsole_ShutdownWhileIdle(t *testing.T) {
	c, _ := newTestConsole()
	if err := c.shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
