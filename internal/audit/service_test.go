package audit

import (
	"context"
	"testing"
	"time"

	"crm-dialer/internal/calls"
)

func TestService_AppendRequiresTypeAndTarget(t *testing.T) {
	svc := NewService(NewMemoryRepo())

	if err := svc.Append(context.Background(), Entry{ProviderCallID: "leg-1"}); err == nil {
		t.Fatalf("expected error without type")
	}
	if err := svc.Append(context.Background(), Entry{Type: EntryStatus}); err == nil {
		t.Fatalf("expected error without target")
	}
}

func TestService_RecordActivityFromSynchronizer(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.clock = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	repoCalls := calls.NewMemoryRepo()
	sync := calls.NewSynchronizer(repoCalls)
	sync.Activity = svc

	ctx := context.Background()
	c, err := sync.Create(ctx, calls.NewCall{ProjectID: "p", To: "+15550001"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := sync.Link(ctx, c.CallID, "leg-1"); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := sync.HandleStatus(ctx, calls.Event{ProviderCallID: "leg-1", Status: calls.StatusAnswered, RawStatus: "answered"}); err != nil {
		t.Fatalf("status: %v", err)
	}

	entries := repo.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Type != EntryLink || entries[0].CallID != c.CallID {
		t.Fatalf("unexpected link entry: %+v", entries[0])
	}
	if entries[1].Type != EntryStatus || entries[1].Status != "answered" || entries[1].ProviderCallID != "leg-1" {
		t.Fatalf("unexpected status entry: %+v", entries[1])
	}
	if entries[1].ID == "" || !entries[1].CreatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("expected id and clock time to be filled")
	}
}

func TestService_LogCredentialIssued(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogCredentialIssued(context.Background(), "admin-1", "1.2.3.4", "agent-7"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	evs := repo.Entries()
	if len(evs) != 1 || evs[0].IPAddress != "1.2.3.4" || evs[0].Message != "realtime credential issued for agent-7" {
		t.Fatalf("unexpected entries: %+v", evs)
	}
}
