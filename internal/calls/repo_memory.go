package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu    sync.Mutex
	calls map[string]Call
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{calls: map[string]Call{}} }

func (r *MemoryRepo) Create(ctx context.Context, c Call) error {
	if c.CallID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[c.CallID]; ok {
		return ErrInvalidArgument
	}
	r.calls[c.CallID] = c
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, callID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) LinkProviderCall(ctx context.Context, callID, providerCallID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok {
		return ErrNotFound
	}
	c.ProviderCallID = ptr(providerCallID)
	touch(&c, at)
	r.calls[callID] = c
	return nil
}

func (r *MemoryRepo) ApplyStatus(ctx context.Context, providerCallID string, u StatusUpdate) error {
	return r.update(providerCallID, func(c *Call) { applyStatus(c, u) })
}

func (r *MemoryRepo) SetRecording(ctx context.Context, providerCallID, url string, at time.Time) error {
	return r.update(providerCallID, func(c *Call) {
		c.RecordingURL = ptr(url)
		touch(c, at)
	})
}

func (r *MemoryRepo) SetTranscription(ctx context.Context, providerCallID, text string, at time.Time) error {
	return r.update(providerCallID, func(c *Call) {
		c.Transcription = ptr(text)
		touch(c, at)
	})
}

func (r *MemoryRepo) ListCalls(ctx context.Context, projectID string, from, to time.Time) ([]Call, error) {
	if projectID == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, 0)
	for _, c := range r.calls {
		if c.ProjectID != projectID {
			continue
		}
		if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) update(key string, fn func(c *Call)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for id, c := range r.calls {
		if !matchesProviderKey(c, key) {
			continue
		}
		fn(&c)
		r.calls[id] = c
		found = true
	}
	if !found {
		return ErrNotFound
	}
	return nil
}
