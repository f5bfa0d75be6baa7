package repository

import (
	"context"
	"sync"
	"time"

	"github.com/docvault/docvault/backend/go-services/internal/document"
	"github.com/google/uuid"
)

type subscriber struct {
	userID string
	ch     chan Snapshot
}

// MemoryRepo is an in-memory Store used by unit tests and the dev server.
// Every write pushes a fresh snapshot to each affected subscriber.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*document.Document
	subs  map[*subscriber]struct{}
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		store: make(map[string]*document.Document),
		subs:  make(map[*subscriber]struct{}),
		now:   time.Now,
	}
}

// WithClock overrides the time source used to stamp updatedAt.
func (m *MemoryRepo) WithClock(now func() time.Time) *MemoryRepo {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *MemoryRepo) Subscribe(ctx context.Context, userID string) (<-chan Snapshot, error) {
	s := &subscriber{userID: userID, ch: make(chan Snapshot, 1)}
	m.mu.Lock()
	m.subs[s] = struct{}{}
	offer(s.ch, Snapshot{Documents: m.snapshotLocked(userID)})
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, s)
		close(s.ch)
		m.mu.Unlock()
	}()
	return s.ch, nil
}

func (m *MemoryRepo) snapshotLocked(userID string) []*document.Document {
	out := make([]*document.Document, 0)
	for _, d := range m.store {
		if d.HasMember(userID) {
			out = append(out, d.Clone())
		}
	}
	document.SortByCreatedDesc(out)
	return out
}

// notifyLocked pushes snapshots to subscribers who could see before or after.
func (m *MemoryRepo) notifyLocked(before, after *document.Document) {
	for s := range m.subs {
		if (before != nil && before.HasMember(s.userID)) || (after != nil && after.HasMember(s.userID)) {
			offer(s.ch, Snapshot{Documents: m.snapshotLocked(s.userID)})
		}
	}
}

func (m *MemoryRepo) Create(ctx context.Context, doc *document.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := doc.Clone()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = m.now()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	m.store[d.ID] = d
	m.notifyLocked(nil, d)
	return d.ID, nil
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return d.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) Patch(ctx context.Context, id string, p document.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	before := d.Clone()
	p.Apply(d, m.now())
	m.notifyLocked(before, d)
	return nil
}

func (m *MemoryRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	m.notifyLocked(d, nil)
	return nil
}
