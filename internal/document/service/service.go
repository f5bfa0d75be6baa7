package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/docvault/docvault/backend/go-services/internal/document"
	"github.com/docvault/docvault/backend/go-services/internal/document/repository"
	"github.com/docvault/docvault/backend/go-services/internal/models"
	"github.com/docvault/docvault/backend/go-services/internal/notify"
	"github.com/docvault/docvault/backend/go-services/internal/storage"
	"github.com/docvault/docvault/backend/go-services/pkg/logger"
	"github.com/docvault/docvault/backend/go-services/pkg/metrics"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrBlobDeleteFailed is returned by PermanentlyDelete when the record was
	// removed but its stored file could not be.
	ErrBlobDeleteFailed = errors.New("stored file could not be deleted")
)

const (
	DefaultReminderInterval = 60 * time.Second
	DefaultReminderWindow   = 60 * time.Second
)

// Directory is the user lookup the manager needs for sharing.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// Deps are the external collaborators of a Manager.
type Deps struct {
	Store    repository.Store
	Blobs    storage.BlobStore
	Users    Directory
	Notifier notify.Notifier
	Toaster  notify.Toaster
}

// Options tune the reminder notifier. Zero values take the defaults.
type Options struct {
	ReminderInterval time.Duration
	ReminderWindow   time.Duration
	Clock            func() time.Time
}

// Manager mirrors the documents visible to one signed-in user and mediates
// every mutation of them. Mutations are written to the store only; the mirror
// changes when the store's subscription reports them back.
type Manager struct {
	store    repository.Store
	blobs    storage.BlobStore
	users    Directory
	notifier notify.Notifier
	toaster  notify.Toaster
	opts     Options

	// lifeMu serializes SetUser so only one subscription is ever open.
	lifeMu sync.Mutex
	wg     sync.WaitGroup

	mu        sync.RWMutex
	user      *models.User
	docs      []*document.Document
	loading   bool
	ready     chan struct{}
	cancel    context.CancelFunc
	listeners map[int]func([]*document.Document)
	nextID    int
}

func NewManager(deps Deps, opts Options) *Manager {
	if opts.ReminderInterval <= 0 {
		opts.ReminderInterval = DefaultReminderInterval
	}
	if opts.ReminderWindow <= 0 {
		opts.ReminderWindow = DefaultReminderWindow
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NoopNotifier{}
	}
	if deps.Toaster == nil {
		deps.Toaster = notify.LogToaster{}
	}
	ready := make(chan struct{})
	close(ready)
	return &Manager{
		store:     deps.Store,
		blobs:     deps.Blobs,
		users:     deps.Users,
		notifier:  deps.Notifier,
		toaster:   deps.Toaster,
		opts:      opts,
		ready:     ready,
		listeners: make(map[int]func([]*document.Document)),
	}
}

// User returns the signed-in identity, or nil.
func (m *Manager) User() *models.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// SetUser reacts to the authenticated identity changing. A new identity
// replaces any open subscription; nil tears it down and clears the mirror.
// Listeners must not call SetUser.
func (m *Manager) SetUser(u *models.User) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	m.mu.RLock()
	same := (m.user == nil && u == nil) || (m.user != nil && u != nil && m.user.Sub == u.Sub)
	m.mu.RUnlock()
	if same {
		return
	}
	m.teardown()
	if u == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	cp := *u
	m.mu.Lock()
	m.user = &cp
	m.loading = true
	m.ready = ready
	m.cancel = cancel
	m.mu.Unlock()

	ch, err := m.store.Subscribe(ctx, u.Sub)
	if err != nil {
		logger.Errorf("subscribe documents for %s: %v", u.Sub, err)
		m.toast(notify.Toast{Title: "Could not load documents", Description: err.Error(), Variant: notify.VariantDestructive})
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
		close(ready)
	} else {
		metrics.ActiveSubscriptions.Inc()
		m.wg.Add(1)
		go m.consume(ctx, ch, ready)
	}
	m.wg.Add(1)
	go m.runReminders(ctx)
	logger.Debugf("document subscription opened for %s", u.Sub)
}

// teardown cancels the subscription and reminder ticker, waits for both to
// exit, then clears the mirror. Callers hold lifeMu.
func (m *Manager) teardown() {
	m.mu.Lock()
	cancel := m.cancel
	hadUser := m.user != nil
	m.cancel = nil
	m.user = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
		m.wg.Wait()
	}
	if !hadUser {
		return
	}
	ready := make(chan struct{})
	close(ready)
	m.mu.Lock()
	m.docs = nil
	m.loading = false
	m.ready = ready
	m.mu.Unlock()
	m.emit(nil)
}

// Close signs the manager out.
func (m *Manager) Close() { m.SetUser(nil) }

func (m *Manager) consume(ctx context.Context, ch <-chan repository.Snapshot, ready chan struct{}) {
	defer m.wg.Done()
	defer metrics.ActiveSubscriptions.Dec()
	isReady := false
	markReady := func() {
		if !isReady {
			close(ready)
			isReady = true
		}
	}
	defer markReady()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if snap.Err != nil {
				// keep the last known good mirror
				logger.Errorf("document subscription error: %v", snap.Err)
				m.toast(notify.Toast{Title: "Could not sync documents", Description: snap.Err.Error(), Variant: notify.VariantDestructive})
				m.mu.Lock()
				m.loading = false
				m.mu.Unlock()
				markReady()
				continue
			}
			if m.replace(ctx, snap.Documents) {
				markReady()
			}
		}
	}
}

// replace swaps the mirror atomically and notifies listeners. Snapshots that
// arrive after teardown started are dropped.
func (m *Manager) replace(ctx context.Context, docs []*document.Document) bool {
	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return false
	}
	m.docs = docs
	m.loading = false
	m.mu.Unlock()
	m.emit(docs)
	return true
}

func (m *Manager) emit(docs []*document.Document) {
	m.mu.RLock()
	fns := make([]func([]*document.Document), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(cloneAll(docs))
	}
}

// OnChange registers fn to receive every new mirror, including the empty one
// after sign-out. The returned func unregisters it.
func (m *Manager) OnChange(fn func([]*document.Document)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Documents returns a copy of the mirror, newest first.
func (m *Manager) Documents() []*document.Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneAll(m.docs)
}

// Get looks id up in the mirror.
func (m *Manager) Get(id string) (*document.Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.docs {
		if d.ID == id {
			return d.Clone(), true
		}
	}
	return nil, false
}

// Loading reports whether the first snapshot is still pending.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Ready is closed once the current subscription delivered its first
// snapshot or failed.
func (m *Manager) Ready() <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

func cloneAll(docs []*document.Document) []*document.Document {
	if docs == nil {
		return nil
	}
	out := make([]*document.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}

func (m *Manager) now() time.Time { return m.opts.Clock() }

func (m *Manager) toast(t notify.Toast) {
	sub := ""
	if u := m.User(); u != nil {
		sub = u.Sub
	}
	m.toaster.Toast(sub, t)
}

// fail surfaces err to the user and records the failed operation.
func (m *Manager) fail(op, title string, err error) error {
	metrics.LifecycleOps.WithLabelValues(op, "error").Inc()
	logger.Warnf("%s failed: %v", op, err)
	m.toast(notify.Toast{Title: title, Description: err.Error(), Variant: notify.VariantDestructive})
	return err
}

func ok(op string) { metrics.LifecycleOps.WithLabelValues(op, "ok").Inc() }
