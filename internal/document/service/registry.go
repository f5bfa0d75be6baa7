package service

import (
	"sync"
	"time"

	"github.com/docvault/docvault/backend/go-services/internal/models"
	"github.com/docvault/docvault/backend/go-services/pkg/logger"
)

type entry struct {
	m     *Manager
	refs  int
	timer *time.Timer
}

// Registry keeps one Manager per signed-in user while anything holds it.
// Once the last holder releases, the manager is signed out after the idle
// grace period.
type Registry struct {
	newManager func() *Manager
	idle       time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

func NewRegistry(newManager func() *Manager, idle time.Duration) *Registry {
	return &Registry{newManager: newManager, idle: idle, entries: make(map[string]*entry)}
}

// Acquire returns the manager for u, signed in and subscribed, and a release
// func the caller must invoke exactly once when done.
func (r *Registry) Acquire(u *models.User) (*Manager, func()) {
	r.mu.Lock()
	e, found := r.entries[u.Sub]
	if !found {
		e = &entry{m: r.newManager()}
		r.entries[u.Sub] = e
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.refs++
	r.mu.Unlock()

	e.m.SetUser(u)

	// SignOut may have dropped the entry before SetUser ran.
	r.mu.Lock()
	gone := r.entries[u.Sub] != e
	r.mu.Unlock()
	if gone {
		e.m.SetUser(nil)
	}

	var once sync.Once
	return e.m, func() { once.Do(func() { r.release(u.Sub, e) }) }
}

func (r *Registry) release(userID string, e *entry) {
	r.mu.Lock()
	e.refs--
	if e.refs > 0 || r.entries[userID] != e {
		r.mu.Unlock()
		return
	}
	if r.idle > 0 {
		e.timer = time.AfterFunc(r.idle, func() { r.expire(userID, e) })
		r.mu.Unlock()
		return
	}
	delete(r.entries, userID)
	r.mu.Unlock()
	e.m.SetUser(nil)
}

func (r *Registry) expire(userID string, e *entry) {
	r.mu.Lock()
	if r.entries[userID] != e || e.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.entries, userID)
	r.mu.Unlock()
	logger.Debugf("document manager for %s idle, signing out", userID)
	e.m.SetUser(nil)
}

// Lookup returns the live manager for userID without taking a reference.
func (r *Registry) Lookup(userID string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, found := r.entries[userID]
	if !found {
		return nil, false
	}
	return e.m, true
}

// SignOut tears down userID's manager immediately, regardless of holders.
func (r *Registry) SignOut(userID string) {
	r.mu.Lock()
	e, found := r.entries[userID]
	if found {
		delete(r.entries, userID)
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	r.mu.Unlock()
	if found {
		e.m.SetUser(nil)
	}
}

// Close signs every user out.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.SignOut(id)
	}
}
