package repository

import (
	"context"
	"errors"

	"github.com/docvault/docvault/backend/go-services/internal/document"
)

var (
	ErrNotFound = errors.New("document not found")
)

// Snapshot is the complete set of documents visible to one user, newest
// first. Err is set when the subscription failed; the channel closes after it.
type Snapshot struct {
	Documents []*document.Document
	Err       error
}

// Store is the remote document store consumed by the lifecycle manager.
type Store interface {
	// Subscribe streams full snapshots of every document whose owner or
	// members include userID. The first snapshot is sent immediately and the
	// channel is closed once ctx is done.
	Subscribe(ctx context.Context, userID string) (<-chan Snapshot, error)
	Create(ctx context.Context, d *document.Document) (string, error)
	Patch(ctx context.Context, id string, p document.Patch) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*document.Document, error)
}

// offer delivers s without blocking, replacing any snapshot the subscriber
// has not consumed yet. ch must have capacity 1.
func offer(ch chan Snapshot, s Snapshot) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
