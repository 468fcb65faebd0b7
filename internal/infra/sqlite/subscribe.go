package sqlite

import (
	"context"
	"log"
	"sync"

	"github.com/splitpal/splitpal/internal/domain"
)

// ─── Subscriptions ──────────────────────────────────────────────────────────
// A subscriber is woken after every commit that touched its collection and
// re-runs its query. Wakes coalesce: a slow consumer may skip intermediate
// snapshots but always receives the latest committed state.

type subscriber struct {
	wake chan struct{}
	done chan struct{}
}

type hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*subscriber]struct{})}
}

func (h *hub) add(collection string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[collection] == nil {
		h.subs[collection] = make(map[*subscriber]struct{})
	}
	h.subs[collection][s] = struct{}{}
}

func (h *hub) remove(collection string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[collection], s)
}

func (h *hub) notify(collections map[string]bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range collections {
		for s := range h.subs[c] {
			select {
			case s.wake <- struct{}{}:
			default:
				// Already pending; the next query sees this commit too.
			}
		}
	}
}

// count returns the number of live subscribers on a collection.
func (h *hub) count(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}

// Subscribe streams full result sets for the query. The first snapshot is
// delivered immediately.
func (db *DB) Subscribe(ctx context.Context, collection string, where ...domain.Clause) (<-chan []domain.Document, func()) {
	out := make(chan []domain.Document)
	s := &subscriber{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	s.wake <- struct{}{}
	db.hub.add(collection, s)

	var once sync.Once
	cancel := func() { once.Do(func() { close(s.done) }) }

	go func() {
		defer close(out)
		defer db.hub.remove(collection, s)

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-db.done:
				return
			case <-s.wake:
			}

			docs, err := db.Query(ctx, collection, where...)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("[sqlite] subscription on %s: %v", collection, err)
				continue
			}

			select {
			case out <- docs:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-db.done:
				return
			}
		}
	}()

	return out, cancel
}

// SubscriberCount returns the number of live subscriptions on a collection.
func (db *DB) SubscriberCount(collection string) int {
	return db.hub.count(collection)
}
