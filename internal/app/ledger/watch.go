package ledger

import (
	"context"

	"github.com/splitpal/splitpal/internal/domain"
	"github.com/splitpal/splitpal/internal/infra/observability"
)

// Watch streams a freshly computed Summary every time the viewer's
// transactions change. The backend only supports conjunctive equality
// queries, so `from == viewer` and `to == viewer` are two subscriptions;
// the latest snapshot of each is kept and their union is recomputed whole.
//
// The returned channel closes when ctx is done.
func Watch(ctx context.Context, store domain.DocumentStore, viewerID string) <-chan Summary {
	out := make(chan Summary)

	fromCh, cancelFrom := store.Subscribe(ctx, domain.CollectionTransactions, domain.Where("from", viewerID))
	toCh, cancelTo := store.Subscribe(ctx, domain.CollectionTransactions, domain.Where("to", viewerID))

	go func() {
		defer close(out)
		defer cancelFrom()
		defer cancelTo()

		var fromDocs, toDocs []domain.Document
		haveFrom, haveTo := false, false

		for fromCh != nil || toCh != nil {
			select {
			case <-ctx.Done():
				return
			case docs, ok := <-fromCh:
				if !ok {
					fromCh = nil
					continue
				}
				fromDocs, haveFrom = docs, true
			case docs, ok := <-toCh:
				if !ok {
					toCh = nil
					continue
				}
				toDocs, haveTo = docs, true
			}

			// Wait for both halves before the first emit so the initial
			// summary is not missing half the ledger.
			if !haveFrom || !haveTo {
				continue
			}

			summary := ComputeDocuments(union(fromDocs, toDocs), viewerID)
			observability.LedgerRecomputes.Inc()
			select {
			case out <- summary:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// union merges two snapshots, dropping duplicate ids.
func union(a, b []domain.Document) []domain.Document {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]domain.Document, 0, len(a)+len(b))
	for _, list := range [][]domain.Document{a, b} {
		for _, d := range list {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			out = append(out, d)
		}
	}
	return out
}
