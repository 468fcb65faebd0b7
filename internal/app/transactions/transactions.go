// Package transactions manages the lifecycle of transaction records:
// create and edit. Records have no status; there is no cancel, delete or
// settle operation. Settling up is just a balance that reached zero.
package transactions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/splitpal/splitpal/internal/domain"
	"github.com/splitpal/splitpal/internal/infra/observability"
)

// Draft carries the user-supplied fields of a transaction.
// From and To must already be oriented (see domain.Orient).
type Draft struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Type        domain.TxType   `json:"type"`
}

// Validate normalizes the draft and rejects it with domain.ErrValidation
// when a required field is missing.
func (d *Draft) Validate() error {
	d.From = strings.TrimSpace(d.From)
	d.To = strings.TrimSpace(d.To)
	d.Description = strings.TrimSpace(d.Description)
	if d.Type == "" {
		d.Type = domain.TxLend
	}

	switch {
	case d.From == "" || d.To == "":
		return fmt.Errorf("%w: counterparty is required", domain.ErrValidation)
	case d.Description == "":
		return fmt.Errorf("%w: description is required", domain.ErrValidation)
	case !d.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	case !d.Type.Valid():
		return fmt.Errorf("%w: unknown transaction type %q", domain.ErrValidation, d.Type)
	}
	return nil
}

// Service is the transaction lifecycle manager.
type Service struct {
	store domain.DocumentStore
	now   func() time.Time
}

// NewService creates a transaction service backed by store.
func NewService(store domain.DocumentStore) *Service {
	return &Service{store: store, now: time.Now}
}

// Create persists a new transaction stamped with the current time.
// There is no balance check; debt is unbounded.
func (s *Service) Create(ctx context.Context, d Draft) (domain.Transaction, error) {
	if err := d.Validate(); err != nil {
		return domain.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	tx := domain.Transaction{
		ID:          uuid.NewString(),
		From:        d.From,
		To:          d.To,
		Amount:      d.Amount,
		Description: d.Description,
		Type:        d.Type,
		Timestamp:   s.now(),
	}
	if err := s.store.Put(ctx, domain.CollectionTransactions, tx.ID, tx.Fields()); err != nil {
		return domain.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	observability.TransactionsCreated.WithLabelValues(string(tx.Type)).Inc()
	return tx, nil
}

// Update overwrites the editable fields of a transaction and records who
// edited it. The previous values are not kept. Any participant of the
// stored record may edit it; anyone else gets domain.ErrForbidden.
func (s *Service) Update(ctx context.Context, id string, d Draft, editorID, editorName string) (domain.Transaction, error) {
	if err := d.Validate(); err != nil {
		return domain.Transaction{}, fmt.Errorf("update transaction %s: %w", id, err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if !current.Involves(editorID) {
		return domain.Transaction{}, fmt.Errorf("update transaction %s: %w: %s is not a participant", id, domain.ErrForbidden, editorID)
	}

	current.From = d.From
	current.To = d.To
	current.Amount = d.Amount
	current.Description = d.Description
	current.Type = d.Type
	current.Edit = &domain.EditInfo{
		EditorID:   editorID,
		EditorName: editorName,
		EditedAt:   s.now(),
	}

	fields := current.Fields()
	delete(fields, "timestamp")
	if err := s.store.Update(ctx, domain.CollectionTransactions, id, fields); err != nil {
		return domain.Transaction{}, fmt.Errorf("update transaction %s: %w", id, err)
	}

	observability.TransactionsUpdated.Inc()
	return current, nil
}

// Get returns one transaction or domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (domain.Transaction, error) {
	doc, err := s.store.Get(ctx, domain.CollectionTransactions, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return domain.TransactionFromDocument(doc), nil
}

// ListForUser returns every transaction with userID on either side,
// newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	sent, err := s.store.Query(ctx, domain.CollectionTransactions, domain.Where("from", userID))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	received, err := s.store.Query(ctx, domain.CollectionTransactions, domain.Where("to", userID))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	seen := make(map[string]bool, len(sent)+len(received))
	out := make([]domain.Transaction, 0, len(sent)+len(received))
	for _, doc := range append(sent, received...) {
		if seen[doc.ID] {
			continue
		}
		seen[doc.ID] = true
		out = append(out, domain.TransactionFromDocument(doc))
	}
	SortNewestFirst(out)
	return out, nil
}

// ListWithFriend returns the transactions between userID and friendID,
// newest first.
func (s *Service) ListWithFriend(ctx context.Context, userID, friendID string) ([]domain.Transaction, error) {
	all, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Transaction, 0)
	for _, tx := range all {
		if other, ok := tx.Counterparty(userID); ok && other == friendID {
			out = append(out, tx)
		}
	}
	return out, nil
}

// SortNewestFirst orders transactions by timestamp, latest first.
func SortNewestFirst(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp.After(txs[j].Timestamp)
	})
}
