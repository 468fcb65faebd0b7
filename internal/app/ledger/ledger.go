// Package ledger derives per-friend balances from transaction history.
//
// Balances are never stored. Every call to Compute folds the complete
// transaction set from scratch, so overlapping or out-of-order snapshots
// cannot corrupt the result:
//  1. Resolve the counterparty (the side that is not the viewer)
//  2. Apply +amount when the viewer is `from`, -amount when the viewer is `to`
//  3. Split the per-friend map into total to receive / total to pay
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/splitpal/splitpal/internal/domain"
)

// Summary is the derived ledger for one viewer.
// A positive balance means the counterparty owes the viewer.
type Summary struct {
	Balances       map[string]decimal.Decimal `json:"balances"`
	TotalToReceive decimal.Decimal            `json:"total_to_receive"`
	TotalToPay     decimal.Decimal            `json:"total_to_pay"`
}

// Balance returns the balance with one counterparty (zero if unknown).
func (s Summary) Balance(counterparty string) decimal.Decimal {
	return s.Balances[counterparty]
}

// Settled reports whether the viewer and counterparty are even.
func (s Summary) Settled(counterparty string) bool {
	return s.Balances[counterparty].IsZero()
}

// Counterparties returns the ids in the balance map, sorted.
func (s Summary) Counterparties() []string {
	ids := make([]string, 0, len(s.Balances))
	for id := range s.Balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Compute folds transactions into a Summary for viewerID. It has no side
// effects and never fails: records that do not involve the viewer,
// self-transactions and unknown types contribute nothing. Callers that
// publish a summary count it in observability.LedgerRecomputes.
func Compute(txs []domain.Transaction, viewerID string) Summary {
	balances := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		other, ok := tx.Counterparty(viewerID)
		if !ok {
			continue
		}
		if _, seen := balances[other]; !seen {
			balances[other] = decimal.Zero
		}

		switch tx.Type {
		case domain.TxLend, domain.TxRepay, domain.TxBorrow:
			// Borrow is stored already oriented (friend -> viewer), so the
			// same sign rule holds for all three.
		default:
			continue
		}

		if tx.From == viewerID {
			balances[other] = balances[other].Add(tx.Amount)
		} else {
			balances[other] = balances[other].Sub(tx.Amount)
		}
	}

	toReceive, toPay := decimal.Zero, decimal.Zero
	for _, v := range balances {
		switch v.Sign() {
		case 1:
			toReceive = toReceive.Add(v)
		case -1:
			toPay = toPay.Add(v.Abs())
		}
	}

	return Summary{
		Balances:       balances,
		TotalToReceive: toReceive,
		TotalToPay:     toPay,
	}
}

// ComputeDocuments reads raw transaction documents through the amount
// ingestion boundary and computes the summary.
func ComputeDocuments(docs []domain.Document, viewerID string) Summary {
	txs := make([]domain.Transaction, 0, len(docs))
	for _, d := range docs {
		txs = append(txs, domain.TransactionFromDocument(d))
	}
	return Compute(txs, viewerID)
}
