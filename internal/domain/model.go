// Package domain contains pure business types with ZERO infrastructure imports.
// Services and stores depend on it, never the reverse.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Collections ────────────────────────────────────────────────────────────

const (
	CollectionUsers          = "users"
	CollectionFriendRequests = "friend_requests"
	CollectionTransactions   = "transactions"
)

// ─── Profile ────────────────────────────────────────────────────────────────

// Profile is a user's public record in the users collection.
// Friends is a set: order is irrelevant and ids never repeat.
type Profile struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Friends     []string  `json:"friends"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasFriend reports whether id is in the profile's friend set.
func (p Profile) HasFriend(id string) bool {
	for _, f := range p.Friends {
		if f == id {
			return true
		}
	}
	return false
}

// Name returns the display name, falling back to the email.
func (p Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Email
}

// ─── Friend Requests ────────────────────────────────────────────────────────

// RequestStatus is the state of a friend request. Accepted requests are
// deleted, so pending is the only persisted status.
type RequestStatus string

const RequestPending RequestStatus = "pending"

// FriendRequest is a pending invitation from one user to another.
// SenderName and SenderEmail are snapshots taken at send time.
type FriendRequest struct {
	ID          string        `json:"id"`
	From        string        `json:"from"`
	To          string        `json:"to"`
	SenderName  string        `json:"senderName"`
	SenderEmail string        `json:"senderEmail"`
	Status      RequestStatus `json:"status"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ─── Transactions ───────────────────────────────────────────────────────────

// TxType is the business framing of a transaction.
type TxType string

const (
	TxLend   TxType = "lend"
	TxBorrow TxType = "borrow"
	TxRepay  TxType = "repay"
)

// Valid reports whether t is one of the known transaction types.
func (t TxType) Valid() bool {
	switch t {
	case TxLend, TxBorrow, TxRepay:
		return true
	}
	return false
}

// Transaction is a directed money movement between two users.
// From is the party whose balance increases for lend and repay.
type Transaction struct {
	ID          string          `json:"id"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Type        TxType          `json:"type"`
	Timestamp   time.Time       `json:"timestamp"`
	Edit        *EditInfo       `json:"edit,omitempty"`
}

// EditInfo records the last edit of a transaction. Earlier edits are not kept.
type EditInfo struct {
	EditorID   string    `json:"editedById"`
	EditorName string    `json:"editedBy"`
	EditedAt   time.Time `json:"editedAt"`
}

// Counterparty returns the side of the transaction that is not viewerID.
// ok is false when the viewer is not a participant or both sides are the viewer.
func (t Transaction) Counterparty(viewerID string) (id string, ok bool) {
	switch {
	case t.From == t.To:
		return "", false
	case t.From == viewerID:
		return t.To, true
	case t.To == viewerID:
		return t.From, true
	}
	return "", false
}

// Involves reports whether userID is on either side of the transaction.
func (t Transaction) Involves(userID string) bool {
	return t.From == userID || t.To == userID
}

// Orient maps a viewer-relative transaction onto the stored from/to pair.
// Lend and repay flow from the viewer to the friend; borrow is the inverse
// framing and flows from the friend to the viewer.
func Orient(viewerID, friendID string, t TxType) (from, to string) {
	if t == TxBorrow {
		return friendID, viewerID
	}
	return viewerID, friendID
}
