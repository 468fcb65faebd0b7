package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ─── Document Mapping ───────────────────────────────────────────────────────
// Field names follow the stored document layout (camelCase keys).
// Readers are lenient: wrong or missing fields become zero values.

// Fields returns the document fields for a profile.
func (p Profile) Fields() map[string]any {
	friends := p.Friends
	if friends == nil {
		friends = []string{}
	}
	return map[string]any{
		"uid":         p.UID,
		"email":       p.Email,
		"displayName": p.DisplayName,
		"friends":     friends,
		"createdAt":   formatTime(p.CreatedAt),
	}
}

// ProfileFromDocument reads a profile. The document id wins over a stored uid.
func ProfileFromDocument(doc Document) Profile {
	return Profile{
		UID:         doc.ID,
		Email:       stringField(doc.Data, "email"),
		DisplayName: stringField(doc.Data, "displayName"),
		Friends:     stringSet(doc.Data["friends"]),
		CreatedAt:   timeField(doc.Data, "createdAt"),
	}
}

// Fields returns the document fields for a friend request.
func (r FriendRequest) Fields() map[string]any {
	return map[string]any{
		"from":        r.From,
		"to":          r.To,
		"senderName":  r.SenderName,
		"senderEmail": r.SenderEmail,
		"status":      string(r.Status),
		"timestamp":   formatTime(r.Timestamp),
	}
}

// RequestFromDocument reads a friend request.
func RequestFromDocument(doc Document) FriendRequest {
	return FriendRequest{
		ID:          doc.ID,
		From:        stringField(doc.Data, "from"),
		To:          stringField(doc.Data, "to"),
		SenderName:  stringField(doc.Data, "senderName"),
		SenderEmail: stringField(doc.Data, "senderEmail"),
		Status:      RequestStatus(stringField(doc.Data, "status")),
		Timestamp:   timeField(doc.Data, "timestamp"),
	}
}

// Fields returns the document fields for a transaction.
// The amount is stored as a JSON number carrying the exact decimal digits.
func (t Transaction) Fields() map[string]any {
	f := map[string]any{
		"from":        t.From,
		"to":          t.To,
		"amount":      json.Number(t.Amount.String()),
		"description": t.Description,
		"type":        string(t.Type),
		"timestamp":   formatTime(t.Timestamp),
	}
	if t.Edit != nil {
		f["editedBy"] = t.Edit.EditorName
		f["editedById"] = t.Edit.EditorID
		f["editedAt"] = formatTime(t.Edit.EditedAt)
	}
	return f
}

// TransactionFromDocument reads a transaction. This is the ingestion
// boundary for amounts: anything unparseable becomes zero.
func TransactionFromDocument(doc Document) Transaction {
	t := Transaction{
		ID:          doc.ID,
		From:        stringField(doc.Data, "from"),
		To:          stringField(doc.Data, "to"),
		Amount:      ParseAmount(doc.Data["amount"]),
		Description: stringField(doc.Data, "description"),
		Type:        TxType(stringField(doc.Data, "type")),
		Timestamp:   timeField(doc.Data, "timestamp"),
	}
	if id := stringField(doc.Data, "editedById"); id != "" {
		t.Edit = &EditInfo{
			EditorID:   id,
			EditorName: stringField(doc.Data, "editedBy"),
			EditedAt:   timeField(doc.Data, "editedAt"),
		}
	}
	return t
}

// ─── Field Helpers ──────────────────────────────────────────────────────────

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func timeField(data map[string]any, key string) time.Time {
	s, ok := data[key].(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// stringSet reads an array field as a duplicate-free list of strings.
func stringSet(v any) []string {
	out := []string{}
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	switch arr := v.(type) {
	case []any:
		for _, x := range arr {
			if s, ok := x.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, s := range arr {
			add(s)
		}
	}
	return out
}
