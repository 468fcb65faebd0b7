// Package friends implements the friend-relationship state machine.
//
// Per ordered pair (A, B): none → pending(A→B) → friends. There is no
// declined or removed state. Accepting deletes the request and adds each
// side to the other's friend set in one atomic batch.
package friends

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splitpal/splitpal/internal/domain"
	"github.com/splitpal/splitpal/internal/infra/observability"
)

// Placeholder identities written when accept finds a profile missing.
const (
	RestoredUserName    = "Restored User"
	RestoredUserEmail   = "restored_user@example.com"
	RestoredFriendName  = "Restored Friend"
	RestoredFriendEmail = "restored_friend@example.com"
)

// Service is the friend relationship engine.
type Service struct {
	store domain.DocumentStore
	now   func() time.Time
}

// NewService creates a friend service backed by store.
func NewService(store domain.DocumentStore) *Service {
	return &Service{store: store, now: time.Now}
}

// ─── Requests ───────────────────────────────────────────────────────────────

// SendRequest records a pending request from senderID to recipientID.
// The sender's name and email are snapshotted onto the request.
//
// Only the same direction is checked for duplicates: a pending B→A does not
// block A→B. The duplicate query and the insert are separate calls, so two
// concurrent sends can both succeed.
func (s *Service) SendRequest(ctx context.Context, senderID string, sender domain.Profile, recipientID string) (domain.FriendRequest, error) {
	if senderID == "" || recipientID == "" {
		return domain.FriendRequest{}, fmt.Errorf("send request: %w: sender and recipient are required", domain.ErrValidation)
	}

	existing, err := s.store.Query(ctx, domain.CollectionFriendRequests,
		domain.Where("from", senderID),
		domain.Where("to", recipientID),
	)
	if err != nil {
		return domain.FriendRequest{}, fmt.Errorf("send request: %w", err)
	}
	if len(existing) > 0 {
		observability.FriendRequestsDuplicate.Inc()
		return domain.FriendRequest{}, fmt.Errorf("send request to %s: %w", recipientID, domain.ErrDuplicateRequest)
	}

	req := domain.FriendRequest{
		ID:          uuid.NewString(),
		From:        senderID,
		To:          recipientID,
		SenderName:  sender.Name(),
		SenderEmail: sender.Email,
		Status:      domain.RequestPending,
		Timestamp:   s.now(),
	}
	if err := s.store.Put(ctx, domain.CollectionFriendRequests, req.ID, req.Fields()); err != nil {
		return domain.FriendRequest{}, fmt.Errorf("send request: %w", err)
	}

	observability.FriendRequestsSent.Inc()
	return req, nil
}

// AcceptRequest turns a pending request into a mutual friendship.
//
// One batch restores missing profiles with placeholders, adds each side to
// the other's friend set and deletes the request. The restore is an
// insert-if-absent write, so a profile created or befriended by a
// concurrent accept is never overwritten. A request that is already gone
// fails with domain.ErrNotFound and changes nothing.
func (s *Service) AcceptRequest(ctx context.Context, requestID, senderID, recipientID string) error {
	if requestID == "" || senderID == "" || recipientID == "" {
		return fmt.Errorf("accept request: %w: request, sender and recipient are required", domain.ErrValidation)
	}

	reqDoc, err := s.store.Get(ctx, domain.CollectionFriendRequests, requestID)
	if err != nil {
		return fmt.Errorf("accept request %s: %w", requestID, err)
	}
	req := domain.RequestFromDocument(reqDoc)

	name, email := req.SenderName, req.SenderEmail
	if name == "" {
		name = RestoredFriendName
	}
	if email == "" {
		email = RestoredFriendEmail
	}
	heals := []profileHeal{
		{uid: recipientID, role: "recipient", name: RestoredUserName, email: RestoredUserEmail},
		{uid: senderID, role: "sender", name: name, email: email},
	}

	ops := make([]domain.WriteOp, 0, len(heals)+3)
	for i := range heals {
		missing, err := s.profileMissing(ctx, heals[i].uid)
		if err != nil {
			return fmt.Errorf("accept request %s: %w", requestID, err)
		}
		heals[i].missing = missing
		ops = append(ops, domain.CreateOp(domain.CollectionUsers, heals[i].uid, s.placeholder(heals[i]).Fields()))
	}
	ops = append(ops,
		domain.UpdateOp(domain.CollectionUsers, recipientID, map[string]any{"friends": domain.ArrayUnion{senderID}}),
		domain.UpdateOp(domain.CollectionUsers, senderID, map[string]any{"friends": domain.ArrayUnion{recipientID}}),
		domain.DeleteOp(domain.CollectionFriendRequests, requestID),
	)
	if err := s.store.Batch(ctx, ops...); err != nil {
		return fmt.Errorf("accept request %s: %w", requestID, err)
	}

	for _, h := range heals {
		if h.missing {
			log.Printf("[friends] restored missing %s profile %s", h.role, h.uid)
			observability.ProfilesHealed.WithLabelValues(h.role).Inc()
		}
	}
	observability.FriendRequestsAccepted.Inc()
	return nil
}

// profileHeal describes the placeholder written for one side of an accept.
type profileHeal struct {
	uid, role   string
	name, email string
	missing     bool
}

func (s *Service) placeholder(h profileHeal) domain.Profile {
	return domain.Profile{
		UID:         h.uid,
		Email:       h.email,
		DisplayName: h.name,
		Friends:     []string{},
		CreatedAt:   s.now(),
	}
}

// profileMissing reports whether uid has no profile yet. The answer only
// drives logging; the batch itself never relies on it.
func (s *Service) profileMissing(ctx context.Context, uid string) (bool, error) {
	_, err := s.store.Get(ctx, domain.CollectionUsers, uid)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, domain.ErrNotFound):
		return true, nil
	}
	return false, err
}

// GetRequest returns a single friend request.
func (s *Service) GetRequest(ctx context.Context, requestID string) (domain.FriendRequest, error) {
	doc, err := s.store.Get(ctx, domain.CollectionFriendRequests, requestID)
	if err != nil {
		return domain.FriendRequest{}, fmt.Errorf("get request %s: %w", requestID, err)
	}
	return domain.RequestFromDocument(doc), nil
}

// IncomingRequests lists pending requests addressed to userID.
func (s *Service) IncomingRequests(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	return s.pending(ctx, "to", userID)
}

// SentRequests lists pending requests sent by userID.
func (s *Service) SentRequests(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	return s.pending(ctx, "from", userID)
}

func (s *Service) pending(ctx context.Context, field, userID string) ([]domain.FriendRequest, error) {
	docs, err := s.store.Query(ctx, domain.CollectionFriendRequests,
		domain.Where(field, userID),
		domain.Where("status", string(domain.RequestPending)),
	)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return requestsFromDocuments(docs), nil
}

// SubscribeIncoming streams the pending requests addressed to userID.
func (s *Service) SubscribeIncoming(ctx context.Context, userID string) <-chan []domain.FriendRequest {
	return s.subscribe(ctx, "to", userID)
}

// SubscribeSent streams the pending requests sent by userID.
func (s *Service) SubscribeSent(ctx context.Context, userID string) <-chan []domain.FriendRequest {
	return s.subscribe(ctx, "from", userID)
}

func (s *Service) subscribe(ctx context.Context, field, userID string) <-chan []domain.FriendRequest {
	docs, cancel := s.store.Subscribe(ctx, domain.CollectionFriendRequests,
		domain.Where(field, userID),
		domain.Where("status", string(domain.RequestPending)),
	)
	out := make(chan []domain.FriendRequest)
	go func() {
		defer close(out)
		defer cancel()
		for snapshot := range docs {
			select {
			case out <- requestsFromDocuments(snapshot):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func requestsFromDocuments(docs []domain.Document) []domain.FriendRequest {
	out := make([]domain.FriendRequest, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.RequestFromDocument(d))
	}
	return out
}

// ─── Profiles ───────────────────────────────────────────────────────────────

// GetProfile returns a user's profile or domain.ErrNotFound.
func (s *Service) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	doc, err := s.store.Get(ctx, domain.CollectionUsers, userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return domain.ProfileFromDocument(doc), nil
}

// ListFriends resolves the caller's friend set to profiles. A missing caller
// profile yields an empty list; friends whose profile is missing are skipped.
func (s *Service) ListFriends(ctx context.Context, userID string) ([]domain.Profile, error) {
	me, err := s.GetProfile(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}

	friends := make([]domain.Profile, 0, len(me.Friends))
	for _, id := range me.Friends {
		p, err := s.GetProfile(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list friends: %w", err)
		}
		friends = append(friends, p)
	}
	return friends, nil
}

// SearchByEmail returns profiles whose email matches exactly.
func (s *Service) SearchByEmail(ctx context.Context, email string) ([]domain.Profile, error) {
	docs, err := s.store.Query(ctx, domain.CollectionUsers, domain.Where("email", email))
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	out := make([]domain.Profile, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.ProfileFromDocument(d))
	}
	return out, nil
}

// ─── Add By Email ───────────────────────────────────────────────────────────

// AddResult describes the outcome of AddFriendByEmail.
type AddResult struct {
	Profile        domain.Profile        `json:"profile"`
	AlreadyFriends bool                  `json:"already_friends"`
	Request        *domain.FriendRequest `json:"request,omitempty"`
}

// AddFriendByEmail looks up email and sends caller a request to that user.
// Existing friends are reported without sending anything.
func (s *Service) AddFriendByEmail(ctx context.Context, caller domain.Profile, email string) (AddResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return AddResult{}, fmt.Errorf("add friend: %w: email is required", domain.ErrValidation)
	}

	matches, err := s.SearchByEmail(ctx, email)
	if err != nil {
		return AddResult{}, err
	}
	if len(matches) == 0 {
		return AddResult{}, fmt.Errorf("add friend %s: %w", email, domain.ErrNotFound)
	}
	target := matches[0]

	if caller.HasFriend(target.UID) {
		return AddResult{Profile: target, AlreadyFriends: true}, nil
	}
	if target.UID == caller.UID {
		return AddResult{}, fmt.Errorf("add friend: %w: cannot add yourself", domain.ErrValidation)
	}

	req, err := s.SendRequest(ctx, caller.UID, caller, target.UID)
	if err != nil {
		return AddResult{}, err
	}
	return AddResult{Profile: target, Request: &req}, nil
}
