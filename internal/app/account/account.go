// Package account is the identity collaborator: email/password and
// federated sign-in, session tokens, sign-out and email verification.
//
// The stable credential uid is the primary key of the user's profile in
// the users collection. Profiles are created on sign-up and on the first
// federated sign-in.
package account

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/splitpal/splitpal/internal/domain"
	"github.com/splitpal/splitpal/internal/infra/observability"
	"github.com/splitpal/splitpal/internal/infra/sqlite"
)

// ProviderPassword marks credentials created by SignUp.
const ProviderPassword = "password"

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// VerificationTTL is how long an email verification token stays valid.
const VerificationTTL = 24 * time.Hour

// CredentialStore persists credentials, verification tokens and revoked
// sessions. Lookups return nil, nil when nothing matches.
type CredentialStore interface {
	InsertCredential(ctx context.Context, c sqlite.Credential) error
	CredentialByEmail(ctx context.Context, email string) (*sqlite.Credential, error)
	CredentialBySubject(ctx context.Context, provider, subject string) (*sqlite.Credential, error)
	CredentialByUID(ctx context.Context, uid string) (*sqlite.Credential, error)
	SetEmailVerified(ctx context.Context, uid string) error
	InsertVerificationToken(ctx context.Context, token, uid string, expiresAt time.Time) error
	ConsumeVerificationToken(ctx context.Context, token string, now time.Time) (string, error)
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Identity is the authenticated user as seen by the rest of the system.
type Identity struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	Provider      string `json:"provider"`
	EmailVerified bool   `json:"emailVerified"`
}

// Session is a signed-in identity plus its bearer token.
type Session struct {
	Identity  Identity  `json:"identity"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service implements sign-up, sign-in and session handling.
type Service struct {
	creds  CredentialStore
	store  domain.DocumentStore
	tokens *TokenIssuer
	now    func() time.Time
}

// NewService creates an account service.
func NewService(creds CredentialStore, store domain.DocumentStore, tokens *TokenIssuer) *Service {
	return &Service{creds: creds, store: store, tokens: tokens, now: time.Now}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ─── Sign Up / Sign In ──────────────────────────────────────────────────────

// SignUp registers an email/password credential and creates the profile.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (Session, error) {
	email = NormalizeEmail(email)
	displayName = strings.TrimSpace(displayName)
	if !strings.Contains(email, "@") {
		return Session{}, fmt.Errorf("sign up: %w: a valid email is required", domain.ErrValidation)
	}
	if len(password) < MinPasswordLength {
		return Session{}, fmt.Errorf("sign up: %w: password must be at least %d characters", domain.ErrValidation, MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("sign up: hash password: %w", err)
	}

	cred := sqlite.Credential{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Provider:     ProviderPassword,
		CreatedAt:    s.now(),
	}
	if err := s.creds.InsertCredential(ctx, cred); err != nil {
		return Session{}, fmt.Errorf("sign up: %w", err)
	}

	profile := domain.Profile{
		UID:         cred.UID,
		Email:       email,
		DisplayName: displayName,
		Friends:     []string{},
		CreatedAt:   cred.CreatedAt,
	}
	if err := s.store.Put(ctx, domain.CollectionUsers, cred.UID, profile.Fields()); err != nil {
		return Session{}, fmt.Errorf("sign up: create profile: %w", err)
	}

	log.Printf("[account] signed up %s (%s)", email, cred.UID)
	observability.SignIns.WithLabelValues(ProviderPassword, "signup").Inc()
	return s.session(cred, profile.DisplayName)
}

// SignIn checks an email/password pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	cred, err := s.creds.CredentialByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return Session{}, fmt.Errorf("sign in: %w", err)
	}
	if cred == nil || cred.PasswordHash == "" {
		return Session{}, domain.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return Session{}, domain.ErrInvalidCredentials
	}

	observability.SignIns.WithLabelValues(cred.Provider, "signin").Inc()
	return s.session(*cred, s.displayName(ctx, cred.UID))
}

// SignInWithProvider signs in with an identity asserted by a federated
// provider. The first sign-in creates the credential and, if missing, the
// profile. An email already registered with a password is not linked.
func (s *Service) SignInWithProvider(ctx context.Context, fc FederatedClaims) (Session, error) {
	fc.Provider = strings.TrimSpace(fc.Provider)
	fc.Email = NormalizeEmail(fc.Email)
	if fc.Provider == "" || fc.Subject == "" || fc.Email == "" {
		return Session{}, fmt.Errorf("federated sign in: %w: provider, subject and email are required", domain.ErrValidation)
	}

	cred, err := s.creds.CredentialBySubject(ctx, fc.Provider, fc.Subject)
	if err != nil {
		return Session{}, fmt.Errorf("federated sign in: %w", err)
	}
	kind := "signin"
	if cred == nil {
		cred = &sqlite.Credential{
			UID:           uuid.NewString(),
			Email:         fc.Email,
			Provider:      fc.Provider,
			Subject:       fc.Subject,
			EmailVerified: fc.EmailVerified,
			CreatedAt:     s.now(),
		}
		if err := s.creds.InsertCredential(ctx, *cred); err != nil {
			return Session{}, fmt.Errorf("federated sign in: %w", err)
		}
		kind = "signup"
		log.Printf("[account] linked %s identity %s to %s", fc.Provider, fc.Subject, cred.UID)
	}

	if err := s.ensureProfile(ctx, cred.UID, fc.Email, fc.DisplayName); err != nil {
		return Session{}, fmt.Errorf("federated sign in: %w", err)
	}

	observability.SignIns.WithLabelValues(fc.Provider, kind).Inc()
	return s.session(*cred, s.displayName(ctx, cred.UID))
}

func (s *Service) ensureProfile(ctx context.Context, uid, email, name string) error {
	_, err := s.store.Get(ctx, domain.CollectionUsers, uid)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	p := domain.Profile{UID: uid, Email: email, DisplayName: name, Friends: []string{}, CreatedAt: s.now()}
	return s.store.Put(ctx, domain.CollectionUsers, uid, p.Fields())
}

func (s *Service) displayName(ctx context.Context, uid string) string {
	doc, err := s.store.Get(ctx, domain.CollectionUsers, uid)
	if err != nil {
		return ""
	}
	return domain.ProfileFromDocument(doc).DisplayName
}

func (s *Service) session(cred sqlite.Credential, name string) (Session, error) {
	token, claims, err := s.tokens.Issue(cred.UID, cred.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Identity: Identity{
			UID:           cred.UID,
			Email:         cred.Email,
			DisplayName:   name,
			Provider:      cred.Provider,
			EmailVerified: cred.EmailVerified,
		},
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ─── Sessions ───────────────────────────────────────────────────────────────

// Authenticate resolves a bearer token to its claims. Expired, forged and
// signed-out tokens fail with domain.ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.creds.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: signed out", domain.ErrUnauthorized)
	}
	return claims, nil
}

// SignOut revokes a session token until it would have expired.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return err
	}
	if err := s.creds.RevokeToken(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// ─── Email Verification ─────────────────────────────────────────────────────

// SendVerification issues a one-time verification token for uid. Delivery
// is logged; there is no mail transport.
func (s *Service) SendVerification(ctx context.Context, uid string) (string, error) {
	cred, err := s.creds.CredentialByUID(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("send verification: %w", err)
	}
	if cred == nil {
		return "", fmt.Errorf("send verification: credential %s: %w", uid, domain.ErrNotFound)
	}
	if cred.EmailVerified {
		return "", fmt.Errorf("send verification: %w: %s is already verified", domain.ErrValidation, cred.Email)
	}

	token := uuid.NewString()
	if err := s.creds.InsertVerificationToken(ctx, token, uid, s.now().Add(VerificationTTL)); err != nil {
		return "", fmt.Errorf("send verification: %w", err)
	}
	log.Printf("[account] verification token for %s: %s", cred.Email, token)
	return token, nil
}

// ConfirmVerification consumes a verification token and marks the email
// verified. It returns the verified uid.
func (s *Service) ConfirmVerification(ctx context.Context, token string) (string, error) {
	uid, err := s.creds.ConsumeVerificationToken(ctx, token, s.now())
	if err != nil {
		return "", fmt.Errorf("confirm verification: %w", err)
	}
	if err := s.creds.SetEmailVerified(ctx, uid); err != nil {
		return "", fmt.Errorf("confirm verification: %w", err)
	}
	return uid, nil
}
