package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/splitpal/splitpal/internal/domain"
	"github.com/splitpal/splitpal/internal/infra/sqlite"
)

func newTestService(t *testing.T) (*Service, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(db, db, NewTokenIssuer("test-secret", time.Hour)), db
}

// ─── Sign Up / Sign In ──────────────────────────────────────────────────────

func TestSignUp_CreatesProfile(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	sess, err := svc.SignUp(ctx, "  Alice@Example.com ", "hunter22", "Alice")
	if err != nil {
		t.Fatalf("SignUp() error: %v", err)
	}
	if sess.Token == "" || sess.Identity.UID == "" {
		t.Fatalf("SignUp() = %+v, want token and uid", sess)
	}
	if sess.Identity.Email != "alice@example.com" {
		t.Errorf("Email = %q, want normalized", sess.Identity.Email)
	}

	doc, err := db.Get(ctx, domain.CollectionUsers, sess.Identity.UID)
	if err != nil {
		t.Fatalf("profile missing: %v", err)
	}
	p := domain.ProfileFromDocument(doc)
	if p.DisplayName != "Alice" || p.Email != "alice@example.com" || len(p.Friends) != 0 {
		t.Errorf("profile = %+v", p)
	}
}

func TestSignUp_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, "not-an-email", "hunter22", "x"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad email error = %v, want ErrValidation", err)
	}
	if _, err := svc.SignUp(ctx, "a@example.com", "123", "x"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("short password error = %v, want ErrValidation", err)
	}
	if _, err := svc.SignUp(ctx, "a@example.com", "hunter22", "x"); err != nil {
		t.Fatalf("SignUp() error: %v", err)
	}
	if _, err := svc.SignUp(ctx, "A@example.com", "hunter22", "y"); !errors.Is(err, domain.ErrEmailTaken) {
		t.Errorf("duplicate email error = %v, want ErrEmailTaken", err)
	}
}

func TestSignIn(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	up, _ := svc.SignUp(ctx, "bob@example.com", "correct horse", "Bob")

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"ok", "bob@example.com", "correct horse", nil},
		{"case insensitive email", "BOB@example.com", "correct horse", nil},
		{"wrong password", "bob@example.com", "battery staple", domain.ErrInvalidCredentials},
		{"unknown email", "eve@example.com", "correct horse", domain.ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := svc.SignIn(ctx, tt.email, tt.password)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SignIn() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SignIn() error: %v", err)
			}
			if sess.Identity.UID != up.Identity.UID || sess.Identity.DisplayName != "Bob" {
				t.Errorf("SignIn() identity = %+v", sess.Identity)
			}
		})
	}
}

// ─── Federated ──────────────────────────────────────────────────────────────

func TestSignInWithProvider_CreatesOnceThenReuses(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	fc := FederatedClaims{Provider: "google", Subject: "g-123", Email: "Carol@example.com", DisplayName: "Carol", EmailVerified: true}

	first, err := svc.SignInWithProvider(ctx, fc)
	if err != nil {
		t.Fatalf("first SignInWithProvider() error: %v", err)
	}
	second, err := svc.SignInWithProvider(ctx, fc)
	if err != nil {
		t.Fatalf("second SignInWithProvider() error: %v", err)
	}
	if first.Identity.UID != second.Identity.UID {
		t.Errorf("uid changed between sign-ins: %s vs %s", first.Identity.UID, second.Identity.UID)
	}
	if !first.Identity.EmailVerified {
		t.Error("provider-verified email should be verified")
	}

	users, _ := db.Query(ctx, domain.CollectionUsers, domain.Where("email", "carol@example.com"))
	if len(users) != 1 {
		t.Errorf("%d profiles for carol, want 1", len(users))
	}
}

func TestSignInWithProvider_RecreatesMissingProfile(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	fc := FederatedClaims{Provider: "google", Subject: "g-1", Email: "d@example.com", DisplayName: "Dee"}

	sess, _ := svc.SignInWithProvider(ctx, fc)
	db.Delete(ctx, domain.CollectionUsers, sess.Identity.UID)

	if _, err := svc.SignInWithProvider(ctx, fc); err != nil {
		t.Fatalf("SignInWithProvider() error: %v", err)
	}
	if _, err := db.Get(ctx, domain.CollectionUsers, sess.Identity.UID); err != nil {
		t.Errorf("profile not recreated: %v", err)
	}
}

func TestSignInWithProvider_DoesNotLinkPasswordAccount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.SignUp(ctx, "e@example.com", "hunter22", "E")

	_, err := svc.SignInWithProvider(ctx, FederatedClaims{Provider: "google", Subject: "g-9", Email: "e@example.com"})
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("SignInWithProvider() error = %v, want ErrEmailTaken", err)
	}
}

func TestFederatedVerifier(t *testing.T) {
	if NewFederatedVerifier("") != nil {
		t.Fatal("empty secret should disable the verifier")
	}
	v := NewFederatedVerifier("provider-secret")

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, federatedToken{
		Email: "f@example.com",
		Name:  "Eff",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "google",
			Subject:   "g-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("provider-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	fc, err := v.Verify(signed)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if fc.Provider != "google" || fc.Subject != "g-42" || fc.Email != "f@example.com" || fc.DisplayName != "Eff" {
		t.Errorf("Verify() = %+v", fc)
	}

	if _, err := NewFederatedVerifier("other").Verify(signed); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("Verify(wrong secret) error = %v, want ErrUnauthorized", err)
	}
}

// ─── Sessions ───────────────────────────────────────────────────────────────

func TestAuthenticate_SignOutRevokes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	sess, _ := svc.SignUp(ctx, "g@example.com", "hunter22", "G")

	claims, err := svc.Authenticate(ctx, sess.Token)
	if err != nil {
		t.Fatalf("Authenticate() error: %v", err)
	}
	if claims.Subject != sess.Identity.UID {
		t.Errorf("Subject = %s, want %s", claims.Subject, sess.Identity.UID)
	}

	if err := svc.SignOut(ctx, sess.Token); err != nil {
		t.Fatalf("SignOut() error: %v", err)
	}
	if _, err := svc.Authenticate(ctx, sess.Token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("Authenticate(after sign out) error = %v, want ErrUnauthorized", err)
	}

	// A fresh sign-in is unaffected.
	again, _ := svc.SignIn(ctx, "g@example.com", "hunter22")
	if _, err := svc.Authenticate(ctx, again.Token); err != nil {
		t.Errorf("Authenticate(new session) error: %v", err)
	}
}

func TestTokenIssuer_Rejects(t *testing.T) {
	ti := NewTokenIssuer("secret", time.Hour)
	token, _, _ := ti.Issue("U1", "u1@example.com")

	expired := NewTokenIssuer("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	tests := []struct {
		name   string
		issuer *TokenIssuer
		token  string
	}{
		{"garbage", ti, "not.a.token"},
		{"wrong secret", NewTokenIssuer("other", time.Hour), token},
		{"expired", expired, token},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.issuer.Parse(tt.token); !errors.Is(err, domain.ErrUnauthorized) {
				t.Errorf("Parse() error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

// ─── Verification ───────────────────────────────────────────────────────────

func TestVerification(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	sess, _ := svc.SignUp(ctx, "h@example.com", "hunter22", "H")

	token, err := svc.SendVerification(ctx, sess.Identity.UID)
	if err != nil {
		t.Fatalf("SendVerification() error: %v", err)
	}
	uid, err := svc.ConfirmVerification(ctx, token)
	if err != nil {
		t.Fatalf("ConfirmVerification() error: %v", err)
	}
	if uid != sess.Identity.UID {
		t.Errorf("verified uid = %s, want %s", uid, sess.Identity.UID)
	}

	cred, _ := db.CredentialByUID(ctx, uid)
	if cred == nil || !cred.EmailVerified {
		t.Errorf("credential not verified: %+v", cred)
	}

	if _, err := svc.ConfirmVerification(ctx, token); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("reused token error = %v, want ErrNotFound", err)
	}
	if _, err := svc.SendVerification(ctx, uid); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("SendVerification(verified) error = %v, want ErrValidation", err)
	}
	if _, err := svc.SendVerification(ctx, "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("SendVerification(nobody) error = %v, want ErrNotFound", err)
	}
}
