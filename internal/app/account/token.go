package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/splitpal/splitpal/internal/domain"
)

// ─── Session Tokens ─────────────────────────────────────────────────────────

// Claims are the contents of a session token. The token id (jti) is what
// sign-out revokes.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenIssuer creates an issuer. ttl <= 0 means 24 hours.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, issuer: "splitpal", now: time.Now}
}

// Issue signs a new session token for uid.
func (ti *TokenIssuer) Issue(uid, email string) (string, *Claims, error) {
	now := ti.now()
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uid,
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies a token's signature, issuer and expiry.
// Any failure is reported as domain.ErrUnauthorized.
func (ti *TokenIssuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ti.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: session expired", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: token missing subject or id", domain.ErrUnauthorized)
	}
	return claims, nil
}

// ─── Federated Identity ─────────────────────────────────────────────────────

// FederatedClaims is an identity asserted by an external provider.
type FederatedClaims struct {
	Provider      string `json:"provider"`
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	DisplayName   string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
}

type federatedToken struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// FederatedVerifier checks provider ID tokens signed with a shared HS256
// secret. The token issuer names the provider.
type FederatedVerifier struct {
	secret []byte
}

// NewFederatedVerifier returns nil when secret is empty, which disables
// federated sign-in.
func NewFederatedVerifier(secret string) *FederatedVerifier {
	if secret == "" {
		return nil
	}
	return &FederatedVerifier{secret: []byte(secret)}
}

// Verify parses an ID token into FederatedClaims.
func (v *FederatedVerifier) Verify(idToken string) (FederatedClaims, error) {
	tok := &federatedToken{}
	_, err := jwt.ParseWithClaims(idToken, tok, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return FederatedClaims{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return FederatedClaims{
		Provider:      tok.Issuer,
		Subject:       tok.Subject,
		Email:         tok.Email,
		DisplayName:   tok.Name,
		EmailVerified: tok.EmailVerified,
	}, nil
}
