package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/splitpal/splitpal/internal/domain"
)

// ─── Credential Schema ──────────────────────────────────────────────────────

// CredentialMigrations returns the identity schema: sign-in credentials,
// email verification tokens and revoked session ids.
func CredentialMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS credentials (
			uid            TEXT PRIMARY KEY,
			email          TEXT NOT NULL UNIQUE,
			password_hash  TEXT NOT NULL DEFAULT '',
			provider       TEXT NOT NULL DEFAULT 'password',
			subject        TEXT NOT NULL DEFAULT '',
			email_verified INTEGER NOT NULL DEFAULT 0,
			created_at     TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_credentials_subject ON credentials(provider, subject)`,

		`CREATE TABLE IF NOT EXISTS verification_tokens (
			token      TEXT PRIMARY KEY,
			uid        TEXT NOT NULL,
			expires_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS revoked_tokens (
			jti        TEXT PRIMARY KEY,
			expires_at TEXT NOT NULL
		)`,
	}
}

// Credential is a stored sign-in identity.
type Credential struct {
	UID           string
	Email         string
	PasswordHash  string
	Provider      string
	Subject       string
	EmailVerified bool
	CreatedAt     time.Time
}

// ─── Credential Operations ──────────────────────────────────────────────────

// InsertCredential stores a new credential. A second credential with the
// same email fails with domain.ErrEmailTaken.
func (db *DB) InsertCredential(ctx context.Context, c Credential) error {
	verified := 0
	if c.EmailVerified {
		verified = 1
	}
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO credentials (uid, email, password_hash, provider, subject, email_verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.UID, c.Email, c.PasswordHash, c.Provider, c.Subject, verified, c.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%s: %w", c.Email, domain.ErrEmailTaken)
	}
	return unavailable(err)
}

// CredentialByEmail returns the credential for email, or nil if none exists.
func (db *DB) CredentialByEmail(ctx context.Context, email string) (*Credential, error) {
	return db.scanCredential(ctx, `WHERE email = ?`, email)
}

// CredentialBySubject returns the credential linked to a federated
// provider subject, or nil if none exists.
func (db *DB) CredentialBySubject(ctx context.Context, provider, subject string) (*Credential, error) {
	return db.scanCredential(ctx, `WHERE provider = ? AND subject = ?`, provider, subject)
}

// CredentialByUID returns the credential for uid, or nil if none exists.
func (db *DB) CredentialByUID(ctx context.Context, uid string) (*Credential, error) {
	return db.scanCredential(ctx, `WHERE uid = ?`, uid)
}

func (db *DB) scanCredential(ctx context.Context, where string, args ...any) (*Credential, error) {
	var c Credential
	var verified int
	var created string
	err := db.db.QueryRowContext(ctx, `
		SELECT uid, email, password_hash, provider, subject, email_verified, created_at
		FROM credentials `+where, args...).
		Scan(&c.UID, &c.Email, &c.PasswordHash, &c.Provider, &c.Subject, &verified, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	c.EmailVerified = verified == 1
	c.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &c, nil
}

// SetEmailVerified marks a credential's email as verified.
func (db *DB) SetEmailVerified(ctx context.Context, uid string) error {
	res, err := db.db.ExecContext(ctx, `
		UPDATE credentials SET email_verified = 1 WHERE uid = ?
	`, uid)
	if err != nil {
		return unavailable(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("credential %s: %w", uid, domain.ErrNotFound)
	}
	return nil
}

// ─── Verification Tokens ────────────────────────────────────────────────────

// InsertVerificationToken stores a one-time email verification token.
func (db *DB) InsertVerificationToken(ctx context.Context, token, uid string, expiresAt time.Time) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO verification_tokens (token, uid, expires_at) VALUES (?, ?, ?)
	`, token, uid, expiresAt.UTC().Format(time.RFC3339))
	return unavailable(err)
}

// ConsumeVerificationToken deletes a token and returns its uid.
// Unknown or expired tokens return domain.ErrNotFound.
func (db *DB) ConsumeVerificationToken(ctx context.Context, token string, now time.Time) (string, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return "", unavailable(err)
	}
	defer tx.Rollback()

	var uid, expires string
	err = tx.QueryRowContext(ctx, `
		SELECT uid, expires_at FROM verification_tokens WHERE token = ?
	`, token).Scan(&uid, &expires)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("verification token: %w", domain.ErrNotFound)
	}
	if err != nil {
		return "", unavailable(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM verification_tokens WHERE token = ?`, token); err != nil {
		return "", unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return "", unavailable(err)
	}

	if expires <= now.UTC().Format(time.RFC3339) {
		return "", fmt.Errorf("verification token expired: %w", domain.ErrNotFound)
	}
	return uid, nil
}

// ─── Revoked Sessions ───────────────────────────────────────────────────────

// RevokeToken records a session id as signed out until it would have expired.
// Entries past their expiry are purged on the way.
func (db *DB) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if _, err := db.db.ExecContext(ctx, `
		DELETE FROM revoked_tokens WHERE expires_at <= ?
	`, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return unavailable(err)
	}
	_, err := db.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO revoked_tokens (jti, expires_at) VALUES (?, ?)
	`, jti, expiresAt.UTC().Format(time.RFC3339))
	return unavailable(err)
}

// IsTokenRevoked reports whether a session id has been signed out.
func (db *DB) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var count int
	err := db.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?
	`, jti).Scan(&count)
	return count > 0, unavailable(err)
}
