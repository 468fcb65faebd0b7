// Package api provides the HTTP server for splitpal.
// Every /api route except sign-up and sign-in requires a bearer session token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splitpal/splitpal/internal/app/account"
	"github.com/splitpal/splitpal/internal/app/friends"
	"github.com/splitpal/splitpal/internal/app/transactions"
	"github.com/splitpal/splitpal/internal/domain"
	"github.com/splitpal/splitpal/internal/infra/observability"
)

// Version is reported by /api/version.
const Version = "0.1.0"

// Server is the splitpal HTTP API server.
type Server struct {
	accounts       *account.Service
	friends        *friends.Service
	txs            *transactions.Service
	store          domain.DocumentStore
	federated      *account.FederatedVerifier // nil disables /api/auth/federated
	currency       string
	metricsEnabled bool
	timeout        time.Duration
}

// NewServer creates a new API server over the given services.
func NewServer(accounts *account.Service, fr *friends.Service, txs *transactions.Service, store domain.DocumentStore) *Server {
	return &Server{
		accounts: accounts,
		friends:  fr,
		txs:      txs,
		store:    store,
		currency: "USD",
		timeout:  30 * time.Second,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetFederatedVerifier enables federated sign-in.
func (s *Server) SetFederatedVerifier(v *account.FederatedVerifier) { s.federated = v }

// SetCurrency sets the display currency reported with balances.
func (s *Server) SetCurrency(code string) {
	if code != "" {
		s.currency = code
	}
}

// SetRequestTimeout bounds every non-streaming request.
func (s *Server) SetRequestTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMetrics)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Live stream sits outside the request timeout.
	r.With(s.requireAuth).Get("/api/balances/live", s.handleLiveBalances)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Post("/api/auth/signup", s.handleSignUp)
		r.Post("/api/auth/login", s.handleLogin)
		r.Post("/api/auth/federated", s.handleFederated)
		r.Post("/api/auth/verify", s.handleVerify)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/api/auth/logout", s.handleLogout)
			r.Post("/api/auth/verification", s.handleSendVerification)

			r.Get("/api/me", s.handleMe)
			r.Get("/api/users", s.handleSearchUsers)
			r.Get("/api/users/{id}", s.handleGetUser)

			r.Get("/api/friends", s.handleListFriends)
			r.Post("/api/friends", s.handleAddFriend)

			r.Get("/api/requests/incoming", s.handleIncomingRequests)
			r.Get("/api/requests/sent", s.handleSentRequests)
			r.Post("/api/requests", s.handleSendRequest)
			r.Post("/api/requests/{id}/accept", s.handleAcceptRequest)

			r.Get("/api/transactions", s.handleListTransactions)
			r.Post("/api/transactions", s.handleCreateTransaction)
			r.Put("/api/transactions/{id}", s.handleUpdateTransaction)

			r.Get("/api/balances", s.handleBalances)
		})
	})

	return r
}

// ─── Authentication ─────────────────────────────────────────────────────────

type ctxKey int

const (
	claimsKey ctxKey = iota
	tokenKey
)

// requireAuth resolves the bearer token. EventSource clients cannot set
// headers, so an access_token query parameter is accepted as well.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		claims, err := s.accounts.Authenticate(r.Context(), token)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}

func callerClaims(r *http.Request) *account.Claims {
	c, _ := r.Context().Value(claimsKey).(*account.Claims)
	return c
}

func callerID(r *http.Request) string {
	if c := callerClaims(r); c != nil {
		return c.Subject
	}
	return ""
}

// callerProfile loads the caller's profile. A missing profile degrades to
// what the session token knows.
func (s *Server) callerProfile(r *http.Request) (domain.Profile, error) {
	c := callerClaims(r)
	p, err := s.friends.GetProfile(r.Context(), c.Subject)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Profile{UID: c.Subject, Email: c.Email, Friends: []string{}}, nil
	}
	return p, err
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps a domain sentinel to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		log.Printf("[api] %v", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateRequest), errors.Is(err, domain.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a request body into v. Numbers stay json.Number.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
