// Package daemon wires configuration, storage and services together and
// runs the HTTP server.
package daemon

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/splitpal/splitpal/internal/api"
	"github.com/splitpal/splitpal/internal/app/account"
	"github.com/splitpal/splitpal/internal/app/friends"
	"github.com/splitpal/splitpal/internal/app/transactions"
	"github.com/splitpal/splitpal/internal/infra/sqlite"
)

// secretFile holds the generated session signing key when none is configured.
const secretFile = "jwt.secret"

// Daemon owns the database and the services built on it.
type Daemon struct {
	Config       Config
	DB           *sqlite.DB
	Accounts     *account.Service
	Friends      *friends.Service
	Transactions *transactions.Service
}

// New opens storage and constructs every service.
func New(cfg Config) (*Daemon, error) {
	db, err := sqlite.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret, err = loadOrCreateSecret(filepath.Join(cfg.Storage.Dir, secretFile))
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Daemon{
		Config:       cfg,
		DB:           db,
		Accounts:     account.NewService(db, db, account.NewTokenIssuer(secret, cfg.TokenTTL())),
		Friends:      friends.NewService(db),
		Transactions: transactions.NewService(db),
	}, nil
}

// Close releases the database.
func (d *Daemon) Close() error {
	return d.DB.Close()
}

// Server builds the API server from the configuration.
func (d *Daemon) Server() *api.Server {
	srv := api.NewServer(d.Accounts, d.Friends, d.Transactions, d.DB)
	if d.Config.API.Metrics {
		srv.EnableMetrics()
	}
	srv.SetFederatedVerifier(account.NewFederatedVerifier(d.Config.Auth.FederatedSecret))
	srv.SetCurrency(d.Config.Display.Currency)
	srv.SetRequestTimeout(d.Config.RequestTimeout())
	return srv
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (d *Daemon) Serve(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              d.Config.Addr(),
		Handler:           d.Server().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Live streams end with ctx instead of holding up Shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[daemon] listening on http://%s", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Printf("[daemon] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func loadOrCreateSecret(path string) (string, error) {
	if b, err := os.ReadFile(path); err == nil {
		if s := strings.TrimSpace(string(b)); s != "" {
			return s, nil
		}
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(secret+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("[daemon] generated session secret at %s", path)
	return secret, nil
}
