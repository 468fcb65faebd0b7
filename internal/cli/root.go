// Package cli implements the splitpal command line.
//
// Commands other than serve operate directly on the local database as the
// user named by --as (an email address).
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/splitpal/splitpal/internal/app/account"
	"github.com/splitpal/splitpal/internal/daemon"
	"github.com/splitpal/splitpal/internal/domain"
)

var (
	configPath string
	actAs      string
)

var rootCmd = &cobra.Command{
	Use:   "splitpal",
	Short: "Track who owes whom between friends",
	Long: `splitpal records lend, borrow and repay transactions between friends and
derives each friend's running balance from the full history.

Run 'splitpal serve' for the HTTP API, or use the commands below against the
local database with --as <email>.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml (default ~/.splitpal/config.toml)")
	rootCmd.PersistentFlags().StringVar(&actAs, "as", os.Getenv("SPLITPAL_USER"), "Email of the user to act as")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// openDaemon loads configuration and opens the local database.
func openDaemon() (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg)
}

// currentUser resolves --as to a profile.
func currentUser(ctx context.Context, d *daemon.Daemon) (domain.Profile, error) {
	if actAs == "" {
		return domain.Profile{}, fmt.Errorf("no user selected: pass --as <email> or set SPLITPAL_USER")
	}
	return userByEmail(ctx, d, actAs)
}

func userByEmail(ctx context.Context, d *daemon.Daemon, email string) (domain.Profile, error) {
	matches, err := d.Friends.SearchByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		return domain.Profile{}, err
	}
	if len(matches) == 0 {
		return domain.Profile{}, fmt.Errorf("no user with email %q", email)
	}
	return matches[0], nil
}

// nameOf returns a display label for uid, falling back to the raw id.
func nameOf(ctx context.Context, d *daemon.Daemon, uid string) string {
	p, err := d.Friends.GetProfile(ctx, uid)
	if err != nil {
		return uid
	}
	return p.Name()
}
