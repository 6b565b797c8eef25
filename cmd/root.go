// Package cmd implements the CLI consumer of the vault core.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toolboxpm/toolbox-vault/internal/config"
	"github.com/toolboxpm/toolbox-vault/internal/logging"
	"github.com/toolboxpm/toolbox-vault/internal/repository"
	"github.com/toolboxpm/toolbox-vault/internal/storage"
	"github.com/toolboxpm/toolbox-vault/internal/vault"
)

var (
	cfgFile string
	verbose bool

	// Version information (set via ldflags during build).
	version = "dev"
	commit  = "none"

	cfg      *config.Config
	closeLog func()

	rootCmd = &cobra.Command{
		Use:   "toolbox-vault",
		Short: "A local encrypted password manager",
		Long: `Toolbox-vault keeps credential records encrypted at rest in a local
SQLite database, sealed under a key derived from your master password.

Features:
  • Authenticated per-field encryption with PBKDF2 key derivation
  • CSV import/export compatible with KeePassXC and Chrome/Edge
  • Vault health scan: weak, reused, stale, and breached passwords
  • Encrypted portable backups (.tbxpm)
  • Optional OS keychain integration`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
			closeLog, err = logging.Setup(cfg.LogFile, verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if closeLog != nil {
				closeLog()
			}
		},
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/"+config.AppDirName+"/config.yml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "vault", Title: "Vault Management:"},
		&cobra.Group{ID: "entries", Title: "Entries:"},
		&cobra.Group{ID: "security", Title: "Security:"},
		&cobra.Group{ID: "data", Title: "Import & Export:"},
	)
}

// session bundles the opened store with its services for one command run.
type session struct {
	store *storage.Store
	vault *vault.Service
	repo  *repository.Repository
}

func (s *session) Close() {
	s.vault.Lock()
	s.store.Close()
}

// openSession opens the database and vault service without unlocking.
func openSession() (*session, error) {
	store, err := storage.Open(cfg.VaultPath)
	if err != nil {
		return nil, err
	}
	v, err := vault.New(store)
	if err != nil {
		store.Close()
		return nil, err
	}
	v.SetIterations(cfg.KDFIterations)
	return &session{store: store, vault: v, repo: repository.New(store, v)}, nil
}

// openUnlocked opens the database and unlocks the vault, trying the OS
// keychain before prompting.
func openUnlocked() (*session, error) {
	s, err := openSession()
	if err != nil {
		return nil, err
	}
	if !s.vault.IsInitialized() {
		s.Close()
		return nil, fmt.Errorf("%w (run \"toolbox-vault init\" first)", vault.ErrNotInitialized)
	}
	if err := unlockWithKeychainOrPrompt(s.vault); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
