package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toolboxpm/toolbox-vault/internal/security"
)

var (
	initUseKeychain bool
	initWeakOK      bool
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "vault",
	Short:   "Create a new vault",
	Long: `Init creates the vault database and derives the master key from a
password of your choosing. The password itself is never stored; a sealed
verifier is used to validate it on unlock.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initUseKeychain, "use-keychain", false, "remember the master password in the OS keychain")
	initCmd.Flags().BoolVar(&initWeakOK, "weak-ok", false, "skip the master password strength check")
}

func runInit(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if s.vault.IsInitialized() {
		return errors.New("vault already exists at " + cfg.VaultPath)
	}

	password, err := readPasswordConfirmed("Choose a master password: ")
	if err != nil {
		return err
	}

	if !initWeakOK {
		if err := security.DefaultMasterPolicy().Validate(string(password)); err != nil {
			return fmt.Errorf("%w (use --weak-ok to override)", err)
		}
	}

	passwordCopy := string(password)
	if err := s.vault.Create(password); err != nil {
		return err
	}

	if initUseKeychain {
		ks := vaultKeychain()
		if !ks.IsAvailable() {
			warnColor.Fprintln(os.Stderr, "Warning: system keychain unavailable, password not stored.")
		} else if err := ks.Store(passwordCopy); err != nil {
			warnColor.Fprintf(os.Stderr, "Warning: failed to store password in keychain: %v\n", err)
		}
	}

	successColor.Printf("Vault created at %s\n", cfg.VaultPath)
	return nil
}
