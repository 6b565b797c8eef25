package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toolboxpm/toolbox-vault/internal/security"
)

var changeWeakOK bool

var changePasswordCmd = &cobra.Command{
	Use:     "change-password",
	GroupID: "vault",
	Short:   "Change the master password",
	Long: `Change-password re-encrypts every stored entry under a key derived
from the new password inside a single transaction. An interrupted run
leaves the vault untouched under the old password.`,
	RunE: runChangePassword,
}

func init() {
	rootCmd.AddCommand(changePasswordCmd)
	changePasswordCmd.Flags().BoolVar(&changeWeakOK, "weak-ok", false, "skip the master password strength check")
}

func runChangePassword(cmd *cobra.Command, args []string) error {
	s, err := openUnlocked()
	if err != nil {
		return err
	}
	defer s.Close()

	newPassword, err := readPasswordConfirmed("New master password: ")
	if err != nil {
		return err
	}

	if !changeWeakOK {
		if err := security.DefaultMasterPolicy().Validate(string(newPassword)); err != nil {
			return fmt.Errorf("%w (use --weak-ok to override)", err)
		}
	}

	passwordCopy := string(newPassword)
	if err := s.vault.ChangeMaster(newPassword); err != nil {
		return err
	}

	// Keep a remembered keychain password in sync.
	ks := vaultKeychain()
	if ks.Has() {
		if err := ks.Store(passwordCopy); err != nil {
			warnColor.Fprintf(os.Stderr, "Warning: failed to update keychain: %v\n", err)
		}
	}

	successColor.Println("Master password changed.")
	return nil
}
