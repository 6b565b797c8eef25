package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var keychainCmd = &cobra.Command{
	Use:     "keychain",
	GroupID: "vault",
	Short:   "Manage OS keychain integration",
}

var keychainEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Store the master password in the OS keychain",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		password, err := readPassword("Master password: ")
		if err != nil {
			return err
		}
		passwordCopy := string(password)
		if err := s.vault.Unlock(password); err != nil {
			return err
		}

		ks := vaultKeychain()
		if err := ks.Ping(); err != nil {
			return err
		}
		if err := ks.Store(passwordCopy); err != nil {
			return err
		}
		successColor.Println("Master password stored in the system keychain.")
		return nil
	},
}

var keychainDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Remove the master password from the OS keychain",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := vaultKeychain().Delete(); err != nil {
			return err
		}
		successColor.Println("Keychain entry removed.")
		return nil
	},
}

var keychainStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show keychain availability and whether a password is stored",
	RunE: func(cmd *cobra.Command, args []string) error {
		ks := vaultKeychain()
		fmt.Printf("Keychain available: %v\n", ks.IsAvailable())
		fmt.Printf("Password stored:    %v\n", ks.Has())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keychainCmd)
	keychainCmd.AddCommand(keychainEnableCmd, keychainDisableCmd, keychainStatusCmd)
}
