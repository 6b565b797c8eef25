package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/toolboxpm/toolbox-vault/internal/security"
)

var totpCmd = &cobra.Command{
	Use:     "totp <id>",
	GroupID: "security",
	Short:   "Print the current TOTP code for an entry",
	Long: `Totp looks for an otpauth:// URI or a line starting with "totp:"
in the entry's notes and prints the current one-time code.`,
	Args: cobra.ExactArgs(1),
	RunE: runTOTP,
}

func init() {
	rootCmd.AddCommand(totpCmd)
}

func runTOTP(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid entry id %q", args[0])
	}

	s, err := openUnlocked()
	if err != nil {
		return err
	}
	defer s.Close()

	secrets, err := s.repo.LoadEntry(id)
	if err != nil {
		return err
	}

	secret, err := security.ExtractTOTPSecret(secrets.Notes)
	if err != nil {
		return err
	}

	code, secondsLeft, err := security.TOTPCode(secret, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("%s (valid for %ds)\n", code, secondsLeft)
	return nil
}
