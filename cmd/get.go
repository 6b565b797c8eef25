package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	getShow    bool
	getNoClear bool
)

var getCmd = &cobra.Command{
	Use:     "get <id>",
	GroupID: "entries",
	Short:   "Copy an entry's password to the clipboard",
	Long: `Get decrypts one entry and copies the password to the clipboard,
clearing it again after the configured delay. Use --show to print the
password to stdout instead (for scripting).`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().BoolVar(&getShow, "show", false, "print the password instead of copying")
	getCmd.Flags().BoolVar(&getNoClear, "no-clear", false, "leave the clipboard as is")
}

func runGet(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("Title:    %s\n", secrets.Entry.Title)
	if secrets.Entry.Username != "" {
		fmt.Printf("Username: %s\n", secrets.Entry.Username)
	}
	if secrets.Entry.URL != "" {
		fmt.Printf("URL:      %s\n", secrets.Entry.URL)
	}
	if secrets.Notes != "" {
		fmt.Printf("Notes:    %s\n", secrets.Notes)
	}

	if getShow {
		fmt.Println(secrets.Password)
		return nil
	}

	if getNoClear {
		if err := copyToClipboard(secrets.Password); err != nil {
			return err
		}
		fmt.Println("Password copied to clipboard.")
		return nil
	}
	return copyWithAutoClear(secrets.Password)
}
