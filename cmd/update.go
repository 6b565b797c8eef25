package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/toolboxpm/toolbox-vault/internal/security"
)

var (
	updUsername    string
	updURL         string
	updCategory    string
	updTitle       string
	updNotes       string
	updTags        []string
	updNewPassword bool
	updGenerate    bool
)

var updateCmd = &cobra.Command{
	Use:     "update <id>",
	GroupID: "entries",
	Short:   "Update an existing entry",
	Long: `Update rewrites an entry. Fields not passed as flags keep their
current values; the password is only changed with --password or
--generate.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().StringVar(&updTitle, "title", "", "new title")
	updateCmd.Flags().StringVarP(&updUsername, "username", "u", "", "new username")
	updateCmd.Flags().StringVar(&updURL, "url", "", "new URL")
	updateCmd.Flags().StringVarP(&updCategory, "category", "c", "", "new category")
	updateCmd.Flags().StringVar(&updNotes, "notes", "", "new notes")
	updateCmd.Flags().StringSliceVarP(&updTags, "tag", "t", nil, "replacement tag set (repeatable)")
	updateCmd.Flags().BoolVarP(&updNewPassword, "password", "p", false, "prompt for a new password")
	updateCmd.Flags().BoolVarP(&updGenerate, "generate", "g", false, "generate a new password")
}

func runUpdate(cmd *cobra.Command, args []string) error {
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

	if cmd.Flags().Changed("title") {
		secrets.Entry.Title = updTitle
	}
	if cmd.Flags().Changed("username") {
		secrets.Entry.Username = updUsername
	}
	if cmd.Flags().Changed("url") {
		secrets.Entry.URL = updURL
	}
	if cmd.Flags().Changed("category") {
		secrets.Entry.Category = updCategory
	}
	if cmd.Flags().Changed("notes") {
		secrets.Notes = updNotes
	}
	if cmd.Flags().Changed("tag") {
		secrets.Entry.Tags = updTags
	}

	generated := false
	switch {
	case updGenerate:
		secrets.Password, err = security.Generate(security.DefaultGeneratorOptions())
		if err != nil {
			return err
		}
		generated = true
	case updNewPassword:
		raw, err := readPassword("New entry password: ")
		if err != nil {
			return err
		}
		secrets.Password = string(raw)
	}

	if err := s.repo.UpdateEntry(secrets); err != nil {
		return err
	}
	successColor.Printf("Updated entry #%d\n", id)

	if generated {
		if err := copyToClipboard(secrets.Password); err != nil {
			warnColor.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		} else {
			fmt.Println("Generated password copied to clipboard.")
		}
	}
	return nil
}
