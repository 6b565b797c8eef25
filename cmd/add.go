package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolboxpm/toolbox-vault/internal/repository"
	"github.com/toolboxpm/toolbox-vault/internal/security"
	"github.com/toolboxpm/toolbox-vault/internal/storage"
)

var (
	addUsername string
	addURL      string
	addCategory string
	addFolder   string
	addTags     []string
	addNotes    string
	addType     string
	addGenerate bool
)

var entryTypeNames = map[string]repository.EntryType{
	"web":      repository.WebLogin,
	"desktop":  repository.DesktopClient,
	"api-key":  repository.APIKeyToken,
	"database": repository.DatabaseCredential,
	"ssh":      repository.ServerSSH,
	"wifi":     repository.DeviceWifi,
}

func parseEntryType(name string) (repository.EntryType, error) {
	if name == "" {
		return repository.WebLogin, nil
	}
	if t, ok := entryTypeNames[name]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("unknown entry type %q (web, desktop, api-key, database, ssh, wifi)", name)
}

var addCmd = &cobra.Command{
	Use:     "add <title>",
	GroupID: "entries",
	Short:   "Add a new credential entry",
	Args:    cobra.ExactArgs(1),
	RunE:    runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVarP(&addUsername, "username", "u", "", "username or login")
	addCmd.Flags().StringVar(&addURL, "url", "", "website or service URL")
	addCmd.Flags().StringVarP(&addCategory, "category", "c", "", "free-form category label")
	addCmd.Flags().StringVar(&addFolder, "folder", "", "group path like Personal/Banking, created on demand")
	addCmd.Flags().StringSliceVarP(&addTags, "tag", "t", nil, "tag (repeatable)")
	addCmd.Flags().StringVar(&addNotes, "notes", "", "notes stored encrypted")
	addCmd.Flags().StringVar(&addType, "type", "web", "entry type")
	addCmd.Flags().BoolVarP(&addGenerate, "generate", "g", false, "generate the password instead of prompting")
}

func runAdd(cmd *cobra.Command, args []string) error {
	entryType, err := parseEntryType(addType)
	if err != nil {
		return err
	}

	s, err := openUnlocked()
	if err != nil {
		return err
	}
	defer s.Close()

	var password string
	if addGenerate {
		password, err = security.Generate(security.DefaultGeneratorOptions())
		if err != nil {
			return err
		}
	} else {
		raw, err := readPassword("Entry password: ")
		if err != nil {
			return err
		}
		password = string(raw)
	}

	groupID := int64(storage.RootGroupID)
	if addFolder != "" {
		if groupID, err = s.repo.EnsureGroupPath(storage.RootGroupID, addFolder); err != nil {
			return err
		}
	}

	secrets := &repository.EntrySecrets{
		Entry: repository.EntrySummary{
			GroupID:   groupID,
			EntryType: entryType,
			Title:     args[0],
			Username:  addUsername,
			URL:       addURL,
			Category:  addCategory,
			Tags:      addTags,
		},
		Password: password,
		Notes:    addNotes,
	}

	id, err := s.repo.AddEntry(secrets)
	if err != nil {
		return err
	}
	successColor.Printf("Added entry #%d (%s)\n", id, args[0])

	if addGenerate {
		if err := copyToClipboard(password); err != nil {
			warnColor.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		} else {
			fmt.Println("Generated password copied to clipboard.")
		}
	}
	return nil
}
