package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toolboxpm/toolbox-vault/internal/csvcodec"
	"github.com/toolboxpm/toolbox-vault/internal/repository"
)

var exportCmd = &cobra.Command{
	Use:     "export <file.csv>",
	GroupID: "data",
	Short:   "Export all entries to plaintext CSV",
	Long: `Export decrypts every entry and writes a UTF-8 CSV with the fixed
Toolbox column order. The file contains plaintext passwords; handle it
accordingly.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	s, err := openUnlocked()
	if err != nil {
		return err
	}
	defer s.Close()

	summaries, err := s.repo.ListEntries()
	if err != nil {
		return err
	}

	var entries []repository.EntrySecrets
	for _, summary := range summaries {
		full, err := s.repo.LoadEntry(summary.ID)
		if err != nil {
			return fmt.Errorf("entry #%d: %w", summary.ID, err)
		}
		entries = append(entries, *full)
	}

	if err := os.WriteFile(args[0], csvcodec.Export(entries), 0o600); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}

	successColor.Printf("Exported %d entries to %s\n", len(entries), args[0])
	warnColor.Fprintln(os.Stderr, "The export contains plaintext passwords. Delete it when done.")
	return nil
}
