package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/toolboxpm/toolbox-vault/internal/csvcodec"
	"github.com/toolboxpm/toolbox-vault/internal/importer"
	"github.com/toolboxpm/toolbox-vault/internal/storage"
)

var (
	importPolicy    string
	importNoGroups  bool
	importEntryType string
	importFolder    string
)

var importCmd = &cobra.Command{
	Use:     "import <file.csv>",
	GroupID: "data",
	Short:   "Import entries from a CSV export",
	Long: `Import reads CSV exports from KeePassXC, Chrome/Edge, or another
Toolbox vault. The whole import runs in one transaction: Ctrl-C or any
failure rolls everything back.

Duplicate handling (--on-duplicate):
  skip    keep the existing entry (default)
  update  reseal password/notes, fill empty url/category, replace tags
  import  insert anyway, creating a second entry`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importPolicy, "on-duplicate", "skip", "skip, update, or import")
	importCmd.Flags().BoolVar(&importNoGroups, "no-groups", false, "do not create groups from category paths")
	importCmd.Flags().StringVar(&importEntryType, "type", "web", "entry type assigned to imported rows")
	importCmd.Flags().StringVar(&importFolder, "folder", "", "base group path for imported entries")
}

func parsePolicy(name string) (importer.DuplicatePolicy, error) {
	switch name {
	case "skip":
		return importer.PolicySkip, nil
	case "update":
		return importer.PolicyUpdate, nil
	case "import":
		return importer.PolicyImportAnyway, nil
	default:
		return 0, fmt.Errorf("unknown duplicate policy %q (skip, update, import)", name)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	policy, err := parsePolicy(importPolicy)
	if err != nil {
		return err
	}
	entryType, err := parseEntryType(importEntryType)
	if err != nil {
		return err
	}

	s, err := openUnlocked()
	if err != nil {
		return err
	}
	defer s.Close()

	// Report the detected source format before committing to anything.
	if data, err := os.ReadFile(args[0]); err == nil {
		if info, err := csvcodec.Detect(data); err == nil {
			fmt.Printf("Detected format: %s\n", info.Format)
		}
	}

	baseGroup := int64(storage.RootGroupID)
	if importFolder != "" {
		if baseGroup, err = s.repo.EnsureGroupPath(storage.RootGroupID, importFolder); err != nil {
			return err
		}
	}

	key, err := s.vault.MasterKeyCopy()
	if err != nil {
		return err
	}
	worker := importer.NewWorker(args[0], s.store.Path(), key, baseGroup, importer.Options{
		DuplicatePolicy:              policy,
		CreateGroupsFromCategoryPath: !importNoGroups,
		DefaultEntryType:             entryType,
	})
	defer worker.Close()
	worker.SetProgress(func(done, total int) {
		fmt.Fprintf(os.Stderr, "\rImporting %d/%d", done, total)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	result, err := worker.Run(ctx)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	successColor.Printf("Imported %d entries (%d updated, %d duplicates skipped, %d invalid rows)\n",
		result.Inserted, result.Updated, result.SkippedDup, result.SkippedInvalid)
	for _, warning := range result.Warnings {
		warnColor.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}
	return nil
}
