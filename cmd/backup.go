package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/toolboxpm/toolbox-vault/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:     "backup",
	GroupID: "data",
	Short:   "Create and restore encrypted backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create <file" + backup.Extension + ">",
	Short: "Export all entries into an encrypted backup file",
	Long: `Create seals the full vault contents under a separate backup
password. The backup can be restored into any vault, including one with a
different master password.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackupCreate,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <file" + backup.Extension + ">",
	Short: "Import entries from an encrypted backup file",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupRestore,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd, backupRestoreCmd)
}

func backupPath(arg string) string {
	if strings.HasSuffix(arg, backup.Extension) {
		return arg
	}
	return arg + backup.Extension
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	s, err := openUnlocked()
	if err != nil {
		return err
	}
	defer s.Close()

	password, err := readPasswordConfirmed("Backup password: ")
	if err != nil {
		return err
	}

	path := backupPath(args[0])
	count, err := backup.Export(s.repo, s.vault, path, password)
	if err != nil {
		return err
	}
	successColor.Printf("Backed up %d entries to %s\n", count, path)
	return nil
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	s, err := openUnlocked()
	if err != nil {
		return err
	}
	defer s.Close()

	password, err := readPassword("Backup password: ")
	if err != nil {
		return err
	}

	count, err := backup.Import(s.repo, s.vault, args[0], password)
	if err != nil {
		return err
	}
	successColor.Printf("Restored %d entries from %s\n", count, args[0])
	return nil
}
