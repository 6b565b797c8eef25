package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/toolboxpm/toolbox-vault/internal/health"
)

var (
	healthNoPwned   bool
	healthOffline   bool
	healthAllIssues bool
)

var healthCmd = &cobra.Command{
	Use:     "health",
	GroupID: "security",
	Short:   "Scan all passwords for weakness, reuse, staleness, and breaches",
	Long: `Health decrypts each entry in turn and reports weak passwords,
passwords shared between entries, entries unchanged for 90 days or more,
and passwords found in known breach data.

Breach lookups use the Have I Been Pwned range API with k-anonymity: only
the first five characters of a password's SHA-1 ever leave this machine.
Responses are cached locally for 30 days; --offline uses only that cache.`,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().BoolVar(&healthNoPwned, "no-pwned", false, "skip the breach check entirely")
	healthCmd.Flags().BoolVar(&healthOffline, "offline", false, "breach check from the local cache only")
	healthCmd.Flags().BoolVarP(&healthAllIssues, "all", "a", false, "show healthy entries too")
}

func runHealth(cmd *cobra.Command, args []string) error {
	s, err := openUnlocked()
	if err != nil {
		return err
	}
	defer s.Close()

	enablePwned := cfg.Pwned.Enabled && !healthNoPwned
	allowNetwork := cfg.Pwned.AllowNetwork && !healthOffline

	key, err := s.vault.MasterKeyCopy()
	if err != nil {
		return err
	}
	analyzer := health.NewAnalyzer(s.store.Path(), key, enablePwned, allowNetwork)
	defer analyzer.Close()
	analyzer.SetProgress(func(done, total int) {
		fmt.Fprintf(os.Stderr, "\rScanning %d/%d", done, total)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	items, err := analyzer.Run(ctx)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	issues := 0
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"ID", "Title", "Score", "Issues", "Last Update"})

	var data [][]string
	for _, item := range items {
		if item.HasIssues() {
			issues++
		} else if !healthAllIssues {
			continue
		}
		issueText := item.Issues()
		if item.Reused {
			issueText = fmt.Sprintf("%s (x%d)", issueText, item.ReuseCount)
		}
		if item.Pwned {
			issueText = fmt.Sprintf("%s (%d breaches)", issueText, item.PwnedCount)
		}
		data = append(data, []string{
			fmt.Sprintf("%d", item.EntryID),
			item.Title,
			fmt.Sprintf("%d", item.Score),
			issueText,
			fmt.Sprintf("%dd ago", item.DaysSinceUpdate),
		})
	}
	_ = table.Bulk(data)
	_ = table.Render()

	checked := 0
	for _, item := range items {
		if item.PwnedChecked {
			checked++
		}
	}
	fmt.Printf("\n%d entries scanned, %d with issues", len(items), issues)
	if enablePwned {
		fmt.Printf(", %d breach-checked", checked)
	}
	fmt.Println()
	return nil
}
