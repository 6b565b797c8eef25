package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/toolboxpm/toolbox-vault/internal/repository"
)

var (
	listJSON     bool
	listCategory string
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "entries",
	Short:   "List entries without decrypting anything",
	Long: `List shows the non-secret fields of every entry, newest first. It
works on a locked vault; no master password is required.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "machine-readable output")
	listCmd.Flags().StringVarP(&listCategory, "category", "c", "", "only entries in this category")
}

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	GroupID: "entries",
	Short:   "List distinct categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		categories, err := s.repo.ListCategories()
		if err != nil {
			return err
		}
		for _, c := range categories {
			fmt.Println(c)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	items, err := s.repo.ListEntries()
	if err != nil {
		return err
	}

	if listCategory != "" {
		filtered := items[:0]
		for _, item := range items {
			if strings.EqualFold(item.Category, listCategory) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	if listJSON {
		return outputJSON(items)
	}
	return outputTable(items)
}

func outputJSON(items []repository.EntrySummary) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func outputTable(items []repository.EntrySummary) error {
	if len(items) == 0 {
		fmt.Println("No entries found.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{"ID", "Title", "Username", "URL", "Category", "Tags", "Updated"})

	var data [][]string
	for _, item := range items {
		data = append(data, []string{
			fmt.Sprintf("%d", item.ID),
			item.Title,
			item.Username,
			item.URL,
			item.Category,
			strings.Join(item.Tags, ","),
			formatRelativeTime(item.UpdatedAt),
		})
	}
	_ = table.Bulk(data)
	_ = table.Render()

	fmt.Printf("\nTotal: %d entr%s\n", len(items), pluralYIes(len(items)))
	return nil
}

func pluralYIes(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
