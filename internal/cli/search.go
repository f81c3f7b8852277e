package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search AI Act passages by keyword",
	Long: `Rank articles and recitals against a query with the TF-IDF index.
No language model is involved.

Examples:
  aiact search "prepovedane prakse"
  aiact search "visoko tveganje" -k 3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "k", 10, "max results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchLimit < 1 {
		return fmt.Errorf("limit must be positive")
	}
	hits, err := getBackend().Search(cmd.Context(), strings.Join(args, " "), searchLimit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	printPassages(os.Stdout, defaultTheme, hits)
	return nil
}
