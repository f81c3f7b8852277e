package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var partJSON bool

var partCmd = &cobra.Command{
	Use:   "part <id>",
	Short: "Print an article or recital",
	Long: `Print one part of the AI Act as stored in the corpus. Articles use
their number as id, recitals use uvodna_<n>.

Examples:
  aiact part 5
  aiact part uvodna_12 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runPart,
}

func init() {
	partCmd.Flags().BoolVar(&partJSON, "json", false, "print as JSON")
}

func runPart(cmd *cobra.Command, args []string) error {
	part, err := getBackend().Part(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get part: %w", err)
	}

	if partJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(part)
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(part); err != nil {
		return fmt.Errorf("encode part: %w", err)
	}
	return enc.Close()
}
