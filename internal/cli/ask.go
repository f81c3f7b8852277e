package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/raphaelgruber/aiact-go/internal/workflow"
	"github.com/spf13/cobra"
)

var (
	askChatID   string
	askNoStream bool
	askShowPath bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question about the AI Act",
	Long: `Ask a question about the AI Act and print the answer with the
fragments of the articles and recitals it cites.

Without --chat a new conversation is started.

Examples:
  aiact ask "Kdaj začne veljati uredba?"
  aiact ask "Kaj pa prepovedane prakse?" --chat 3f2c9a1e
  aiact ask "Kaj je sistem UI?" --no-stream --path`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askChatID, "chat", "c", "", "continue an existing conversation")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "wait for the whole answer instead of streaming it")
	askCmd.Flags().BoolVar(&askShowPath, "path", false, "print the workflow stages the turn went through")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")

	printer := &streamPrinter{w: os.Stdout, errw: os.Stderr, theme: defaultTheme, progress: verbose}
	var onEvent func(workflow.Event)
	if !askNoStream {
		onEvent = printer.event
	}

	res, err := getBackend().Ask(ctx, askChatID, question, onEvent)
	if err != nil {
		if printer.streamed {
			fmt.Println()
		}
		return fmt.Errorf("ask: %w", err)
	}

	printTurn(os.Stdout, defaultTheme, res, printer.streamed)
	fmt.Println()
	fmt.Println(defaultTheme.hintStyle().Render(fmt.Sprintf("Chat %s (%s)", res.Conversation.ID, res.Conversation.Name)))
	if askShowPath {
		stages := make([]string, len(res.Path))
		for i, s := range res.Path {
			stages[i] = string(s)
		}
		fmt.Println(defaultTheme.hintStyle().Render("Path: " + strings.Join(stages, " → ")))
	}
	return nil
}
