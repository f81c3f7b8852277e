package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/spf13/cobra"
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List and manage conversations",
	Long: `List stored conversations, most recently used first.

Examples:
  aiact chats
  aiact chats show 3f2c9a1e
  aiact chats rename 3f2c9a1e "Prepovedane prakse"
  aiact chats clear 3f2c9a1e
  aiact chats delete 3f2c9a1e`,
	Args: cobra.NoArgs,
	RunE: runChatsList,
}

var chatsShowCmd = &cobra.Command{
	Use:   "show <chat-id>",
	Short: "Print the questions and answers of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		turns, err := getBackend().History(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get history: %w", err)
		}
		printHistory(os.Stdout, defaultTheme, turns)
		return nil
	},
}

var chatsRenameCmd = &cobra.Command{
	Use:   "rename <chat-id> <name>",
	Short: "Rename a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := getBackend().Rename(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("rename: %w", err)
		}
		fmt.Printf("Renamed %s to %q\n", conv.ID, conv.Name)
		return nil
	},
}

var chatsDeleteCmd = &cobra.Command{
	Use:   "delete <chat-id>",
	Short: "Delete a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getBackend().Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		fmt.Printf("Deleted chat %s\n", args[0])
		return nil
	},
}

var chatsClearCmd = &cobra.Command{
	Use:   "clear <chat-id>",
	Short: "Delete the messages of a conversation but keep it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := getBackend().ClearHistory(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		fmt.Printf("Cleared history of chat %s\n", args[0])
		return nil
	},
}

func init() {
	chatsCmd.AddCommand(chatsShowCmd, chatsRenameCmd, chatsDeleteCmd, chatsClearCmd)
}

func runChatsList(cmd *cobra.Command, args []string) error {
	chats, err := getBackend().Chats(cmd.Context())
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	printChats(os.Stdout, chats)
	return nil
}

func printChats(w io.Writer, chats []models.Conversation) {
	if len(chats) == 0 {
		fmt.Fprintln(w, "No chats found")
		return
	}

	fmt.Fprintf(w, "%-38s %-17s %s\n", "ID", "UPDATED", "NAME")
	fmt.Fprintln(w, "------------------------------------------------------------------------")
	for _, c := range chats {
		fmt.Fprintf(w, "%-38s %-17s %s\n", c.ID, c.UpdatedAt.Local().Format("2006-01-02 15:04"), c.Name)
	}
}

func printHistory(w io.Writer, theme Theme, turns []models.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(w, "No messages in this chat")
		return
	}
	for i, t := range turns {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, theme.accentStyle().Render("› "+t.User.Content))
		fmt.Fprintln(w, t.Assistant.Content)
		printCitations(w, theme, t.Assistant.Citations)
	}
}
