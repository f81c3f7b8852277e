package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var chatID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation. Every line is one question; answers
are streamed as they are written.

Commands inside the session:
  /new      start a new conversation
  /history  print the questions and answers so far
  /exit     leave

Examples:
  aiact chat
  aiact chat --chat 3f2c9a1e`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatID, "chat", "c", "", "continue an existing conversation")
}

func runChat(cmd *cobra.Command, args []string) error {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	s := &chatSession{
		backend:     getBackend(),
		out:         os.Stdout,
		errw:        os.Stderr,
		theme:       defaultTheme,
		chatID:      chatID,
		interactive: interactive,
	}
	return s.run(cmd.Context(), os.Stdin)
}

// chatSession is a read-eval-print loop over one conversation.
type chatSession struct {
	backend     backend
	out, errw   io.Writer
	theme       Theme
	chatID      string
	interactive bool
}

func (s *chatSession) run(ctx context.Context, in io.Reader) error {
	if s.interactive {
		fmt.Fprintln(s.out, s.theme.hintStyle().Render("Ask about the AI Act. /new starts over, /exit leaves."))
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if s.interactive {
			fmt.Fprint(s.out, s.theme.accentStyle().Render("› "))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/new":
			s.chatID = ""
			fmt.Fprintln(s.out, s.theme.hintStyle().Render("New conversation."))
			continue
		case "/history":
			s.history(ctx)
			continue
		}

		if err := s.turn(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(s.errw, s.theme.errorStyle().Render("✗ "+err.Error()))
		}
	}
	return scanner.Err()
}

func (s *chatSession) turn(ctx context.Context, question string) error {
	printer := &streamPrinter{w: s.out, errw: s.errw, theme: s.theme, progress: verbose}
	res, err := s.backend.Ask(ctx, s.chatID, question, printer.event)
	if err != nil {
		if printer.streamed {
			fmt.Fprintln(s.out)
		}
		return err
	}
	printTurn(s.out, s.theme, res, printer.streamed)
	if s.chatID == "" {
		fmt.Fprintln(s.out, s.theme.hintStyle().Render(fmt.Sprintf("Chat %s (%s)", res.Conversation.ID, res.Conversation.Name)))
	}
	s.chatID = res.Conversation.ID
	fmt.Fprintln(s.out)
	return nil
}

func (s *chatSession) history(ctx context.Context) {
	if s.chatID == "" {
		fmt.Fprintln(s.out, s.theme.hintStyle().Render("No questions yet."))
		return
	}
	turns, err := s.backend.History(ctx, s.chatID)
	if err != nil {
		fmt.Fprintln(s.errw, s.theme.errorStyle().Render("✗ "+err.Error()))
		return
	}
	printHistory(s.out, s.theme, turns)
}
