package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/workflow"
)

const recitalPrefix = "uvodna_"

// partLabel names a passage id the way the regulation does.
func partLabel(id string) string {
	if n, ok := strings.CutPrefix(id, recitalPrefix); ok {
		return "Recital " + n
	}
	return "Article " + id
}

// streamPrinter writes answer chunks as they arrive. Progress notices go to
// errw in verbose mode.
type streamPrinter struct {
	w, errw  io.Writer
	theme    Theme
	progress bool
	streamed bool
}

func (p *streamPrinter) event(ev workflow.Event) {
	switch v := ev.Value.(type) {
	case workflow.Chunk:
		p.streamed = true
		fmt.Fprint(p.w, v.Text)
	case workflow.Progress:
		if p.progress {
			fmt.Fprintln(p.errw, p.theme.hintStyle().Render(fmt.Sprintf("[%s] %s", v.Stage, v.Message)))
		}
	}
}

// printTurn prints the answer (unless it was already streamed) followed by
// the cited fragments.
func printTurn(w io.Writer, theme Theme, res *workflow.Result, streamed bool) {
	if !streamed {
		fmt.Fprint(w, res.Turn.Assistant.Content)
	}
	fmt.Fprintln(w)
	printCitations(w, theme, res.Turn.Assistant.Citations)
}

func printCitations(w io.Writer, theme Theme, citations []models.Citation) {
	if len(citations) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, theme.accentStyle().Render("Sources"))
	for _, c := range citations {
		fmt.Fprintf(w, "  %s\n", theme.statusStyle().Render(partLabel(c.PassageID)))
		for _, f := range c.Fragments {
			fmt.Fprintf(w, "    • %s\n", f)
		}
	}
}

func printPassages(w io.Writer, theme Theme, passages []models.ScoredPassage) {
	if len(passages) == 0 {
		fmt.Fprintln(w, "No matching passages found.")
		return
	}
	for i, p := range passages {
		fmt.Fprintf(w, "%2d. %s %s\n", i+1,
			theme.statusStyle().Render(partLabel(p.ID)),
			theme.hintStyle().Render(fmt.Sprintf("(%.3f)", p.Score)))
		fmt.Fprintf(w, "    %s\n", truncateText(p.RawText, 160))
	}
}

// truncateText collapses whitespace and shortens s to max runes.
func truncateText(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
