package workflow

import (
	"embed"
	"fmt"
	"strings"

	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/tmc/langchaingo/prompts"
)

//go:embed prompts/*.tmpl prompts/*.txt
var promptFiles embed.FS

// Prompts holds the rendered-on-demand templates used by the stages.
type Prompts struct {
	Classify prompts.PromptTemplate
	Rewrite  prompts.PromptTemplate
	Select   prompts.PromptTemplate
	Compose  prompts.PromptTemplate
	Validate prompts.PromptTemplate
	General  prompts.PromptTemplate

	// System prompts.
	Structured     string
	GeneralSystem  string
	FallbackSystem string

	// DomainSummary is the short overview of the regulation used for
	// relevance classification.
	DomainSummary string
}

// DefaultPrompts loads the built-in Slovenian prompts.
func DefaultPrompts() (*Prompts, error) {
	read := func(name string) (string, error) {
		b, err := promptFiles.ReadFile("prompts/" + name)
		if err != nil {
			return "", fmt.Errorf("read prompt %s: %w", name, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	tmpl := func(name string, vars ...string) (prompts.PromptTemplate, error) {
		text, err := read(name + ".tmpl")
		if err != nil {
			return prompts.PromptTemplate{}, err
		}
		return prompts.NewPromptTemplate(text, vars), nil
	}

	var p Prompts
	var err error
	if p.Classify, err = tmpl("classify_relevance", "chat_history", "ai_act_summary", "query"); err != nil {
		return nil, err
	}
	if p.Rewrite, err = tmpl("rewrite_query", "chat_history", "query"); err != nil {
		return nil, err
	}
	if p.Select, err = tmpl("select_passages", "query", "context", "select_max"); err != nil {
		return nil, err
	}
	if p.Compose, err = tmpl("compose_answer", "original_query", "query", "context"); err != nil {
		return nil, err
	}
	if p.Validate, err = tmpl("validate_answer", "original_query", "query", "answer"); err != nil {
		return nil, err
	}
	if p.General, err = tmpl("general_answer", "chat_history", "query"); err != nil {
		return nil, err
	}
	if p.Structured, err = read("system_structured.txt"); err != nil {
		return nil, err
	}
	if p.GeneralSystem, err = read("system_general.txt"); err != nil {
		return nil, err
	}
	if p.FallbackSystem, err = read("system_fallback.txt"); err != nil {
		return nil, err
	}
	if p.DomainSummary, err = read("ai_act_summary.txt"); err != nil {
		return nil, err
	}
	return &p, nil
}

func render(t prompts.PromptTemplate, values map[string]any) (string, error) {
	out, err := t.Format(values)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return out, nil
}

// SerializeHistory renders prior messages one per line as
// "Uporabnik: ..." and "Pomočnik: ...".
func SerializeHistory(history []models.Message) string {
	var b strings.Builder
	for _, m := range history {
		switch m.Role() {
		case models.RoleUser:
			b.WriteString("Uporabnik: ")
		case models.RoleAssistant:
			b.WriteString("Pomočnik: ")
		}
		b.WriteString(m.Text())
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

// FormatContext renders passages as "ID: <id>\nVsebina:\n<text>" blocks
// separated by blank lines.
func FormatContext(passages []models.ScoredPassage) string {
	blocks := make([]string, len(passages))
	for i, p := range passages {
		blocks[i] = "ID: " + p.ID + "\nVsebina:\n" + p.RawText
	}
	return strings.Join(blocks, "\n\n")
}
