package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/service"
	"github.com/raphaelgruber/aiact-go/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBackend answers every question with the question echoed back.
type scriptedBackend struct {
	asked   []string
	chatIDs []string
	fail    string
}

func (b *scriptedBackend) Ask(ctx context.Context, chatID, question string, onEvent func(workflow.Event)) (*workflow.Result, error) {
	b.asked = append(b.asked, question)
	b.chatIDs = append(b.chatIDs, chatID)
	if question == b.fail {
		return nil, errors.New("upstream down")
	}
	answer := "Odgovor: " + question
	if onEvent != nil {
		onEvent(workflow.Event{Type: workflow.EventStageProgress, Value: workflow.Progress{Stage: workflow.StageRetrieve}})
		onEvent(workflow.Event{Type: workflow.EventAnswerChunk, Value: workflow.Chunk{Text: answer}})
	}
	id := chatID
	if id == "" {
		id = "c1"
	}
	return &workflow.Result{
		Conversation: models.Conversation{ID: id, Name: "Naslov"},
		Created:      chatID == "",
		Turn: models.Turn{
			User: models.UserMessage{Content: question},
			Assistant: models.AssistantMessage{
				Content:   answer,
				Citations: []models.Citation{{PassageID: "113", Fragments: []string{"se uporablja od 2. avgusta 2026"}}},
			},
		},
	}, nil
}

func (b *scriptedBackend) Chats(ctx context.Context) ([]models.Conversation, error) { return nil, nil }
func (b *scriptedBackend) Rename(ctx context.Context, id, name string) (*models.Conversation, error) {
	return nil, nil
}
func (b *scriptedBackend) Delete(ctx context.Context, id string) error { return nil }
func (b *scriptedBackend) History(ctx context.Context, id string) ([]models.Turn, error) {
	return []models.Turn{{
		User:      models.UserMessage{Content: "Prvo vprašanje"},
		Assistant: models.AssistantMessage{Content: "Prvi odgovor"},
	}}, nil
}
func (b *scriptedBackend) ClearHistory(ctx context.Context, id string) error { return nil }
func (b *scriptedBackend) Part(ctx context.Context, id string) (map[string]any, error) {
	return nil, nil
}
func (b *scriptedBackend) Search(ctx context.Context, query string, k int) ([]models.ScoredPassage, error) {
	return nil, nil
}
func (b *scriptedBackend) Close() error { return nil }

func TestChatSessionKeepsConversation(t *testing.T) {
	b := &scriptedBackend{fail: "napaka"}
	var out, errw bytes.Buffer
	s := &chatSession{backend: b, out: &out, errw: &errw, theme: defaultTheme}

	input := "Kdaj začne veljati?\n\nnapaka\nIn za prepovedi?\n/history\n/new\nNovo\n/exit\nNe bere se več\n"
	require.NoError(t, s.run(context.Background(), strings.NewReader(input)))

	assert.Equal(t, []string{"Kdaj začne veljati?", "napaka", "In za prepovedi?", "Novo"}, b.asked)
	assert.Equal(t, []string{"", "c1", "c1", ""}, b.chatIDs)

	text := out.String()
	assert.Contains(t, text, "Odgovor: Kdaj začne veljati?")
	assert.Contains(t, text, "Article 113")
	assert.Contains(t, text, "se uporablja od 2. avgusta 2026")
	assert.Contains(t, text, "Chat c1 (Naslov)")
	assert.Contains(t, text, "Prvi odgovor")
	assert.Equal(t, 1, strings.Count(text, "Odgovor: In za prepovedi?"), "streamed answers are printed once")
	assert.Contains(t, errw.String(), "upstream down")
	assert.NotContains(t, text, "Ne bere se več")
}

func TestStreamPrinter(t *testing.T) {
	var out, errw bytes.Buffer
	p := &streamPrinter{w: &out, errw: &errw, theme: defaultTheme}

	p.event(workflow.Event{Type: workflow.EventStageProgress, Value: workflow.Progress{Stage: workflow.StageRetrieve, Message: "Iščem"}})
	assert.False(t, p.streamed)
	assert.Empty(t, errw.String(), "progress is hidden unless verbose")

	p.progress = true
	p.event(workflow.Event{Type: workflow.EventStageProgress, Value: workflow.Progress{Stage: workflow.StageRetrieve, Message: "Iščem"}})
	assert.Contains(t, errw.String(), "Iščem")

	p.event(workflow.Event{Type: workflow.EventAnswerChunk, Value: workflow.Chunk{Text: "Uredba "}})
	p.event(workflow.Event{Type: workflow.EventAnswerChunk, Value: workflow.Chunk{Text: "velja."}})
	assert.True(t, p.streamed)
	assert.Equal(t, "Uredba velja.", out.String())
}

func TestPartLabel(t *testing.T) {
	assert.Equal(t, "Article 5", partLabel("5"))
	assert.Equal(t, "Recital 12", partLabel("uvodna_12"))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "a b c", truncateText("a\n  b\tc", 10))
	assert.Equal(t, "čšžčš…", truncateText("čšžčšžčšž", 6))
}

func TestPrintChats(t *testing.T) {
	var buf bytes.Buffer
	printChats(&buf, nil)
	assert.Equal(t, "No chats found\n", buf.String())

	buf.Reset()
	printChats(&buf, []models.Conversation{{ID: "abc", Name: "Prepovedane prakse", UpdatedAt: time.Now()}})
	assert.Contains(t, buf.String(), "abc")
	assert.Contains(t, buf.String(), "Prepovedane prakse")
}

func TestRenderRebuildResult(t *testing.T) {
	out := renderRebuildResult(defaultTheme, &service.Job{
		Status: service.JobStatusCompleted,
		Result: &service.RebuildResult{Passages: 5, Terms: 42, DurationMs: 1500},
	})
	assert.Contains(t, out, "Passages:  5")
	assert.Contains(t, out, "Terms:     42")
	assert.Contains(t, out, "1.5s")

	assert.EqualError(t, jobError(&service.Job{Error: "corpus missing"}), "corpus missing")
	assert.EqualError(t, jobError(&service.Job{}), "job failed with unknown error")
}
