package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandlers() map[Stage]stageFunc {
	s := &stages{}
	return s.handlers()
}

func TestDefaultGraphCompiles(t *testing.T) {
	g, err := compile(DefaultGraph(), noopHandlers())
	require.NoError(t, err)

	next, err := g.next(StageClassifyRelevance, &TurnState{Relevance: InDomain})
	require.NoError(t, err)
	assert.Equal(t, StageRewriteQuery, next)

	next, err = g.next(StageClassifyRelevance, &TurnState{Relevance: NotRelated})
	require.NoError(t, err)
	assert.Equal(t, StageGeneralAnswer, next)

	next, err = g.next(StageValidateAnswer, &TurnState{Verdict: Invalid})
	require.NoError(t, err)
	assert.Equal(t, StageFallbackAnswer, next)

	next, err = g.next(StageAcceptAnswer, &TurnState{})
	require.NoError(t, err)
	assert.Empty(t, next)

	_, err = g.next(StageValidateAnswer, &TurnState{})
	assert.Error(t, err)
}

func TestCompileRejectsBrokenGraphs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *Graph)
		want   string
	}{
		{
			name: "unrouted label",
			mutate: func(g *Graph) {
				g.Branches[1] = Branch[Verdict]{
					From:   StageValidateAnswer,
					Label:  func(st *TurnState) Verdict { return st.Verdict },
					Routes: map[Verdict]Stage{Valid: StageAcceptAnswer},
					Labels: AllVerdicts(),
				}
			},
			want: "does not route label invalid",
		},
		{
			name:   "dead end",
			mutate: func(g *Graph) { delete(g.Edges, StageRetrieve) },
			want:   "stage retrieve needs exactly one outgoing edge or branch",
		},
		{
			name:   "terminal with edge",
			mutate: func(g *Graph) { g.Edges[StageAcceptAnswer] = StageRetrieve },
			want:   "terminal stage accept_answer has outgoing edges",
		},
		{
			name:   "unknown target",
			mutate: func(g *Graph) { g.Edges[StageRewriteQuery] = "rerank" },
			want:   "references an unknown stage",
		},
		{
			name:   "unknown entry",
			mutate: func(g *Graph) { g.Entry = "start" },
			want:   "entry stage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := DefaultGraph()
			tt.mutate(&g)
			_, err := compile(g, noopHandlers())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSerializeHistory(t *testing.T) {
	history := []models.Message{
		models.UserMessage{ID: "u1", Content: "Živjo"},
		models.AssistantMessage{ID: "a1", ParentID: "u1", Content: "Pozdravljeni!"},
		models.UserMessage{ID: "u2", Content: "Kaj je AI Act?"},
	}
	assert.Equal(t, "Uporabnik: Živjo\nPomočnik: Pozdravljeni!\nUporabnik: Kaj je AI Act?", SerializeHistory(history))
	assert.Empty(t, SerializeHistory(nil))
}

func TestFormatContext(t *testing.T) {
	got := FormatContext(corpusPassages()[:2])
	assert.Equal(t, "ID: 113\nVsebina:\n"+article113+"\n\nID: 5\nVsebina:\nPrepovedane prakse umetne inteligence", got)
	assert.Empty(t, FormatContext(nil))
}

func TestSelectPassages(t *testing.T) {
	candidates := corpusPassages()

	got := selectPassages(candidates, []string{"uvodna_1", " 113 ", "nope"}, 3)
	require.Len(t, got, 2)
	assert.Equal(t, "113", got[0].ID)
	assert.Equal(t, "uvodna_1", got[1].ID)

	got = selectPassages(candidates, []string{"113", "5", "uvodna_1"}, 2)
	assert.Len(t, got, 2)
	assert.Empty(t, selectPassages(candidates, nil, 3))
}

func TestGroundCitations(t *testing.T) {
	selected := corpusPassages()[:1]
	parts := []citedPart{
		{ID: "113", Text: []string{"Ta uredba  začne veljati\ndvajseti dan", "ni v besedilu", ""}},
		{ID: "5", Text: []string{"Prepovedane prakse"}},
		{ID: "113", Text: []string{"Uradnem listu Evropske unije"}},
	}

	got := groundCitations(parts, selected)
	assert.Equal(t, []models.Citation{
		{PassageID: "113", Fragments: []string{"Ta uredba  začne veljati\ndvajseti dan"}},
		{PassageID: "113", Fragments: []string{"Uradnem listu Evropske unije"}},
	}, got)

	empty := groundCitations(nil, selected)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestDefaultPromptsRender(t *testing.T) {
	p, err := DefaultPrompts()
	require.NoError(t, err)
	assert.Contains(t, p.DomainSummary, "umetn")

	out, err := render(p.Select, map[string]any{
		"query":      "kdaj velja uredba",
		"context":    "ID: 113\nVsebina:\nbesedilo",
		"select_max": "3",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Uporabnikovo vprašanje: kdaj velja uredba")
	assert.Contains(t, out, "največ 3 dokumente")
	assert.Contains(t, out, "ID: 113\nVsebina:\nbesedilo")
}

func TestLockTable(t *testing.T) {
	locks := NewLockTable()

	release, err := locks.Acquire(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Acquire(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locks.Acquire(context.Background(), "b")
	require.NoError(t, err)
	other()

	release()
	release()
	assert.Zero(t, locks.Len())

	again, err := locks.Acquire(context.Background(), "a")
	require.NoError(t, err)
	again()
}
