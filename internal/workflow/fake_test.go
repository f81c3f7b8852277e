package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/raphaelgruber/aiact-go/internal/llm"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/store"
	"github.com/stretchr/testify/require"
)

// scriptedCompleter answers by request Op. The last reply queued for an op
// is repeated once the queue runs dry.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies map[string][]string
	errs    map[string]error
	calls   []llm.Request
	block   bool
}

func newScripted() *scriptedCompleter {
	return &scriptedCompleter{replies: map[string][]string{}, errs: map[string]error{}}
}

func (s *scriptedCompleter) on(stage Stage, replies ...string) *scriptedCompleter {
	s.replies[string(stage)] = append(s.replies[string(stage)], replies...)
	return s
}

func (s *scriptedCompleter) fail(stage Stage, err error) *scriptedCompleter {
	s.errs[string(stage)] = err
	return s
}

func (s *scriptedCompleter) next(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	block := s.block
	err := s.errs[req.Op]
	queue := s.replies[req.Op]
	var reply string
	if len(queue) > 0 {
		reply = queue[0]
		if len(queue) > 1 {
			s.replies[req.Op] = queue[1:]
		}
	}
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	if len(queue) == 0 {
		return "", errors.New("no scripted reply for " + req.Op)
	}
	return reply, nil
}

func (s *scriptedCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	return s.next(ctx, req)
}

func (s *scriptedCompleter) Stream(ctx context.Context, req llm.Request, fn llm.StreamFunc) (string, error) {
	reply, err := s.next(ctx, req)
	if err != nil {
		return "", err
	}
	for _, word := range strings.SplitAfter(reply, " ") {
		if err := fn(ctx, word); err != nil {
			return "", err
		}
	}
	return reply, nil
}

func (s *scriptedCompleter) requests(stage Stage) []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []llm.Request
	for _, r := range s.calls {
		if r.Op == string(stage) {
			out = append(out, r)
		}
	}
	return out
}

type staticRetriever struct {
	mu       sync.Mutex
	passages []models.ScoredPassage
	err      error
	queries  []string
}

func (r *staticRetriever) Query(ctx context.Context, text string, k int) ([]models.ScoredPassage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, text)
	if r.err != nil {
		return nil, r.err
	}
	if k > 0 && k < len(r.passages) {
		return r.passages[:k], nil
	}
	return r.passages, nil
}

const article113 = "Člen 113\nZačetek veljavnosti in uporaba\nTa uredba začne veljati dvajseti dan po objavi v Uradnem listu Evropske unije."

func corpusPassages() []models.ScoredPassage {
	return []models.ScoredPassage{
		{Passage: models.Passage{ID: "113", Type: models.PassageArticle, RawText: article113}, Score: 0.61},
		{Passage: models.Passage{ID: "5", Type: models.PassageArticle, RawText: "Prepovedane prakse umetne inteligence"}, Score: 0.22},
		{Passage: models.Passage{ID: "uvodna_1", Type: models.PassagePoint, RawText: "Namen te uredbe je izboljšati delovanje notranjega trga."}, Score: 0.10},
	}
}

type harness struct {
	engine    *Engine
	llm       *scriptedCompleter
	retriever *staticRetriever
	store     *store.Memory
}

func newHarness(t *testing.T, c *scriptedCompleter, opts ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		llm:       c,
		retriever: &staticRetriever{passages: corpusPassages()},
		store:     store.NewMemory(),
	}
	o := Options{}
	for _, fn := range opts {
		fn(&o)
	}
	e, err := NewEngine(h.llm, h.retriever, h.store, o)
	require.NoError(t, err)
	h.engine = e
	return h
}

const (
	replyInDomain   = `{"Relevance": "AI Act", "Reasoning": "Vprašanje o uredbi."}`
	replyNotRelated = `{"Relevance": "Not Related", "Reasoning": "Splošno vprašanje."}`
	replySelect113  = "```json\n{\"DocumentIDs\": [\"113\", \"999\"]}\n```"
	replyValid      = `{"AnswerValid": "Valid", "Reasoning": "Odgovor je popoln."}`
	replyInvalid    = `{"AnswerValid": "Invalid", "Reasoning": "Manjka bistvo."}`
	replyGrounded   = `{
		"Answer": "Uredba začne veljati dvajseti dan po objavi.",
		"RelevantParts": [
			{"id": "113", "text": ["Ta uredba začne veljati dvajseti dan po objavi", "izmišljen odlomek"]},
			{"id": "5", "text": ["Prepovedane prakse"]}
		]
	}`
)

func groundedScript() *scriptedCompleter {
	return newScripted().
		on(StageClassifyRelevance, replyInDomain).
		on(StageRewriteQuery, "Kdaj začne veljati uredba o umetni inteligenci?").
		on(StageRetrieve, replySelect113).
		on(StageComposeAnswer, replyGrounded).
		on(StageValidateAnswer, replyValid)
}
