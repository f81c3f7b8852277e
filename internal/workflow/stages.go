package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/aiact-go/internal/llm"
	"github.com/raphaelgruber/aiact-go/internal/models"
)

// Labels the model is asked to produce.
const (
	labelInDomain   = "AI Act"
	labelNotRelated = "Not Related"
	labelValid      = "Valid"
	labelInvalid    = "Invalid"
)

// Progress notices.
const (
	noticeClassify   = "Checking query relevance with AI Act"
	noticeInDomain   = "DECISION: AI Act Related"
	noticeNotRelated = "DECISION: Not AI Act Related"
	noticeRewrite    = "Rephrasing user query into more suitable form for usage in RAG"
	noticeRetrieve   = "Calling RAG"
	noticeGeneral    = "Calling LLM"
	noticeCompose    = "Calling LLM For Answer From RAG"
	noticeValidate   = "Calling LLM To Check if RAG Answer Is Valid"
)

type relevanceOutput struct {
	Relevance string `json:"Relevance" jsonschema:"enum=AI Act,enum=Not Related,description=Kategorija uporabnikovega poziva"`
	Reasoning string `json:"Reasoning" jsonschema:"description=Kratka utemeljitev odločitve"`
}

type selectionOutput struct {
	DocumentIDs []string `json:"DocumentIDs" jsonschema:"description=ID-ji najbolj relevantnih dokumentov"`
}

type citedPart struct {
	ID   string   `json:"id" jsonschema:"description=ID dokumenta"`
	Text []string `json:"text" jsonschema:"description=Dobesedni odlomki iz dokumenta"`
}

type groundedOutput struct {
	Answer        string      `json:"Answer" jsonschema:"description=Odgovor na uporabnikovo vprašanje ali prazen niz"`
	RelevantParts []citedPart `json:"RelevantParts"`
}

type verdictOutput struct {
	AnswerValid string `json:"AnswerValid" jsonschema:"enum=Valid,enum=Invalid"`
	Reasoning   string `json:"Reasoning" jsonschema:"description=Kratka utemeljitev odločitve"`
}

var (
	relevanceSchema = llm.SchemaFor[relevanceOutput]("query_classification", "Razvrstitev uporabnikovega poziva")
	selectionSchema = llm.SchemaFor[selectionOutput]("top_documents", "Izbrani dokumenti")
	groundedSchema  = llm.SchemaFor[groundedOutput]("rag_answer", "Odgovor z dobesednimi odlomki")
	verdictSchema   = llm.SchemaFor[verdictOutput]("answer_validation", "Ocena ustreznosti odgovora")
)

// stageFunc runs one stage against the turn state.
type stageFunc func(ctx context.Context, st *TurnState, out sink) error

type stages struct {
	completer llm.Completer
	retriever Retriever
	prompts   *Prompts
	retrieveK int
	selectMax int
	logger    *slog.Logger
	now       func() time.Time
}

func (s *stages) handlers() map[Stage]stageFunc {
	return map[Stage]stageFunc{
		StageClassifyRelevance: s.classifyRelevance,
		StageRewriteQuery:      s.rewriteQuery,
		StageRetrieve:          s.retrieve,
		StageComposeAnswer:     s.composeAnswer,
		StageValidateAnswer:    s.validateAnswer,
		StageGeneralAnswer:     s.generalAnswer,
		StageAcceptAnswer:      s.acceptAnswer,
		StageFallbackAnswer:    s.fallbackAnswer,
	}
}

func (s *stages) structured(ctx context.Context, stage Stage, prompt string, schema *llm.Schema, v any) error {
	raw, err := s.completer.Complete(ctx, llm.Request{
		Op:     string(stage),
		System: s.prompts.Structured,
		Prompt: prompt,
		Schema: schema,
	})
	if err != nil {
		return upstreamError(err)
	}
	if err := schema.Decode(raw, v); err != nil {
		return parseError(err)
	}
	return nil
}

// text runs a free-text completion, streaming it when out is a stream.
func (s *stages) text(ctx context.Context, stage Stage, req llm.Request, out sink) (string, error) {
	req.Op = string(stage)
	var (
		answer string
		err    error
	)
	if out.streaming() {
		answer, err = s.completer.Stream(ctx, req, func(ctx context.Context, chunk string) error {
			return out.chunk(ctx, chunk)
		})
	} else {
		answer, err = s.completer.Complete(ctx, req)
	}
	if err != nil {
		return "", upstreamError(err)
	}
	return answer, nil
}

func (s *stages) classifyRelevance(ctx context.Context, st *TurnState, out sink) error {
	if err := out.progress(ctx, StageClassifyRelevance, noticeClassify); err != nil {
		return err
	}
	prompt, err := render(s.prompts.Classify, map[string]any{
		"chat_history":   SerializeHistory(st.History),
		"ai_act_summary": s.prompts.DomainSummary,
		"query":          st.Input.Content,
	})
	if err != nil {
		return err
	}

	var res relevanceOutput
	if err := s.structured(ctx, StageClassifyRelevance, prompt, relevanceSchema, &res); err != nil {
		return err
	}

	switch normalizeLabel(res.Relevance) {
	case normalizeLabel(labelInDomain):
		st.Relevance = InDomain
		return out.progress(ctx, StageClassifyRelevance, noticeInDomain)
	case normalizeLabel(labelNotRelated):
		st.Relevance = NotRelated
		return out.progress(ctx, StageClassifyRelevance, noticeNotRelated)
	default:
		return parseError(fmt.Errorf("unknown relevance label %q", res.Relevance))
	}
}

func (s *stages) rewriteQuery(ctx context.Context, st *TurnState, out sink) error {
	if err := out.progress(ctx, StageRewriteQuery, noticeRewrite); err != nil {
		return err
	}
	prompt, err := render(s.prompts.Rewrite, map[string]any{
		"chat_history": SerializeHistory(st.History),
		"query":        st.Input.Content,
	})
	if err != nil {
		return err
	}
	rewritten, err := s.completer.Complete(ctx, llm.Request{Op: string(StageRewriteQuery), Prompt: prompt})
	if err != nil {
		return upstreamError(err)
	}
	if rewritten = strings.TrimSpace(rewritten); rewritten != "" {
		st.Query = rewritten
	}
	s.logger.Debug("query rewritten", "conversation", st.Conversation.ID, "query", st.Query)
	return nil
}

func (s *stages) retrieve(ctx context.Context, st *TurnState, out sink) error {
	if err := out.progress(ctx, StageRetrieve, noticeRetrieve); err != nil {
		return err
	}
	candidates, err := s.retriever.Query(ctx, st.Query, s.retrieveK)
	if err != nil {
		return fmt.Errorf("retrieve passages: %w", err)
	}
	st.Candidates = candidates
	if len(candidates) == 0 {
		st.Selected = nil
		return nil
	}

	prompt, err := render(s.prompts.Select, map[string]any{
		"query":      st.Query,
		"context":    FormatContext(candidates),
		"select_max": strconv.Itoa(s.selectMax),
	})
	if err != nil {
		return err
	}
	var res selectionOutput
	if err := s.structured(ctx, StageRetrieve, prompt, selectionSchema, &res); err != nil {
		return err
	}
	st.Selected = selectPassages(candidates, res.DocumentIDs, s.selectMax)
	s.logger.Debug("passages selected",
		"conversation", st.Conversation.ID,
		"candidates", len(candidates),
		"selected", len(st.Selected))
	return nil
}

// selectPassages keeps the candidates the model picked, in retrieval order,
// dropping ids that were never retrieved.
func selectPassages(candidates []models.ScoredPassage, ids []string, limit int) []models.ScoredPassage {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[strings.TrimSpace(id)] = true
	}
	var out []models.ScoredPassage
	for _, c := range candidates {
		if len(out) == limit {
			break
		}
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func (s *stages) composeAnswer(ctx context.Context, st *TurnState, out sink) error {
	if err := out.progress(ctx, StageComposeAnswer, noticeCompose); err != nil {
		return err
	}
	prompt, err := render(s.prompts.Compose, map[string]any{
		"original_query": st.Input.Content,
		"query":          st.Query,
		"context":        FormatContext(st.Selected),
	})
	if err != nil {
		return err
	}
	var res groundedOutput
	if err := s.structured(ctx, StageComposeAnswer, prompt, groundedSchema, &res); err != nil {
		return err
	}
	st.Draft = strings.TrimSpace(res.Answer)
	st.Citations = groundCitations(res.RelevantParts, st.Selected)
	return nil
}

// groundCitations keeps only fragments that occur verbatim, up to
// whitespace, in a passage the answer was composed from.
func groundCitations(parts []citedPart, selected []models.ScoredPassage) []models.Citation {
	texts := make(map[string]string, len(selected))
	for _, p := range selected {
		texts[p.ID] = collapseSpace(p.RawText)
	}

	citations := []models.Citation{}
	for _, part := range parts {
		text, ok := texts[strings.TrimSpace(part.ID)]
		if !ok {
			continue
		}
		var fragments []string
		for _, f := range part.Text {
			f = strings.TrimSpace(f)
			if f != "" && strings.Contains(text, collapseSpace(f)) {
				fragments = append(fragments, f)
			}
		}
		if len(fragments) > 0 {
			citations = append(citations, models.Citation{PassageID: strings.TrimSpace(part.ID), Fragments: fragments})
		}
	}
	return citations
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (s *stages) validateAnswer(ctx context.Context, st *TurnState, out sink) error {
	if err := out.progress(ctx, StageValidateAnswer, noticeValidate); err != nil {
		return err
	}
	// An empty draft means the passages did not support an answer.
	if st.Draft == "" {
		st.Verdict = Invalid
		return nil
	}
	prompt, err := render(s.prompts.Validate, map[string]any{
		"original_query": st.Input.Content,
		"query":          st.Query,
		"answer":         st.Draft,
	})
	if err != nil {
		return err
	}
	var res verdictOutput
	if err := s.structured(ctx, StageValidateAnswer, prompt, verdictSchema, &res); err != nil {
		return err
	}
	switch normalizeLabel(res.AnswerValid) {
	case normalizeLabel(labelValid):
		st.Verdict = Valid
	case normalizeLabel(labelInvalid):
		st.Verdict = Invalid
	default:
		return parseError(fmt.Errorf("unknown validation label %q", res.AnswerValid))
	}
	return nil
}

func (s *stages) generalAnswer(ctx context.Context, st *TurnState, out sink) error {
	if err := out.progress(ctx, StageGeneralAnswer, noticeGeneral); err != nil {
		return err
	}
	prompt, err := render(s.prompts.General, map[string]any{
		"chat_history": SerializeHistory(st.History),
		"query":        st.Input.Content,
	})
	if err != nil {
		return err
	}
	answer, err := s.text(ctx, StageGeneralAnswer, llm.Request{System: s.prompts.GeneralSystem, Prompt: prompt}, out)
	if err != nil {
		return err
	}
	st.Answer = s.answer(st, answer, nil)
	return nil
}

func (s *stages) acceptAnswer(ctx context.Context, st *TurnState, out sink) error {
	if err := out.chunk(ctx, st.Draft); err != nil {
		return err
	}
	st.Answer = s.answer(st, st.Draft, st.Citations)
	return nil
}

func (s *stages) fallbackAnswer(ctx context.Context, st *TurnState, out sink) error {
	answer, err := s.text(ctx, StageFallbackAnswer, llm.Request{System: s.prompts.FallbackSystem, Prompt: st.Query}, out)
	if err != nil {
		return err
	}
	st.Answer = s.answer(st, answer, nil)
	return nil
}

func (s *stages) answer(st *TurnState, content string, citations []models.Citation) *models.AssistantMessage {
	if citations == nil {
		citations = []models.Citation{}
	}
	return &models.AssistantMessage{
		ID:             uuid.NewString(),
		ConversationID: st.Conversation.ID,
		ParentID:       st.Input.ID,
		Content:        strings.TrimSpace(content),
		Citations:      citations,
		CreatedAt:      s.now(),
	}
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), `"'`))
}
