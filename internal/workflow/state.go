package workflow

import (
	"slices"

	"github.com/raphaelgruber/aiact-go/internal/models"
)

// TurnState is the per-turn record the stages read and write. It lives for
// one invocation and is never shared between turns.
type TurnState struct {
	Conversation models.Conversation
	// History is the persisted conversation before this turn, oldest first.
	History []models.Message
	Input   models.UserMessage

	// Query starts as the user input and is replaced by the rewritten query.
	Query      string
	Relevance  Relevance
	Candidates []models.ScoredPassage
	Selected   []models.ScoredPassage
	Draft      string
	Citations  []models.Citation
	Verdict    Verdict

	// Answer is set by the terminal stage.
	Answer *models.AssistantMessage
	// Path lists the stages run so far, in order.
	Path []Stage
}

func newTurnState(conv models.Conversation, history []models.Message, input models.UserMessage) *TurnState {
	return &TurnState{
		Conversation: conv,
		History:      history,
		Input:        input,
		Query:        input.Content,
	}
}

// Visited reports whether stage s has run.
func (s *TurnState) Visited(stage Stage) bool {
	return slices.Contains(s.Path, stage)
}
