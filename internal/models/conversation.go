// Package models defines the data structures shared by the AI Act chat service.
package models

import "time"

// DefaultConversationName is the provisional name of a conversation created
// without an explicit name.
const DefaultConversationName = "Nov pogovor"

// Conversation is a persisted chat session.
type Conversation struct {
	ID        string    `json:"chat_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn pairs a user message with the assistant answer linked to it.
type Turn struct {
	User      UserMessage      `json:"user"`
	Assistant AssistantMessage `json:"assistant"`
}

// PairTurns reconstructs question/answer pairs from an oldest-first history.
// Assistant messages are matched to users by parent id; a user message
// without an answer is left out.
func PairTurns(history []Message) []Turn {
	answers := make(map[string]AssistantMessage)
	for _, m := range history {
		if a, ok := m.(AssistantMessage); ok && a.ParentID != "" {
			if _, seen := answers[a.ParentID]; !seen {
				answers[a.ParentID] = a
			}
		}
	}

	turns := make([]Turn, 0, len(answers))
	for _, m := range history {
		u, ok := m.(UserMessage)
		if !ok {
			continue
		}
		if a, ok := answers[u.ID]; ok {
			turns = append(turns, Turn{User: u, Assistant: a})
		}
	}
	return turns
}
