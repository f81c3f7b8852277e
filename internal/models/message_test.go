package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRecordKeepsVariant(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	answer := AssistantMessage{
		ID:             "a1",
		ConversationID: "c1",
		ParentID:       "u1",
		Content:        "Uredba začne veljati dvajseti dan po objavi.",
		Citations:      []Citation{{PassageID: "cle_113", Fragments: []string{"dvajseti dan po objavi"}}},
		CreatedAt:      now,
	}

	data, err := MarshalMessage(answer)
	require.NoError(t, err)

	got, err := UnmarshalMessage(data)
	require.NoError(t, err)

	restored, ok := got.(AssistantMessage)
	require.True(t, ok, "expected AssistantMessage, got %T", got)
	assert.Equal(t, "u1", restored.ParentID)
	assert.Equal(t, answer.Citations, restored.Citations)
	assert.True(t, now.Equal(restored.CreatedAt))
}

func TestRecordWithoutCitationsYieldsEmptySlice(t *testing.T) {
	m, err := Record{ID: "a1", Role: RoleAssistant, ParentID: "u1"}.Message()
	require.NoError(t, err)

	a := m.(AssistantMessage)
	assert.NotNil(t, a.Citations)
	assert.Empty(t, a.Citations)
}

func TestRecordUnknownRole(t *testing.T) {
	_, err := Record{ID: "x", Role: "system"}.Message()
	assert.Error(t, err)
}

func TestPairTurns(t *testing.T) {
	history := []Message{
		UserMessage{ID: "u1", Content: "Živjo"},
		AssistantMessage{ID: "a1", ParentID: "u1", Content: "Pozdravljeni"},
		UserMessage{ID: "u2", Content: "Kaj je AI Act?"},
		UserMessage{ID: "u3", Content: "Kdaj začne veljati?"},
		AssistantMessage{ID: "a3", ParentID: "u3", Content: "Dvajseti dan po objavi."},
	}

	turns := PairTurns(history)
	require.Len(t, turns, 2)
	assert.Equal(t, "u1", turns[0].User.ID)
	assert.Equal(t, "a1", turns[0].Assistant.ID)
	assert.Equal(t, "u3", turns[1].User.ID)
	assert.Equal(t, "a3", turns[1].Assistant.ID)
}

func TestPairTurnsIgnoresOrphanAnswers(t *testing.T) {
	history := []Message{
		AssistantMessage{ID: "a0", ParentID: "missing"},
		UserMessage{ID: "u1"},
	}
	assert.Empty(t, PairTurns(history))
}
