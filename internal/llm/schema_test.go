package llm

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdictOutput struct {
	AnswerValid string `json:"AnswerValid" jsonschema:"enum=Valid,enum=Invalid"`
	Reasoning   string `json:"Reasoning"`
}

type answerOutput struct {
	Answer        string `json:"Answer"`
	RelevantParts []struct {
		ID   string   `json:"id"`
		Text []string `json:"text"`
	} `json:"RelevantParts"`
}

func TestSchemaForIsStrict(t *testing.T) {
	s := SchemaFor[answerOutput]("RAGAnswer", "grounded answer")

	assert.Equal(t, "RAGAnswer", s.Name)
	assert.Equal(t, "object", s.Definition["type"])
	assert.Equal(t, false, s.Definition["additionalProperties"])
	assert.ElementsMatch(t, []string{"Answer", "RelevantParts"}, s.Definition["required"])
	assert.NotContains(t, s.Definition, "$schema")

	props := s.Definition["properties"].(map[string]any)
	items := props["RelevantParts"].(map[string]any)["items"].(map[string]any)
	assert.Equal(t, false, items["additionalProperties"])
	assert.ElementsMatch(t, []string{"id", "text"}, items["required"])
}

func TestSchemaForKeepsEnums(t *testing.T) {
	s := SchemaFor[verdictOutput]("AnswerValidation", "")
	props := s.Definition["properties"].(map[string]any)
	assert.Equal(t, []any{"Valid", "Invalid"}, props["AnswerValid"].(map[string]any)["enum"])
	assert.Contains(t, s.Instructions(), `"AnswerValid"`)
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"bare", `{"AnswerValid":"Valid","Reasoning":"ok"}`},
		{"fenced", "```json\n{\"AnswerValid\":\"Valid\",\"Reasoning\":\"ok\"}\n```"},
		{"prose around", "Tukaj je odgovor: {\"AnswerValid\":\"Valid\",\"Reasoning\":\"ok\"} lp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out verdictOutput
			require.NoError(t, DecodeJSON(tt.output, &out))
			assert.Equal(t, "Valid", out.AnswerValid)
		})
	}
}

func TestDecodeJSONErrors(t *testing.T) {
	var out verdictOutput
	assert.ErrorIs(t, DecodeJSON("   ", &out), io.ErrUnexpectedEOF)
	assert.Error(t, DecodeJSON("no json here", &out))
	assert.Error(t, DecodeJSON("{broken", &out))
}

func TestSchemaDecode(t *testing.T) {
	s := SchemaFor[answerOutput]("RAGAnswer", "grounded answer")

	var out answerOutput
	require.NoError(t, s.Decode("```json\n{\"Answer\": \"Da.\", \"RelevantParts\": [{\"id\": \"113\", \"text\": [\"odlomek\"]}]}\n```", &out))
	assert.Equal(t, "Da.", out.Answer)
	require.Len(t, out.RelevantParts, 1)
	assert.Equal(t, "113", out.RelevantParts[0].ID)
}

func TestSchemaDecodeRejectsInvalidOutput(t *testing.T) {
	answer := SchemaFor[answerOutput]("RAGAnswer", "grounded answer")
	verdict := SchemaFor[verdictOutput]("AnswerValidation", "")

	tests := []struct {
		name   string
		schema *Schema
		output string
	}{
		{"foreign key only", answer, `{"response": "Uredba velja."}`},
		{"missing required", answer, `{"Answer": "Uredba velja."}`},
		{"additional property", answer, `{"Answer": "Da.", "RelevantParts": [], "extra": 1}`},
		{"wrong type", answer, `{"Answer": 42, "RelevantParts": []}`},
		{"nested missing required", answer, `{"Answer": "Da.", "RelevantParts": [{"id": "113"}]}`},
		{"enum", verdict, `{"AnswerValid": "Morda", "Reasoning": ""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]any
			err := tt.schema.Decode(tt.output, &out)
			assert.ErrorIs(t, err, ErrSchemaViolation)
			assert.Nil(t, out)
		})
	}
}
