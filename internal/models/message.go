package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role discriminates the message variants in storage and on the wire.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a closed union of UserMessage and AssistantMessage.
type Message interface {
	MessageID() string
	Role() Role
	Text() string
	message()
}

// UserMessage is a question asked by the user.
type UserMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

func (m UserMessage) MessageID() string { return m.ID }
func (m UserMessage) Role() Role        { return RoleUser }
func (m UserMessage) Text() string      { return m.Content }
func (UserMessage) message()            {}

// AssistantMessage answers exactly one user message, referenced by ParentID.
type AssistantMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	ParentID       string     `json:"parent_id"`
	Content        string     `json:"content"`
	Citations      []Citation `json:"relevant_part_texts"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (m AssistantMessage) MessageID() string { return m.ID }
func (m AssistantMessage) Role() Role        { return RoleAssistant }
func (m AssistantMessage) Text() string      { return m.Content }
func (AssistantMessage) message()            {}

// Citation holds verbatim fragments quoted from one passage.
type Citation struct {
	PassageID string   `json:"id"`
	Fragments []string `json:"text"`
}

// Record is the flat storage form of a Message.
type Record struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Role           Role       `json:"role"`
	ParentID       string     `json:"parent_id,omitempty"`
	Content        string     `json:"content"`
	Citations      []Citation `json:"citations,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ToRecord flattens a message for storage.
func ToRecord(m Message) Record {
	switch v := m.(type) {
	case UserMessage:
		return Record{
			ID:             v.ID,
			ConversationID: v.ConversationID,
			Role:           RoleUser,
			Content:        v.Content,
			CreatedAt:      v.CreatedAt,
		}
	case AssistantMessage:
		return Record{
			ID:             v.ID,
			ConversationID: v.ConversationID,
			Role:           RoleAssistant,
			ParentID:       v.ParentID,
			Content:        v.Content,
			Citations:      v.Citations,
			CreatedAt:      v.CreatedAt,
		}
	default:
		panic(fmt.Sprintf("models: unknown message type %T", m))
	}
}

// Message restores the typed message from its storage form.
func (r Record) Message() (Message, error) {
	switch r.Role {
	case RoleUser:
		return UserMessage{
			ID:             r.ID,
			ConversationID: r.ConversationID,
			Content:        r.Content,
			CreatedAt:      r.CreatedAt,
		}, nil
	case RoleAssistant:
		citations := r.Citations
		if citations == nil {
			citations = []Citation{}
		}
		return AssistantMessage{
			ID:             r.ID,
			ConversationID: r.ConversationID,
			ParentID:       r.ParentID,
			Content:        r.Content,
			Citations:      citations,
			CreatedAt:      r.CreatedAt,
		}, nil
	default:
		return nil, fmt.Errorf("unknown message role %q", r.Role)
	}
}

// MarshalMessage encodes a message together with its role discriminant.
func MarshalMessage(m Message) ([]byte, error) {
	return json.Marshal(ToRecord(m))
}

// UnmarshalMessage decodes a message produced by MarshalMessage.
func UnmarshalMessage(data []byte) (Message, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return r.Message()
}
