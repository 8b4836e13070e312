package provider

import (
	"context"
	"encoding/json"
	"iter"
)

// Project is the project a conversation belongs to.
type Project struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// ChatMessage is a single message of a conversation as returned upstream.
type ChatMessage struct {
	UUID      string `json:"uuid"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// Conversation mirrors the upstream chat conversation record. Name is nil
// when the record carries no name at all.
type Conversation struct {
	UUID         string        `json:"uuid"`
	Name         *string       `json:"name,omitempty"`
	Project      *Project      `json:"project,omitempty"`
	UpdatedAt    string        `json:"updated_at,omitempty"`
	ChatMessages []ChatMessage `json:"chat_messages,omitempty"`
}

// CreatedChat is the result of creating a conversation. Raw holds the record
// exactly as the provider returned it.
type CreatedChat struct {
	UUID string
	Raw  json.RawMessage
}

// Provider is one chat backend. Only one is active at a time.
type Provider interface {
	ListConversations(ctx context.Context, orgID string) ([]Conversation, error)
	GetConversation(ctx context.Context, orgID, chatID string) (*Conversation, error)
	// CreateConversation creates a chat, scoped to projectID when it is non-empty.
	CreateConversation(ctx context.Context, orgID, projectID string) (*CreatedChat, error)
	// SendMessage posts text to a chat. Errors returned directly happened
	// before the stream started; errors after that arrive as Failure events.
	SendMessage(ctx context.Context, orgID, chatID, text string) (iter.Seq[Event], error)
}
