package model

import (
	"time"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a provider-neutral chat message.
type Message struct {
	Role     Role           `json:"role" binding:"required,oneof=user assistant system"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// WithMetadata returns a copy of the message carrying key=value.
func (m Message) WithMetadata(key string, value any) Message {
	md := make(map[string]any, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		md[k] = v
	}
	md[key] = value
	m.Metadata = md
	return m
}

// ConversationContext accumulates the messages of one conversation.
type ConversationContext struct {
	ID          string         `json:"id"`
	Messages    []Message      `json:"messages"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	TotalTokens int            `json:"total_tokens"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func NewConversationContext(id string) *ConversationContext {
	now := time.Now().UTC()
	return &ConversationContext{
		ID:        id,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *ConversationContext) AddMessage(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now().UTC()
}

func (c *ConversationContext) AddUserMessage(content string) {
	c.AddMessage(UserMessage(content))
}

// AddAssistantMessage appends a reply and, when tokens > 0, adds them to TotalTokens.
func (c *ConversationContext) AddAssistantMessage(content string, tokens int) {
	c.AddMessage(AssistantMessage(content))
	if tokens > 0 {
		c.TotalTokens += tokens
	}
}

// LastMessages returns up to n of the most recent messages.
func (c *ConversationContext) LastMessages(n int) []Message {
	if n <= 0 {
		return nil
	}
	start := len(c.Messages) - n
	if start < 0 {
		start = 0
	}
	return c.Messages[start:]
}

// TrimToTokenLimit drops the oldest messages until the conversation fits maxTokens.
// count estimates the tokens of a single message.
func (c *ConversationContext) TrimToTokenLimit(maxTokens int, count func(Message) int) {
	total := 0
	for _, msg := range c.Messages {
		total += count(msg)
	}
	for total > maxTokens && len(c.Messages) > 0 {
		total -= count(c.Messages[0])
		c.Messages = c.Messages[1:]
	}
	c.TotalTokens = total
	c.UpdatedAt = time.Now().UTC()
}
