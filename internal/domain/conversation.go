package domain

import (
	"time"
)

// Conversation is an ordered thread of messages owned by exactly one user.
type Conversation struct {
	ID        string
	UserID    string
	Title     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnedBy reports whether userID owns the conversation.
func (c *Conversation) OwnedBy(userID string) bool {
	return userID != "" && c.UserID == userID
}

// TitleDiffers reports whether applying title would change the stored title.
// A nil title never counts as a change.
func (c *Conversation) TitleDiffers(title *string) bool {
	if title == nil {
		return false
	}
	if c.Title == nil {
		return true
	}
	return *c.Title != *title
}

// ConversationDetail is a conversation together with its ordered messages.
type ConversationDetail struct {
	Conversation
	Messages []Message
}
