// Package chat stores chat widget conversations and produces assistant replies.
package chat

import "time"

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// IsValid checks if a sender is recognized.
func (s Sender) IsValid() bool {
	return s == SenderUser || s == SenderAssistant
}

// Message is one line of a conversation.
type Message struct {
	ID           string    `json:"id"`
	Conversation string    `json:"conversation"`
	Sender       Sender    `json:"sender"`
	Text         string    `json:"text"`
	Address      string    `json:"address,omitempty"` // connected wallet, if any
	CreatedAt    time.Time `json:"created_at"`
}
