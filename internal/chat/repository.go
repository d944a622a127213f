package chat

import (
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxMessageLength is the longest message accepted, in characters.
const MaxMessageLength = 1000

// Repository provides storage for chat messages.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a chat repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Add stores a message in a conversation.
func (r *Repository) Add(conversation string, sender Sender, text, address string) (*Message, error) {
	text = strings.TrimSpace(text)
	if conversation == "" {
		return nil, fmt.Errorf("conversation is required")
	}
	if !sender.IsValid() {
		return nil, fmt.Errorf("invalid sender: %q", sender)
	}
	if text == "" {
		return nil, fmt.Errorf("message text is required")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, fmt.Errorf("message exceeds %d characters", MaxMessageLength)
	}

	id := uuid.NewString()
	if _, err := r.db.Exec(
		"INSERT INTO chat_messages (id, conversation, sender, text, address) VALUES (?, ?, ?, ?, ?)",
		id, conversation, sender, text, address,
	); err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	var m Message
	err := r.db.QueryRow(
		"SELECT id, conversation, sender, text, address, created_at FROM chat_messages WHERE id = ?", id,
	).Scan(&m.ID, &m.Conversation, &m.Sender, &m.Text, &m.Address, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("reading back message: %w", err)
	}

	return &m, nil
}

// ListByConversation returns the last limit messages of a conversation,
// oldest first. limit <= 0 returns all.
func (r *Repository) ListByConversation(conversation string, limit int) ([]*Message, error) {
	query := `SELECT id, conversation, sender, text, address, created_at
		FROM chat_messages WHERE conversation = ? ORDER BY rowid DESC`
	args := []interface{}{conversation}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			slog.Warn("closing rows", "err", cerr)
		}
	}()

	var messages []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Conversation, &m.Sender, &m.Text, &m.Address, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}
