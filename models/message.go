package models

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Message is immutable once created. IDs are snowflakes, so two messages
// sharing a millisecond timestamp still order deterministically by
// (created_at, id).
type Message struct {
	ID             int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_conv_order,priority:1" json:"conversation_id"`
	SenderID       uint      `gorm:"not null;index" json:"sender_id"`
	Sender         User      `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"sender"`
	Content        string    `gorm:"type:text" json:"content"`
	ImageURL       string    `json:"image_url,omitempty"`
	// ClientKey is the client-generated idempotency key carried through the
	// send request. Resends and optimistic-state reconciliation match on it,
	// never on content.
	ClientKey string    `gorm:"size:64;not null;default:''" json:"client_key,omitempty"`
	CreatedAt time.Time `gorm:"index:idx_messages_conv_order,priority:2" json:"created_at"`

	ReadBy []MessageRead `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"read_by,omitempty"`
}

// MessageRead records that a user has seen a message. (message, user) is
// unique; re-marking is a no-op, and a sender is never credited with a
// receipt for their own message.
type MessageRead struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	MessageID int64     `gorm:"not null;uniqueIndex:idx_message_reader" json:"message_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_message_reader;index" json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

type SendMessageRequest struct {
	Content   string `json:"content" conform:"trim"`
	ImageURL  string `json:"image_url" conform:"trim"`
	ClientKey string `json:"client_key" binding:"required,max=64" conform:"trim"`
}

// Preview is the truncated content shown in conversation lists. Truncation
// is by rune so a multi-byte character is never split.
func (m *Message) Preview() string {
	if m.Content == "" && m.ImageURL != "" {
		return "[image]"
	}
	const max = 80
	if utf8.RuneCountInString(m.Content) <= max {
		return m.Content
	}
	runes := []rune(m.Content)
	return string(runes[:max])
}

// MessageCursor restarts a listing after the last seen (created_at, id)
// pair. Keyset, not offset, so it stays correct under concurrent inserts.
type MessageCursor struct {
	CreatedAt time.Time
	ID        int64
}

// Encode returns the opaque token handed to clients.
func (c MessageCursor) Encode() string {
	raw := fmt.Sprintf("%d:%d", c.CreatedAt.UnixNano(), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeMessageCursor parses a client-supplied cursor token.
func DecodeMessageCursor(token string) (MessageCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return MessageCursor{}, fmt.Errorf("invalid cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return MessageCursor{}, fmt.Errorf("invalid cursor %q", token)
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return MessageCursor{}, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return MessageCursor{}, fmt.Errorf("invalid cursor id: %w", err)
	}
	return MessageCursor{CreatedAt: time.Unix(0, nanos), ID: id}, nil
}

// MessagePage is one page of a conversation's history, ascending by
// (created_at, id). NextCursor is empty on the last page.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
}
