package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation is a set of participants exchanging messages, 1:1 or group.
// UpdatedAt is bumped on every new message and is the sort key for
// conversation lists.
type Conversation struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	IsGroup bool      `gorm:"not null;default:false" json:"is_group"`
	Name    string    `json:"name,omitempty"`
	// PairKey is the canonical "smaller:larger" user-id pair for non-group
	// conversations, nil for groups. Its unique index is what makes
	// find-or-create race-safe across processes.
	PairKey   *string   `gorm:"uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
}

// ConversationParticipant relates a user to a conversation they belong to.
// One row per member, (conversation, user) unique.
type ConversationParticipant struct {
	ID             uint      `gorm:"primaryKey" json:"-"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_conversation_user" json:"conversation_id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_conversation_user;index" json:"user_id"`
	User           User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user"`
	IsAdmin        bool      `gorm:"default:false" json:"is_admin"`
	JoinedAt       time.Time `json:"joined_at"`
}

// DirectPairKey canonicalizes an unordered user pair.
func DirectPairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

type StartDirectRequest struct {
	OtherUserID uint `json:"other_user_id" binding:"required"`
}

type CreateGroupRequest struct {
	Name    string `json:"name" binding:"required,min=1" conform:"trim"`
	UserIDs []uint `json:"user_ids" binding:"required,min=1"`
}

// ConversationSummary is the conversation-list row handed to the UI shell:
// display fields resolved for the viewing user, last message preview and the
// per-conversation unread count.
type ConversationSummary struct {
	ID                 uuid.UUID     `json:"id"`
	IsGroup            bool          `json:"is_group"`
	DisplayName        string        `json:"display_name"`
	AvatarURL          string        `json:"avatar_url,omitempty"`
	MemberCount        int           `json:"member_count"`
	Members            []UserSummary `json:"members"`
	LastMessagePreview string        `json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time    `json:"last_message_at,omitempty"`
	UnreadCount        int64         `json:"unread_count"`
}

// DisplayFor resolves name and avatar the way the UI shows them: the group
// name for groups, the other member's identity for 1:1 chats.
func (c *Conversation) DisplayFor(viewerID uint) (name, avatar string) {
	if c.IsGroup {
		return c.Name, ""
	}
	for i := range c.Participants {
		p := &c.Participants[i]
		if p.UserID != viewerID {
			if p.User.DisplayName != "" {
				return p.User.DisplayName, p.User.AvatarURL
			}
			return p.User.Username, p.User.AvatarURL
		}
	}
	return c.Name, ""
}
