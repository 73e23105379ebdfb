package db

import (
	"strings"
	"time"

	apiError "github.com/BigOnwer/Gusen-App/errors"
	"github.com/BigOnwer/Gusen-App/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sony/sonyflake"
	"gorm.io/gorm"
)

// Message ids come from a snowflake so they sort monotonically even when two
// messages land in the same millisecond.
var flake = sonyflake.NewSonyflake(sonyflake.Settings{})

func nextMessageID() (int64, error) {
	id, err := flake.NextID()
	if err != nil {
		return 0, err
	}
	return int64(id), nil
}

type MessageRepository interface {
	// CreateMessage returns the stored message and whether a new row was
	// written; false means a resend was answered from the existing row.
	CreateMessage(conversationID uuid.UUID, senderID uint, req *models.SendMessageRequest) (*models.Message, bool, error)
	ListMessages(conversationID uuid.UUID, cursorToken string, limit int) (*models.MessagePage, error)
}

type messageRepo struct {
	DB *gorm.DB
}

func NewMessageRepo(db *GormDB) MessageRepository {
	return &messageRepo{db.DB}
}

// CreateMessage inserts a message and bumps the conversation's updated_at to
// the message timestamp in the same transaction, so conversation-list
// ordering is never observed half-updated. A resend carrying an already-seen
// client key returns the original row instead of inserting a duplicate.
func (m *messageRepo) CreateMessage(conversationID uuid.UUID, senderID uint, req *models.SendMessageRequest) (*models.Message, bool, error) {
	if strings.TrimSpace(req.Content) == "" && req.ImageURL == "" {
		return nil, false, apiError.ValidationError("message needs content or an image")
	}

	var member int64
	err := m.DB.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, senderID).
		Count(&member).Error
	if err != nil {
		return nil, false, apiError.FromGorm(err, "unable to check membership")
	}
	if member == 0 {
		return nil, false, apiError.NotFoundError("conversation not found")
	}

	id, err := nextMessageID()
	if err != nil {
		return nil, false, apiError.FromGorm(err, "unable to generate message id")
	}

	msg := &models.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        req.Content,
		ImageURL:       req.ImageURL,
		ClientKey:      req.ClientKey,
		CreatedAt:      time.Now(),
	}

	err = m.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", msg.CreatedAt).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) && req.ClientKey != "" {
			existing, findErr := m.findByClientKey(conversationID, senderID, req.ClientKey)
			return existing, false, findErr
		}
		return nil, false, apiError.FromGorm(err, "unable to save message")
	}

	stored, err := m.loadWithSender(msg.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

func (m *messageRepo) findByClientKey(conversationID uuid.UUID, senderID uint, clientKey string) (*models.Message, error) {
	var msg models.Message
	err := m.DB.Preload("Sender").
		Where("conversation_id = ? AND sender_id = ? AND client_key = ?", conversationID, senderID, clientKey).
		First(&msg).Error
	if err != nil {
		return nil, apiError.FromGorm(err, "unable to load deduplicated message")
	}
	return &msg, nil
}

func (m *messageRepo) loadWithSender(id int64) (*models.Message, error) {
	var msg models.Message
	if err := m.DB.Preload("Sender").First(&msg, "id = ?", id).Error; err != nil {
		return nil, apiError.FromGorm(err, "unable to load message")
	}
	return &msg, nil
}

// ListMessages pages through a conversation ascending by (created_at, id).
// The cursor restarts after the last seen pair, which stays correct under
// concurrent inserts.
func (m *messageRepo) ListMessages(conversationID uuid.UUID, cursorToken string, limit int) (*models.MessagePage, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	q := m.DB.Preload("Sender").
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Limit(limit)

	if cursorToken != "" {
		cursor, err := models.DecodeMessageCursor(cursorToken)
		if err != nil {
			return nil, apiError.ValidationError(err.Error())
		}
		q = q.Where("(created_at, id) > (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var msgs []models.Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, apiError.FromGorm(err, "unable to list messages")
	}

	page := &models.MessagePage{Messages: msgs}
	if len(msgs) == limit {
		last := msgs[len(msgs)-1]
		page.NextCursor = models.MessageCursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return page, nil
}
