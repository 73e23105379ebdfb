package db

import (
	"time"

	apiError "github.com/BigOnwer/Gusen-App/errors"
	"github.com/BigOnwer/Gusen-App/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReadReceiptRepository interface {
	MarkConversationRead(conversationID uuid.UUID, userID uint) (int64, error)
	UnreadCount(conversationID uuid.UUID, userID uint) (int64, error)
	TotalUnreadCount(userID uint) (int64, error)
}

type receiptRepo struct {
	DB *gorm.DB
}

func NewReadReceiptRepo(db *GormDB) ReadReceiptRepository {
	return &receiptRepo{db.DB}
}

// MarkConversationRead inserts a receipt for every message in the
// conversation the user has not read, excluding the user's own messages.
// The scope is "messages visible at query time": a message arriving
// mid-operation is simply picked up by the next call. Inserts go through
// ON CONFLICT DO NOTHING, so a concurrent marker can never double-insert,
// and the returned count is the number of rows actually written.
func (r *receiptRepo) MarkConversationRead(conversationID uuid.UUID, userID uint) (int64, error) {
	var unreadIDs []int64
	err := r.DB.Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ?", conversationID, userID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = messages.id AND r.user_id = ?)", userID).
		Pluck("id", &unreadIDs).Error
	if err != nil {
		return 0, apiError.FromGorm(err, "unable to find unread messages")
	}
	if len(unreadIDs) == 0 {
		return 0, nil
	}

	now := time.Now()
	receipts := make([]models.MessageRead, 0, len(unreadIDs))
	for _, id := range unreadIDs {
		receipts = append(receipts, models.MessageRead{
			MessageID: id,
			UserID:    userID,
			ReadAt:    now,
		})
	}

	res := r.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipts)
	if res.Error != nil {
		return 0, apiError.FromGorm(res.Error, "unable to mark messages read")
	}
	return res.RowsAffected, nil
}

// UnreadCount is computed from messages and receipts on every call, never
// from a counter cache.
func (r *receiptRepo) UnreadCount(conversationID uuid.UUID, userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ?", conversationID, userID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = messages.id AND r.user_id = ?)", userID).
		Count(&count).Error
	if err != nil {
		return 0, apiError.FromGorm(err, "unable to count unread messages")
	}
	return count, nil
}

// TotalUnreadCount sums unread across every conversation the user belongs
// to, in one query.
func (r *receiptRepo) TotalUnreadCount(userID uint) (int64, error) {
	var count int64
	err := r.DB.Raw(`
		SELECT COUNT(*)
		FROM messages m
		JOIN conversation_participants p
		  ON p.conversation_id = m.conversation_id AND p.user_id = ?
		WHERE m.sender_id <> ?
		  AND NOT EXISTS (
			SELECT 1 FROM message_reads r
			WHERE r.message_id = m.id AND r.user_id = ?
		  )`, userID, userID, userID).
		Scan(&count).Error
	if err != nil {
		return 0, apiError.FromGorm(err, "unable to count unread messages")
	}
	return count, nil
}
