package db

import (
	"log"
	"time"

	apiError "github.com/BigOnwer/Gusen-App/errors"
	"github.com/BigOnwer/Gusen-App/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type ConversationRepository interface {
	ResolveDirect(userA, userB uint) (*models.Conversation, error)
	CreateGroup(name string, creatorID uint, memberIDs []uint) (*models.Conversation, error)
	FindByID(id uuid.UUID) (*models.Conversation, error)
	IsMember(conversationID uuid.UUID, userID uint) (bool, error)
	MemberIDs(conversationID uuid.UUID) ([]uint, error)
	ListForUser(userID uint) ([]models.ConversationSummary, error)
}

type conversationRepo struct {
	DB *gorm.DB
}

func NewConversationRepo(db *GormDB) ConversationRepository {
	return &conversationRepo{db.DB}
}

// ResolveDirect finds or creates the one 1:1 conversation for a user pair.
// Concurrent creators race on the pair_key unique index; the loser retries
// the lookup and returns the winner's row, so callers never see the
// conflict.
func (c *conversationRepo) ResolveDirect(userA, userB uint) (*models.Conversation, error) {
	if userA == userB {
		return nil, apiError.ValidationError("cannot start a conversation with yourself")
	}

	key := models.DirectPairKey(userA, userB)

	conv, err := c.findByPairKey(key)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apiError.FromGorm(err, "unable to look up conversation")
	}

	now := time.Now()
	fresh := &models.Conversation{
		ID:        uuid.New(),
		IsGroup:   false,
		PairKey:   &key,
		CreatedAt: now,
		UpdatedAt: now,
		Participants: []models.ConversationParticipant{
			{UserID: userA, IsAdmin: true, JoinedAt: now},
			{UserID: userB, JoinedAt: now},
		},
	}

	err = c.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(fresh).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Another caller created it between our lookup and insert.
			log.Printf("ResolveDirect: lost creation race for pair %s, returning winner", key)
			conv, lookupErr := c.findByPairKey(key)
			if lookupErr != nil {
				return nil, apiError.FromGorm(lookupErr, "unable to look up conversation after conflict")
			}
			return conv, nil
		}
		return nil, apiError.FromGorm(err, "unable to create conversation")
	}

	return c.FindByID(fresh.ID)
}

func (c *conversationRepo) findByPairKey(key string) (*models.Conversation, error) {
	var conv models.Conversation
	err := c.DB.Preload("Participants.User").
		Where("pair_key = ?", key).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (c *conversationRepo) CreateGroup(name string, creatorID uint, memberIDs []uint) (*models.Conversation, error) {
	now := time.Now()
	participants := []models.ConversationParticipant{
		{UserID: creatorID, IsAdmin: true, JoinedAt: now},
	}
	for _, id := range memberIDs {
		if id == creatorID {
			continue
		}
		participants = append(participants, models.ConversationParticipant{UserID: id, JoinedAt: now})
	}
	if len(participants) < 2 {
		return nil, apiError.ValidationError("a group needs at least 2 members")
	}

	conv := &models.Conversation{
		ID:           uuid.New(),
		IsGroup:      true,
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
		Participants: participants,
	}
	err := c.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(conv).Error
	})
	if err != nil {
		return nil, apiError.FromGorm(err, "unable to create group conversation")
	}
	return c.FindByID(conv.ID)
}

func (c *conversationRepo) FindByID(id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := c.DB.Preload("Participants.User").First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, apiError.FromGorm(err, "conversation not found")
	}
	return &conv, nil
}

func (c *conversationRepo) IsMember(conversationID uuid.UUID, userID uint) (bool, error) {
	var count int64
	err := c.DB.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, apiError.FromGorm(err, "unable to check membership")
	}
	return count > 0, nil
}

func (c *conversationRepo) MemberIDs(conversationID uuid.UUID) ([]uint, error) {
	var ids []uint
	err := c.DB.Model(&models.ConversationParticipant{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, apiError.FromGorm(err, "unable to load members")
	}
	return ids, nil
}

type unreadRow struct {
	ConversationID uuid.UUID
	Count          int64
}

// ListForUser returns the user's conversations ordered by updated_at
// descending, each with its last message and unread count. Unread counts for
// the whole list come from a single grouped query rather than one count per
// conversation.
func (c *conversationRepo) ListForUser(userID uint) ([]models.ConversationSummary, error) {
	var convs []models.Conversation
	err := c.DB.Preload("Participants.User").
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID).
		Order("conversations.updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, apiError.FromGorm(err, "unable to list conversations")
	}
	if len(convs) == 0 {
		return []models.ConversationSummary{}, nil
	}

	ids := make([]uuid.UUID, 0, len(convs))
	for i := range convs {
		ids = append(ids, convs[i].ID)
	}

	lastByConv, err := c.lastMessages(ids)
	if err != nil {
		return nil, err
	}

	var unread []unreadRow
	err = c.DB.Raw(`
		SELECT m.conversation_id AS conversation_id, COUNT(*) AS count
		FROM messages m
		WHERE m.conversation_id IN ?
		  AND m.sender_id <> ?
		  AND NOT EXISTS (
			SELECT 1 FROM message_reads r
			WHERE r.message_id = m.id AND r.user_id = ?
		  )
		GROUP BY m.conversation_id`, ids, userID, userID).
		Scan(&unread).Error
	if err != nil {
		return nil, apiError.FromGorm(err, "unable to count unread messages")
	}
	unreadByConv := make(map[uuid.UUID]int64, len(unread))
	for _, row := range unread {
		unreadByConv[row.ConversationID] = row.Count
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for i := range convs {
		conv := &convs[i]
		name, avatar := conv.DisplayFor(userID)
		members := make([]models.UserSummary, 0, len(conv.Participants))
		for j := range conv.Participants {
			members = append(members, conv.Participants[j].User.Summary())
		}
		summary := models.ConversationSummary{
			ID:          conv.ID,
			IsGroup:     conv.IsGroup,
			DisplayName: name,
			AvatarURL:   avatar,
			MemberCount: len(conv.Participants),
			Members:     members,
			UnreadCount: unreadByConv[conv.ID],
		}
		if last, ok := lastByConv[conv.ID]; ok {
			summary.LastMessagePreview = last.Preview()
			at := last.CreatedAt
			summary.LastMessageAt = &at
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (c *conversationRepo) lastMessages(conversationIDs []uuid.UUID) (map[uuid.UUID]*models.Message, error) {
	var msgs []models.Message
	err := c.DB.Raw(`
		SELECT DISTINCT ON (conversation_id) *
		FROM messages
		WHERE conversation_id IN ?
		ORDER BY conversation_id, created_at DESC, id DESC`, conversationIDs).
		Scan(&msgs).Error
	if err != nil {
		return nil, apiError.FromGorm(err, "unable to load last messages")
	}
	out := make(map[uuid.UUID]*models.Message, len(msgs))
	for i := range msgs {
		out[msgs[i].ConversationID] = &msgs[i]
	}
	return out, nil
}
