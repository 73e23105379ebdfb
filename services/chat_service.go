package services

import (
	"context"
	"errors"
	"net/http"

	"github.com/BigOnwer/Gusen-App/db"
	apiError "github.com/BigOnwer/Gusen-App/errors"
	"github.com/BigOnwer/Gusen-App/metrics"
	"github.com/BigOnwer/Gusen-App/models"
	"github.com/BigOnwer/Gusen-App/ws"
	"github.com/google/uuid"
	"github.com/leebenson/conform"
	"go.uber.org/zap"
)

// ChatService is the server-side surface of the messaging core. Every
// method is a self-contained transaction-scoped unit; cross-request
// invariants (no duplicate conversations, no duplicate receipts) are
// enforced by the store's uniqueness constraints, not by locks here.
type ChatService interface {
	StartDirectConversation(userID, otherUserID uint) (*models.Conversation, *apiError.Error)
	CreateGroupConversation(userID uint, req *models.CreateGroupRequest) (*models.Conversation, *apiError.Error)
	ListConversations(userID uint) ([]models.ConversationSummary, *apiError.Error)
	OpenConversation(conversationID uuid.UUID, userID uint, cursor string, limit int) (*models.MessagePage, *apiError.Error)
	ListMessages(conversationID uuid.UUID, userID uint, cursor string, limit int) (*models.MessagePage, *apiError.Error)
	SendMessage(ctx context.Context, conversationID uuid.UUID, userID uint, req *models.SendMessageRequest) (*models.Message, *apiError.Error)
	MarkConversationRead(conversationID uuid.UUID, userID uint) (int64, *apiError.Error)
	GetUnreadCount(conversationID uuid.UUID, userID uint) (int64, *apiError.Error)
	GetTotalUnreadBadge(userID uint) (int64, *apiError.Error)
}

type chatService struct {
	conversationRepo db.ConversationRepository
	messageRepo      db.MessageRepository
	receiptRepo      db.ReadReceiptRepository
	authRepo         db.AuthRepository
	hub              *ws.Hub
	push             *PushService
	log              *zap.Logger
}

func NewChatService(
	conversationRepo db.ConversationRepository,
	messageRepo db.MessageRepository,
	receiptRepo db.ReadReceiptRepository,
	authRepo db.AuthRepository,
	hub *ws.Hub,
	push *PushService,
	log *zap.Logger,
) ChatService {
	if log == nil {
		log = zap.NewNop()
	}
	return &chatService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		receiptRepo:      receiptRepo,
		authRepo:         authRepo,
		hub:              hub,
		push:             push,
		log:              log,
	}
}

func toAPIError(err error, fallback string) *apiError.Error {
	if err == nil {
		return nil
	}
	var e *apiError.Error
	if errors.As(err, &e) {
		return e
	}
	return apiError.New(fallback, http.StatusInternalServerError)
}

func (s *chatService) StartDirectConversation(userID, otherUserID uint) (*models.Conversation, *apiError.Error) {
	if userID == otherUserID {
		return nil, apiError.ValidationError("cannot start a conversation with yourself")
	}
	if _, err := s.authRepo.FindUserByID(otherUserID); err != nil {
		return nil, toAPIError(err, "user not found")
	}

	conv, err := s.conversationRepo.ResolveDirect(userID, otherUserID)
	if err != nil {
		return nil, toAPIError(err, "unable to resolve conversation")
	}
	metrics.ConversationsResolved.Inc()
	return conv, nil
}

func (s *chatService) CreateGroupConversation(userID uint, req *models.CreateGroupRequest) (*models.Conversation, *apiError.Error) {
	if err := conform.Strings(req); err != nil {
		return nil, apiError.ValidationError(err.Error())
	}
	conv, err := s.conversationRepo.CreateGroup(req.Name, userID, req.UserIDs)
	if err != nil {
		return nil, toAPIError(err, "unable to create group")
	}
	return conv, nil
}

func (s *chatService) ListConversations(userID uint) ([]models.ConversationSummary, *apiError.Error) {
	summaries, err := s.conversationRepo.ListForUser(userID)
	if err != nil {
		return nil, toAPIError(err, "unable to list conversations")
	}
	return summaries, nil
}

// OpenConversation is the "conversation opened" transition: mark everything
// visible as read, then return the first page.
func (s *chatService) OpenConversation(conversationID uuid.UUID, userID uint, cursor string, limit int) (*models.MessagePage, *apiError.Error) {
	if apiErr := s.requireMembership(conversationID, userID); apiErr != nil {
		return nil, apiErr
	}
	if _, apiErr := s.markRead(conversationID, userID); apiErr != nil {
		return nil, apiErr
	}
	page, err := s.messageRepo.ListMessages(conversationID, cursor, limit)
	if err != nil {
		return nil, toAPIError(err, "unable to list messages")
	}
	return page, nil
}

func (s *chatService) ListMessages(conversationID uuid.UUID, userID uint, cursor string, limit int) (*models.MessagePage, *apiError.Error) {
	if apiErr := s.requireMembership(conversationID, userID); apiErr != nil {
		return nil, apiErr
	}
	page, err := s.messageRepo.ListMessages(conversationID, cursor, limit)
	if err != nil {
		return nil, toAPIError(err, "unable to list messages")
	}
	return page, nil
}

func (s *chatService) SendMessage(ctx context.Context, conversationID uuid.UUID, userID uint, req *models.SendMessageRequest) (*models.Message, *apiError.Error) {
	if err := conform.Strings(req); err != nil {
		return nil, apiError.ValidationError(err.Error())
	}

	msg, created, err := s.messageRepo.CreateMessage(conversationID, userID, req)
	if err != nil {
		return nil, toAPIError(err, "unable to save message")
	}
	if !created {
		// Resend matched an existing row by client key; nothing to deliver.
		metrics.MessagesDeduped.Inc()
		return msg, nil
	}
	metrics.MessagesSent.Inc()

	members, err := s.conversationRepo.MemberIDs(conversationID)
	if err != nil {
		s.log.Warn("message saved but member lookup failed, skipping delivery",
			zap.String("conversation_id", conversationID.String()), zap.Error(err))
		return msg, nil
	}

	s.hub.BroadcastToUsers(members, ws.Event{Type: ws.EventMessageNew, Data: msg})
	s.notifyRecipients(ctx, members, userID, msg)
	return msg, nil
}

func (s *chatService) notifyRecipients(ctx context.Context, members []uint, senderID uint, msg *models.Message) {
	if !s.push.Enabled() {
		return
	}
	for _, uid := range members {
		if uid == senderID {
			continue
		}
		user, err := s.authRepo.FindUserByID(uid)
		if err != nil || user.DeviceToken == "" {
			continue
		}
		s.push.Notify(ctx, user.DeviceToken, msg.Sender.Username, msg.Preview())
	}
}

func (s *chatService) MarkConversationRead(conversationID uuid.UUID, userID uint) (int64, *apiError.Error) {
	if apiErr := s.requireMembership(conversationID, userID); apiErr != nil {
		return 0, apiErr
	}
	return s.markRead(conversationID, userID)
}

func (s *chatService) markRead(conversationID uuid.UUID, userID uint) (int64, *apiError.Error) {
	marked, err := s.receiptRepo.MarkConversationRead(conversationID, userID)
	if err != nil {
		return 0, toAPIError(err, "unable to mark conversation read")
	}
	if marked == 0 {
		return 0, nil
	}
	metrics.ReceiptsMarked.Add(float64(marked))

	// Tell the user's other sessions, and hand them the fresh badge total so
	// every tab converges without its own poll.
	s.hub.BroadcastToUsers([]uint{userID}, ws.Event{
		Type: ws.EventConversationRead,
		Data: map[string]interface{}{"conversation_id": conversationID, "marked": marked},
	})
	if total, err := s.receiptRepo.TotalUnreadCount(userID); err == nil {
		s.hub.BroadcastToUsers([]uint{userID}, ws.Event{Type: ws.EventBadge, Data: total})
	}
	return marked, nil
}

func (s *chatService) GetUnreadCount(conversationID uuid.UUID, userID uint) (int64, *apiError.Error) {
	if apiErr := s.requireMembership(conversationID, userID); apiErr != nil {
		return 0, apiErr
	}
	count, err := s.receiptRepo.UnreadCount(conversationID, userID)
	if err != nil {
		return 0, toAPIError(err, "unable to count unread messages")
	}
	return count, nil
}

func (s *chatService) GetTotalUnreadBadge(userID uint) (int64, *apiError.Error) {
	count, err := s.receiptRepo.TotalUnreadCount(userID)
	if err != nil {
		return 0, toAPIError(err, "unable to compute unread badge")
	}
	return count, nil
}

func (s *chatService) requireMembership(conversationID uuid.UUID, userID uint) *apiError.Error {
	ok, err := s.conversationRepo.IsMember(conversationID, userID)
	if err != nil {
		return toAPIError(err, "unable to check membership")
	}
	if !ok {
		return apiError.NotFoundError("conversation not found")
	}
	return nil
}
