package server

import (
	"net/http"
	"strconv"

	errs "github.com/BigOnwer/Gusen-App/errors"
	"github.com/BigOnwer/Gusen-App/models"
	"github.com/BigOnwer/Gusen-App/server/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func conversationIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.JSON(c, "", errs.ErrBadRequest.Status, nil, errs.ValidationError("invalid conversation id"))
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleListConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("userID").(uint)
		summaries, apiErr := s.ChatService.ListConversations(userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusOK, summaries, nil)
	}
}

func (s *Server) handleStartDirectConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("userID").(uint)

		var req models.StartDirectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", errs.ErrBadRequest.Status, nil, err)
			return
		}

		conv, apiErr := s.ChatService.StartDirectConversation(userID, req.OtherUserID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusOK, conv, nil)
	}
}

func (s *Server) handleCreateGroupConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("userID").(uint)

		var req models.CreateGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", errs.ErrBadRequest.Status, nil, err)
			return
		}

		conv, apiErr := s.ChatService.CreateGroupConversation(userID, &req)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusCreated, conv, nil)
	}
}

// handleListMessages pages a conversation's history. With open=true it is
// the "conversation opened" transition and marks visible messages read
// first.
func (s *Server) handleListMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("userID").(uint)
		convID, ok := conversationIDParam(c)
		if !ok {
			return
		}

		limit := 0
		if v := c.Query("limit"); v != "" {
			limit, _ = strconv.Atoi(v)
		}
		cursor := c.Query("cursor")

		var page *models.MessagePage
		var apiErr *errs.Error
		if c.Query("open") == "true" {
			page, apiErr = s.ChatService.OpenConversation(convID, userID, cursor, limit)
		} else {
			page, apiErr = s.ChatService.ListMessages(convID, userID, cursor, limit)
		}
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusOK, page, nil)
	}
}

func (s *Server) handleSendMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("userID").(uint)
		convID, ok := conversationIDParam(c)
		if !ok {
			return
		}

		var req models.SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", errs.ErrBadRequest.Status, nil, err)
			return
		}

		msg, apiErr := s.ChatService.SendMessage(c.Request.Context(), convID, userID, &req)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusCreated, msg, nil)
	}
}

func (s *Server) handleMarkConversationRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("userID").(uint)
		convID, ok := conversationIDParam(c)
		if !ok {
			return
		}

		marked, apiErr := s.ChatService.MarkConversationRead(convID, userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusOK, gin.H{"marked": marked}, nil)
	}
}

func (s *Server) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("userID").(uint)
		convID, ok := conversationIDParam(c)
		if !ok {
			return
		}

		count, apiErr := s.ChatService.GetUnreadCount(convID, userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusOK, gin.H{"unread_count": count}, nil)
	}
}

func (s *Server) handleTotalUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("userID").(uint)
		count, apiErr := s.ChatService.GetTotalUnreadBadge(userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusOK, gin.H{"unread_count": count}, nil)
	}
}
