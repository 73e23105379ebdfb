package server

import (
	"net/http"

	errs "github.com/BigOnwer/Gusen-App/errors"
	"github.com/BigOnwer/Gusen-App/models"
	"github.com/BigOnwer/Gusen-App/server/response"
	"github.com/gin-gonic/gin"
	"github.com/leebenson/conform"
)

func (s *Server) handleSignup() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SignupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", errs.ErrBadRequest.Status, nil, err)
			return
		}
		if err := conform.Strings(&req); err != nil {
			response.JSON(c, "", errs.ErrBadRequest.Status, nil, err)
			return
		}

		user, apiErr := s.AuthService.SignupUser(&req)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "signup successful", http.StatusCreated, user.Summary(), nil)
	}
}

func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", errs.ErrBadRequest.Status, nil, err)
			return
		}
		if err := conform.Strings(&req); err != nil {
			response.JSON(c, "", errs.ErrBadRequest.Status, nil, err)
			return
		}

		resp, apiErr := s.AuthService.LoginUser(&req)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "login successful", http.StatusOK, resp, nil)
	}
}

func (s *Server) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("userID").(uint)
		user, apiErr := s.AuthService.GetCurrentUser(userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusOK, user.Summary(), nil)
	}
}

func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("userID").(uint)
		if err := s.AuthRepository.SetUserOnline(userID, false); err != nil {
			response.JSON(c, "", http.StatusInternalServerError, nil, err)
			return
		}
		response.JSON(c, "logged out", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleSearchUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("userID").(uint)
		query := c.Query("query")
		if len(query) < 2 {
			response.JSON(c, "", errs.ErrBadRequest.Status, nil, errs.ValidationError("query must be at least 2 characters"))
			return
		}

		users, apiErr := s.AuthService.SearchUsers(query, userID)
		if apiErr != nil {
			response.JSON(c, "", apiErr.Status, nil, apiErr)
			return
		}
		response.JSON(c, "", http.StatusOK, users, nil)
	}
}
