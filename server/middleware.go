package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"

	errs "github.com/BigOnwer/Gusen-App/errors"
	"github.com/BigOnwer/Gusen-App/server/response"
	"github.com/BigOnwer/Gusen-App/services/jwt"
)

func respondAndAbort(c *gin.Context, message string, status int, data interface{}, err error) {
	response.JSON(c, message, status, data, err)
	c.Abort()
}

func getTokenFromHeader(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func (s *Server) Authorize() gin.HandlerFunc {
	return func(c *gin.Context) {
		accessToken := getTokenFromHeader(c)
		if accessToken == "" {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.New("unauthorized", http.StatusUnauthorized))
			return
		}

		secret := s.Config.JWTSecret
		accessClaims, err := jwt.ValidateAndGetClaims(accessToken, secret)
		if err != nil {
			respondAndAbort(c, "", http.StatusUnauthorized, nil, errs.New("unauthorized", http.StatusUnauthorized))
			return
		}

		userIDValue := accessClaims["id"]
		var userID uint
		switch v := userIDValue.(type) {
		case float64:
			userID = uint(v)
		default:
			respondAndAbort(c, "", http.StatusBadRequest, nil, errs.New("invalid userID format", http.StatusBadRequest))
			return
		}

		user, findErr := s.AuthRepository.FindUserByID(userID)
		if findErr != nil {
			respondAndAbort(c, "user not found", http.StatusUnauthorized, nil, errs.New("unauthorized", http.StatusUnauthorized))
			return
		}

		// Any authorized request counts as activity for presence.
		_ = s.AuthRepository.SetUserOnline(userID, true)

		c.Set("user", user)
		c.Set("userID", userID)
		c.Set("access_token", accessToken)
		c.Next()
	}
}

// sendMessageRateLimiter bounds send-message calls per user per minute.
func (s *Server) sendMessageRateLimiter() gin.HandlerFunc {
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: s.Config.SendRateLimit,
	})
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: func(c *gin.Context, info ratelimit.Info) {
			respondAndAbort(c, "too many messages, slow down", http.StatusTooManyRequests, nil,
				errs.New("rate limited", http.StatusTooManyRequests))
		},
		KeyFunc: func(c *gin.Context) string {
			if id, ok := c.Get("userID"); ok {
				return c.FullPath() + ":" + toKeyString(id)
			}
			return c.ClientIP()
		},
	})
}

func toKeyString(id interface{}) string {
	if v, ok := id.(uint); ok {
		return strconv.FormatUint(uint64(v), 10)
	}
	return ""
}
