package server

import (
	"fmt"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRouter() *gin.Engine {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "test" {
		r := gin.New()
		s.defineRoutes(r)
		return r
	}

	r := gin.New()
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	s.defineRoutes(r)

	return r
}

func (s *Server) defineRoutes(router *gin.Engine) {
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apirouter := router.Group("/api/v1")
	apirouter.POST("/auth/signup", s.handleSignup())
	apirouter.POST("/auth/login", s.handleLogin())

	authorized := apirouter.Group("/")
	authorized.Use(s.Authorize())
	authorized.GET("/me", s.handleMe())
	authorized.GET("/logout", s.handleLogout())
	authorized.GET("/users/search", s.handleSearchUsers())

	authorized.GET("/conversations", s.handleListConversations())
	authorized.POST("/conversations/direct", s.handleStartDirectConversation())
	authorized.POST("/conversations/group", s.handleCreateGroupConversation())
	authorized.GET("/conversations/:id/messages", s.handleListMessages())
	authorized.POST("/conversations/:id/messages", s.sendMessageRateLimiter(), s.handleSendMessage())
	authorized.POST("/conversations/:id/read", s.handleMarkConversationRead())
	authorized.GET("/conversations/:id/unread-count", s.handleUnreadCount())
	authorized.GET("/unread-count", s.handleTotalUnreadCount())

	authorized.GET("/ws", s.handleWS())
}
