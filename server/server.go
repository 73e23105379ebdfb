package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BigOnwer/Gusen-App/config"
	"github.com/BigOnwer/Gusen-App/db"
	"github.com/BigOnwer/Gusen-App/services"
	"github.com/BigOnwer/Gusen-App/ws"
	"go.uber.org/zap"
)

type Server struct {
	Config           *config.Config
	AuthRepository   db.AuthRepository
	ConversationRepo db.ConversationRepository
	AuthService      services.AuthService
	ChatService      services.ChatService
	Hub              *ws.Hub
	Logger           *zap.Logger
}

func (s *Server) Start() {
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	r := s.setupRouter()

	addr := fmt.Sprintf(":%d", s.Config.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		s.Logger.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.Logger.Error("forced shutdown", zap.Error(err))
	}
	s.Logger.Info("server stopped")
}
