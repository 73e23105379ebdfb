package main

import (
	"context"
	"log"

	"github.com/BigOnwer/Gusen-App/config"
	"github.com/BigOnwer/Gusen-App/db"
	"github.com/BigOnwer/Gusen-App/metrics"
	"github.com/BigOnwer/Gusen-App/server"
	"github.com/BigOnwer/Gusen-App/services"
	"github.com/BigOnwer/Gusen-App/ws"
	"go.uber.org/zap"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if conf.Debug {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Register()

	gormDB := db.GetDB(conf)
	authRepo := db.NewAuthRepo(gormDB)
	conversationRepo := db.NewConversationRepo(gormDB)
	messageRepo := db.NewMessageRepo(gormDB)
	receiptRepo := db.NewReadReceiptRepo(gormDB)

	push, err := services.NewPushService(context.Background(), conf.FirebaseCredentials)
	if err != nil {
		logger.Fatal("unable to init push service", zap.Error(err))
	}

	hub := ws.NewHub(logger)
	authService := services.NewAuthService(authRepo, conf)
	chatService := services.NewChatService(conversationRepo, messageRepo, receiptRepo, authRepo, hub, push, logger)

	s := &server.Server{
		Config:           conf,
		AuthRepository:   authRepo,
		ConversationRepo: conversationRepo,
		AuthService:      authService,
		ChatService:      chatService,
		Hub:              hub,
		Logger:           logger,
	}

	s.Start()
}
