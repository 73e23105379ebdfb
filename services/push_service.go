package services

import (
	"context"
	"log"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"google.golang.org/api/option"
)

// PushService sends best-effort FCM notifications for new messages. It is
// nil-safe: with no credentials configured every call is a no-op, and a
// failed push never fails the send that triggered it.
type PushService struct {
	client *messaging.Client
}

func NewPushService(ctx context.Context, credentialsFile string) (*PushService, error) {
	if credentialsFile == "" {
		return &PushService{}, nil
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, err
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, err
	}
	return &PushService{client: client}, nil
}

func (p *PushService) Enabled() bool {
	return p != nil && p.client != nil
}

func (p *PushService) Notify(ctx context.Context, deviceToken, title, body string) {
	if !p.Enabled() || deviceToken == "" {
		return
	}
	msg := &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
	}
	if _, err := p.client.Send(ctx, msg); err != nil {
		log.Printf("push notification failed: %v", err)
	}
}
