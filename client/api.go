// Package client is the app-side half of the messaging core: an API client,
// the per-conversation sync loop and the unread-badge aggregator. The server
// may also push the same payloads over websocket; everything here works from
// polling alone.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apiError "github.com/BigOnwer/Gusen-App/errors"
	"github.com/BigOnwer/Gusen-App/models"
	"github.com/google/uuid"
)

// ChatAPI is what the sync loop and the badge aggregator consume. The HTTP
// implementation below talks to the server; tests substitute fakes.
type ChatAPI interface {
	ListConversations(ctx context.Context) ([]models.ConversationSummary, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, cursor string, limit int) (*models.MessagePage, error)
	SendMessage(ctx context.Context, conversationID uuid.UUID, req *models.SendMessageRequest) (*models.Message, error)
	MarkConversationRead(ctx context.Context, conversationID uuid.UUID) (int64, error)
	TotalUnreadCount(ctx context.Context) (int64, error)
}

// HTTPChatAPI talks to the Gusen server over its REST surface. Every call
// has a bounded timeout; timeouts and connection failures come back as
// transient errors so loops retry on their next tick instead of immediately.
type HTTPChatAPI struct {
	BaseURL string
	Token   string
	client  *http.Client
}

func NewHTTPChatAPI(baseURL, token string, timeout time.Duration) *HTTPChatAPI {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPChatAPI{
		BaseURL: baseURL,
		Token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// envelope mirrors response.JSON on the server.
type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  string          `json:"errors"`
	Status  int             `json:"status"`
}

func (a *HTTPChatAPI) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return apiError.ValidationError(err.Error())
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reqBody)
	if err != nil {
		return apiError.ValidationError(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.Token)

	resp, err := a.client.Do(req)
	if err != nil {
		// Timeouts and connection refusals all land here.
		return apiError.New(err.Error(), http.StatusServiceUnavailable)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return apiError.New("malformed response", http.StatusServiceUnavailable)
	}

	if resp.StatusCode >= 400 {
		msg := env.Errors
		if msg == "" {
			msg = env.Message
		}
		if resp.StatusCode >= 500 {
			return apiError.New(msg, http.StatusServiceUnavailable)
		}
		return apiError.New(msg, resp.StatusCode)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return apiError.New("malformed response data", http.StatusServiceUnavailable)
		}
	}
	return nil
}

func (a *HTTPChatAPI) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	var out []models.ConversationSummary
	err := a.do(ctx, http.MethodGet, "/api/v1/conversations", nil, &out)
	return out, err
}

func (a *HTTPChatAPI) ListMessages(ctx context.Context, conversationID uuid.UUID, cursor string, limit int) (*models.MessagePage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := fmt.Sprintf("/api/v1/conversations/%s/messages", conversationID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out models.MessagePage
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPChatAPI) SendMessage(ctx context.Context, conversationID uuid.UUID, req *models.SendMessageRequest) (*models.Message, error) {
	var out models.Message
	path := fmt.Sprintf("/api/v1/conversations/%s/messages", conversationID)
	if err := a.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPChatAPI) MarkConversationRead(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	var out struct {
		Marked int64 `json:"marked"`
	}
	path := fmt.Sprintf("/api/v1/conversations/%s/read", conversationID)
	if err := a.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return 0, err
	}
	return out.Marked, nil
}

func (a *HTTPChatAPI) TotalUnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		UnreadCount int64 `json:"unread_count"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/v1/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}
