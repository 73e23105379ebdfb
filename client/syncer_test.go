package client

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	apiError "github.com/BigOnwer/Gusen-App/errors"
	"github.com/BigOnwer/Gusen-App/models"
	"github.com/google/uuid"
)

type fakeAPI struct {
	mu        sync.Mutex
	nextID    int64
	messages  map[uuid.UUID][]models.Message
	sendErr   error
	listErr   error
	markErr   error
	total     int64
	totalErr  error
	markCalls int
	listCalls int
	listGate  chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{messages: make(map[uuid.UUID][]models.Message)}
}

func (f *fakeAPI) ListConversations(ctx context.Context) ([]models.ConversationSummary, error) {
	return nil, nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, conversationID uuid.UUID, cursor string, limit int) (*models.MessagePage, error) {
	f.mu.Lock()
	f.listCalls++
	gate := f.listGate
	err := f.listErr
	msgs := append([]models.Message(nil), f.messages[conversationID]...)
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	if cursor != "" {
		cur, decErr := models.DecodeMessageCursor(cursor)
		if decErr != nil {
			return nil, apiError.ValidationError(decErr.Error())
		}
		kept := msgs[:0]
		for _, m := range msgs {
			if m.CreatedAt.After(cur.CreatedAt) || (m.CreatedAt.Equal(cur.CreatedAt) && m.ID > cur.ID) {
				kept = append(kept, m)
			}
		}
		msgs = kept
	}

	page := &models.MessagePage{}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	page.Messages = msgs
	if limit > 0 && len(msgs) == limit {
		last := msgs[len(msgs)-1]
		page.NextCursor = models.MessageCursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return page, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, conversationID uuid.UUID, req *models.SendMessageRequest) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	msg := models.Message{
		ID:             f.nextID,
		ConversationID: conversationID,
		Content:        req.Content,
		ImageURL:       req.ImageURL,
		ClientKey:      req.ClientKey,
		CreatedAt:      time.Now(),
	}
	f.messages[conversationID] = append(f.messages[conversationID], msg)
	return &msg, nil
}

func (f *fakeAPI) MarkConversationRead(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	if f.markErr != nil {
		return 0, f.markErr
	}
	return 0, nil
}

func (f *fakeAPI) TotalUnreadCount(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.totalErr != nil {
		return 0, f.totalErr
	}
	return f.total, nil
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// waitForInitialPoll blocks until the fetch issued by Open has completed, so
// a test's own sends and polls cannot race it.
func waitForInitialPoll(t *testing.T, s *Syncer, api *fakeAPI) {
	t.Helper()
	waitFor(t, func() bool {
		api.mu.Lock()
		calls := api.listCalls
		api.mu.Unlock()
		s.mu.Lock()
		defer s.mu.Unlock()
		return calls >= 1 && !s.polling
	}, "initial fetch should complete")
}

func TestOpenMarksReadAndFetches(t *testing.T) {
	api := newFakeAPI()
	conv := uuid.New()
	api.messages[conv] = []models.Message{
		{ID: 1, ConversationID: conv, Content: "hello", ClientKey: "k1"},
		{ID: 2, ConversationID: conv, Content: "world", ClientKey: "k2"},
	}

	s := NewSyncer(api, nil, SyncerOptions{UserID: 1, PollInterval: time.Hour})
	defer s.Close()
	s.Open(context.Background(), conv)

	waitFor(t, func() bool { return len(s.Messages()) == 2 }, "expected the initial fetch to land")

	api.mu.Lock()
	marks := api.markCalls
	api.mu.Unlock()
	if marks != 1 {
		t.Fatalf("opening should mark the conversation read once, got %d", marks)
	}
}

func TestSendOptimisticThenConfirmed(t *testing.T) {
	api := newFakeAPI()
	conv := uuid.New()

	s := NewSyncer(api, nil, SyncerOptions{UserID: 1, PollInterval: time.Hour})
	defer s.Close()
	s.Open(context.Background(), conv)
	waitForInitialPoll(t, s, api)

	key, err := s.Send(context.Background(), "hi there", "")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message after confirmed send, got %d", len(msgs))
	}
	if msgs[0].ID == 0 {
		t.Fatal("confirmed message should carry the server id, not the optimistic placeholder")
	}
	if msgs[0].ClientKey != key {
		t.Fatalf("confirmed message should keep the client key, got %q", msgs[0].ClientKey)
	}

	// The next poll reconciles by client key, so the message never doubles.
	s.pollOnce(context.Background(), conv)
	if got := len(s.Messages()); got != 1 {
		t.Fatalf("poll after send should not duplicate the message, got %d", got)
	}
}

func TestTransientSendKeepsPendingForRetry(t *testing.T) {
	api := newFakeAPI()
	conv := uuid.New()
	api.sendErr = apiError.New("server unreachable", http.StatusServiceUnavailable)

	s := NewSyncer(api, nil, SyncerOptions{UserID: 1, PollInterval: time.Hour})
	defer s.Close()
	s.Open(context.Background(), conv)
	waitForInitialPoll(t, s, api)

	key, err := s.Send(context.Background(), "flaky network", "")
	if !apiError.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !s.Failed(key) {
		t.Fatal("a transiently failed send should be flagged for retry")
	}
	if got := len(s.Messages()); got != 1 {
		t.Fatalf("the optimistic bubble should survive a transient failure, got %d messages", got)
	}

	api.mu.Lock()
	api.sendErr = nil
	api.mu.Unlock()

	if err := s.Retry(context.Background(), key); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if s.Failed(key) {
		t.Fatal("retry success should clear the failure flag")
	}

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].ID == 0 {
		t.Fatalf("retry should swap the optimistic bubble for the confirmed row, got %+v", msgs)
	}
}

func TestValidationFailureDropsPending(t *testing.T) {
	api := newFakeAPI()
	conv := uuid.New()
	api.sendErr = apiError.ValidationError("message needs content or an image")

	s := NewSyncer(api, nil, SyncerOptions{UserID: 1, PollInterval: time.Hour})
	defer s.Close()
	s.Open(context.Background(), conv)
	waitForInitialPoll(t, s, api)

	key, err := s.Send(context.Background(), "", "")
	if !apiError.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if s.Failed(key) {
		t.Fatal("a rejected send gets no retry affordance")
	}
	if got := len(s.Messages()); got != 0 {
		t.Fatalf("a rejected send should not linger, got %d messages", got)
	}
}

func TestSendWithoutActiveConversation(t *testing.T) {
	s := NewSyncer(newFakeAPI(), nil, SyncerOptions{UserID: 1})
	if _, err := s.Send(context.Background(), "hi", ""); !apiError.IsValidation(err) {
		t.Fatalf("expected validation error with no active conversation, got %v", err)
	}
}

func TestStaleResponseDiscardedAfterSwitch(t *testing.T) {
	api := newFakeAPI()
	convA := uuid.New()
	convB := uuid.New()
	api.messages[convA] = []models.Message{{ID: 1, ConversationID: convA, Content: "old"}}

	gate := make(chan struct{})
	api.listGate = gate

	s := NewSyncer(api, nil, SyncerOptions{UserID: 1, PollInterval: time.Hour})
	defer s.Close()

	s.mu.Lock()
	s.active = convA
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.pollOnce(context.Background(), convA)
		close(done)
	}()

	waitFor(t, func() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.polling }, "poll should be in flight")

	// User navigates away while the response is still on the wire.
	s.mu.Lock()
	s.active = convB
	s.mu.Unlock()

	close(gate)
	<-done

	if got := len(s.Messages()); got != 0 {
		t.Fatalf("stale response must be discarded, got %d messages", got)
	}
}

func TestPollsNeverOverlap(t *testing.T) {
	api := newFakeAPI()
	conv := uuid.New()
	gate := make(chan struct{})
	api.listGate = gate

	s := NewSyncer(api, nil, SyncerOptions{UserID: 1, PollInterval: time.Hour})
	s.mu.Lock()
	s.active = conv
	s.mu.Unlock()

	go s.pollOnce(context.Background(), conv)
	waitFor(t, func() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.polling }, "first poll in flight")

	// A tick arriving now is skipped rather than queued.
	s.pollOnce(context.Background(), conv)

	s.mu.Lock()
	stillPolling := s.polling
	s.mu.Unlock()
	if !stillPolling {
		t.Fatal("the first poll should still be the only one running")
	}
	close(gate)
}

func TestOpenDrainsMultiPageHistory(t *testing.T) {
	api := newFakeAPI()
	conv := uuid.New()
	base := time.Now()
	for i := int64(1); i <= 5; i++ {
		api.messages[conv] = append(api.messages[conv], models.Message{
			ID:             i,
			ConversationID: conv,
			Content:        "msg",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		})
	}

	s := NewSyncer(api, nil, SyncerOptions{UserID: 1, PollInterval: time.Hour, PageLimit: 2})
	defer s.Close()
	s.Open(context.Background(), conv)

	waitFor(t, func() bool { return len(s.Messages()) == 5 }, "open should page through the whole history")

	for i, m := range s.Messages() {
		if m.ID != int64(i+1) {
			t.Fatalf("message %d out of order: got id %d", i, m.ID)
		}
	}
}

func TestPollDeliversBeyondFirstPage(t *testing.T) {
	api := newFakeAPI()
	conv := uuid.New()
	base := time.Now()
	api.messages[conv] = []models.Message{
		{ID: 1, ConversationID: conv, Content: "one", CreatedAt: base.Add(1 * time.Second)},
		{ID: 2, ConversationID: conv, Content: "two", CreatedAt: base.Add(2 * time.Second)},
	}

	var mu sync.Mutex
	activity := 0
	s := NewSyncer(api, nil, SyncerOptions{
		UserID:       1,
		PollInterval: time.Hour,
		PageLimit:    2,
		OnActivity: func() {
			mu.Lock()
			activity++
			mu.Unlock()
		},
	})
	defer s.Close()
	s.Open(context.Background(), conv)
	waitFor(t, func() bool { return len(s.Messages()) == 2 }, "initial history")
	waitForInitialPoll(t, s, api)

	mu.Lock()
	baseline := activity
	mu.Unlock()

	// The history already fills a full page; a message arriving now must
	// still reach the UI on the next poll.
	api.mu.Lock()
	api.messages[conv] = append(api.messages[conv], models.Message{
		ID:             3,
		ConversationID: conv,
		Content:        "three",
		CreatedAt:      base.Add(3 * time.Second),
	})
	api.mu.Unlock()

	s.pollOnce(context.Background(), conv)

	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("a full first page must not block new messages, got %d", len(msgs))
	}
	if msgs[2].ID != 3 {
		t.Fatalf("expected the new message last, got id %d", msgs[2].ID)
	}

	mu.Lock()
	got := activity
	mu.Unlock()
	if got != baseline+1 {
		t.Fatalf("new messages past the first page should count as activity, got %d then %d", baseline, got)
	}

	// Polling again with nothing new stays quiet and does not duplicate.
	s.pollOnce(context.Background(), conv)
	if len(s.Messages()) != 3 {
		t.Fatalf("repeat poll duplicated messages: %d", len(s.Messages()))
	}
}

func TestReconnectingAfterConsecutiveTransientFailures(t *testing.T) {
	api := newFakeAPI()
	conv := uuid.New()
	api.listErr = apiError.New("server unreachable", http.StatusServiceUnavailable)

	s := NewSyncer(api, nil, SyncerOptions{UserID: 1, PollInterval: time.Hour, FailureThreshold: 2})
	s.mu.Lock()
	s.active = conv
	s.mu.Unlock()

	s.pollOnce(context.Background(), conv)
	if s.Reconnecting() {
		t.Fatal("one failure is below the threshold")
	}
	s.pollOnce(context.Background(), conv)
	if !s.Reconnecting() {
		t.Fatal("two consecutive transient failures should flip to reconnecting")
	}

	api.mu.Lock()
	api.listErr = nil
	api.mu.Unlock()

	s.pollOnce(context.Background(), conv)
	if s.Reconnecting() {
		t.Fatal("a successful poll should clear the reconnecting state")
	}
}

func TestActivityCallbackFiresOnGrowth(t *testing.T) {
	api := newFakeAPI()
	conv := uuid.New()

	var mu sync.Mutex
	activity := 0
	s := NewSyncer(api, nil, SyncerOptions{
		UserID:       1,
		PollInterval: time.Hour,
		OnActivity: func() {
			mu.Lock()
			activity++
			mu.Unlock()
		},
	})
	defer s.Close()
	s.Open(context.Background(), conv)

	// Open itself marks read, which counts as activity.
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return activity == 1 }, "mark-read activity")
	waitForInitialPoll(t, s, api)

	api.mu.Lock()
	api.messages[conv] = []models.Message{{ID: 1, ConversationID: conv, Content: "incoming"}}
	api.mu.Unlock()

	s.pollOnce(context.Background(), conv)
	mu.Lock()
	got := activity
	mu.Unlock()
	if got != 2 {
		t.Fatalf("a poll that observes new messages should report activity, got %d", got)
	}
}
