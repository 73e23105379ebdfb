package client

import (
	"context"
	"sync"
	"time"

	apiError "github.com/BigOnwer/Gusen-App/errors"
	"github.com/BigOnwer/Gusen-App/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultPollInterval     = 3 * time.Second
	defaultFailureThreshold = 3
	defaultPageLimit        = 200
)

type SyncerOptions struct {
	// UserID identifies the local user; optimistic messages carry it.
	UserID uint
	// PollInterval is how often the active conversation is refetched.
	PollInterval time.Duration
	// FailureThreshold is how many consecutive transient failures flip the
	// syncer into "reconnecting".
	FailureThreshold int
	PageLimit        int
	// OnUpdate fires with the reconciled message list after every change.
	OnUpdate func(conversationID uuid.UUID, messages []models.Message)
	// OnActivity fires when the syncer observes server-side change (new
	// messages, successful mark-read); the badge aggregator hangs off it.
	OnActivity func()
}

// Syncer reconciles locally-held optimistic state with server truth for the
// one conversation the user has open. It polls on a fixed cadence while the
// conversation is active, never issues a second poll while one is in
// flight, and discards stale responses once the user has navigated away.
type Syncer struct {
	api  ChatAPI
	log  *zap.Logger
	opts SyncerOptions

	mu           sync.Mutex
	active       uuid.UUID
	cancelActive context.CancelFunc
	messages     []models.Message
	pending      []models.Message
	failed       map[string]bool
	polling      bool
	failures     int
}

func NewSyncer(api ChatAPI, log *zap.Logger, opts SyncerOptions) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = defaultPageLimit
	}
	return &Syncer{
		api:    api,
		log:    log,
		opts:   opts,
		failed: make(map[string]bool),
	}
}

// Open makes a conversation the active one: mark it read immediately, fetch
// once, then poll on the configured cadence until Close or the next Open.
func (s *Syncer) Open(ctx context.Context, conversationID uuid.UUID) {
	s.Close()

	loopCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.active = conversationID
	s.cancelActive = cancel
	s.messages = nil
	s.pending = nil
	s.failures = 0
	s.mu.Unlock()

	go s.run(loopCtx, conversationID)
}

// Close leaves the active conversation. An in-flight poll keeps running but
// its response is discarded by the conversation-id check.
func (s *Syncer) Close() {
	s.mu.Lock()
	cancel := s.cancelActive
	s.active = uuid.Nil
	s.cancelActive = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Syncer) run(ctx context.Context, conversationID uuid.UUID) {
	if _, err := s.api.MarkConversationRead(ctx, conversationID); err != nil {
		s.noteFailure(err)
	} else if s.opts.OnActivity != nil {
		s.opts.OnActivity()
	}
	s.pollOnce(ctx, conversationID)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx, conversationID)
		}
	}
}

// pollOnce fetches everything after the last message already held, following
// NextCursor until it drains to the tail, so histories longer than one page
// keep delivering. A tick arriving while the previous poll is still in
// flight is skipped rather than queued.
func (s *Syncer) pollOnce(ctx context.Context, conversationID uuid.UUID) {
	s.mu.Lock()
	if s.polling || s.active != conversationID {
		s.mu.Unlock()
		return
	}
	s.polling = true
	cursor := s.cursorLocked()
	s.mu.Unlock()

	var fetched []models.Message
	var err error
	for {
		var page *models.MessagePage
		page, err = s.api.ListMessages(ctx, conversationID, cursor, s.opts.PageLimit)
		if err != nil {
			break
		}
		fetched = append(fetched, page.Messages...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	s.mu.Lock()
	s.polling = false
	if s.active != conversationID {
		// Navigated away while the request was in flight; stale.
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.noteFailure(err)
		return
	}
	s.failures = 0
	added := s.appendFetchedLocked(fetched)
	update := s.snapshotLocked()
	s.mu.Unlock()

	if s.opts.OnUpdate != nil {
		s.opts.OnUpdate(conversationID, update)
	}
	if added > 0 && s.opts.OnActivity != nil {
		s.opts.OnActivity()
	}
}

// cursorLocked resumes listing after the newest confirmed message; an empty
// history starts from the beginning.
func (s *Syncer) cursorLocked() string {
	if len(s.messages) == 0 {
		return ""
	}
	last := s.messages[len(s.messages)-1]
	return models.MessageCursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
}

// Send displays the message optimistically and posts it with a fresh client
// key. The server dedupes on that key, so retries can never double-send,
// and the next poll's response reconciles the optimistic entry away by key,
// never by content.
func (s *Syncer) Send(ctx context.Context, content, imageURL string) (string, error) {
	s.mu.Lock()
	conversationID := s.active
	s.mu.Unlock()
	if conversationID == uuid.Nil {
		return "", apiError.ValidationError("no active conversation")
	}

	key := uuid.NewString()
	optimistic := models.Message{
		ConversationID: conversationID,
		SenderID:       s.opts.UserID,
		Content:        content,
		ImageURL:       imageURL,
		ClientKey:      key,
		CreatedAt:      time.Now(),
	}

	s.mu.Lock()
	s.pending = append(s.pending, optimistic)
	s.mu.Unlock()
	s.notifyUpdate(conversationID)

	return key, s.deliver(ctx, conversationID, key, content, imageURL)
}

// Retry resends a failed optimistic message under its original client key.
func (s *Syncer) Retry(ctx context.Context, clientKey string) error {
	s.mu.Lock()
	conversationID := s.active
	var msg *models.Message
	for i := range s.pending {
		if s.pending[i].ClientKey == clientKey {
			msg = &s.pending[i]
			break
		}
	}
	s.mu.Unlock()

	if conversationID == uuid.Nil || msg == nil {
		return apiError.NotFoundError("no such pending message")
	}
	return s.deliver(ctx, conversationID, clientKey, msg.Content, msg.ImageURL)
}

func (s *Syncer) deliver(ctx context.Context, conversationID uuid.UUID, key, content, imageURL string) error {
	req := &models.SendMessageRequest{
		Content:   content,
		ImageURL:  imageURL,
		ClientKey: key,
	}
	confirmed, err := s.api.SendMessage(ctx, conversationID, req)

	s.mu.Lock()
	if err != nil {
		if apiError.IsValidation(err) {
			// Rejected outright; drop the bubble, surface the error.
			s.removePendingLocked(key)
		} else {
			// Keep the bubble with a retry affordance.
			s.failed[key] = true
		}
		s.mu.Unlock()
		s.notifyUpdate(conversationID)
		return err
	}

	delete(s.failed, key)
	s.failures = 0
	if s.active == conversationID {
		s.removePendingLocked(key)
		s.appendConfirmedLocked(confirmed)
	}
	s.mu.Unlock()
	s.notifyUpdate(conversationID)
	return nil
}

// Messages returns the confirmed history followed by still-pending
// optimistic sends, i.e. exactly what the UI renders.
func (s *Syncer) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Failed reports whether an optimistic message needs a retry affordance.
func (s *Syncer) Failed(clientKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed[clientKey]
}

// Reconnecting reports whether transient failures have persisted long
// enough to show a connectivity banner.
func (s *Syncer) Reconnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures >= s.opts.FailureThreshold
}

func (s *Syncer) noteFailure(err error) {
	if !apiError.IsTransient(err) {
		s.log.Warn("sync failure", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.failures++
	n := s.failures
	s.mu.Unlock()
	s.log.Debug("transient sync failure", zap.Int("consecutive", n), zap.Error(err))
}

// appendFetchedLocked merges newly fetched messages into the confirmed
// history (deduplicating against sends confirmed in the meantime) and drops
// pending entries whose client key is now confirmed. Returns how many
// messages were actually new.
func (s *Syncer) appendFetchedLocked(fetched []models.Message) int {
	seen := make(map[int64]bool, len(s.messages))
	for i := range s.messages {
		seen[s.messages[i].ID] = true
	}
	added := 0
	for i := range fetched {
		if seen[fetched[i].ID] {
			continue
		}
		seen[fetched[i].ID] = true
		s.messages = append(s.messages, fetched[i])
		added++
	}

	confirmed := make(map[string]bool, len(s.messages))
	for i := range s.messages {
		if s.messages[i].ClientKey != "" {
			confirmed[s.messages[i].ClientKey] = true
		}
	}
	kept := s.pending[:0]
	for _, p := range s.pending {
		if !confirmed[p.ClientKey] {
			kept = append(kept, p)
		}
	}
	s.pending = kept
	return added
}

func (s *Syncer) removePendingLocked(clientKey string) {
	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.ClientKey != clientKey {
			kept = append(kept, p)
		}
	}
	s.pending = kept
}

func (s *Syncer) appendConfirmedLocked(msg *models.Message) {
	for i := range s.messages {
		if s.messages[i].ID == msg.ID {
			return
		}
	}
	s.messages = append(s.messages, *msg)
}

func (s *Syncer) snapshotLocked() []models.Message {
	out := make([]models.Message, 0, len(s.messages)+len(s.pending))
	out = append(out, s.messages...)
	out = append(out, s.pending...)
	return out
}

func (s *Syncer) notifyUpdate(conversationID uuid.UUID) {
	if s.opts.OnUpdate == nil {
		return
	}
	s.mu.Lock()
	if s.active != conversationID {
		s.mu.Unlock()
		return
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.opts.OnUpdate(conversationID, snapshot)
}
