package client

import (
	"context"
	"sync"
	"time"

	apiError "github.com/BigOnwer/Gusen-App/errors"
	"go.uber.org/zap"
)

const defaultBadgeInterval = 30 * time.Second

// BadgeAggregator keeps the single unread badge for the UI shell. It
// recomputes the total from scratch on a slow cadence and immediately on
// Kick, never adjusting incrementally, so overlapping runs cannot
// double-count a conversation.
type BadgeAggregator struct {
	api      ChatAPI
	log      *zap.Logger
	interval time.Duration
	onChange func(total int64)

	kick chan struct{}

	mu    sync.Mutex
	total int64
	known bool
}

func NewBadgeAggregator(api ChatAPI, log *zap.Logger, interval time.Duration, onChange func(total int64)) *BadgeAggregator {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultBadgeInterval
	}
	return &BadgeAggregator{
		api:      api,
		log:      log,
		interval: interval,
		onChange: onChange,
		kick:     make(chan struct{}, 1),
	}
}

// Kick requests an immediate recompute. Called by the sync loop whenever it
// observes a change (new message anywhere, successful mark-read). Multiple
// kicks while one is queued collapse into a single run.
func (b *BadgeAggregator) Kick() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Current returns the last published total.
func (b *BadgeAggregator) Current() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Run recomputes until the context is cancelled. One recompute at a time;
// timer ticks and kicks never overlap.
func (b *BadgeAggregator) Run(ctx context.Context) {
	b.recompute(ctx)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.kick:
			b.recompute(ctx)
		case <-ticker.C:
			b.recompute(ctx)
		}
	}
}

func (b *BadgeAggregator) recompute(ctx context.Context) {
	total, err := b.api.TotalUnreadCount(ctx)
	if err != nil {
		if apiError.IsTransient(err) {
			b.log.Debug("badge recompute skipped", zap.Error(err))
		} else {
			b.log.Warn("badge recompute failed", zap.Error(err))
		}
		return
	}

	b.mu.Lock()
	changed := !b.known || total != b.total
	b.total = total
	b.known = true
	b.mu.Unlock()

	if changed && b.onChange != nil {
		b.onChange(total)
	}
}
