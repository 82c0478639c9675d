package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apppresence "github.com/alem-hub/xp-economy/internal/application/presence"
	"github.com/alem-hub/xp-economy/internal/domain/presence"
	"github.com/alem-hub/xp-economy/pkg/circuitbreaker"
	"github.com/alem-hub/xp-economy/pkg/logger"
	"github.com/alem-hub/xp-economy/pkg/retry"
)

// ErrAccountIDEmpty is returned when a presence call has no account.
var ErrAccountIDEmpty = errors.New("presence_channel: account ID cannot be empty")

// presenceTopic is the pub/sub topic carrying presence signals of every channel.
const presenceTopic = "presence_signals"

// ══════════════════════════════════════════════════════════════════════════════
// PRESENCE CHANNEL
// ══════════════════════════════════════════════════════════════════════════════

// PresenceChannel is the broadcast channel behind the presence service.
//
// Architecture:
//   - Sorted set "presence:{channel}" maps accountID -> last seen (unix ms)
//   - Hash "presence:{channel}:tokens" maps accountID -> presence token
//   - Pub/Sub channel "pubsub:presence_signals" carries join/leave/sync signals
//
// Delivery is at-least-once and may reorder. Every process folds signals into
// its presence.Service; a periodic sync replaces the set and heals drift.
type PresenceChannel struct {
	cache   *Cache
	service *apppresence.Service
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
	ttl     time.Duration
	now     func() time.Time
	log     *logger.Logger
}

// PresenceOption configures a PresenceChannel.
type PresenceOption func(*PresenceChannel)

// WithPresenceTTL sets how long an account stays online without a heartbeat.
func WithPresenceTTL(ttl time.Duration) PresenceOption {
	return func(p *PresenceChannel) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithPresenceClock overrides the clock.
func WithPresenceClock(now func() time.Time) PresenceOption {
	return func(p *PresenceChannel) { p.now = now }
}

// WithPresenceRetrier overrides the publish retry policy.
func WithPresenceRetrier(r *retry.Retrier) PresenceOption {
	return func(p *PresenceChannel) { p.retrier = r }
}

// NewPresenceChannel creates the channel adapter for service.
func NewPresenceChannel(cache *Cache, service *apppresence.Service, log *logger.Logger, opts ...PresenceOption) *PresenceChannel {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With(logger.Component("presence_channel"))

	p := &PresenceChannel{
		cache:   cache,
		service: service,
		retrier: retry.BroadcastRetrier(),
		ttl:     TTLPresence,
		now:     time.Now,
		log:     log,
	}
	p.breaker = circuitbreaker.RedisBreaker("presence_channel", func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ══════════════════════════════════════════════════════════════════════════════
// SIGNALS
// ══════════════════════════════════════════════════════════════════════════════

// Join records a heartbeat and broadcasts a join signal.
// An empty token gets a fresh one.
func (p *PresenceChannel) Join(ctx context.Context, channel, accountID, token string) (presence.Entry, error) {
	if accountID == "" {
		return presence.Entry{}, ErrAccountIDEmpty
	}
	channel = normalizeChannel(channel)
	if token == "" {
		token = uuid.NewString()
	}
	entry := presence.Entry{AccountID: accountID, Token: token, SeenAt: p.now().UTC()}

	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		pipe := p.cache.Client().TxPipeline()
		pipe.ZAdd(ctx, PresenceKey(channel), redis.Z{
			Score:  float64(entry.SeenAt.UnixMilli()),
			Member: accountID,
		})
		pipe.HSet(ctx, PresenceTokensKey(channel), accountID, token)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return presence.Entry{}, fmt.Errorf("failed to record presence: %w", err)
	}

	return entry, p.Publish(ctx, presence.Signal{Type: presence.SignalJoin, Channel: channel, Entry: &entry})
}

// Leave removes the account from the channel and broadcasts a leave signal.
func (p *PresenceChannel) Leave(ctx context.Context, channel, accountID string) error {
	if accountID == "" {
		return ErrAccountIDEmpty
	}
	channel = normalizeChannel(channel)

	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		pipe := p.cache.Client().TxPipeline()
		pipe.ZRem(ctx, PresenceKey(channel), accountID)
		pipe.HDel(ctx, PresenceTokensKey(channel), accountID)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to remove presence: %w", err)
	}

	return p.Publish(ctx, presence.Signal{Type: presence.SignalLeave, Channel: channel, AccountID: accountID})
}

// Sync prunes stale liveness entries and broadcasts the full snapshot.
func (p *PresenceChannel) Sync(ctx context.Context, channel string) ([]presence.Entry, error) {
	channel = normalizeChannel(channel)

	var entries []presence.Entry
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		entries, err = p.live(ctx, channel)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read presence: %w", err)
	}

	if err := p.Publish(ctx, presence.Signal{Type: presence.SignalSync, Channel: channel, Entries: entries}); err != nil {
		return nil, err
	}
	return entries, nil
}

func (p *PresenceChannel) live(ctx context.Context, channel string) ([]presence.Entry, error) {
	client := p.cache.Client()
	key := PresenceKey(channel)
	tokensKey := PresenceTokensKey(channel)
	cutoff := strconv.FormatInt(p.now().Add(-p.ttl).UnixMilli(), 10)

	stale, err := client.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: "(" + cutoff}).Result()
	if err != nil {
		return nil, err
	}
	if len(stale) > 0 {
		members := make([]any, len(stale))
		for i, id := range stale {
			members[i] = id
		}
		pipe := client.TxPipeline()
		pipe.ZRem(ctx, key, members...)
		pipe.HDel(ctx, tokensKey, stale...)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
		p.log.Debug("pruned stale presence", logger.Channel(channel), logger.Int("count", len(stale)))
	}

	scored, err := client.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	tokens, err := client.HGetAll(ctx, tokensKey).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]presence.Entry, 0, len(scored))
	for _, z := range scored {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, presence.Entry{
			AccountID: id,
			Token:     tokens[id],
			SeenAt:    time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return entries, nil
}

// Publish broadcasts a signal through the breaker with retries.
func (p *PresenceChannel) Publish(ctx context.Context, sig presence.Signal) error {
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.retrier.Do(ctx, func(ctx context.Context) error {
			return p.cache.Publish(ctx, PubSubChannel(presenceTopic), sig)
		})
	})
	if err != nil {
		p.log.Warn("failed to publish presence signal",
			logger.Channel(sig.Channel),
			logger.String("signal", string(sig.Type)),
			logger.Err(err),
		)
		return fmt.Errorf("failed to publish presence signal: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FORWARDER
// ══════════════════════════════════════════════════════════════════════════════

// Listen forwards broadcast signals into the presence service until ctx is done.
// ready, if not nil, is closed once the subscription is active.
func (p *PresenceChannel) Listen(ctx context.Context, ready chan<- struct{}) error {
	sub := p.cache.Subscribe(ctx, PubSubChannel(presenceTopic))
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to presence signals: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	p.log.Info("presence forwarder started")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			p.log.Info("presence forwarder stopped")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var sig presence.Signal
			if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
				p.log.Warn("dropping malformed presence signal", logger.Err(err))
				continue
			}
			p.service.Apply(sig)
		}
	}
}

func normalizeChannel(channel string) string {
	if channel == "" {
		return apppresence.DefaultChannel
	}
	return channel
}
