// Package command contains write operations (CQRS - Commands).
//
// Every handler is written once against economy.Store. Atomicity lives in
// the store (unique keys, conditional debit, compare-and-swap, WithinTx);
// handlers translate store outcomes into domain results.
package command

import (
	"context"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/account"
	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/pkg/logger"
	"github.com/alem-hub/xp-economy/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

type options struct {
	now       func() time.Time
	log       *logger.Logger
	retrier   *retry.Retrier
	publisher shared.EventPublisher
}

// Option configures a command handler.
type Option func(*options)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the handler logger.
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithRetrier sets the retrier used for idempotent store calls.
func WithRetrier(r *retry.Retrier) Option {
	return func(o *options) { o.retrier = r }
}

// WithPublisher sets the domain event publisher.
func WithPublisher(p shared.EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

func buildOptions(opts []Option) options {
	o := options{
		now:       time.Now,
		log:       logger.NewNop(),
		retrier:   retry.StoreRetrier(shared.IsRetryable),
		publisher: shared.NopPublisher{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// publish delivers events after the state change is durable.
// Delivery failures are logged and never undo the change.
func (o options) publish(events ...shared.Event) {
	for _, e := range events {
		if err := o.publisher.Publish(e); err != nil {
			o.log.Warn("failed to publish event",
				logger.String("event_type", string(e.EventType())),
				logger.String("aggregate_id", e.AggregateID()),
				logger.Err(err),
			)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTOR
// ══════════════════════════════════════════════════════════════════════════════

// Actor is the authenticated caller of a command.
type Actor struct {
	AccountID string
	Role      account.Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == account.RoleAdmin
}

func requireAdmin(a Actor) error {
	if !a.IsAdmin() {
		return shared.ErrAdminRequired
	}
	return nil
}

// getAccount loads an account, retrying transient failures. Reads are idempotent.
func (o options) getAccount(ctx context.Context, store economy.AccountStore, id string) (*account.Account, error) {
	return retry.Run(ctx, o.retrier, func(ctx context.Context) (*account.Account, error) {
		return store.GetAccount(ctx, id)
	})
}
