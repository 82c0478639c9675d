package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/internal/domain/social"
	"github.com/alem-hub/xp-economy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION COMMANDS
// Pairwise request/accept/remove lifecycle plus the admin override.
// Every transition is a compare-and-swap against the stored record, so two
// sessions racing on the same pair cannot both win.
// ══════════════════════════════════════════════════════════════════════════════

// maxSwapAttempts bounds re-reads after a lost compare-and-swap.
const maxSwapAttempts = 3

// ConnectionResult is the state of a pair after a command.
type ConnectionResult struct {
	Connection *social.Connection
	// Status is relative to the actor; not_connected after a removal.
	Status social.ViewerStatus
}

// ConnectionHandler handles every connection command.
type ConnectionHandler struct {
	store economy.Store
	opts  options
}

// NewConnectionHandler creates a new ConnectionHandler.
func NewConnectionHandler(store economy.Store, opts ...Option) *ConnectionHandler {
	return &ConnectionHandler{store: store, opts: buildOptions(opts)}
}

// Request creates a pending connection from actor to target.
// Fails with shared.ErrConnectionExists if the pair already has a record in any status.
func (h *ConnectionHandler) Request(ctx context.Context, actor Actor, targetID string) (*ConnectionResult, error) {
	conn, err := social.NewRequest(actor.AccountID, targetID, h.opts.now())
	if err != nil {
		return nil, err
	}
	if _, err := h.opts.getAccount(ctx, h.store, targetID); err != nil {
		return nil, fmt.Errorf("connection request: %w", err)
	}

	if err := h.store.InsertConnection(ctx, conn); err != nil {
		if shared.IsAlreadyExists(err) {
			return nil, shared.ErrConnectionExists
		}
		return nil, fmt.Errorf("connection request: %w", err)
	}

	h.opts.log.Info("connection requested",
		logger.Operation("connection_request"),
		logger.AccountID(actor.AccountID),
		logger.String("target_id", targetID),
	)
	h.opts.publish(shared.NewConnectionEvent(shared.EventConnectionRequested, conn.UserA, conn.UserB, conn.ActionUserID))
	return &ConnectionResult{Connection: conn, Status: social.StatusFor(conn, actor.AccountID)}, nil
}

// Accept accepts the pending request that partnerID sent to actor.
func (h *ConnectionHandler) Accept(ctx context.Context, actor Actor, partnerID string) (*ConnectionResult, error) {
	pair, err := social.NewPair(actor.AccountID, partnerID)
	if err != nil {
		return nil, err
	}
	conn, err := h.transition(ctx, pair, func(c *social.Connection) (*social.Connection, error) {
		return c.Accept(actor.AccountID, h.opts.now())
	})
	if err != nil {
		return nil, err
	}

	h.opts.log.Info("connection accepted",
		logger.Operation("connection_accept"),
		logger.AccountID(actor.AccountID),
		logger.String("partner_id", partnerID),
	)
	h.opts.publish(shared.NewConnectionEvent(shared.EventConnectionAccepted, conn.UserA, conn.UserB, conn.ActionUserID))
	return &ConnectionResult{Connection: conn, Status: social.StatusFor(conn, actor.AccountID)}, nil
}

// Remove deletes the relationship between actor and partnerID in any status.
// Rejecting a received request and disconnecting are the same operation.
func (h *ConnectionHandler) Remove(ctx context.Context, actor Actor, partnerID string) (*ConnectionResult, error) {
	pair, err := social.NewPair(actor.AccountID, partnerID)
	if err != nil {
		return nil, err
	}
	if err := h.delete(ctx, pair, actor.AccountID); err != nil {
		return nil, err
	}
	return &ConnectionResult{Status: social.StatusNotConnected}, nil
}

// AdminAccept force-accepts any pending connection between userA and userB.
func (h *ConnectionHandler) AdminAccept(ctx context.Context, actor Actor, userA, userB string) (*ConnectionResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	pair, err := social.NewPair(userA, userB)
	if err != nil {
		return nil, err
	}
	conn, err := h.transition(ctx, pair, func(c *social.Connection) (*social.Connection, error) {
		return c.ForceAccept(h.opts.now())
	})
	if err != nil {
		return nil, err
	}

	h.opts.log.Info("connection force-accepted",
		logger.Operation("admin_connection_accept"),
		logger.AccountID(actor.AccountID),
		logger.String("pair", pair.Key()),
	)
	h.opts.publish(shared.NewConnectionEvent(shared.EventConnectionAccepted, conn.UserA, conn.UserB, actor.AccountID))
	return &ConnectionResult{Connection: conn, Status: social.StatusConnected}, nil
}

// AdminReject deletes a pending connection between userA and userB.
func (h *ConnectionHandler) AdminReject(ctx context.Context, actor Actor, userA, userB string) (*ConnectionResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	pair, err := social.NewPair(userA, userB)
	if err != nil {
		return nil, err
	}
	// Delete only the pending record just read; a lost race re-reads.
	for attempt := 1; ; attempt++ {
		conn, err := h.store.GetConnection(ctx, pair)
		if err != nil {
			return nil, err
		}
		if conn.Status != social.ConnectionPending {
			return nil, shared.ErrNotPending
		}
		err = h.store.DeleteConnectionIf(ctx, conn)
		if err == nil {
			break
		}
		if !errors.Is(err, shared.ErrConnectionChanged) || attempt == maxSwapAttempts {
			return nil, fmt.Errorf("connection reject: %w", err)
		}
	}

	h.opts.log.Info("connection rejected",
		logger.Operation("admin_connection_reject"),
		logger.AccountID(actor.AccountID),
		logger.String("pair", pair.Key()),
	)
	h.opts.publish(shared.NewConnectionEvent(shared.EventConnectionRemoved, pair.UserA, pair.UserB, actor.AccountID))
	return &ConnectionResult{Status: social.StatusNotConnected}, nil
}

// transition applies next to the stored record with compare-and-swap.
// A lost race re-reads the record and re-validates the transition.
func (h *ConnectionHandler) transition(ctx context.Context, pair social.Pair, next func(*social.Connection) (*social.Connection, error)) (*social.Connection, error) {
	for attempt := 1; ; attempt++ {
		cur, err := h.store.GetConnection(ctx, pair)
		if err != nil {
			return nil, err
		}
		updated, err := next(cur)
		if err != nil {
			return nil, err
		}
		err = h.store.SwapConnection(ctx, cur, updated)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, shared.ErrConnectionChanged) || attempt == maxSwapAttempts {
			return nil, err
		}
	}
}

func (h *ConnectionHandler) delete(ctx context.Context, pair social.Pair, actorID string) error {
	deleted, err := h.store.DeleteConnection(ctx, pair)
	if err != nil {
		return fmt.Errorf("connection remove: %w", err)
	}
	if !deleted {
		return shared.ErrConnectionNotFound
	}
	h.opts.log.Info("connection removed",
		logger.Operation("connection_remove"),
		logger.AccountID(actorID),
		logger.String("pair", pair.Key()),
	)
	h.opts.publish(shared.NewConnectionEvent(shared.EventConnectionRemoved, pair.UserA, pair.UserB, actorID))
	return nil
}
