// Package memory implements economy.Store entirely in process memory.
// It backs tests and single-instance development runs. Every operation
// is serialized behind one mutex; WithinTx runs against a copy of the
// state and swaps it in only when the callback succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/account"
	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/internal/domain/social"
)

// state owns every mutable value of the store.
type state struct {
	accounts      map[string]*account.Account
	ledger        []economy.LedgerEntry
	completions   map[string]economy.CompletionRecord
	activities    map[string]*economy.Activity
	rewards       map[string]*economy.Reward
	badges        map[string]*economy.Badge
	accountBadges map[string]economy.AccountBadge
	redemptions   map[string]*economy.Redemption
	connections   map[string]*social.Connection
	groups        map[string]*social.Group
	memberships   map[string]social.Membership
}

func newState() *state {
	return &state{
		accounts:      make(map[string]*account.Account),
		completions:   make(map[string]economy.CompletionRecord),
		activities:    make(map[string]*economy.Activity),
		rewards:       make(map[string]*economy.Reward),
		badges:        make(map[string]*economy.Badge),
		accountBadges: make(map[string]economy.AccountBadge),
		redemptions:   make(map[string]*economy.Redemption),
		connections:   make(map[string]*social.Connection),
		groups:        make(map[string]*social.Group),
		memberships:   make(map[string]social.Membership),
	}
}

func (st *state) clone() *state {
	c := newState()
	for k, v := range st.accounts {
		c.accounts[k] = v.Clone()
	}
	c.ledger = append([]economy.LedgerEntry(nil), st.ledger...)
	for k, v := range st.completions {
		c.completions[k] = v
	}
	for k, v := range st.activities {
		a := *v
		c.activities[k] = &a
	}
	for k, v := range st.rewards {
		r := *v
		c.rewards[k] = &r
	}
	for k, v := range st.badges {
		b := *v
		c.badges[k] = &b
	}
	for k, v := range st.accountBadges {
		c.accountBadges[k] = v
	}
	for k, v := range st.redemptions {
		c.redemptions[k] = v.Clone()
	}
	for k, v := range st.connections {
		conn := *v
		c.connections[k] = &conn
	}
	for k, v := range st.groups {
		g := *v
		c.groups[k] = &g
	}
	for k, v := range st.memberships {
		c.memberships[k] = v
	}
	return c
}

// Store is the in-memory economy.Store.
type Store struct {
	mu   sync.Mutex
	st   *state
	inTx bool
	now  func() time.Time
}

var _ economy.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for ledger timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{st: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithinTx runs fn against a private copy of the state and commits it on success.
// The whole transaction holds the store lock, so transactions are serializable.
func (s *Store) WithinTx(ctx context.Context, fn func(tx economy.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	view := &Store{st: s.st.clone(), inTx: true, now: s.now}
	if err := fn(view); err != nil {
		return err
	}
	s.st = view.st
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) CreateAccount(ctx context.Context, acc *account.Account) error {
	if err := acc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.accounts[acc.ID]; ok {
		return shared.ErrAccountAlreadyExists
	}
	s.st.accounts[acc.ID] = acc.Clone()
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.st.accounts[id]
	if !ok {
		return nil, shared.ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (s *Store) UpdateProfile(ctx context.Context, id, displayName string, role account.Role) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.st.accounts[id]
	if !ok {
		return nil, shared.ErrAccountNotFound
	}
	next := acc.Clone()
	next.DisplayName = displayName
	next.Role = role
	if err := next.Validate(); err != nil {
		return nil, err
	}
	s.st.accounts[id] = next
	return next.Clone(), nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*account.Account, 0, len(s.st.accounts))
	for _, acc := range s.st.accounts {
		out = append(out, acc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) TopAccounts(ctx context.Context, limit int) ([]*account.Account, error) {
	all, err := s.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].XP > all[j].XP })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) RecordLogin(ctx context.Context, id string, expected *time.Time, streak int, lastLogin time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.st.accounts[id]
	if !ok {
		return shared.ErrAccountNotFound
	}
	if !sameDate(acc.LastLoginDate, expected) {
		return shared.ErrStreakAlreadyCounted
	}
	last := lastLogin
	acc.CurrentStreak = streak
	acc.LastLoginDate = &last
	return nil
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) Credit(ctx context.Context, accountID string, amount int64, cause economy.Cause) (int64, error) {
	if err := economy.ValidateAmount(amount); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.st.accounts[accountID]
	if !ok {
		return 0, shared.ErrAccountNotFound
	}
	acc.XP += amount
	s.appendLedger(accountID, amount, acc.XP, cause)
	return acc.XP, nil
}

func (s *Store) Debit(ctx context.Context, accountID string, amount int64, cause economy.Cause) (int64, error) {
	if err := economy.ValidateAmount(amount); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.st.accounts[accountID]
	if !ok {
		return 0, shared.ErrAccountNotFound
	}
	if acc.XP < amount {
		return acc.XP, shared.ErrInsufficientXP
	}
	acc.XP -= amount
	s.appendLedger(accountID, -amount, acc.XP, cause)
	return acc.XP, nil
}

// appendLedger records one balance mutation. Caller holds mu.
func (s *Store) appendLedger(accountID string, delta, balance int64, cause economy.Cause) {
	s.st.ledger = append(s.st.ledger, economy.LedgerEntry{
		AccountID:   accountID,
		Delta:       delta,
		Balance:     balance,
		Reason:      cause.Reason,
		ReferenceID: cause.ReferenceID,
		CreatedAt:   s.now().UTC(),
	})
}

func (s *Store) ListLedger(ctx context.Context, accountID string, limit int) ([]economy.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []economy.LedgerEntry
	for i := len(s.st.ledger) - 1; i >= 0; i-- {
		if s.st.ledger[i].AccountID != accountID {
			continue
		}
		out = append(out, s.st.ledger[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYTICS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) Counts(ctx context.Context) (economy.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := economy.Counts{
		Accounts:    len(s.st.accounts),
		Redemptions: len(s.st.redemptions),
	}
	for _, acc := range s.st.accounts {
		if acc.IsAdmin() {
			c.Admins++
		}
	}
	for _, a := range s.st.activities {
		switch a.Kind {
		case economy.KindCourse:
			c.Courses++
		case economy.KindEvent:
			c.Events++
		}
	}
	return c, nil
}
