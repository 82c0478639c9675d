package memory

import (
	"context"
	"sort"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/internal/domain/social"
)

func membershipKey(groupID, userID string) string {
	return groupID + "|" + userID
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTIONS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) InsertConnection(ctx context.Context, conn *social.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []string{conn.UserA, conn.UserB} {
		if _, ok := s.st.accounts[id]; !ok {
			return shared.ErrAccountNotFound
		}
	}
	key := conn.Pair.Key()
	if _, ok := s.st.connections[key]; ok {
		return shared.ErrConnectionExists
	}
	cp := *conn
	s.st.connections[key] = &cp
	return nil
}

func (s *Store) GetConnection(ctx context.Context, pair social.Pair) (*social.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.st.connections[pair.Key()]
	if !ok {
		return nil, shared.ErrConnectionNotFound
	}
	cp := *conn
	return &cp, nil
}

func (s *Store) SwapConnection(ctx context.Context, prev, next *social.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := prev.Pair.Key()
	cur, ok := s.st.connections[key]
	if !ok || !cur.Equal(prev) {
		return shared.ErrConnectionChanged
	}
	cp := *next
	s.st.connections[key] = &cp
	return nil
}

func (s *Store) DeleteConnection(ctx context.Context, pair social.Pair) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pair.Key()
	if _, ok := s.st.connections[key]; !ok {
		return false, nil
	}
	delete(s.st.connections, key)
	return true, nil
}

func (s *Store) DeleteConnectionIf(ctx context.Context, prev *social.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := prev.Pair.Key()
	cur, ok := s.st.connections[key]
	if !ok || !cur.Equal(prev) {
		return shared.ErrConnectionChanged
	}
	delete(s.st.connections, key)
	return nil
}

func (s *Store) ListConnections(ctx context.Context, accountID string) ([]*social.Connection, error) {
	return s.filterConnections(func(c *social.Connection) bool { return c.Contains(accountID) }), nil
}

func (s *Store) ListPendingConnections(ctx context.Context) ([]*social.Connection, error) {
	return s.filterConnections(func(c *social.Connection) bool { return c.Status == social.ConnectionPending }), nil
}

func (s *Store) filterConnections(keep func(*social.Connection) bool) []*social.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*social.Connection
	for _, c := range s.st.connections {
		if keep(c) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair.Key() < out[j].Pair.Key() })
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUPS & MEMBERSHIPS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) PutGroup(ctx context.Context, group *social.Group) error {
	if err := group.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *group
	s.st.groups[group.ID] = &cp
	return nil
}

func (s *Store) GetGroup(ctx context.Context, groupID string) (*social.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.st.groups[groupID]
	if !ok {
		return nil, shared.ErrGroupNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]*social.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*social.Group, 0, len(s.st.groups))
	for _, g := range s.st.groups {
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) InsertMembershipIfAbsent(ctx context.Context, m social.Membership) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.groups[m.GroupID]; !ok {
		return false, shared.ErrGroupNotFound
	}
	key := membershipKey(m.GroupID, m.UserID)
	if _, ok := s.st.memberships[key]; ok {
		return false, nil
	}
	s.st.memberships[key] = m
	return true, nil
}

func (s *Store) GetMembership(ctx context.Context, groupID, userID string) (*social.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.st.memberships[membershipKey(groupID, userID)]
	if !ok {
		return nil, shared.ErrMembershipNotFound
	}
	return &m, nil
}

func (s *Store) SwapMembershipStatus(ctx context.Context, groupID, userID string, from, to social.MembershipStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := membershipKey(groupID, userID)
	m, ok := s.st.memberships[key]
	if !ok || m.Status != from {
		return false, nil
	}
	m.Status = to
	m.UpdatedAt = at.UTC()
	s.st.memberships[key] = m
	return true, nil
}

func (s *Store) UpsertMembership(ctx context.Context, m social.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.groups[m.GroupID]; !ok {
		return shared.ErrGroupNotFound
	}
	s.st.memberships[membershipKey(m.GroupID, m.UserID)] = m
	return nil
}

func (s *Store) DeleteMembership(ctx context.Context, groupID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := membershipKey(groupID, userID)
	if _, ok := s.st.memberships[key]; !ok {
		return false, nil
	}
	delete(s.st.memberships, key)
	return true, nil
}

func (s *Store) ListMembers(ctx context.Context, groupID string) ([]social.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []social.Membership
	for _, m := range s.st.memberships {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) DeleteGroup(ctx context.Context, groupID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.groups[groupID]; !ok {
		return 0, shared.ErrGroupNotFound
	}
	removed := 0
	for key, m := range s.st.memberships {
		if m.GroupID == groupID {
			delete(s.st.memberships, key)
			removed++
		}
	}
	delete(s.st.groups, groupID)
	return removed, nil
}
