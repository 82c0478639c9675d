package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/economy"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/internal/domain/social"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTIONS QUERY
// Список участников со статусом связи относительно наблюдателя
// и админский список ожидающих запросов.
// ══════════════════════════════════════════════════════════════════════════════

// PeerDTO - другой участник и статус связи с ним.
type PeerDTO struct {
	AccountDTO
	Status social.ViewerStatus `json:"connection_status"`
}

// ConnectionDTO - связь для админского просмотра.
type ConnectionDTO struct {
	UserA        string    `json:"user_a"`
	UserB        string    `json:"user_b"`
	Status       string    `json:"status"`
	ActionUserID string    `json:"action_user_id"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SocialQueries - запросы по связям и группам.
type SocialQueries struct {
	store    economy.Store
	presence PresenceReader
	channel  string
}

// NewSocialQueries создаёт набор запросов. presence может быть nil.
func NewSocialQueries(store economy.Store, presence PresenceReader, channel string) *SocialQueries {
	if presence == nil {
		presence = noPresence{}
	}
	return &SocialQueries{store: store, presence: presence, channel: channel}
}

// ConnectionStatus возвращает статус пары (viewer, other) относительно viewer.
func (q *SocialQueries) ConnectionStatus(ctx context.Context, viewer, other string) (social.ViewerStatus, error) {
	pair, err := social.NewPair(viewer, other)
	if err != nil {
		return "", err
	}
	conn, err := q.store.GetConnection(ctx, pair)
	if err != nil {
		if shared.IsNotFound(err) {
			return social.StatusNotConnected, nil
		}
		return "", err
	}
	return social.StatusFor(conn, viewer), nil
}

// ListAccountsWithStatus возвращает всех остальных участников со статусом связи.
func (q *SocialQueries) ListAccountsWithStatus(ctx context.Context, viewer string) ([]PeerDTO, error) {
	accounts, err := q.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	conns, err := q.store.ListConnections(ctx, viewer)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	byPeer := make(map[string]*social.Connection, len(conns))
	for _, c := range conns {
		byPeer[c.Other(viewer)] = c
	}

	peers := make([]PeerDTO, 0, len(accounts))
	for _, acc := range accounts {
		if acc.ID == viewer {
			continue
		}
		peers = append(peers, PeerDTO{
			AccountDTO: NewAccountDTO(acc, q.presence.IsOnline(q.channel, acc.ID)),
			Status:     social.StatusFor(byPeer[acc.ID], viewer),
		})
	}
	return peers, nil
}

// ListPendingConnections - все ожидающие запросы (для админа).
func (q *SocialQueries) ListPendingConnections(ctx context.Context) ([]ConnectionDTO, error) {
	conns, err := q.store.ListPendingConnections(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ConnectionDTO, 0, len(conns))
	for _, c := range conns {
		out = append(out, ConnectionDTO{
			UserA:        c.UserA,
			UserB:        c.UserB,
			Status:       string(c.Status),
			ActionUserID: c.ActionUserID,
			UpdatedAt:    c.UpdatedAt,
		})
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUPS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GroupDTO - группа и статус наблюдателя в ней ("" если записи нет).
type GroupDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Icon         string `json:"icon,omitempty"`
	Members      int    `json:"members"`
	ViewerStatus string `json:"viewer_status,omitempty"`
}

// MemberDTO - участник группы.
type MemberDTO struct {
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	IsOnline  bool      `json:"is_online"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListGroups возвращает группы с числом участников и статусом viewer.
func (q *SocialQueries) ListGroups(ctx context.Context, viewer string) ([]GroupDTO, error) {
	groups, err := q.store.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]GroupDTO, 0, len(groups))
	for _, g := range groups {
		members, err := q.store.ListMembers(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list members of %s: %w", g.ID, err)
		}
		dto := GroupDTO{ID: g.ID, Name: g.Name, Description: g.Description, Icon: g.Icon}
		for _, m := range members {
			if m.Status == social.MembershipMember {
				dto.Members++
			}
			if m.UserID == viewer {
				dto.ViewerStatus = string(m.Status)
			}
		}
		out = append(out, dto)
	}
	return out, nil
}

// ListMembers возвращает все записи группы, включая заявки.
func (q *SocialQueries) ListMembers(ctx context.Context, groupID string) ([]MemberDTO, error) {
	if _, err := q.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	members, err := q.store.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := make([]MemberDTO, 0, len(members))
	for _, m := range members {
		out = append(out, MemberDTO{
			UserID:    m.UserID,
			Status:    string(m.Status),
			IsOnline:  q.presence.IsOnline(q.channel, m.UserID),
			UpdatedAt: m.UpdatedAt,
		})
	}
	return out, nil
}
