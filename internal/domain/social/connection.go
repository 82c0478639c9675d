// Package social содержит доменную модель отношений между участниками:
// попарные связи (connection) и членство в учебных группах (membership).
// Переходы состояний описаны здесь один раз; атомарность обеспечивает хранилище
// через уникальные ключи и compare-and-swap.
package social

import (
	"strings"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAIR
// ══════════════════════════════════════════════════════════════════════════════

// Pair - неупорядоченная пара аккаунтов в каноническом порядке (UserA < UserB).
type Pair struct {
	UserA string
	UserB string
}

// NewPair строит каноническую пару. Пара с самим собой недопустима.
func NewPair(a, b string) (Pair, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return Pair{}, shared.NewDomainError("connection", "Validate", shared.ErrInvalidID, "both account ids are required")
	}
	if a == b {
		return Pair{}, shared.ErrSelfConnection
	}
	if b < a {
		a, b = b, a
	}
	return Pair{UserA: a, UserB: b}, nil
}

// Contains - входит ли аккаунт в пару.
func (p Pair) Contains(id string) bool {
	return p.UserA == id || p.UserB == id
}

// Other возвращает второго участника пары.
func (p Pair) Other(id string) string {
	if p.UserA == id {
		return p.UserB
	}
	return p.UserA
}

// Key - строковый ключ пары.
func (p Pair) Key() string {
	return p.UserA + ":" + p.UserB
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION
// ══════════════════════════════════════════════════════════════════════════════

// ConnectionStatus - хранимый статус связи. Отклонённого статуса нет:
// отклонение удаляет запись.
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
)

// Connection - связь между двумя аккаунтами. Не более одной на пару.
type Connection struct {
	Pair
	Status ConnectionStatus
	// ActionUserID - кто совершил последнее изменяющее действие.
	ActionUserID string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewRequest создаёт запрос на связь от from к to.
func NewRequest(from, to string, now time.Time) (*Connection, error) {
	pair, err := NewPair(from, to)
	if err != nil {
		return nil, err
	}
	at := now.UTC()
	return &Connection{
		Pair:         pair,
		Status:       ConnectionPending,
		ActionUserID: strings.TrimSpace(from),
		CreatedAt:    at,
		UpdatedAt:    at,
	}, nil
}

// Accept возвращает новое состояние после принятия запроса участником accepter.
// Принять можно только Pending и только не свой собственный запрос.
func (c *Connection) Accept(accepter string, now time.Time) (*Connection, error) {
	if c.Status != ConnectionPending {
		return nil, shared.ErrNotPending
	}
	if !c.Contains(accepter) {
		return nil, shared.ErrNotParticipant
	}
	if c.ActionUserID == accepter {
		return nil, shared.ErrOwnRequest
	}
	next := *c
	next.Status = ConnectionAccepted
	next.ActionUserID = accepter
	next.UpdatedAt = now.UTC()
	return &next, nil
}

// ForceAccept - административное принятие любого Pending запроса.
// Правило "нельзя принять свой запрос" не действует; ActionUserID не меняется.
func (c *Connection) ForceAccept(now time.Time) (*Connection, error) {
	if c.Status != ConnectionPending {
		return nil, shared.ErrNotPending
	}
	next := *c
	next.Status = ConnectionAccepted
	next.UpdatedAt = now.UTC()
	return &next, nil
}

// Equal сравнивает состояние, по которому хранилище делает compare-and-swap.
func (c *Connection) Equal(other *Connection) bool {
	return other != nil &&
		c.Pair == other.Pair &&
		c.Status == other.Status &&
		c.ActionUserID == other.ActionUserID
}

// ══════════════════════════════════════════════════════════════════════════════
// VIEWER STATUS
// ══════════════════════════════════════════════════════════════════════════════

// ViewerStatus - статус связи с точки зрения конкретного наблюдателя.
type ViewerStatus string

const (
	StatusNotConnected    ViewerStatus = "not_connected"
	StatusPendingSent     ViewerStatus = "pending_sent"
	StatusPendingReceived ViewerStatus = "pending_received"
	StatusConnected       ViewerStatus = "connected"
)

// StatusFor вычисляет статус для viewer. Nil связь означает отсутствие отношений.
func StatusFor(c *Connection, viewer string) ViewerStatus {
	if c == nil || !c.Contains(viewer) {
		return StatusNotConnected
	}
	if c.Status == ConnectionAccepted {
		return StatusConnected
	}
	if c.ActionUserID == viewer {
		return StatusPendingSent
	}
	return StatusPendingReceived
}
