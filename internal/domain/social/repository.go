package social

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Хранилище обязано выполнять каждую операцию атомарно: уникальные ключи
// вместо проверки "прочитать и вставить", compare-and-swap вместо
// "прочитать и обновить".
// ══════════════════════════════════════════════════════════════════════════════

// ConnectionStore - операции со связями.
type ConnectionStore interface {
	// InsertConnection создаёт связь.
	// Возвращает ErrConnectionExists, если для пары уже есть запись в любом статусе.
	InsertConnection(ctx context.Context, conn *Connection) error

	// GetConnection возвращает связь пары или ErrConnectionNotFound.
	GetConnection(ctx context.Context, pair Pair) (*Connection, error)

	// SwapConnection заменяет prev на next, только если хранимая запись всё ещё равна prev.
	// Возвращает ErrConnectionChanged, если запись изменилась или исчезла.
	SwapConnection(ctx context.Context, prev, next *Connection) error

	// DeleteConnection удаляет запись пары; false, если её не было.
	DeleteConnection(ctx context.Context, pair Pair) (bool, error)

	// DeleteConnectionIf удаляет запись, только если она всё ещё равна prev.
	// Возвращает ErrConnectionChanged, если запись изменилась или исчезла.
	DeleteConnectionIf(ctx context.Context, prev *Connection) error

	// ListConnections возвращает все связи аккаунта.
	ListConnections(ctx context.Context, accountID string) ([]*Connection, error)

	// ListPendingConnections возвращает все ожидающие связи (для администратора).
	ListPendingConnections(ctx context.Context) ([]*Connection, error)
}

// MembershipStore - операции с группами и членством.
type MembershipStore interface {
	// PutGroup создаёт или обновляет группу.
	PutGroup(ctx context.Context, group *Group) error

	// GetGroup возвращает группу или ErrGroupNotFound.
	GetGroup(ctx context.Context, groupID string) (*Group, error)

	// ListGroups возвращает все группы.
	ListGroups(ctx context.Context) ([]*Group, error)

	// InsertMembershipIfAbsent вставляет запись, если её нет. true - если вставлена.
	InsertMembershipIfAbsent(ctx context.Context, m Membership) (bool, error)

	// GetMembership возвращает запись или ErrMembershipNotFound.
	GetMembership(ctx context.Context, groupID, userID string) (*Membership, error)

	// SwapMembershipStatus меняет статус from -> to, только если текущий статус равен from.
	SwapMembershipStatus(ctx context.Context, groupID, userID string, from, to MembershipStatus, at time.Time) (bool, error)

	// UpsertMembership устанавливает запись независимо от предыдущего состояния.
	UpsertMembership(ctx context.Context, m Membership) error

	// DeleteMembership удаляет запись из любого состояния; false, если её не было.
	DeleteMembership(ctx context.Context, groupID, userID string) (bool, error)

	// ListMembers возвращает записи группы.
	ListMembers(ctx context.Context, groupID string) ([]Membership, error)

	// DeleteGroup удаляет группу и все её записи членства как одну операцию.
	// Возвращает число удалённых записей членства или ErrGroupNotFound.
	DeleteGroup(ctx context.Context, groupID string) (int, error)
}
