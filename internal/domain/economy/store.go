package economy

import (
	"context"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/account"
	"github.com/alem-hub/xp-economy/internal/domain/social"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE INTERFACES
// Логика конечных автоматов пишется один раз поверх этих интерфейсов.
// Каждая реализация (memory, postgres) отвечает за атомарность отдельных
// операций и за транзакции WithinTx.
// ══════════════════════════════════════════════════════════════════════════════

// AccountStore - аккаунты и серии входов.
type AccountStore interface {
	// CreateAccount создаёт аккаунт или возвращает ErrAccountAlreadyExists.
	CreateAccount(ctx context.Context, acc *account.Account) error

	// GetAccount возвращает аккаунт или ErrAccountNotFound.
	GetAccount(ctx context.Context, id string) (*account.Account, error)

	// ListAccounts возвращает все аккаунты, упорядоченные по ID.
	ListAccounts(ctx context.Context) ([]*account.Account, error)

	// TopAccounts возвращает limit аккаунтов с наибольшим XP (при равенстве - по ID).
	TopAccounts(ctx context.Context, limit int) ([]*account.Account, error)

	// UpdateProfile меняет имя и роль; баланс и серия не затрагиваются.
	UpdateProfile(ctx context.Context, id, displayName string, role account.Role) (*account.Account, error)

	// RecordLogin сохраняет новую серию, только если last_login_date всё ещё равна expected.
	// Возвращает ErrStreakAlreadyCounted, если другая сессия успела раньше.
	RecordLogin(ctx context.Context, id string, expected *time.Time, streak int, lastLogin time.Time) error
}

// Ledger - единственный способ изменить баланс XP.
type Ledger interface {
	// Credit начисляет amount > 0 и возвращает новый баланс.
	Credit(ctx context.Context, accountID string, amount int64, cause Cause) (int64, error)

	// Debit атомарно списывает amount > 0, если баланс не меньше amount.
	// Иначе возвращает ErrInsufficientXP, баланс не меняется.
	Debit(ctx context.Context, accountID string, amount int64, cause Cause) (int64, error)

	// ListLedger возвращает журнал аккаунта, новые записи первыми.
	ListLedger(ctx context.Context, accountID string, limit int) ([]LedgerEntry, error)
}

// CompletionStore - факты завершения.
type CompletionStore interface {
	// InsertCompletion вставляет запись или возвращает ErrAlreadyCompleted.
	InsertCompletion(ctx context.Context, rec CompletionRecord) error

	// ListCompletions возвращает завершения аккаунта.
	ListCompletions(ctx context.Context, accountID string) ([]CompletionRecord, error)
}

// CatalogStore - каталог активностей, наград и бейджей.
type CatalogStore interface {
	PutActivity(ctx context.Context, a *Activity) error
	GetActivity(ctx context.Context, kind ActivityKind, id string) (*Activity, error)
	ListActivities(ctx context.Context, kind ActivityKind) ([]*Activity, error)

	PutReward(ctx context.Context, r *Reward) error
	GetReward(ctx context.Context, id string) (*Reward, error)
	// ListRewards возвращает награды по возрастанию стоимости.
	ListRewards(ctx context.Context) ([]*Reward, error)
	// DeleteReward удаляет награду или возвращает ErrRewardInUse, если на неё есть обмены.
	DeleteReward(ctx context.Context, id string) error

	PutBadge(ctx context.Context, b *Badge) error
	GetBadge(ctx context.Context, id string) (*Badge, error)
}

// BadgeStore - выданные бейджи.
type BadgeStore interface {
	// AwardBadge выдаёт бейдж; повторная выдача возвращает false без ошибки.
	AwardBadge(ctx context.Context, ab AccountBadge) (bool, error)

	// ListAccountBadges возвращает бейджи аккаунта.
	ListAccountBadges(ctx context.Context, accountID string) ([]Badge, error)
}

// RedemptionStore - обмены XP на награды.
type RedemptionStore interface {
	InsertRedemption(ctx context.Context, r *Redemption) error

	// GetRedemption возвращает обмен или ErrRedemptionNotFound.
	GetRedemption(ctx context.Context, id string) (*Redemption, error)

	// CompleteRedemption переводит Pending -> Completed. false, если уже Completed.
	CompleteRedemption(ctx context.Context, id string, at time.Time) (bool, error)

	// ListRedemptions возвращает обмены, новые первыми.
	ListRedemptions(ctx context.Context, filter RedemptionFilter) ([]*Redemption, error)
}

// Store - полная возможность хранилища экономики. Одна реализация на бэкенд.
type Store interface {
	AccountStore
	Ledger
	CompletionStore
	CatalogStore
	BadgeStore
	RedemptionStore
	social.ConnectionStore
	social.MembershipStore

	// Counts возвращает агрегаты для аналитики.
	Counts(ctx context.Context) (Counts, error)

	// WithinTx выполняет fn в одной транзакции: либо применяются все изменения, либо ни одно.
	// Store, переданный в fn, действует внутри транзакции; вложенные вызовы переиспользуют её.
	WithinTx(ctx context.Context, fn func(tx Store) error) error

	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
}
