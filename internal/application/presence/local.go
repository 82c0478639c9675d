package presence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/xp-economy/internal/domain/presence"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

// ErrAccountRequired - сигнал без аккаунта.
var ErrAccountRequired = shared.NewDomainError("presence", "Signal", shared.ErrInvalidID, "account id is required")

// Local применяет сигналы напрямую к сервису своего процесса.
// Используется, когда Redis не настроен и процесс один.
type Local struct {
	service *Service
	now     func() time.Time
}

// NewLocal создаёт локальный канал поверх service.
func NewLocal(service *Service) *Local {
	return &Local{service: service, now: time.Now}
}

// Join отмечает аккаунт онлайн. Пустой токен заменяется новым.
func (l *Local) Join(_ context.Context, channel, accountID, token string) (presence.Entry, error) {
	if accountID == "" {
		return presence.Entry{}, ErrAccountRequired
	}
	if token == "" {
		token = uuid.NewString()
	}
	entry := presence.Entry{AccountID: accountID, Token: token, SeenAt: l.now().UTC()}
	l.service.Join(channel, entry)
	return entry, nil
}

// Leave убирает аккаунт из канала.
func (l *Local) Leave(_ context.Context, channel, accountID string) error {
	if accountID == "" {
		return ErrAccountRequired
	}
	l.service.Leave(channel, accountID)
	return nil
}
