// Package economy содержит доменную модель экономики XP:
// факты завершения курсов и мероприятий, каталог наград и бейджей,
// записи леджера и жизненный цикл обмена XP на награды.
package economy

import (
	"strings"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY KIND
// ══════════════════════════════════════════════════════════════════════════════

// ActivityKind - вид активности, за которую начисляется XP.
type ActivityKind string

const (
	KindCourse ActivityKind = "course"
	KindEvent  ActivityKind = "event"
)

// IsValid проверяет вид активности.
func (k ActivityKind) IsValid() bool {
	return k == KindCourse || k == KindEvent
}

// ParseKind разбирает вид активности из строки.
func ParseKind(s string) (ActivityKind, error) {
	k := ActivityKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", shared.ErrInvalidKind
	}
	return k, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY (каталог курсов и мероприятий)
// ══════════════════════════════════════════════════════════════════════════════

// Activity - курс или мероприятие из каталога. Управляется администраторами.
type Activity struct {
	ID       string
	Kind     ActivityKind
	Title    string
	XPReward int64
	// BadgeID - бейдж, выдаваемый за завершение курса. Пусто - без бейджа.
	BadgeID string
}

// Validate проверяет запись каталога.
func (a *Activity) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return shared.NewDomainError("catalog", "Validate", shared.ErrInvalidID, "activity id is required")
	}
	if !a.Kind.IsValid() {
		return shared.ErrInvalidKind
	}
	if a.XPReward <= 0 {
		return shared.NewDomainError("catalog", "Validate", shared.ErrValueOutOfRange, "xp reward must be positive")
	}
	return nil
}

// AwardsBadge - бейдж выдаётся только за курсы с настроенным бейджем.
func (a *Activity) AwardsBadge() bool {
	return a.Kind == KindCourse && a.BadgeID != ""
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION RECORD
// ══════════════════════════════════════════════════════════════════════════════

// CompletionRecord - единственное доказательство завершения активности.
// Создаётся один раз на (AccountID, ActivityID, Kind), никогда не меняется и не удаляется.
type CompletionRecord struct {
	AccountID   string
	ActivityID  string
	Kind        ActivityKind
	CompletedAt time.Time
}

// NewCompletionRecord создаёт запись о завершении.
func NewCompletionRecord(accountID, activityID string, kind ActivityKind, now time.Time) (CompletionRecord, error) {
	rec := CompletionRecord{
		AccountID:   strings.TrimSpace(accountID),
		ActivityID:  strings.TrimSpace(activityID),
		Kind:        kind,
		CompletedAt: now.UTC(),
	}
	if rec.AccountID == "" || rec.ActivityID == "" {
		return CompletionRecord{}, shared.NewDomainError("completion", "Validate", shared.ErrInvalidID, "account and activity ids are required")
	}
	if !kind.IsValid() {
		return CompletionRecord{}, shared.ErrInvalidKind
	}
	return rec, nil
}

// Key - составной ключ уникальности записи.
func (r CompletionRecord) Key() string {
	return r.AccountID + "|" + string(r.Kind) + "|" + r.ActivityID
}

// ReferenceID - ссылка на причину начисления для леджера.
func (r CompletionRecord) ReferenceID() string {
	return string(r.Kind) + ":" + r.ActivityID
}

// CompletionOutcome - результат recordCompletion.
type CompletionOutcome string

const (
	OutcomeAwarded          CompletionOutcome = "awarded"
	OutcomeAlreadyCompleted CompletionOutcome = "already_completed"
	OutcomeFailed           CompletionOutcome = "failed"
)
