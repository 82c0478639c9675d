package account

import (
	"time"

	"github.com/alem-hub/xp-economy/pkg/timeutil"
)

// NextStreak вычисляет новую серию входов. Сравниваются только календарные дни:
// lastLogin читается в своей локации, today - в локации вызывающего.
//
//   - тот же день          -> серия без изменений
//   - ровно вчера          -> серия + 1
//   - разрыв или первый вход -> 1
//
// Возвращаемая дата - календарный день today (полночь UTC).
func NextStreak(lastLogin *time.Time, currentStreak int, today time.Time) (int, time.Time) {
	todayDay := timeutil.DayOf(today)
	if lastLogin == nil || lastLogin.IsZero() {
		return 1, todayDay.Date()
	}

	switch timeutil.DaysBetween(timeutil.DayOf(*lastLogin), todayDay) {
	case 0:
		return currentStreak, todayDay.Date()
	case 1:
		return currentStreak + 1, todayDay.Date()
	default:
		// Включая lastLogin "из будущего": считаем серию заново.
		return 1, todayDay.Date()
	}
}

// LoginRecorded сообщает, был ли вход уже учтён в этот календарный день.
func (a *Account) LoginRecorded(today time.Time) bool {
	if a.LastLoginDate == nil {
		return false
	}
	return timeutil.DayOf(*a.LastLoginDate).Equal(timeutil.DayOf(today))
}
