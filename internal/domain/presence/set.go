// Package presence описывает эфемерное множество аккаунтов онлайн.
// Множество не хранится и не является источником истины: оно
// перестраивается каждым sync и корректируется сигналами join/leave.
package presence

import (
	"sort"
	"time"
)

// SignalType - тип сигнала широковещательного канала.
type SignalType string

const (
	SignalSync  SignalType = "sync"
	SignalJoin  SignalType = "join"
	SignalLeave SignalType = "leave"
)

// Entry - последний известный признак жизни аккаунта.
type Entry struct {
	AccountID string    `json:"account_id"`
	Token     string    `json:"token"`
	SeenAt    time.Time `json:"seen_at"`
}

// Signal - сообщение канала присутствия.
// Для sync заполнен Entries (полный снимок), для join - Entry, для leave - AccountID.
type Signal struct {
	Type      SignalType `json:"type"`
	Channel   string     `json:"channel"`
	Entries   []Entry    `json:"entries,omitempty"`
	Entry     *Entry     `json:"entry,omitempty"`
	AccountID string     `json:"account_id,omitempty"`
}

// Set - состояние одного канала: accountID -> Entry.
// Не потокобезопасен; синхронизацию обеспечивает владелец.
type Set struct {
	entries map[string]Entry
}

// NewSet создаёт пустое множество.
func NewSet() *Set {
	return &Set{entries: make(map[string]Entry)}
}

// Sync полностью заменяет состояние снимком.
func (s *Set) Sync(entries []Entry) {
	s.entries = make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.AccountID == "" {
			continue
		}
		s.entries[e.AccountID] = e
	}
}

// Join добавляет или обновляет запись. Возвращает true, если аккаунт был офлайн.
func (s *Set) Join(e Entry) bool {
	if e.AccountID == "" {
		return false
	}
	_, existed := s.entries[e.AccountID]
	s.entries[e.AccountID] = e
	return !existed
}

// Leave удаляет аккаунт. Возвращает true, если он был онлайн.
func (s *Set) Leave(accountID string) bool {
	if _, ok := s.entries[accountID]; !ok {
		return false
	}
	delete(s.entries, accountID)
	return true
}

// Apply применяет сигнал и сообщает, изменилось ли множество.
func (s *Set) Apply(sig Signal) bool {
	switch sig.Type {
	case SignalSync:
		before := s.IDs()
		s.Sync(sig.Entries)
		return !equalIDs(before, s.IDs())
	case SignalJoin:
		if sig.Entry == nil {
			return false
		}
		return s.Join(*sig.Entry)
	case SignalLeave:
		return s.Leave(sig.AccountID)
	}
	return false
}

// Contains - онлайн ли аккаунт.
func (s *Set) Contains(accountID string) bool {
	_, ok := s.entries[accountID]
	return ok
}

// Len - число аккаунтов онлайн.
func (s *Set) Len() int {
	return len(s.entries)
}

// IDs возвращает отсортированный список аккаунтов онлайн.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entries возвращает копию записей, отсортированную по AccountID.
func (s *Set) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, id := range s.IDs() {
		out = append(out, s.entries[id])
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
