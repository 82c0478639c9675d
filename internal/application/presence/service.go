// Package presence - единый на процесс сервис присутствия.
// Все представления (админская аналитика, бейдж "онлайн" в списке участников)
// читают одно и то же состояние канала и подписываются на его изменения,
// а не ведут собственные трекеры.
package presence

import (
	"sort"
	"sync"

	"github.com/alem-hub/xp-economy/internal/domain/presence"
	"github.com/alem-hub/xp-economy/pkg/logger"
)

// DefaultChannel - канал присутствия по умолчанию.
const DefaultChannel = "online"

// Change - уведомление подписчику после изменения множества канала.
type Change struct {
	Channel string
	Online  []string
	Signal  presence.SignalType
}

// Observer получает изменения. Вызывается вне блокировок сервиса.
type Observer func(Change)

// Service хранит множества присутствия по каналам.
// Множество канала создаётся при первом сигнале и никогда не является источником истины.
type Service struct {
	mu        sync.RWMutex
	channels  map[string]*presence.Set
	observers map[int]Observer
	nextID    int
	log       *logger.Logger
}

// NewService создаёт пустой сервис.
func NewService(log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		channels:  make(map[string]*presence.Set),
		observers: make(map[int]Observer),
		log:       log.With(logger.Component("presence")),
	}
}

// Apply применяет сигнал канала. Подписчики уведомляются только если множество изменилось.
func (s *Service) Apply(sig presence.Signal) bool {
	if sig.Channel == "" {
		sig.Channel = DefaultChannel
	}

	s.mu.Lock()
	set, ok := s.channels[sig.Channel]
	if !ok {
		set = presence.NewSet()
		s.channels[sig.Channel] = set
	}
	changed := set.Apply(sig)
	var (
		online    []string
		observers []Observer
	)
	if changed {
		online = set.IDs()
		observers = s.snapshotObservers()
	}
	s.mu.Unlock()

	if changed {
		s.log.Debug("presence changed",
			logger.Channel(sig.Channel),
			logger.String("signal", string(sig.Type)),
			logger.Int("online", len(online)),
		)
		change := Change{Channel: sig.Channel, Online: online, Signal: sig.Type}
		for _, obs := range observers {
			obs(change)
		}
	}
	return changed
}

// Sync заменяет множество канала снимком.
func (s *Service) Sync(channel string, entries []presence.Entry) bool {
	return s.Apply(presence.Signal{Type: presence.SignalSync, Channel: channel, Entries: entries})
}

// Join отмечает аккаунт онлайн.
func (s *Service) Join(channel string, entry presence.Entry) bool {
	return s.Apply(presence.Signal{Type: presence.SignalJoin, Channel: channel, Entry: &entry})
}

// Leave отмечает аккаунт офлайн.
func (s *Service) Leave(channel, accountID string) bool {
	return s.Apply(presence.Signal{Type: presence.SignalLeave, Channel: channel, AccountID: accountID})
}

// Snapshot возвращает отсортированный список аккаунтов онлайн. Неизвестный канал пуст.
func (s *Service) Snapshot(channel string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.channels[channel]
	if !ok {
		return []string{}
	}
	return set.IDs()
}

// Entries возвращает записи канала.
func (s *Service) Entries(channel string) []presence.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.channels[channel]
	if !ok {
		return nil
	}
	return set.Entries()
}

// Count - число аккаунтов онлайн в канале.
func (s *Service) Count(channel string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if set, ok := s.channels[channel]; ok {
		return set.Len()
	}
	return 0
}

// IsOnline - онлайн ли аккаунт в канале.
func (s *Service) IsOnline(channel, accountID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.channels[channel]
	return ok && set.Contains(accountID)
}

// Subscribe регистрирует наблюдателя. Возвращает функцию отписки.
func (s *Service) Subscribe(obs Observer) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = obs
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// snapshotObservers копирует подписчиков в порядке подписки. Вызывается под mu.
func (s *Service) snapshotObservers() []Observer {
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Observer, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.observers[id])
	}
	return out
}
