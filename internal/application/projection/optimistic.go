// Package projection содержит локальные проекции авторитетного состояния.
package projection

import (
	"context"
	"sync"
)

// ══════════════════════════════════════════════════════════════════════════════
// OPTIMISTIC PROJECTION
// Слой "ожидаемых" значений поверх последнего известного авторитетного
// состояния. Ожидаемое значение видно сразу, но никогда не считается
// сохранённым: при ошибке вызова оно откатывается, при успехе заменяется
// ответом сервера, а полное обновление (Refresh) сбрасывает весь слой.
// ══════════════════════════════════════════════════════════════════════════════

// Optimistic - проекция значений V по ключам K.
type Optimistic[K comparable, V any] struct {
	mu            sync.RWMutex
	authoritative map[K]V
	pending       map[K]pendingValue[V]
	seq           uint64
	// committed - номер последнего Apply, записавшего ключ.
	committed map[K]uint64
	// floor - номер последнего Apply на момент Refresh; более ранние ответы устарели.
	floor uint64
}

type pendingValue[V any] struct {
	value V
	seq   uint64
}

// NewOptimistic создаёт пустую проекцию.
func NewOptimistic[K comparable, V any]() *Optimistic[K, V] {
	return &Optimistic[K, V]{
		authoritative: make(map[K]V),
		pending:       make(map[K]pendingValue[V]),
		committed:     make(map[K]uint64),
	}
}

// Refresh заменяет авторитетное состояние полным снимком и сбрасывает ожидания.
func (o *Optimistic[K, V]) Refresh(snapshot map[K]V) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.authoritative = make(map[K]V, len(snapshot))
	for k, v := range snapshot {
		o.authoritative[k] = v
	}
	o.pending = make(map[K]pendingValue[V])
	o.committed = make(map[K]uint64)
	o.floor = o.seq
}

// Apply показывает expected для key, пока выполняется call.
// Успех фиксирует ответ call как авторитетный, если более поздний Apply
// на тот же key ещё не зафиксирован; ошибка откатывает key к авторитетному
// значению. Более поздний Apply на тот же key побеждает независимо от того,
// в каком порядке пришли ответы.
func (o *Optimistic[K, V]) Apply(ctx context.Context, key K, expected V, call func(ctx context.Context) (V, error)) (V, error) {
	o.mu.Lock()
	o.seq++
	seq := o.seq
	o.pending[key] = pendingValue[V]{value: expected, seq: seq}
	o.mu.Unlock()

	result, err := call(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.pending[key]; ok && p.seq == seq {
		delete(o.pending, key)
	}
	if err != nil {
		var zero V
		return zero, err
	}
	if seq > o.floor && seq > o.committed[key] {
		o.authoritative[key] = result
		o.committed[key] = seq
	}
	return result, nil
}

// Get возвращает видимое значение: ожидаемое, если оно есть, иначе авторитетное.
func (o *Optimistic[K, V]) Get(key K) (V, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if p, ok := o.pending[key]; ok {
		return p.value, true
	}
	v, ok := o.authoritative[key]
	return v, ok
}

// Authoritative возвращает последнее подтверждённое значение.
func (o *Optimistic[K, V]) Authoritative(key K) (V, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	v, ok := o.authoritative[key]
	return v, ok
}

// IsPending - есть ли неподтверждённое значение для key.
func (o *Optimistic[K, V]) IsPending(key K) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	_, ok := o.pending[key]
	return ok
}

// View возвращает копию видимого состояния.
func (o *Optimistic[K, V]) View() map[K]V {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[K]V, len(o.authoritative)+len(o.pending))
	for k, v := range o.authoritative {
		out[k] = v
	}
	for k, p := range o.pending {
		out[k] = p.value
	}
	return out
}
