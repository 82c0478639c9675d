package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each one is published after the store has
// committed the transition it describes.
const (
	// Economy events
	EventCompletionRecorded  EventType = "economy.completion_recorded"
	EventXPCredited          EventType = "economy.xp_credited"
	EventXPDebited           EventType = "economy.xp_debited"
	EventBadgeAwarded        EventType = "economy.badge_awarded"
	EventRewardRedeemed      EventType = "economy.reward_redeemed"
	EventRedemptionFulfilled EventType = "economy.redemption_fulfilled"
	EventStreakUpdated       EventType = "economy.streak_updated"

	// Relationship events
	EventConnectionRequested EventType = "social.connection_requested"
	EventConnectionAccepted  EventType = "social.connection_accepted"
	EventConnectionRemoved   EventType = "social.connection_removed"
	EventMembershipChanged   EventType = "social.membership_changed"
	EventGroupDeleted        EventType = "social.group_deleted"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Economy Events
// ═══════════════════════════════════════════════════════════════════════════

// CompletionRecordedEvent is emitted when a completion record is inserted.
type CompletionRecordedEvent struct {
	BaseEvent
	ActivityID string `json:"activity_id"`
	Kind       string `json:"kind"`
}

func (e CompletionRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"account_id":  e.AggregateId,
		"activity_id": e.ActivityID,
		"kind":        e.Kind,
	}
}

func NewCompletionRecordedEvent(accountID, activityID, kind string) CompletionRecordedEvent {
	return CompletionRecordedEvent{
		BaseEvent:  NewBaseEvent(EventCompletionRecorded, accountID),
		ActivityID: activityID,
		Kind:       kind,
	}
}

// BalanceChangedEvent is emitted for every credit and debit.
type BalanceChangedEvent struct {
	BaseEvent
	Delta       int64  `json:"delta"`
	NewBalance  int64  `json:"new_balance"`
	Reason      string `json:"reason"`
	ReferenceID string `json:"reference_id"`
}

func (e BalanceChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"account_id":   e.AggregateId,
		"delta":        e.Delta,
		"new_balance":  e.NewBalance,
		"reason":       e.Reason,
		"reference_id": e.ReferenceID,
	}
}

// NewBalanceChangedEvent picks credited or debited by the sign of delta.
func NewBalanceChangedEvent(accountID string, delta, newBalance int64, reason, referenceID string) BalanceChangedEvent {
	eventType := EventXPCredited
	if delta < 0 {
		eventType = EventXPDebited
	}
	return BalanceChangedEvent{
		BaseEvent:   NewBaseEvent(eventType, accountID),
		Delta:       delta,
		NewBalance:  newBalance,
		Reason:      reason,
		ReferenceID: referenceID,
	}
}

// BadgeAwardedEvent is emitted only when a badge is newly granted.
type BadgeAwardedEvent struct {
	BaseEvent
	BadgeID string `json:"badge_id"`
}

func (e BadgeAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"account_id": e.AggregateId,
		"badge_id":   e.BadgeID,
	}
}

func NewBadgeAwardedEvent(accountID, badgeID string) BadgeAwardedEvent {
	return BadgeAwardedEvent{
		BaseEvent: NewBaseEvent(EventBadgeAwarded, accountID),
		BadgeID:   badgeID,
	}
}

// RedemptionEvent covers both the redeem and the fulfil transitions.
type RedemptionEvent struct {
	BaseEvent
	AccountID string `json:"account_id"`
	RewardID  string `json:"reward_id"`
	Status    string `json:"status"`
}

func (e RedemptionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"redemption_id": e.AggregateId,
		"account_id":    e.AccountID,
		"reward_id":     e.RewardID,
		"status":        e.Status,
	}
}

func NewRewardRedeemedEvent(redemptionID, accountID, rewardID string) RedemptionEvent {
	return RedemptionEvent{
		BaseEvent: NewBaseEvent(EventRewardRedeemed, redemptionID),
		AccountID: accountID,
		RewardID:  rewardID,
		Status:    "pending",
	}
}

func NewRedemptionFulfilledEvent(redemptionID, accountID, rewardID string) RedemptionEvent {
	return RedemptionEvent{
		BaseEvent: NewBaseEvent(EventRedemptionFulfilled, redemptionID),
		AccountID: accountID,
		RewardID:  rewardID,
		Status:    "completed",
	}
}

// StreakUpdatedEvent is emitted when a session bootstrap changes the streak.
type StreakUpdatedEvent struct {
	BaseEvent
	Previous int `json:"previous"`
	Current  int `json:"current"`
}

func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"account_id": e.AggregateId,
		"previous":   e.Previous,
		"current":    e.Current,
	}
}

func NewStreakUpdatedEvent(accountID string, previous, current int) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent: NewBaseEvent(EventStreakUpdated, accountID),
		Previous:  previous,
		Current:   current,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Relationship Events
// ═══════════════════════════════════════════════════════════════════════════

// ConnectionEvent describes a change of a pairwise connection.
// AggregateID is "userA:userB" in canonical order.
type ConnectionEvent struct {
	BaseEvent
	UserA        string `json:"user_a"`
	UserB        string `json:"user_b"`
	ActionUserID string `json:"action_user_id"`
}

func (e ConnectionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_a":         e.UserA,
		"user_b":         e.UserB,
		"action_user_id": e.ActionUserID,
	}
}

func NewConnectionEvent(eventType EventType, userA, userB, actionUserID string) ConnectionEvent {
	return ConnectionEvent{
		BaseEvent:    NewBaseEvent(eventType, userA+":"+userB),
		UserA:        userA,
		UserB:        userB,
		ActionUserID: actionUserID,
	}
}

// MembershipChangedEvent carries the new status; empty means removed.
type MembershipChangedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

func (e MembershipChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id": e.AggregateId,
		"user_id":  e.UserID,
		"status":   e.Status,
	}
}

func NewMembershipChangedEvent(groupID, userID, status string) MembershipChangedEvent {
	return MembershipChangedEvent{
		BaseEvent: NewBaseEvent(EventMembershipChanged, groupID),
		UserID:    userID,
		Status:    status,
	}
}

// GroupDeletedEvent is emitted after a group and its memberships are gone.
type GroupDeletedEvent struct {
	BaseEvent
	RemovedMembers int `json:"removed_members"`
}

func (e GroupDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"group_id":        e.AggregateId,
		"removed_members": e.RemovedMembers,
	}
}

func NewGroupDeletedEvent(groupID string, removed int) GroupDeletedEvent {
	return GroupDeletedEvent{
		BaseEvent:      NewBaseEvent(EventGroupDeleted, groupID),
		RemovedMembers: removed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher drops every event. Used when no bus is configured.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
