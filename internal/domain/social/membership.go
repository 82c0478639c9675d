package social

import (
	"strings"
	"time"

	"github.com/alem-hub/xp-economy/internal/domain/shared"
)

// Group - учебная группа.
type Group struct {
	ID          string
	Name        string
	Description string
	Icon        string
}

// Validate проверяет группу.
func (g *Group) Validate() error {
	if strings.TrimSpace(g.ID) == "" || strings.TrimSpace(g.Name) == "" {
		return shared.NewDomainError("membership", "Validate", shared.ErrEmptyValue, "group id and name are required")
	}
	return nil
}

// MembershipStatus - статус участника в группе. Удаление стирает запись.
type MembershipStatus string

const (
	MembershipPending MembershipStatus = "pending_request"
	MembershipMember  MembershipStatus = "member"
)

// IsValid проверяет статус.
func (s MembershipStatus) IsValid() bool {
	return s == MembershipPending || s == MembershipMember
}

// Membership - запись (GroupID, UserID). Не более одной на пару.
type Membership struct {
	GroupID   string
	UserID    string
	Status    MembershipStatus
	UpdatedAt time.Time
}

// NewJoinRequest создаёт заявку на вступление.
func NewJoinRequest(groupID, userID string, now time.Time) (Membership, error) {
	return newMembership(groupID, userID, MembershipPending, now)
}

// NewMember создаёт запись участника (прямое добавление администратором).
func NewMember(groupID, userID string, now time.Time) (Membership, error) {
	return newMembership(groupID, userID, MembershipMember, now)
}

func newMembership(groupID, userID string, status MembershipStatus, now time.Time) (Membership, error) {
	m := Membership{
		GroupID:   strings.TrimSpace(groupID),
		UserID:    strings.TrimSpace(userID),
		Status:    status,
		UpdatedAt: now.UTC(),
	}
	if m.GroupID == "" || m.UserID == "" {
		return Membership{}, shared.NewDomainError("membership", "Validate", shared.ErrInvalidID, "group and user ids are required")
	}
	return m, nil
}

// CanApprove - одобрить можно только заявку в статусе PendingRequest.
func (m *Membership) CanApprove() bool {
	return m != nil && m.Status == MembershipPending
}
