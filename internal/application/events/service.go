package events

import (
	"context"
	"errors"
	"time"

	"assohub-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrOrgRequired = errors.New("Missing org_id")

// Service reads the notification event log. Writes go through the
// package-level Append so transitions can pass their tx handle and commit the
// event atomically with the status change.
type Service struct {
	DB *gorm.DB
}

// Append inserts one event using the given handle (a transaction inside the
// review and registry services, or the base DB for standalone info events).
func Append(tx *gorm.DB, ev *domain.NotificationEvent) error {
	if ev.OrgID == uuid.Nil {
		return ErrOrgRequired
	}
	if ev.Audience == "" {
		ev.Audience = domain.AudienceOrganization
	}
	return tx.Create(ev).Error
}

// ListInput filters ListForOrg.
type ListInput struct {
	Audience         string // empty = both audiences
	IncludeScheduled bool   // include events whose scheduled_for is still in the future
	UnreadOnly       bool
	Limit            int
}

// ListForOrg returns events for an organization, newest first. Events with a
// future scheduled_for timestamp are held back unless IncludeScheduled is set.
func (s *Service) ListForOrg(ctx context.Context, orgID uuid.UUID, in ListInput) ([]domain.NotificationEvent, error) {
	if orgID == uuid.Nil {
		return nil, ErrOrgRequired
	}
	q := s.DB.WithContext(ctx).Where("org_id = ?", orgID)
	if in.Audience != "" {
		q = q.Where("audience = ?", in.Audience)
	}
	if !in.IncludeScheduled {
		q = q.Where("scheduled_for IS NULL OR scheduled_for <= ?", time.Now())
	}
	if in.UnreadOnly {
		q = q.Where("is_read = ?", false)
	}
	if in.Limit > 0 {
		q = q.Limit(in.Limit)
	}
	var evs []domain.NotificationEvent
	if err := q.Order("created_at DESC").Find(&evs).Error; err != nil {
		return nil, err
	}
	return evs, nil
}

// AllForOrg returns the full event history oldest-first, the projector's input.
func (s *Service) AllForOrg(ctx context.Context, orgID uuid.UUID) ([]domain.NotificationEvent, error) {
	if orgID == uuid.Nil {
		return nil, ErrOrgRequired
	}
	var evs []domain.NotificationEvent
	if err := s.DB.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&evs).Error; err != nil {
		return nil, err
	}
	return evs, nil
}

// UnreadCount returns the number of unread, already-due events for the audience.
func (s *Service) UnreadCount(ctx context.Context, orgID uuid.UUID, audience string) (int64, error) {
	if orgID == uuid.Nil {
		return 0, ErrOrgRequired
	}
	var n int64
	q := s.DB.WithContext(ctx).Model(&domain.NotificationEvent{}).
		Where("org_id = ? AND is_read = ?", orgID, false).
		Where("scheduled_for IS NULL OR scheduled_for <= ?", time.Now())
	if audience != "" {
		q = q.Where("audience = ?", audience)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// MarkRead flags the given events read. The read flag is the only mutable
// column on the log.
func (s *Service) MarkRead(ctx context.Context, orgID uuid.UUID, eventIDs []uuid.UUID) (int64, error) {
	if orgID == uuid.Nil {
		return 0, ErrOrgRequired
	}
	if len(eventIDs) == 0 {
		return 0, nil
	}
	res := s.DB.WithContext(ctx).Model(&domain.NotificationEvent{}).
		Where("org_id = ? AND id IN ?", orgID, eventIDs).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// MarkAllRead flags every event for the organization (optionally one audience) read.
func (s *Service) MarkAllRead(ctx context.Context, orgID uuid.UUID, audience string) (int64, error) {
	if orgID == uuid.Nil {
		return 0, ErrOrgRequired
	}
	q := s.DB.WithContext(ctx).Model(&domain.NotificationEvent{}).
		Where("org_id = ? AND is_read = ?", orgID, false)
	if audience != "" {
		q = q.Where("audience = ?", audience)
	}
	res := q.Update("is_read", true)
	return res.RowsAffected, res.Error
}
