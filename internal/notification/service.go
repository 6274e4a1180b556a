package notification

import (
	"context"
	"fmt"

	"github.com/prekclip/server/internal/apperr"
	"github.com/prekclip/server/internal/store"
	"github.com/prekclip/server/pkg/response"
)

// Common errors
var (
	ErrNotificationNotFound = fmt.Errorf("%w: notification not found", apperr.ErrNotFound)
	ErrNotRecipient         = fmt.Errorf("%w: not the recipient of this notification", apperr.ErrForbidden)
)

// Service handles notification business logic
type Service struct {
	store *store.Store
}

// NewService creates a new notification service
func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// ListByRecipientID retrieves a page of notifications for a user, newest first
func (s *Service) ListByRecipientID(ctx context.Context, recipientID string, page, perPage int, unreadOnly bool) ([]*store.Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var matched []*store.Notification
	err := s.store.View(ctx, func(doc *store.Document) error {
		for _, n := range doc.Notifications {
			if n.RecipientID != recipientID || (unreadOnly && n.IsRead) {
				continue
			}
			matched = append(matched, n)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	total := len(matched)
	start, end := response.PageBounds(total, page, perPage)
	if start == end {
		return []*store.Notification{}, total, nil
	}
	return matched[start:end], total, nil
}

// MarkAsRead marks a notification as read
func (s *Service) MarkAsRead(ctx context.Context, id, userID string) error {
	return s.store.Update(ctx, func(doc *store.Document) error {
		for _, n := range doc.Notifications {
			if n.ID != id {
				continue
			}
			if n.RecipientID != userID {
				return ErrNotRecipient
			}
			n.IsRead = true
			return nil
		}
		return ErrNotificationNotFound
	})
}

// MarkAllAsRead marks all notifications as read for a user
func (s *Service) MarkAllAsRead(ctx context.Context, userID string) error {
	return s.store.Update(ctx, func(doc *store.Document) error {
		for _, n := range doc.Notifications {
			if n.RecipientID == userID {
				n.IsRead = true
			}
		}
		return nil
	})
}

// GetUnreadCount returns the count of unread notifications
func (s *Service) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	count := 0
	err := s.store.View(ctx, func(doc *store.Document) error {
		for _, n := range doc.Notifications {
			if n.RecipientID == userID && !n.IsRead {
				count++
			}
		}
		return nil
	})
	return count, err
}
