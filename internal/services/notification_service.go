package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/crewline/internal/models"
	"github.com/charlesng35/crewline/internal/realtime"
)

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID      string
	Type        string
	Title       string
	Message     string
	Data        map[string]any
	RelatedType string
	RelatedID   string
}

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationEventPayload represents data sent to realtime consumers.
type NotificationEventPayload struct {
	Notification    *models.Notification `json:"notification,omitempty"`
	NotificationIDs []string             `json:"notificationIds,omitempty"`
}

// NotificationService manages user in-app notifications.
type NotificationService struct {
	db  *gorm.DB
	hub *realtime.Hub
	now func() time.Time
}

// NewNotificationService constructs a NotificationService. hub may be nil.
func NewNotificationService(db *gorm.DB, hub *realtime.Hub) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db, hub: hub, now: time.Now}, nil
}

// ListForUser returns notifications for the supplied user ordered by recency.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]models.Notification, int64, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, 0, errors.New("notification service: user id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: count notifications: %w", err)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(max(0, input.Offset)).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("notification service: list notifications: %w", err)
	}

	return rows, total, nil
}

// Create persists a notification and broadcasts it to the recipient's live connections.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}
	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		return nil, errors.New("notification service: type is required")
	}

	notification := models.Notification{
		UserID:      userID,
		Type:        notificationType,
		Title:       strings.TrimSpace(defaultIfEmpty(input.Title, "Notification")),
		Message:     strings.TrimSpace(input.Message),
		RelatedType: strings.TrimSpace(input.RelatedType),
		RelatedID:   strings.TrimSpace(input.RelatedID),
	}

	if input.Data != nil {
		data, err := json.Marshal(input.Data)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal data: %w", err)
		}
		notification.Data = datatypes.JSON(data)
	}

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}

	s.broadcast(userID, realtime.EventNotificationCreated, &NotificationEventPayload{Notification: &notification})
	return &notification, nil
}

// MarkRead sets the read flag on a notification owned by userID.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (*models.Notification, error) {
	ctx = ensureContext(ctx)

	var notification models.Notification
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", strings.TrimSpace(notificationID), strings.TrimSpace(userID)).
		First(&notification).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}

	if notification.IsRead {
		return &notification, nil
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&notification).
		Updates(map[string]any{"is_read": true, "read_at": now}).Error; err != nil {
		return nil, fmt.Errorf("notification service: mark read: %w", err)
	}
	notification.IsRead = true
	notification.ReadAt = &now

	s.broadcast(userID, realtime.EventNotificationRead, &NotificationEventPayload{Notification: &notification})
	return &notification, nil
}

// DeleteRelated removes every notification referencing the given resource and returns the
// recipients that lost a notification. tx may be nil to use the service connection.
func (s *NotificationService) DeleteRelated(ctx context.Context, tx *gorm.DB, relatedType, relatedID string) ([]models.Notification, error) {
	ctx = ensureContext(ctx)
	if tx == nil {
		tx = s.db
	}

	var rows []models.Notification
	if err := tx.WithContext(ctx).
		Where("related_type = ? AND related_id = ?", relatedType, relatedID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: load related notifications: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	if err := tx.WithContext(ctx).
		Where("related_type = ? AND related_id = ?", relatedType, relatedID).
		Delete(&models.Notification{}).Error; err != nil {
		return nil, fmt.Errorf("notification service: delete related notifications: %w", err)
	}
	return rows, nil
}

// AnnounceDeleted pushes deletion events for notifications removed by DeleteRelated.
func (s *NotificationService) AnnounceDeleted(rows []models.Notification) {
	byUser := make(map[string][]string)
	var order []string
	for _, row := range rows {
		if _, ok := byUser[row.UserID]; !ok {
			order = append(order, row.UserID)
		}
		byUser[row.UserID] = append(byUser[row.UserID], row.ID)
	}
	for _, userID := range order {
		s.broadcast(userID, realtime.EventNotificationDeleted, &NotificationEventPayload{NotificationIDs: byUser[userID]})
	}
}

// PurgeRead deletes read notifications whose read timestamp precedes cutoff.
func (s *NotificationService) PurgeRead(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	result := s.db.WithContext(ctx).
		Where("is_read = ? AND read_at < ?", true, cutoff).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: purge read notifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *NotificationService) broadcast(userID, event string, payload *NotificationEventPayload) {
	if s.hub == nil || payload == nil {
		return
	}
	s.hub.BroadcastToUser(realtime.StreamNotifications, userID, realtime.Message{
		Event: event,
		Data:  payload,
	})
}
