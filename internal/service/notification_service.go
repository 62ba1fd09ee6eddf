package service

import (
	"context"
	"encoding/json"
	"time"

	"potledger/internal/models"
	"potledger/internal/repository"
	"potledger/pkg/idgen"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NotificationsChannel carries every stored notification for the delivery collaborator.
const NotificationsChannel = "pot_notifications"

type Notification struct {
	PotID    string
	UserID   string
	Type     string
	Title    string
	Message  string
	Metadata map[string]interface{}
}

type NotificationService struct {
	repo   *repository.NotificationRepository
	rdb    redis.UniversalClient
	logger *zap.Logger
}

func NewNotificationService(repo *repository.NotificationRepository, rdb redis.UniversalClient, logger *zap.Logger) *NotificationService {
	return &NotificationService{repo: repo, rdb: rdb, logger: logger.Named("notifications")}
}

// Notify stores the notification and publishes it. Publication is best effort.
func (s *NotificationService) Notify(ctx context.Context, n Notification) error {
	var meta string
	if n.Metadata != nil {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	rec := &models.PotNotification{
		ID:       idgen.NewID(),
		PotID:    n.PotID,
		UserID:   n.UserID,
		Type:     n.Type,
		Title:    n.Title,
		Message:  n.Message,
		Metadata: meta,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return err
	}
	s.publish(ctx, rec)
	return nil
}

func (s *NotificationService) publish(ctx context.Context, rec *models.PotNotification) {
	if s.rdb == nil {
		return
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn("marshal notification", zap.Error(err))
		return
	}
	if err := s.rdb.Publish(ctx, NotificationsChannel, payload).Err(); err != nil {
		s.logger.Warn("publish notification",
			zap.String("notification_id", rec.ID),
			zap.String("user_id", rec.UserID),
			zap.Error(err))
	}
}

func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, page, limit int) ([]models.PotNotification, int64, error) {
	return s.repo.ListByUserID(ctx, userID, unreadOnly, page, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	return s.repo.MarkRead(ctx, id, userID)
}
