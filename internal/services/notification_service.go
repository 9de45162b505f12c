package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/cargomarket/config"
	"example.com/cargomarket/internal/errs"
	"example.com/cargomarket/internal/messaging"
	"example.com/cargomarket/internal/models"
	"example.com/cargomarket/internal/realtime"
	"example.com/cargomarket/internal/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Notifier is the slice of the notification store the lifecycle services
// depend on for their fan-out side effects.
type Notifier interface {
	NotifyNewJobApplication(ctx context.Context, ownerID, jobID, applicationID uuid.UUID, jobTitle, driverName string) error
	NotifyJobAccepted(ctx context.Context, driverID, jobID, applicationID uuid.UUID, jobTitle string) error
	NotifyJobRejected(ctx context.Context, driverID, jobID, applicationID uuid.UUID, jobTitle, reason string) error
	NotifyPaymentReceived(ctx context.Context, driverID, jobID uuid.UUID, amount float64, jobTitle string) error
	NotifyJobStatusUpdate(ctx context.Context, recipientID, jobID uuid.UUID, jobTitle, status string) error
}

// NotificationService creates, reads and mutates notification records and
// pushes change events for real-time feeds.
type NotificationService struct {
	repo repository.Repository
	feed *realtime.Feed
	bus  messaging.ServiceBusClient
	cfg  config.MarketplaceConfig
}

// NewNotificationService creates a new notification service
func NewNotificationService(repo repository.Repository, feed *realtime.Feed, bus messaging.ServiceBusClient, cfg config.MarketplaceConfig) *NotificationService {
	return &NotificationService{
		repo: repo,
		feed: feed,
		bus:  bus,
		cfg:  cfg,
	}
}

// CreateNotificationInput carries the fields for a new notification
type CreateNotificationInput struct {
	RecipientID uuid.UUID
	Title       string
	Body        string
	Type        string
	Data        map[string]string
	Priority    string
}

// Create persists a notification and triggers its side channels: a change
// event for live feeds and a queued push delivery. The type set is a soft
// constraint: unknown types are stored and only logged, consumers render
// them with a fallback icon.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*models.Notification, error) {
	if input.RecipientID == uuid.Nil {
		return nil, errs.Validation("notification recipient is required")
	}
	if input.Title == "" {
		return nil, errs.Validation("notification title is required")
	}

	if !models.KnownNotificationTypes[input.Type] {
		log.Warn().Str("type", input.Type).Msg("Creating notification with unknown type")
	}

	priority := input.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	var data []byte
	if len(input.Data) > 0 {
		var err error
		data, err = json.Marshal(input.Data)
		if err != nil {
			return nil, errs.Wrap(errs.KindValidation, err, "failed to encode notification data")
		}
	}

	notification := &models.Notification{
		ID:          uuid.New(),
		RecipientID: input.RecipientID,
		Title:       input.Title,
		Body:        input.Body,
		Type:        input.Type,
		Data:        data,
		Read:        false,
		Priority:    priority,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := s.repo.CreateNotification(ctx, notification); err != nil {
		return nil, errors.Wrap(err, "failed to store notification")
	}

	s.publishChange(ctx, notification, "created")
	s.enqueuePush(ctx, notification)

	return notification, nil
}

// ListForUser returns the recipient's notifications, newest first
func (s *NotificationService) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = s.feedSize()
	}
	return s.repo.ListNotificationsByRecipient(ctx, userID, limit)
}

// MarkRead marks a single notification as read
func (s *NotificationService) MarkRead(ctx context.Context, id uuid.UUID) error {
	notification, err := s.repo.FindNotificationByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.MarkNotificationRead(ctx, id, time.Now()); err != nil {
		return err
	}

	s.publishChange(ctx, notification, "read")
	return nil
}

// MarkAllRead marks every currently-unread notification for the user as
// read in one operation. Notifications created after the underlying
// statement's snapshot stay unread.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	updated, err := s.repo.MarkAllNotificationsRead(ctx, userID, time.Now())
	if err != nil {
		return 0, err
	}

	if updated > 0 {
		s.publishChange(ctx, &models.Notification{RecipientID: userID}, "read_all")
	}
	return updated, nil
}

// UnreadCount returns the number of unread notifications for the user
func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnreadNotifications(ctx, userID)
}

// Subscribe delivers the user's newest notifications on every change.
// The callback receives the most recent window (feed size, newest first)
// and is invoked once per underlying add or update. The returned func
// stops the subscription.
func (s *NotificationService) Subscribe(ctx context.Context, userID uuid.UUID, callback func([]models.Notification)) (func(), error) {
	channel := realtime.UserChannel(userID, realtime.CollectionNotifications)
	return s.feed.Subscribe(ctx, []string{channel}, func(event realtime.Event) {
		notifications, err := s.repo.ListNotificationsByRecipient(ctx, userID, s.feedSize())
		if err != nil {
			log.Error().Err(err).Str("user_id", userID.String()).Msg("Failed to refresh notification feed")
			return
		}
		callback(notifications)
	})
}

// MarkDispatched records that a notification's push delivery completed
func (s *NotificationService) MarkDispatched(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkNotificationDispatched(ctx, id)
}

// RedispatchPending re-queues push delivery for notifications whose
// original enqueue failed. Called from the worker's fallback cron.
func (s *NotificationService) RedispatchPending(ctx context.Context, limit int) error {
	if s.bus == nil {
		return nil
	}

	pending, err := s.repo.ListUndispatchedNotifications(ctx, limit)
	if err != nil {
		return errors.Wrap(err, "failed to list undispatched notifications")
	}

	for i := range pending {
		s.enqueuePush(ctx, &pending[i])
	}

	if len(pending) > 0 {
		log.Info().Int("count", len(pending)).Msg("Re-queued undispatched notifications")
	}
	return nil
}

// --- Domain-event helper constructors ---

// NotifyNewJobApplication tells a cargo owner a driver has bid on a job
func (s *NotificationService) NotifyNewJobApplication(ctx context.Context, ownerID, jobID, applicationID uuid.UUID, jobTitle, driverName string) error {
	_, err := s.Create(ctx, CreateNotificationInput{
		RecipientID: ownerID,
		Title:       "New Application",
		Body:        fmt.Sprintf("%s applied for \"%s\"", driverName, jobTitle),
		Type:        models.NotificationTypeJobApplication,
		Data:        map[string]string{"job_id": jobID.String(), "application_id": applicationID.String()},
		Priority:    models.PriorityNormal,
	})
	return err
}

// NotifyJobAccepted tells a driver their application was accepted
func (s *NotificationService) NotifyJobAccepted(ctx context.Context, driverID, jobID, applicationID uuid.UUID, jobTitle string) error {
	_, err := s.Create(ctx, CreateNotificationInput{
		RecipientID: driverID,
		Title:       "Application Accepted",
		Body:        fmt.Sprintf("Your application for \"%s\" was accepted", jobTitle),
		Type:        models.NotificationTypeJobAccepted,
		Data:        map[string]string{"job_id": jobID.String(), "application_id": applicationID.String()},
		Priority:    models.PriorityHigh,
	})
	return err
}

// NotifyJobRejected tells a driver their application was rejected
func (s *NotificationService) NotifyJobRejected(ctx context.Context, driverID, jobID, applicationID uuid.UUID, jobTitle, reason string) error {
	body := fmt.Sprintf("Your application for \"%s\" was not selected", jobTitle)
	if reason != "" {
		body = fmt.Sprintf("Your application for \"%s\" was not selected: %s", jobTitle, reason)
	}

	_, err := s.Create(ctx, CreateNotificationInput{
		RecipientID: driverID,
		Title:       "Application Update",
		Body:        body,
		Type:        models.NotificationTypeJobRejected,
		Data:        map[string]string{"job_id": jobID.String(), "application_id": applicationID.String()},
		Priority:    models.PriorityNormal,
	})
	return err
}

// NotifyPaymentReceived tells a driver a job payment was recorded
func (s *NotificationService) NotifyPaymentReceived(ctx context.Context, driverID, jobID uuid.UUID, amount float64, jobTitle string) error {
	_, err := s.Create(ctx, CreateNotificationInput{
		RecipientID: driverID,
		Title:       "Payment Received",
		Body:        fmt.Sprintf("You received %.2f for \"%s\"", amount, jobTitle),
		Type:        models.NotificationTypePayment,
		Data:        map[string]string{"job_id": jobID.String()},
		Priority:    models.PriorityHigh,
	})
	return err
}

// jobStatusBodies maps shipment statuses to notification texts
var jobStatusBodies = map[string]string{
	models.JobStatusPickedUp:  "Your cargo has been picked up",
	models.JobStatusInTransit: "Your cargo is in transit",
	models.JobStatusDelivered: "Your cargo has been delivered",
	models.JobStatusDelayed:   "Your shipment has been delayed",
}

// NotifyJobStatusUpdate tells a user about a shipment status change.
// Unknown statuses fall back to a generic text.
func (s *NotificationService) NotifyJobStatusUpdate(ctx context.Context, recipientID, jobID uuid.UUID, jobTitle, status string) error {
	body, ok := jobStatusBodies[status]
	if !ok {
		body = "Status updated"
	}

	_, err := s.Create(ctx, CreateNotificationInput{
		RecipientID: recipientID,
		Title:       jobTitle,
		Body:        body,
		Type:        models.NotificationTypeJobStatus,
		Data:        map[string]string{"job_id": jobID.String(), "status": status},
		Priority:    models.PriorityNormal,
	})
	return err
}

// NotifyDriverInvitation invites a driver to apply for a job
func (s *NotificationService) NotifyDriverInvitation(ctx context.Context, driverID, jobID uuid.UUID, ownerName, jobTitle string) error {
	_, err := s.Create(ctx, CreateNotificationInput{
		RecipientID: driverID,
		Title:       "Job Invitation",
		Body:        fmt.Sprintf("%s invited you to apply for \"%s\"", ownerName, jobTitle),
		Type:        models.NotificationTypeDriverInvitation,
		Data:        map[string]string{"job_id": jobID.String()},
		Priority:    models.PriorityNormal,
	})
	return err
}

// NotifyAccountVerification tells a user about a verification decision
func (s *NotificationService) NotifyAccountVerification(ctx context.Context, userID uuid.UUID, approved bool) error {
	body := "Your account verification was approved"
	if !approved {
		body = "Your account verification was declined"
	}

	_, err := s.Create(ctx, CreateNotificationInput{
		RecipientID: userID,
		Title:       "Account Verification",
		Body:        body,
		Type:        models.NotificationTypeVerification,
		Priority:    models.PriorityHigh,
	})
	return err
}

// NotifySystemMaintenance announces scheduled maintenance to a user
func (s *NotificationService) NotifySystemMaintenance(ctx context.Context, userID uuid.UUID, message string) error {
	_, err := s.Create(ctx, CreateNotificationInput{
		RecipientID: userID,
		Title:       "System Maintenance",
		Body:        message,
		Type:        models.NotificationTypeSystem,
		Priority:    models.PriorityLow,
	})
	return err
}

// NotifyNewMessage tells a user they received a chat message
func (s *NotificationService) NotifyNewMessage(ctx context.Context, userID uuid.UUID, senderName, preview string) error {
	_, err := s.Create(ctx, CreateNotificationInput{
		RecipientID: userID,
		Title:       fmt.Sprintf("Message from %s", senderName),
		Body:        preview,
		Type:        models.NotificationTypeMessage,
		Priority:    models.PriorityNormal,
	})
	return err
}

// --- internals ---

func (s *NotificationService) feedSize() int {
	if s.cfg.NotificationFeedSize > 0 {
		return s.cfg.NotificationFeedSize
	}
	return 20
}

func (s *NotificationService) publishChange(ctx context.Context, n *models.Notification, action string) {
	channel := realtime.UserChannel(n.RecipientID, realtime.CollectionNotifications)
	event := realtime.Event{
		Collection: realtime.CollectionNotifications,
		EntityID:   n.ID.String(),
		Action:     action,
		At:         time.Now(),
	}
	if err := s.feed.Publish(ctx, channel, event); err != nil {
		log.Warn().Err(err).Str("notification_id", n.ID.String()).Msg("Failed to publish notification change event")
	}
}

// enqueuePush queues the notification for mobile push delivery. Delivery
// is best-effort: failures leave the row undispatched for the fallback
// cron to retry.
func (s *NotificationService) enqueuePush(ctx context.Context, n *models.Notification) {
	if s.bus == nil {
		return
	}

	msg := messaging.PushMessage{
		NotificationID: n.ID.String(),
		RecipientID:    n.RecipientID.String(),
		Title:          n.Title,
		Body:           n.Body,
		Type:           n.Type,
		Priority:       n.Priority,
	}

	if err := s.bus.SendMessage(ctx, msg); err != nil {
		log.Warn().Err(err).Str("notification_id", n.ID.String()).Msg("Failed to enqueue push delivery, will retry later")
		return
	}

	if err := s.repo.MarkNotificationDispatched(ctx, n.ID); err != nil {
		log.Warn().Err(err).Str("notification_id", n.ID.String()).Msg("Failed to mark notification dispatched")
	}
}
