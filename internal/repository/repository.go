package repository

import (
	"context"
	"time"

	"example.com/cargomarket/internal/models"

	"github.com/google/uuid"
)

// Repository provides data access methods for the marketplace core.
// Implementations map storage failures onto errs kinds: absent rows become
// not_found, expired deadlines become timeout, anything else persistence.
type Repository interface {
	// Transaction support
	WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo Repository) error) error

	// Job operations
	CreateJob(ctx context.Context, job *models.JobPosting) error
	FindJobByID(ctx context.Context, id uuid.UUID) (*models.JobPosting, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, assignedApplicationID *uuid.UUID) error
	AppendJobStatusEvent(ctx context.Context, event *models.JobStatusEvent) error
	IncrementJobApplicationCount(ctx context.Context, id uuid.UUID) error
	ListJobsByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.JobPosting, error)
	ListJobsByStatus(ctx context.Context, status string, limit int) ([]models.JobPosting, error)
	SampleMarketJobs(ctx context.Context, limit int) ([]models.JobPosting, error)
	CountJobsCreatedBetween(ctx context.Context, from, to time.Time) (int64, error)

	// Application operations
	CreateApplication(ctx context.Context, app *models.JobApplication) error
	FindApplicationByID(ctx context.Context, id uuid.UUID) (*models.JobApplication, error)
	FindApplicationForJobAndDriver(ctx context.Context, jobID, driverID uuid.UUID) (*models.JobApplication, error)
	UpdateApplication(ctx context.Context, app *models.JobApplication) error
	ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]models.JobApplication, error)
	ListPendingApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]models.JobApplication, error)
	ListApplicationsByDriver(ctx context.Context, driverID uuid.UUID) ([]models.JobApplication, error)
	ListApplicationsByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.JobApplication, error)
	CountApplicationsByDriverBetween(ctx context.Context, driverID uuid.UUID, from, to time.Time) (int64, error)

	// Driver operations
	FindDriverByID(ctx context.Context, id uuid.UUID) (*models.DriverProfile, error)
	UpdateDriver(ctx context.Context, driver *models.DriverProfile) error
	ListAvailableDrivers(ctx context.Context, limit int) ([]models.DriverProfile, error)

	// Notification operations
	CreateNotification(ctx context.Context, n *models.Notification) error
	FindNotificationByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	ListNotificationsByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error)
	CountUnreadNotifications(ctx context.Context, recipientID uuid.UUID) (int64, error)
	ListUndispatchedNotifications(ctx context.Context, limit int) ([]models.Notification, error)
	MarkNotificationDispatched(ctx context.Context, id uuid.UUID) error
}
