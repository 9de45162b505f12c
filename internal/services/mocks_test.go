package services

import (
	"context"
	"time"

	"example.com/cargomarket/internal/models"
	"example.com/cargomarket/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockRepository mocks the persistence layer for service tests
type MockRepository struct {
	mock.Mock
}

// WithTransaction runs fn against the same mock so expectations set on it
// cover transactional calls too.
func (m *MockRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo repository.Repository) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(ctx, m)
}

func (m *MockRepository) CreateJob(ctx context.Context, job *models.JobPosting) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockRepository) FindJobByID(ctx context.Context, id uuid.UUID) (*models.JobPosting, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JobPosting), args.Error(1)
}

func (m *MockRepository) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, assignedApplicationID *uuid.UUID) error {
	args := m.Called(ctx, id, status, assignedApplicationID)
	return args.Error(0)
}

func (m *MockRepository) AppendJobStatusEvent(ctx context.Context, event *models.JobStatusEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockRepository) IncrementJobApplicationCount(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) ListJobsByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.JobPosting, error) {
	args := m.Called(ctx, ownerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.JobPosting), args.Error(1)
}

func (m *MockRepository) ListJobsByStatus(ctx context.Context, status string, limit int) ([]models.JobPosting, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.JobPosting), args.Error(1)
}

func (m *MockRepository) SampleMarketJobs(ctx context.Context, limit int) ([]models.JobPosting, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.JobPosting), args.Error(1)
}

func (m *MockRepository) CountJobsCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) CreateApplication(ctx context.Context, app *models.JobApplication) error {
	args := m.Called(ctx, app)
	return args.Error(0)
}

func (m *MockRepository) FindApplicationByID(ctx context.Context, id uuid.UUID) (*models.JobApplication, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JobApplication), args.Error(1)
}

func (m *MockRepository) FindApplicationForJobAndDriver(ctx context.Context, jobID, driverID uuid.UUID) (*models.JobApplication, error) {
	args := m.Called(ctx, jobID, driverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JobApplication), args.Error(1)
}

func (m *MockRepository) UpdateApplication(ctx context.Context, app *models.JobApplication) error {
	args := m.Called(ctx, app)
	return args.Error(0)
}

func (m *MockRepository) ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]models.JobApplication, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.JobApplication), args.Error(1)
}

func (m *MockRepository) ListPendingApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]models.JobApplication, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.JobApplication), args.Error(1)
}

func (m *MockRepository) ListApplicationsByDriver(ctx context.Context, driverID uuid.UUID) ([]models.JobApplication, error) {
	args := m.Called(ctx, driverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.JobApplication), args.Error(1)
}

func (m *MockRepository) ListApplicationsByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.JobApplication, error) {
	args := m.Called(ctx, ownerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.JobApplication), args.Error(1)
}

func (m *MockRepository) CountApplicationsByDriverBetween(ctx context.Context, driverID uuid.UUID, from, to time.Time) (int64, error) {
	args := m.Called(ctx, driverID, from, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) FindDriverByID(ctx context.Context, id uuid.UUID) (*models.DriverProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DriverProfile), args.Error(1)
}

func (m *MockRepository) UpdateDriver(ctx context.Context, driver *models.DriverProfile) error {
	args := m.Called(ctx, driver)
	return args.Error(0)
}

func (m *MockRepository) ListAvailableDrivers(ctx context.Context, limit int) ([]models.DriverProfile, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DriverProfile), args.Error(1)
}

func (m *MockRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockRepository) FindNotificationByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notification), args.Error(1)
}

func (m *MockRepository) ListNotificationsByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.Notification, error) {
	args := m.Called(ctx, recipientID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *MockRepository) MarkNotificationRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockRepository) MarkAllNotificationsRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error) {
	args := m.Called(ctx, recipientID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) CountUnreadNotifications(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	args := m.Called(ctx, recipientID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) ListUndispatchedNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *MockRepository) MarkNotificationDispatched(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockNotifier mocks the notification fan-out for lifecycle tests
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyNewJobApplication(ctx context.Context, ownerID, jobID, applicationID uuid.UUID, jobTitle, driverName string) error {
	args := m.Called(ctx, ownerID, jobID, applicationID, jobTitle, driverName)
	return args.Error(0)
}

func (m *MockNotifier) NotifyJobAccepted(ctx context.Context, driverID, jobID, applicationID uuid.UUID, jobTitle string) error {
	args := m.Called(ctx, driverID, jobID, applicationID, jobTitle)
	return args.Error(0)
}

func (m *MockNotifier) NotifyJobRejected(ctx context.Context, driverID, jobID, applicationID uuid.UUID, jobTitle, reason string) error {
	args := m.Called(ctx, driverID, jobID, applicationID, jobTitle, reason)
	return args.Error(0)
}

func (m *MockNotifier) NotifyPaymentReceived(ctx context.Context, driverID, jobID uuid.UUID, amount float64, jobTitle string) error {
	args := m.Called(ctx, driverID, jobID, amount, jobTitle)
	return args.Error(0)
}

func (m *MockNotifier) NotifyJobStatusUpdate(ctx context.Context, recipientID, jobID uuid.UUID, jobTitle, status string) error {
	args := m.Called(ctx, recipientID, jobID, jobTitle, status)
	return args.Error(0)
}
