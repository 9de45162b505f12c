package repository

import (
	"context"
	"time"

	"example.com/cargomarket/internal/errs"
	"example.com/cargomarket/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// gormRepo implements Repository over a write database and a read-only
// replica. Reads go to the replica except inside a transaction, where both
// handles point at the transaction connection.
type gormRepo struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
	timeout    time.Duration
}

// NewRepository creates a new repository instance
func NewRepository(db, readOnlyDB *gorm.DB, timeout time.Duration) Repository {
	return &gormRepo{
		db:         db,
		readOnlyDB: readOnlyDB,
		timeout:    timeout,
	}
}

// bound applies the configured per-call timeout
func (r *gormRepo) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// classify maps a gorm error onto an errs kind
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.Wrap(errs.KindNotFound, err, msg)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.KindTimeout, err, msg)
	}
	return errs.Wrap(errs.KindPersistence, err, msg)
}

// WithTransaction runs fn against a repository bound to one transaction
func (r *gormRepo) WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &gormRepo{db: tx, readOnlyDB: tx, timeout: r.timeout}
		return fn(ctx, txRepo)
	})
}

// --- Job operations ---

func (r *gormRepo) CreateJob(ctx context.Context, job *models.JobPosting) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return classify(r.db.WithContext(ctx).Create(job).Error, "failed to create job posting")
}

func (r *gormRepo) FindJobByID(ctx context.Context, id uuid.UUID) (*models.JobPosting, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var job models.JobPosting
	err := r.readOnlyDB.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, classify(err, "failed to get job posting")
	}
	return &job, nil
}

func (r *gormRepo) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, assignedApplicationID *uuid.UUID) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	updates := map[string]interface{}{"status": status}
	if assignedApplicationID != nil {
		updates["assigned_application_id"] = *assignedApplicationID
	}
	result := r.db.WithContext(ctx).
		Model(&models.JobPosting{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return classify(result.Error, "failed to update job status")
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("job posting not found")
	}
	return nil
}

func (r *gormRepo) AppendJobStatusEvent(ctx context.Context, event *models.JobStatusEvent) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return classify(r.db.WithContext(ctx).Create(event).Error, "failed to append job status event")
}

func (r *gormRepo) IncrementJobApplicationCount(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	result := r.db.WithContext(ctx).
		Model(&models.JobPosting{}).
		Where("id = ?", id).
		UpdateColumn("application_count", gorm.Expr("application_count + 1"))
	if result.Error != nil {
		return classify(result.Error, "failed to increment application count")
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("job posting not found")
	}
	return nil
}

func (r *gormRepo) ListJobsByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.JobPosting, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var jobs []models.JobPosting
	err := r.readOnlyDB.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, classify(err, "failed to list jobs by owner")
	}
	return jobs, nil
}

func (r *gormRepo) ListJobsByStatus(ctx context.Context, status string, limit int) ([]models.JobPosting, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var jobs []models.JobPosting
	err := r.readOnlyDB.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, classify(err, "failed to list jobs by status")
	}
	return jobs, nil
}

func (r *gormRepo) SampleMarketJobs(ctx context.Context, limit int) ([]models.JobPosting, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var jobs []models.JobPosting
	err := r.readOnlyDB.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, classify(err, "failed to sample market jobs")
	}
	return jobs, nil
}

func (r *gormRepo) CountJobsCreatedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.JobPosting{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Count(&count).Error
	if err != nil {
		return 0, classify(err, "failed to count jobs")
	}
	return count, nil
}

// --- Application operations ---

func (r *gormRepo) CreateApplication(ctx context.Context, app *models.JobApplication) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return classify(r.db.WithContext(ctx).Create(app).Error, "failed to create application")
}

func (r *gormRepo) FindApplicationByID(ctx context.Context, id uuid.UUID) (*models.JobApplication, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var app models.JobApplication
	err := r.readOnlyDB.WithContext(ctx).Where("id = ?", id).First(&app).Error
	if err != nil {
		return nil, classify(err, "failed to get application")
	}
	return &app, nil
}

func (r *gormRepo) FindApplicationForJobAndDriver(ctx context.Context, jobID, driverID uuid.UUID) (*models.JobApplication, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var app models.JobApplication
	err := r.readOnlyDB.WithContext(ctx).
		Where("job_id = ? AND driver_id = ?", jobID, driverID).
		Order("submitted_at DESC").
		First(&app).Error
	if err != nil {
		return nil, classify(err, "failed to get application for job and driver")
	}
	return &app, nil
}

func (r *gormRepo) UpdateApplication(ctx context.Context, app *models.JobApplication) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return classify(r.db.WithContext(ctx).Save(app).Error, "failed to update application")
}

func (r *gormRepo) ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]models.JobApplication, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var apps []models.JobApplication
	err := r.readOnlyDB.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("submitted_at ASC").
		Find(&apps).Error
	if err != nil {
		return nil, classify(err, "failed to list applications by job")
	}
	return apps, nil
}

func (r *gormRepo) ListPendingApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]models.JobApplication, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var apps []models.JobApplication
	err := r.readOnlyDB.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, models.ApplicationStatusPending).
		Order("submitted_at ASC").
		Find(&apps).Error
	if err != nil {
		return nil, classify(err, "failed to list pending applications")
	}
	return apps, nil
}

func (r *gormRepo) ListApplicationsByDriver(ctx context.Context, driverID uuid.UUID) ([]models.JobApplication, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var apps []models.JobApplication
	err := r.readOnlyDB.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Order("submitted_at DESC").
		Find(&apps).Error
	if err != nil {
		return nil, classify(err, "failed to list applications by driver")
	}
	return apps, nil
}

func (r *gormRepo) ListApplicationsByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.JobApplication, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var apps []models.JobApplication
	err := r.readOnlyDB.WithContext(ctx).
		Where("cargo_owner_id = ?", ownerID).
		Order("submitted_at DESC").
		Limit(limit).
		Find(&apps).Error
	if err != nil {
		return nil, classify(err, "failed to list applications by owner")
	}
	return apps, nil
}

func (r *gormRepo) CountApplicationsByDriverBetween(ctx context.Context, driverID uuid.UUID, from, to time.Time) (int64, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.JobApplication{}).
		Where("driver_id = ? AND submitted_at >= ? AND submitted_at < ?", driverID, from, to).
		Count(&count).Error
	if err != nil {
		return 0, classify(err, "failed to count applications")
	}
	return count, nil
}

// --- Driver operations ---

func (r *gormRepo) FindDriverByID(ctx context.Context, id uuid.UUID) (*models.DriverProfile, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var driver models.DriverProfile
	err := r.readOnlyDB.WithContext(ctx).Where("id = ?", id).First(&driver).Error
	if err != nil {
		return nil, classify(err, "failed to get driver profile")
	}
	return &driver, nil
}

func (r *gormRepo) UpdateDriver(ctx context.Context, driver *models.DriverProfile) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return classify(r.db.WithContext(ctx).Save(driver).Error, "failed to update driver profile")
}

func (r *gormRepo) ListAvailableDrivers(ctx context.Context, limit int) ([]models.DriverProfile, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var drivers []models.DriverProfile
	err := r.readOnlyDB.WithContext(ctx).
		Where("availability = ?", models.DriverAvailable).
		Order("created_at ASC").
		Limit(limit).
		Find(&drivers).Error
	if err != nil {
		return nil, classify(err, "failed to list available drivers")
	}
	return drivers, nil
}

// --- Notification operations ---

func (r *gormRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return classify(r.db.WithContext(ctx).Create(n).Error, "failed to create notification")
}

func (r *gormRepo) FindNotificationByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var n models.Notification
	err := r.readOnlyDB.WithContext(ctx).Where("id = ?", id).First(&n).Error
	if err != nil {
		return nil, classify(err, "failed to get notification")
	}
	return &n, nil
}

func (r *gormRepo) ListNotificationsByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.Notification, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var notifications []models.Notification
	err := r.readOnlyDB.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, classify(err, "failed to list notifications")
	}
	return notifications, nil
}

func (r *gormRepo) MarkNotificationRead(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"read": true, "read_at": at})
	if result.Error != nil {
		return classify(result.Error, "failed to mark notification read")
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("notification not found")
	}
	return nil
}

// MarkAllNotificationsRead flips every currently-unread notification for
// the recipient in one statement. Rows inserted after the statement's
// snapshot are left unread.
func (r *gormRepo) MarkAllNotificationsRead(ctx context.Context, recipientID uuid.UUID, at time.Time) (int64, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Updates(map[string]interface{}{"read": true, "read_at": at})
	if result.Error != nil {
		return 0, classify(result.Error, "failed to mark all notifications read")
	}
	return result.RowsAffected, nil
}

func (r *gormRepo) CountUnreadNotifications(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var count int64
	err := r.readOnlyDB.WithContext(ctx).
		Model(&models.Notification{}).
		Where("recipient_id = ? AND read = ?", recipientID, false).
		Count(&count).Error
	if err != nil {
		return 0, classify(err, "failed to count unread notifications")
	}
	return count, nil
}

func (r *gormRepo) ListUndispatchedNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	var notifications []models.Notification
	err := r.readOnlyDB.WithContext(ctx).
		Where("dispatched = ?", false).
		Order("created_at ASC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, classify(err, "failed to list undispatched notifications")
	}
	return notifications, nil
}

func (r *gormRepo) MarkNotificationDispatched(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		Update("dispatched", true)
	if result.Error != nil {
		return classify(result.Error, "failed to mark notification dispatched")
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("notification not found")
	}
	return nil
}
