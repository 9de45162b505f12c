package services

import (
	"context"
	"math"
	"time"

	"example.com/cargomarket/config"
	"example.com/cargomarket/internal/errs"
	"example.com/cargomarket/internal/models"
	"example.com/cargomarket/internal/realtime"
	"example.com/cargomarket/internal/repository"
	"example.com/cargomarket/internal/search"
	"example.com/cargomarket/internal/session"
	"example.com/cargomarket/internal/tracing"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CascadeRejectionReason is stamped on every competing application when
// an owner accepts another driver's bid.
const CascadeRejectionReason = "Another driver was selected"

// Snapshot defaults for drivers without a stored profile
const (
	defaultDriverRating  = 4.5
	defaultDriverVehicle = "Unknown"
	defaultDriverName    = "Driver"
)

// ApplicationService owns the job application state machine:
// pending -> accepted -> completed, pending -> rejected. Rejected and
// completed are terminal. Acceptance cascades rejection over every other
// pending application on the same job inside one transaction, so no
// reader observes an assigned job alongside a still-pending bid.
type ApplicationService struct {
	repo     repository.Repository
	notifier Notifier
	feed     *realtime.Feed
	elastic  *search.ElasticClient
	tracer   tracing.Tracer
	cfg      config.MarketplaceConfig
}

// NewApplicationService creates a new application lifecycle service
func NewApplicationService(repo repository.Repository, notifier Notifier, feed *realtime.Feed, elastic *search.ElasticClient, tracer tracing.Tracer, cfg config.MarketplaceConfig) *ApplicationService {
	return &ApplicationService{
		repo:     repo,
		notifier: notifier,
		feed:     feed,
		elastic:  elastic,
		tracer:   tracer,
		cfg:      cfg,
	}
}

// SubmitApplicationInput carries a driver's bid on a job
type SubmitApplicationInput struct {
	JobID     uuid.UUID
	BidAmount float64
	Message   string
}

// SubmitApplication records a driver's bid in pending state, capturing
// immutable job and driver snapshots for display without re-fetching.
// Returns the created application.
func (s *ApplicationService) SubmitApplication(ctx context.Context, sess session.Session, input SubmitApplicationInput) (*models.JobApplication, error) {
	txn := s.tracer.StartTransaction("submit-application")
	defer s.tracer.EndTransaction(txn)

	if input.JobID == uuid.Nil {
		return nil, errs.Validation("job id is required")
	}
	if input.BidAmount <= 0 || math.IsNaN(input.BidAmount) || math.IsInf(input.BidAmount, 0) {
		return nil, errs.Validation("bid amount must be a positive number")
	}

	job, err := s.repo.FindJobByID(ctx, input.JobID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	if !s.cfg.AllowDuplicateApplications {
		existing, err := s.repo.FindApplicationForJobAndDriver(ctx, input.JobID, sess.UserID)
		if err != nil && !errs.IsKind(err, errs.KindNotFound) {
			s.tracer.RecordError(txn, err)
			return nil, err
		}
		if existing != nil && existing.Status != models.ApplicationStatusRejected {
			return nil, errs.Conflict("driver already applied for this job")
		}
	}

	driverInfo := s.driverSnapshot(ctx, sess.UserID)

	application := &models.JobApplication{
		ID:           uuid.New(),
		JobID:        job.ID,
		DriverID:     sess.UserID,
		CargoOwnerID: job.OwnerID,
		BidAmount:    input.BidAmount,
		Message:      input.Message,
		Status:       models.ApplicationStatusPending,
		SubmittedAt:  time.Now(),
		JobInfo: models.JobSnapshot{
			Title:        job.Title,
			PickupCity:   job.Pickup.City,
			DeliveryCity: job.Delivery.City,
			Budget:       job.Budget,
			Urgency:      job.Urgency,
		},
		DriverInfo: driverInfo,
	}

	err = s.repo.WithTransaction(ctx, func(ctx context.Context, txRepo repository.Repository) error {
		if err := txRepo.CreateApplication(ctx, application); err != nil {
			return err
		}
		return txRepo.IncrementJobApplicationCount(ctx, job.ID)
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	log.Info().
		Str("application_id", application.ID.String()).
		Str("job_id", job.ID.String()).
		Str("driver_id", sess.UserID.String()).
		Float64("bid_amount", input.BidAmount).
		Msg("Application submitted")

	// Notifications are best-effort: the submitted application stands
	// even when the fan-out fails.
	if err := s.notifier.NotifyNewJobApplication(ctx, job.OwnerID, job.ID, application.ID, job.Title, driverInfo.Name); err != nil {
		log.Warn().Err(err).Str("application_id", application.ID.String()).Msg("Failed to notify owner of new application")
	}

	s.publishApplicationChange(ctx, application, "created")

	return application, nil
}

// AcceptApplication accepts a pending application on behalf of the job's
// owner, assigns the job, and cascades rejection over every other pending
// application for the same job in the same transaction.
func (s *ApplicationService) AcceptApplication(ctx context.Context, sess session.Session, applicationID uuid.UUID) (*models.JobApplication, error) {
	txn := s.tracer.StartTransaction("accept-application")
	defer s.tracer.EndTransaction(txn)

	application, err := s.repo.FindApplicationByID(ctx, applicationID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	if application.CargoOwnerID != sess.UserID {
		return nil, errs.Validation("only the job owner can accept an application")
	}
	if application.Status != models.ApplicationStatusPending {
		return nil, errs.Conflict("application is not pending")
	}

	job, err := s.repo.FindJobByID(ctx, application.JobID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	now := time.Now()
	var losers []models.JobApplication

	err = s.repo.WithTransaction(ctx, func(ctx context.Context, txRepo repository.Repository) error {
		application.Status = models.ApplicationStatusAccepted
		application.DecidedAt = &now
		if err := txRepo.UpdateApplication(ctx, application); err != nil {
			return err
		}

		if err := txRepo.UpdateJobStatus(ctx, job.ID, models.JobStatusAssigned, &application.ID); err != nil {
			return err
		}
		event := &models.JobStatusEvent{
			ID:     uuid.New(),
			JobID:  job.ID,
			Status: models.JobStatusAssigned,
			Note:   "Driver " + application.DriverInfo.Name + " assigned",
		}
		if err := txRepo.AppendJobStatusEvent(ctx, event); err != nil {
			return err
		}

		pending, err := txRepo.ListPendingApplicationsByJob(ctx, job.ID)
		if err != nil {
			return err
		}

		reason := CascadeRejectionReason
		for i := range pending {
			if pending[i].ID == application.ID {
				continue
			}
			loser := pending[i]
			loser.Status = models.ApplicationStatusRejected
			loser.DecidedAt = &now
			loser.RejectionReason = &reason
			if err := txRepo.UpdateApplication(ctx, &loser); err != nil {
				return err
			}
			losers = append(losers, loser)
		}

		return nil
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	log.Info().
		Str("application_id", application.ID.String()).
		Str("job_id", job.ID.String()).
		Int("cascade_rejections", len(losers)).
		Msg("Application accepted")

	if err := s.notifier.NotifyJobAccepted(ctx, application.DriverID, job.ID, application.ID, job.Title); err != nil {
		log.Warn().Err(err).Str("application_id", application.ID.String()).Msg("Failed to notify accepted driver")
	}
	for i := range losers {
		loser := losers[i]
		if err := s.notifier.NotifyJobRejected(ctx, loser.DriverID, job.ID, loser.ID, job.Title, ""); err != nil {
			log.Warn().Err(err).Str("application_id", loser.ID.String()).Msg("Failed to notify rejected driver")
		}
		s.publishApplicationChange(ctx, &loser, "rejected")
	}

	s.publishApplicationChange(ctx, application, "accepted")
	s.publishJobChange(ctx, job.OwnerID, job.ID, "assigned")

	job.Status = models.JobStatusAssigned
	job.AssignedApplicationID = &application.ID
	s.reindexJob(ctx, job)

	return application, nil
}

// RejectApplication rejects a single pending application with an
// owner-supplied reason. No cascade.
func (s *ApplicationService) RejectApplication(ctx context.Context, sess session.Session, applicationID uuid.UUID, reason string) (*models.JobApplication, error) {
	application, err := s.repo.FindApplicationByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if application.CargoOwnerID != sess.UserID {
		return nil, errs.Validation("only the job owner can reject an application")
	}
	if application.Status != models.ApplicationStatusPending {
		return nil, errs.Conflict("application is not pending")
	}

	now := time.Now()
	application.Status = models.ApplicationStatusRejected
	application.DecidedAt = &now
	if reason != "" {
		application.RejectionReason = &reason
	}

	if err := s.repo.UpdateApplication(ctx, application); err != nil {
		return nil, err
	}

	log.Info().
		Str("application_id", application.ID.String()).
		Str("job_id", application.JobID.String()).
		Msg("Application rejected")

	if err := s.notifier.NotifyJobRejected(ctx, application.DriverID, application.JobID, application.ID, application.JobInfo.Title, reason); err != nil {
		log.Warn().Err(err).Str("application_id", application.ID.String()).Msg("Failed to notify rejected driver")
	}

	s.publishApplicationChange(ctx, application, "rejected")

	return application, nil
}

// CompleteJob finalizes an accepted application: the job is delivered,
// the driver's aggregate stats absorb the payout and rating. A second
// call on the same application fails with a conflict instead of
// double-counting earnings.
func (s *ApplicationService) CompleteJob(ctx context.Context, sess session.Session, applicationID uuid.UUID, rating float64) (*models.JobApplication, error) {
	txn := s.tracer.StartTransaction("complete-job")
	defer s.tracer.EndTransaction(txn)

	application, err := s.repo.FindApplicationByID(ctx, applicationID)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	if application.CargoOwnerID != sess.UserID {
		return nil, errs.Validation("only the job owner can complete a job")
	}
	if application.Status != models.ApplicationStatusAccepted {
		return nil, errs.Conflict("application is not accepted")
	}
	if rating < 0 || rating > 5 {
		return nil, errs.Validation("rating must be between 0 and 5")
	}

	err = s.repo.WithTransaction(ctx, func(ctx context.Context, txRepo repository.Repository) error {
		finalAmount := application.BidAmount
		application.Status = models.ApplicationStatusCompleted
		application.FinalAmount = &finalAmount
		application.OwnerRating = &rating
		if err := txRepo.UpdateApplication(ctx, application); err != nil {
			return err
		}

		if err := txRepo.UpdateJobStatus(ctx, application.JobID, models.JobStatusDelivered, nil); err != nil {
			return err
		}
		event := &models.JobStatusEvent{
			ID:     uuid.New(),
			JobID:  application.JobID,
			Status: models.JobStatusDelivered,
			Note:   "Delivery confirmed by cargo owner",
		}
		if err := txRepo.AppendJobStatusEvent(ctx, event); err != nil {
			return err
		}

		return s.applyDriverStats(ctx, txRepo, application.DriverID, application.BidAmount, rating)
	})
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	log.Info().
		Str("application_id", application.ID.String()).
		Str("job_id", application.JobID.String()).
		Float64("final_amount", application.BidAmount).
		Msg("Job completed")

	if err := s.notifier.NotifyPaymentReceived(ctx, application.DriverID, application.JobID, application.BidAmount, application.JobInfo.Title); err != nil {
		log.Warn().Err(err).Str("application_id", application.ID.String()).Msg("Failed to notify driver of payment")
	}
	if err := s.notifier.NotifyJobStatusUpdate(ctx, application.CargoOwnerID, application.JobID, application.JobInfo.Title, models.JobStatusDelivered); err != nil {
		log.Warn().Err(err).Str("application_id", application.ID.String()).Msg("Failed to notify owner of delivery")
	}

	s.publishApplicationChange(ctx, application, "completed")
	s.publishJobChange(ctx, application.CargoOwnerID, application.JobID, "delivered")

	if s.elastic != nil {
		if job, err := s.repo.FindJobByID(ctx, application.JobID); err == nil {
			s.reindexJob(ctx, job)
		}
	}

	return application, nil
}

// reindexJob refreshes the posting in the search index so status filters
// stay accurate. Best-effort.
func (s *ApplicationService) reindexJob(ctx context.Context, job *models.JobPosting) {
	if s.elastic == nil {
		return
	}
	if err := s.elastic.IndexJob(ctx, job); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("Failed to reindex job")
	}
}

// applyDriverStats folds one completed job into the driver's aggregates.
// The rating update is a running weighted average:
// new = (old*(n-1) + incoming) / n where n is the post-increment count.
func (s *ApplicationService) applyDriverStats(ctx context.Context, txRepo repository.Repository, driverID uuid.UUID, amount, rating float64) error {
	driver, err := txRepo.FindDriverByID(ctx, driverID)
	if err != nil {
		if errs.IsKind(err, errs.KindNotFound) {
			log.Warn().Str("driver_id", driverID.String()).Msg("Driver profile missing, skipping stats update")
			return nil
		}
		return err
	}

	n := driver.CompletedJobs + 1
	driver.Rating = (driver.Rating*float64(n-1) + rating) / float64(n)
	driver.CompletedJobs = n
	driver.TotalEarnings += amount

	return txRepo.UpdateDriver(ctx, driver)
}

// driverSnapshot captures the driver's display info at submission time.
// Absent profile fields fall back to defaults.
func (s *ApplicationService) driverSnapshot(ctx context.Context, driverID uuid.UUID) models.DriverSnapshot {
	driver, err := s.repo.FindDriverByID(ctx, driverID)
	if err != nil {
		if !errs.IsKind(err, errs.KindNotFound) {
			log.Warn().Err(err).Str("driver_id", driverID.String()).Msg("Failed to load driver profile for snapshot, using defaults")
		}
		return models.DriverSnapshot{
			Name:          defaultDriverName,
			Rating:        defaultDriverRating,
			CompletedJobs: 0,
			VehicleType:   defaultDriverVehicle,
		}
	}

	snapshot := models.DriverSnapshot{
		Name:          driver.Name,
		Rating:        driver.Rating,
		CompletedJobs: driver.CompletedJobs,
		VehicleType:   driver.VehicleType,
	}
	if snapshot.Name == "" {
		snapshot.Name = defaultDriverName
	}
	if snapshot.Rating == 0 {
		snapshot.Rating = defaultDriverRating
	}
	if snapshot.VehicleType == "" {
		snapshot.VehicleType = defaultDriverVehicle
	}
	return snapshot
}

func (s *ApplicationService) publishApplicationChange(ctx context.Context, app *models.JobApplication, action string) {
	event := realtime.Event{
		Collection: realtime.CollectionApplications,
		EntityID:   app.ID.String(),
		Action:     action,
		At:         time.Now(),
	}
	for _, userID := range []uuid.UUID{app.CargoOwnerID, app.DriverID} {
		channel := realtime.UserChannel(userID, realtime.CollectionApplications)
		if err := s.feed.Publish(ctx, channel, event); err != nil {
			log.Warn().Err(err).Str("application_id", app.ID.String()).Msg("Failed to publish application change event")
		}
	}
}

func (s *ApplicationService) publishJobChange(ctx context.Context, ownerID, jobID uuid.UUID, action string) {
	event := realtime.Event{
		Collection: realtime.CollectionJobs,
		EntityID:   jobID.String(),
		Action:     action,
		At:         time.Now(),
	}
	channel := realtime.UserChannel(ownerID, realtime.CollectionJobs)
	if err := s.feed.Publish(ctx, channel, event); err != nil {
		log.Warn().Err(err).Str("job_id", jobID.String()).Msg("Failed to publish job change event")
	}
}
