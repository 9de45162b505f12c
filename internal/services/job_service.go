package services

import (
	"context"
	"math"
	"time"

	"example.com/cargomarket/internal/errs"
	"example.com/cargomarket/internal/models"
	"example.com/cargomarket/internal/realtime"
	"example.com/cargomarket/internal/repository"
	"example.com/cargomarket/internal/search"
	"example.com/cargomarket/internal/session"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// JobService owns the posting side of the marketplace: creating,
// reading, cancelling and searching job postings.
type JobService struct {
	repo     repository.Repository
	notifier Notifier
	feed     *realtime.Feed
	elastic  *search.ElasticClient
}

// NewJobService creates a new job posting service
func NewJobService(repo repository.Repository, notifier Notifier, feed *realtime.Feed, elastic *search.ElasticClient) *JobService {
	return &JobService{
		repo:     repo,
		notifier: notifier,
		feed:     feed,
		elastic:  elastic,
	}
}

// CreateJobInput carries the fields for a new job posting
type CreateJobInput struct {
	Title               string
	Description         string
	CargoType           string
	WeightKg            float64
	Value               float64
	Pickup              models.Location
	Delivery            models.Location
	Budget              float64
	RequiredVehicleType string
	Urgency             string
	EstimatedDistanceKm *float64
}

// CreateJob posts a new shipment seeking a driver. The posting starts
// pending with an empty application list and one status history row.
func (s *JobService) CreateJob(ctx context.Context, sess session.Session, input CreateJobInput) (*models.JobPosting, error) {
	if input.Title == "" {
		return nil, errs.Validation("job title is required")
	}
	if input.CargoType == "" {
		return nil, errs.Validation("cargo type is required")
	}
	if input.Budget <= 0 || math.IsNaN(input.Budget) || math.IsInf(input.Budget, 0) {
		return nil, errs.Validation("budget must be a positive number")
	}
	if input.Pickup.City == "" || input.Delivery.City == "" {
		return nil, errs.Validation("pickup and delivery cities are required")
	}

	urgency := input.Urgency
	if urgency == "" {
		urgency = models.UrgencyStandard
	}

	job := &models.JobPosting{
		ID:                  uuid.New(),
		OwnerID:             sess.UserID,
		Title:               input.Title,
		Description:         input.Description,
		CargoType:           input.CargoType,
		WeightKg:            input.WeightKg,
		Value:               input.Value,
		Pickup:              input.Pickup,
		Delivery:            input.Delivery,
		Budget:              input.Budget,
		RequiredVehicleType: input.RequiredVehicleType,
		Urgency:             urgency,
		Status:              models.JobStatusPending,
		EstimatedDistanceKm: input.EstimatedDistanceKm,
	}

	err := s.repo.WithTransaction(ctx, func(ctx context.Context, txRepo repository.Repository) error {
		if err := txRepo.CreateJob(ctx, job); err != nil {
			return err
		}
		event := &models.JobStatusEvent{
			ID:     uuid.New(),
			JobID:  job.ID,
			Status: models.JobStatusPending,
			Note:   "Job posted",
		}
		return txRepo.AppendJobStatusEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("job_id", job.ID.String()).
		Str("owner_id", sess.UserID.String()).
		Float64("budget", job.Budget).
		Msg("Job posted")

	s.indexJob(ctx, job)
	s.publishJobChange(ctx, job, "created")

	return job, nil
}

// GetJob fetches a single job posting
func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*models.JobPosting, error) {
	return s.repo.FindJobByID(ctx, id)
}

// ListOwnerJobs returns the owner's job postings, newest first
func (s *JobService) ListOwnerJobs(ctx context.Context, ownerID uuid.UUID, limit int) ([]models.JobPosting, error) {
	if limit <= 0 {
		limit = dashboardListLimit
	}
	return s.repo.ListJobsByOwner(ctx, ownerID, limit)
}

// CancelJob cancels a pending job on behalf of its owner and tells every
// driver with a pending application.
func (s *JobService) CancelJob(ctx context.Context, sess session.Session, jobID uuid.UUID) (*models.JobPosting, error) {
	job, err := s.repo.FindJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != sess.UserID {
		return nil, errs.Validation("only the job owner can cancel a job")
	}
	if job.Status != models.JobStatusPending {
		return nil, errs.Conflict("only pending jobs can be cancelled")
	}

	var pending []models.JobApplication

	err = s.repo.WithTransaction(ctx, func(ctx context.Context, txRepo repository.Repository) error {
		if err := txRepo.UpdateJobStatus(ctx, job.ID, models.JobStatusCancelled, nil); err != nil {
			return err
		}
		event := &models.JobStatusEvent{
			ID:     uuid.New(),
			JobID:  job.ID,
			Status: models.JobStatusCancelled,
			Note:   "Cancelled by cargo owner",
		}
		if err := txRepo.AppendJobStatusEvent(ctx, event); err != nil {
			return err
		}

		pending, err = txRepo.ListPendingApplicationsByJob(ctx, job.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatusCancelled

	log.Info().
		Str("job_id", job.ID.String()).
		Int("pending_applications", len(pending)).
		Msg("Job cancelled")

	for i := range pending {
		if err := s.notifier.NotifyJobStatusUpdate(ctx, pending[i].DriverID, job.ID, job.Title, models.JobStatusCancelled); err != nil {
			log.Warn().Err(err).Str("application_id", pending[i].ID.String()).Msg("Failed to notify applicant of cancellation")
		}
	}

	s.indexJob(ctx, job)
	s.publishJobChange(ctx, job, "cancelled")

	return job, nil
}

// SearchJobs runs a full-text search over open postings
func (s *JobService) SearchJobs(ctx context.Context, text string, limit int) ([]map[string]interface{}, error) {
	if text == "" {
		return nil, errs.Validation("search query is required")
	}
	if s.elastic == nil {
		return nil, errs.New(errs.KindPersistence, "search is not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	return s.elastic.SearchJobs(ctx, text, limit)
}

// indexJob pushes the posting into the search index. Indexing is
// best-effort: the posting stands even when the index write fails.
func (s *JobService) indexJob(ctx context.Context, job *models.JobPosting) {
	if s.elastic == nil {
		return
	}
	if err := s.elastic.IndexJob(ctx, job); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("Failed to index job")
	}
}

func (s *JobService) publishJobChange(ctx context.Context, job *models.JobPosting, action string) {
	event := realtime.Event{
		Collection: realtime.CollectionJobs,
		EntityID:   job.ID.String(),
		Action:     action,
		At:         time.Now(),
	}
	channel := realtime.UserChannel(job.OwnerID, realtime.CollectionJobs)
	if err := s.feed.Publish(ctx, channel, event); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("Failed to publish job change event")
	}
}
