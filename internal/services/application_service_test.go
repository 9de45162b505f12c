package services

import (
	"context"
	"math"
	"testing"

	"example.com/cargomarket/config"
	"example.com/cargomarket/internal/errs"
	"example.com/cargomarket/internal/models"
	"example.com/cargomarket/internal/realtime"
	"example.com/cargomarket/internal/session"
	"example.com/cargomarket/internal/tracing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newApplicationService(repo *MockRepository, notifier *MockNotifier, cfg config.MarketplaceConfig) *ApplicationService {
	return NewApplicationService(repo, notifier, realtime.NewDisabledFeed(), nil, &tracing.NewRelicTracer{}, cfg)
}

func TestSubmitApplicationRejectsBadBid(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newApplicationService(mockRepo, new(MockNotifier), config.MarketplaceConfig{})

	sess := session.Session{UserID: uuid.New()}

	for _, bid := range []float64{0, -50, math.NaN(), math.Inf(1)} {
		_, err := service.SubmitApplication(context.Background(), sess, SubmitApplicationInput{
			JobID:     uuid.New(),
			BidAmount: bid,
		})
		require.Error(t, err)
		require.True(t, errs.IsKind(err, errs.KindValidation))
	}

	mockRepo.AssertNotCalled(t, "CreateApplication", mock.Anything, mock.Anything)
}

func TestSubmitApplicationJobNotFound(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newApplicationService(mockRepo, new(MockNotifier), config.MarketplaceConfig{})

	jobID := uuid.New()
	mockRepo.On("FindJobByID", mock.Anything, jobID).Return(nil, errs.NotFound("job posting not found"))

	_, err := service.SubmitApplication(context.Background(), session.Session{UserID: uuid.New()}, SubmitApplicationInput{
		JobID:     jobID,
		BidAmount: 500,
	})

	require.Error(t, err)
	require.True(t, errs.IsKind(err, errs.KindNotFound))
	mockRepo.AssertNotCalled(t, "CreateApplication", mock.Anything, mock.Anything)
}

func TestSubmitApplicationCreatesPendingWithSnapshots(t *testing.T) {
	mockRepo := new(MockRepository)
	mockNotifier := new(MockNotifier)
	service := newApplicationService(mockRepo, mockNotifier, config.MarketplaceConfig{AllowDuplicateApplications: true})

	driverID := uuid.New()
	ownerID := uuid.New()
	job := &models.JobPosting{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		Title:    "Steel coils to Mombasa",
		Budget:   2000,
		Urgency:  models.UrgencyUrgent,
		Pickup:   models.Location{City: "Nairobi"},
		Delivery: models.Location{City: "Mombasa"},
	}
	driver := &models.DriverProfile{
		ID:            driverID,
		Name:          "Jane K",
		Rating:        4.8,
		CompletedJobs: 31,
		VehicleType:   "flatbed",
	}

	mockRepo.On("FindJobByID", mock.Anything, job.ID).Return(job, nil)
	mockRepo.On("FindDriverByID", mock.Anything, driverID).Return(driver, nil)
	mockRepo.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("CreateApplication", mock.Anything, mock.AnythingOfType("*models.JobApplication")).Return(nil)
	mockRepo.On("IncrementJobApplicationCount", mock.Anything, job.ID).Return(nil)
	mockNotifier.On("NotifyNewJobApplication", mock.Anything, ownerID, job.ID, mock.Anything, job.Title, driver.Name).Return(nil)

	application, err := service.SubmitApplication(context.Background(), session.Session{UserID: driverID}, SubmitApplicationInput{
		JobID:     job.ID,
		BidAmount: 1800,
		Message:   "Can pick up tomorrow morning",
	})

	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusPending, application.Status)
	require.Equal(t, ownerID, application.CargoOwnerID)
	require.Equal(t, 1800.0, application.BidAmount)
	require.Equal(t, "Steel coils to Mombasa", application.JobInfo.Title)
	require.Equal(t, "Nairobi", application.JobInfo.PickupCity)
	require.Equal(t, "Jane K", application.DriverInfo.Name)
	require.Equal(t, 4.8, application.DriverInfo.Rating)
	mockRepo.AssertExpectations(t)
	mockNotifier.AssertExpectations(t)
}

func TestSubmitApplicationUsesSnapshotDefaultsWithoutProfile(t *testing.T) {
	mockRepo := new(MockRepository)
	mockNotifier := new(MockNotifier)
	service := newApplicationService(mockRepo, mockNotifier, config.MarketplaceConfig{AllowDuplicateApplications: true})

	driverID := uuid.New()
	job := &models.JobPosting{ID: uuid.New(), OwnerID: uuid.New(), Title: "Maize delivery"}

	mockRepo.On("FindJobByID", mock.Anything, job.ID).Return(job, nil)
	mockRepo.On("FindDriverByID", mock.Anything, driverID).Return(nil, errs.NotFound("driver profile not found"))
	mockRepo.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("CreateApplication", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("IncrementJobApplicationCount", mock.Anything, job.ID).Return(nil)
	mockNotifier.On("NotifyNewJobApplication", mock.Anything, job.OwnerID, job.ID, mock.Anything, job.Title, defaultDriverName).Return(nil)

	application, err := service.SubmitApplication(context.Background(), session.Session{UserID: driverID}, SubmitApplicationInput{
		JobID:     job.ID,
		BidAmount: 300,
	})

	require.NoError(t, err)
	require.Equal(t, defaultDriverName, application.DriverInfo.Name)
	require.Equal(t, defaultDriverRating, application.DriverInfo.Rating)
	require.Equal(t, defaultDriverVehicle, application.DriverInfo.VehicleType)
	require.Equal(t, 0, application.DriverInfo.CompletedJobs)
}

func TestSubmitApplicationDuplicateBlocked(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newApplicationService(mockRepo, new(MockNotifier), config.MarketplaceConfig{AllowDuplicateApplications: false})

	driverID := uuid.New()
	job := &models.JobPosting{ID: uuid.New(), OwnerID: uuid.New()}
	existing := &models.JobApplication{
		ID:       uuid.New(),
		JobID:    job.ID,
		DriverID: driverID,
		Status:   models.ApplicationStatusPending,
	}

	mockRepo.On("FindJobByID", mock.Anything, job.ID).Return(job, nil)
	mockRepo.On("FindApplicationForJobAndDriver", mock.Anything, job.ID, driverID).Return(existing, nil)

	_, err := service.SubmitApplication(context.Background(), session.Session{UserID: driverID}, SubmitApplicationInput{
		JobID:     job.ID,
		BidAmount: 500,
	})

	require.Error(t, err)
	require.True(t, errs.IsKind(err, errs.KindConflict))
	mockRepo.AssertNotCalled(t, "CreateApplication", mock.Anything, mock.Anything)
}

func TestSubmitApplicationAllowedAfterRejection(t *testing.T) {
	mockRepo := new(MockRepository)
	mockNotifier := new(MockNotifier)
	service := newApplicationService(mockRepo, mockNotifier, config.MarketplaceConfig{AllowDuplicateApplications: false})

	driverID := uuid.New()
	job := &models.JobPosting{ID: uuid.New(), OwnerID: uuid.New(), Title: "Cement bags"}
	rejected := &models.JobApplication{
		ID:       uuid.New(),
		JobID:    job.ID,
		DriverID: driverID,
		Status:   models.ApplicationStatusRejected,
	}

	mockRepo.On("FindJobByID", mock.Anything, job.ID).Return(job, nil)
	mockRepo.On("FindApplicationForJobAndDriver", mock.Anything, job.ID, driverID).Return(rejected, nil)
	mockRepo.On("FindDriverByID", mock.Anything, driverID).Return(nil, errs.NotFound("driver profile not found"))
	mockRepo.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("CreateApplication", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("IncrementJobApplicationCount", mock.Anything, job.ID).Return(nil)
	mockNotifier.On("NotifyNewJobApplication", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	application, err := service.SubmitApplication(context.Background(), session.Session{UserID: driverID}, SubmitApplicationInput{
		JobID:     job.ID,
		BidAmount: 450,
	})

	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusPending, application.Status)
}

func TestSubmitApplicationSurvivesNotifierFailure(t *testing.T) {
	mockRepo := new(MockRepository)
	mockNotifier := new(MockNotifier)
	service := newApplicationService(mockRepo, mockNotifier, config.MarketplaceConfig{AllowDuplicateApplications: true})

	driverID := uuid.New()
	job := &models.JobPosting{ID: uuid.New(), OwnerID: uuid.New(), Title: "Furniture"}

	mockRepo.On("FindJobByID", mock.Anything, job.ID).Return(job, nil)
	mockRepo.On("FindDriverByID", mock.Anything, driverID).Return(nil, errs.NotFound("driver profile not found"))
	mockRepo.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("CreateApplication", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("IncrementJobApplicationCount", mock.Anything, job.ID).Return(nil)
	mockNotifier.On("NotifyNewJobApplication", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errs.New(errs.KindPersistence, "notification store unavailable"))

	application, err := service.SubmitApplication(context.Background(), session.Session{UserID: driverID}, SubmitApplicationInput{
		JobID:     job.ID,
		BidAmount: 750,
	})

	require.NoError(t, err)
	require.NotNil(t, application)
}

func TestAcceptApplicationCascadesRejections(t *testing.T) {
	mockRepo := new(MockRepository)
	mockNotifier := new(MockNotifier)
	service := newApplicationService(mockRepo, mockNotifier, config.MarketplaceConfig{})

	ownerID := uuid.New()
	job := &models.JobPosting{ID: uuid.New(), OwnerID: ownerID, Title: "Fuel transport", Status: models.JobStatusPending}

	winner := &models.JobApplication{
		ID:           uuid.New(),
		JobID:        job.ID,
		DriverID:     uuid.New(),
		CargoOwnerID: ownerID,
		Status:       models.ApplicationStatusPending,
		DriverInfo:   models.DriverSnapshot{Name: "Winner"},
	}
	loserA := models.JobApplication{
		ID:           uuid.New(),
		JobID:        job.ID,
		DriverID:     uuid.New(),
		CargoOwnerID: ownerID,
		Status:       models.ApplicationStatusPending,
	}
	loserB := models.JobApplication{
		ID:           uuid.New(),
		JobID:        job.ID,
		DriverID:     uuid.New(),
		CargoOwnerID: ownerID,
		Status:       models.ApplicationStatusPending,
	}

	var updated []*models.JobApplication
	mockRepo.On("FindApplicationByID", mock.Anything, winner.ID).Return(winner, nil)
	mockRepo.On("FindJobByID", mock.Anything, job.ID).Return(job, nil)
	mockRepo.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("UpdateApplication", mock.Anything, mock.AnythingOfType("*models.JobApplication")).
		Run(func(args mock.Arguments) {
			updated = append(updated, args.Get(1).(*models.JobApplication))
		}).Return(nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, job.ID, models.JobStatusAssigned, &winner.ID).Return(nil)
	mockRepo.On("AppendJobStatusEvent", mock.Anything, mock.AnythingOfType("*models.JobStatusEvent")).Return(nil)
	mockRepo.On("ListPendingApplicationsByJob", mock.Anything, job.ID).
		Return([]models.JobApplication{*winner, loserA, loserB}, nil)
	mockNotifier.On("NotifyJobAccepted", mock.Anything, winner.DriverID, job.ID, winner.ID, job.Title).Return(nil)
	mockNotifier.On("NotifyJobRejected", mock.Anything, loserA.DriverID, job.ID, loserA.ID, job.Title, "").Return(nil)
	mockNotifier.On("NotifyJobRejected", mock.Anything, loserB.DriverID, job.ID, loserB.ID, job.Title, "").Return(nil)

	accepted, err := service.AcceptApplication(context.Background(), session.Session{UserID: ownerID}, winner.ID)

	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.DecidedAt)

	// One accept plus one rejection per competing application
	require.Len(t, updated, 3)
	rejections := 0
	for _, app := range updated {
		if app.ID == winner.ID {
			require.Equal(t, models.ApplicationStatusAccepted, app.Status)
			continue
		}
		rejections++
		require.Equal(t, models.ApplicationStatusRejected, app.Status)
		require.NotNil(t, app.RejectionReason)
		require.Equal(t, CascadeRejectionReason, *app.RejectionReason)
		require.NotNil(t, app.DecidedAt)
	}
	require.Equal(t, 2, rejections)

	mockRepo.AssertExpectations(t)
	mockNotifier.AssertExpectations(t)
}

func TestAcceptApplicationRequiresOwner(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newApplicationService(mockRepo, new(MockNotifier), config.MarketplaceConfig{})

	application := &models.JobApplication{
		ID:           uuid.New(),
		CargoOwnerID: uuid.New(),
		Status:       models.ApplicationStatusPending,
	}
	mockRepo.On("FindApplicationByID", mock.Anything, application.ID).Return(application, nil)

	_, err := service.AcceptApplication(context.Background(), session.Session{UserID: uuid.New()}, application.ID)

	require.Error(t, err)
	require.True(t, errs.IsKind(err, errs.KindValidation))
	mockRepo.AssertNotCalled(t, "WithTransaction", mock.Anything, mock.Anything)
}

func TestAcceptApplicationNotPendingConflicts(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newApplicationService(mockRepo, new(MockNotifier), config.MarketplaceConfig{})

	ownerID := uuid.New()
	application := &models.JobApplication{
		ID:           uuid.New(),
		CargoOwnerID: ownerID,
		Status:       models.ApplicationStatusRejected,
	}
	mockRepo.On("FindApplicationByID", mock.Anything, application.ID).Return(application, nil)

	_, err := service.AcceptApplication(context.Background(), session.Session{UserID: ownerID}, application.ID)

	require.Error(t, err)
	require.True(t, errs.IsKind(err, errs.KindConflict))
	mockRepo.AssertNotCalled(t, "WithTransaction", mock.Anything, mock.Anything)
}

func TestRejectApplicationStoresReason(t *testing.T) {
	mockRepo := new(MockRepository)
	mockNotifier := new(MockNotifier)
	service := newApplicationService(mockRepo, mockNotifier, config.MarketplaceConfig{})

	ownerID := uuid.New()
	application := &models.JobApplication{
		ID:           uuid.New(),
		JobID:        uuid.New(),
		DriverID:     uuid.New(),
		CargoOwnerID: ownerID,
		Status:       models.ApplicationStatusPending,
		JobInfo:      models.JobSnapshot{Title: "Timber haul"},
	}

	mockRepo.On("FindApplicationByID", mock.Anything, application.ID).Return(application, nil)
	mockRepo.On("UpdateApplication", mock.Anything, mock.AnythingOfType("*models.JobApplication")).Return(nil)
	mockNotifier.On("NotifyJobRejected", mock.Anything, application.DriverID, application.JobID, application.ID, "Timber haul", "bid too high").Return(nil)

	rejected, err := service.RejectApplication(context.Background(), session.Session{UserID: ownerID}, application.ID, "bid too high")

	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	require.Equal(t, "bid too high", *rejected.RejectionReason)
	mockNotifier.AssertExpectations(t)
}

func TestCompleteJobUpdatesDriverStats(t *testing.T) {
	mockRepo := new(MockRepository)
	mockNotifier := new(MockNotifier)
	service := newApplicationService(mockRepo, mockNotifier, config.MarketplaceConfig{})

	ownerID := uuid.New()
	driverID := uuid.New()
	application := &models.JobApplication{
		ID:           uuid.New(),
		JobID:        uuid.New(),
		DriverID:     driverID,
		CargoOwnerID: ownerID,
		BidAmount:    500,
		Status:       models.ApplicationStatusAccepted,
		JobInfo:      models.JobSnapshot{Title: "Fresh produce"},
	}
	driver := &models.DriverProfile{
		ID:            driverID,
		Rating:        4.0,
		CompletedJobs: 2,
		TotalEarnings: 1000,
	}

	var updatedDriver *models.DriverProfile
	mockRepo.On("FindApplicationByID", mock.Anything, application.ID).Return(application, nil)
	mockRepo.On("WithTransaction", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("UpdateApplication", mock.Anything, mock.AnythingOfType("*models.JobApplication")).Return(nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, application.JobID, models.JobStatusDelivered, (*uuid.UUID)(nil)).Return(nil)
	mockRepo.On("AppendJobStatusEvent", mock.Anything, mock.AnythingOfType("*models.JobStatusEvent")).Return(nil)
	mockRepo.On("FindDriverByID", mock.Anything, driverID).Return(driver, nil)
	mockRepo.On("UpdateDriver", mock.Anything, mock.AnythingOfType("*models.DriverProfile")).
		Run(func(args mock.Arguments) {
			updatedDriver = args.Get(1).(*models.DriverProfile)
		}).Return(nil)
	mockNotifier.On("NotifyPaymentReceived", mock.Anything, driverID, application.JobID, 500.0, "Fresh produce").Return(nil)
	mockNotifier.On("NotifyJobStatusUpdate", mock.Anything, ownerID, application.JobID, "Fresh produce", models.JobStatusDelivered).Return(nil)

	completed, err := service.CompleteJob(context.Background(), session.Session{UserID: ownerID}, application.ID, 5.0)

	require.NoError(t, err)
	require.Equal(t, models.ApplicationStatusCompleted, completed.Status)
	require.NotNil(t, completed.FinalAmount)
	require.Equal(t, 500.0, *completed.FinalAmount)
	require.NotNil(t, completed.OwnerRating)
	require.Equal(t, 5.0, *completed.OwnerRating)

	// Running average: (4.0*2 + 5.0) / 3
	require.NotNil(t, updatedDriver)
	require.Equal(t, 3, updatedDriver.CompletedJobs)
	require.InDelta(t, 13.0/3.0, updatedDriver.Rating, 0.0001)
	require.Equal(t, 1500.0, updatedDriver.TotalEarnings)

	mockRepo.AssertExpectations(t)
	mockNotifier.AssertExpectations(t)
}

func TestCompleteJobTwiceConflicts(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newApplicationService(mockRepo, new(MockNotifier), config.MarketplaceConfig{})

	ownerID := uuid.New()
	application := &models.JobApplication{
		ID:           uuid.New(),
		CargoOwnerID: ownerID,
		Status:       models.ApplicationStatusCompleted,
	}
	mockRepo.On("FindApplicationByID", mock.Anything, application.ID).Return(application, nil)

	_, err := service.CompleteJob(context.Background(), session.Session{UserID: ownerID}, application.ID, 4.0)

	require.Error(t, err)
	require.True(t, errs.IsKind(err, errs.KindConflict))
	mockRepo.AssertNotCalled(t, "WithTransaction", mock.Anything, mock.Anything)
}

func TestCompleteJobRejectsOutOfRangeRating(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newApplicationService(mockRepo, new(MockNotifier), config.MarketplaceConfig{})

	ownerID := uuid.New()
	application := &models.JobApplication{
		ID:           uuid.New(),
		CargoOwnerID: ownerID,
		Status:       models.ApplicationStatusAccepted,
	}
	mockRepo.On("FindApplicationByID", mock.Anything, application.ID).Return(application, nil)

	_, err := service.CompleteJob(context.Background(), session.Session{UserID: ownerID}, application.ID, 5.5)

	require.Error(t, err)
	require.True(t, errs.IsKind(err, errs.KindValidation))
}
