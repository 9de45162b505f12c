package services

import (
	"context"
	"testing"

	"example.com/cargomarket/config"
	"example.com/cargomarket/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMatchingService(repo *MockRepository, cfg config.MarketplaceConfig) *MatchingService {
	return NewMatchingService(repo, cfg)
}

func TestScoreDriverForJobPerfectMatch(t *testing.T) {
	service := newMatchingService(new(MockRepository), config.MarketplaceConfig{})

	job := &models.JobPosting{
		RequiredVehicleType: "flatbed truck",
		Pickup:              models.Location{Address: "Industrial Area", City: "Nairobi"},
	}
	driver := &models.DriverProfile{
		VehicleType:     "flatbed truck",
		Rating:          5.0,
		CompletedJobs:   200,
		CurrentLocation: "Nairobi",
		Availability:    models.DriverAvailable,
	}

	// Every bonus fires and the raw total clamps to the ceiling
	require.Equal(t, 100, service.ScoreDriverForJob(job, driver))
}

func TestScoreDriverForJobPartialMatch(t *testing.T) {
	service := newMatchingService(new(MockRepository), config.MarketplaceConfig{})

	job := &models.JobPosting{
		RequiredVehicleType: "refrigerated",
		Pickup:              models.Location{City: "Mombasa"},
	}
	driver := &models.DriverProfile{
		VehicleType:     "flatbed",
		Rating:          4.0,
		CompletedJobs:   50,
		CurrentLocation: "Nakuru",
		Availability:    models.DriverAvailable,
	}

	// 50 base + 10 rating + 5 experience + 10 availability
	require.Equal(t, 75, service.ScoreDriverForJob(job, driver))
}

func TestScoreDriverForJobLowRatingDragsScoreDown(t *testing.T) {
	service := newMatchingService(new(MockRepository), config.MarketplaceConfig{})

	job := &models.JobPosting{RequiredVehicleType: "van"}
	driver := &models.DriverProfile{
		VehicleType:  "truck",
		Rating:       1.0,
		Availability: models.DriverOffline,
	}

	// 50 base - 20 rating penalty
	require.Equal(t, 30, service.ScoreDriverForJob(job, driver))
}

func TestScoreJobForDriverExactCityBeatsSubstring(t *testing.T) {
	service := newMatchingService(new(MockRepository), config.MarketplaceConfig{})

	driver := &models.DriverProfile{
		VehicleType:     "box truck",
		Rating:          3.0,
		CurrentLocation: "Nairobi",
	}

	exact := &models.JobPosting{Pickup: models.Location{City: "Nairobi"}}
	partial := &models.JobPosting{Pickup: models.Location{City: "Nairobi West"}}

	// 50 base + 20 exact city vs 50 base + 10 substring city
	require.Equal(t, 70, service.ScoreJobForDriver(driver, exact, 0))
	require.Equal(t, 60, service.ScoreJobForDriver(driver, partial, 0))
}

func TestScoreJobForDriverBudgetFit(t *testing.T) {
	service := newMatchingService(new(MockRepository), config.MarketplaceConfig{})

	driver := &models.DriverProfile{Rating: 3.0}

	within := &models.JobPosting{Budget: 1100}
	above := &models.JobPosting{Budget: 1300}

	// +15 only inside the 20% band around the driver's average bid
	require.Equal(t, 65, service.ScoreJobForDriver(driver, within, 1000))
	require.Equal(t, 50, service.ScoreJobForDriver(driver, above, 1000))

	// No bid history means no budget signal either way
	require.Equal(t, 50, service.ScoreJobForDriver(driver, within, 0))
}

func TestScoreJobForDriverUrgencyBonus(t *testing.T) {
	service := newMatchingService(new(MockRepository), config.MarketplaceConfig{})

	driver := &models.DriverProfile{Rating: 3.0}

	standard := &models.JobPosting{Urgency: models.UrgencyStandard}
	urgent := &models.JobPosting{Urgency: models.UrgencyUrgent}
	express := &models.JobPosting{Urgency: models.UrgencyExpress}

	require.Equal(t, 50, service.ScoreJobForDriver(driver, standard, 0))
	require.Equal(t, 60, service.ScoreJobForDriver(driver, urgent, 0))
	require.Equal(t, 60, service.ScoreJobForDriver(driver, express, 0))
}

func TestEstimateCost(t *testing.T) {
	service := newMatchingService(new(MockRepository), config.MarketplaceConfig{})

	distance := 200.0
	job := &models.JobPosting{
		Urgency:             models.UrgencyUrgent,
		EstimatedDistanceKm: &distance,
	}
	driver := &models.DriverProfile{PricePerKm: 3.0}

	require.InDelta(t, 780.0, service.EstimateCost(job, driver), 0.001)
}

func TestEstimateCostFallsBackToDefaults(t *testing.T) {
	service := newMatchingService(new(MockRepository), config.MarketplaceConfig{})

	job := &models.JobPosting{Urgency: models.UrgencyStandard}
	driver := &models.DriverProfile{}

	// default rate * default distance
	require.InDelta(t, 250.0, service.EstimateCost(job, driver), 0.001)
}

func TestRecommendedDriversSortsAndTruncates(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newMatchingService(mockRepo, config.MarketplaceConfig{RecommendedDriversLimit: 2})

	jobID := uuid.New()
	job := &models.JobPosting{ID: jobID, RequiredVehicleType: "flatbed"}

	weak := models.DriverProfile{ID: uuid.New(), VehicleType: "van", Rating: 3.0}
	strong := models.DriverProfile{ID: uuid.New(), VehicleType: "flatbed", Rating: 5.0, Availability: models.DriverAvailable}
	middle := models.DriverProfile{ID: uuid.New(), VehicleType: "flatbed", Rating: 4.0}

	mockRepo.On("FindJobByID", mock.Anything, jobID).Return(job, nil)
	mockRepo.On("ListAvailableDrivers", mock.Anything, candidatePoolSize).
		Return([]models.DriverProfile{weak, strong, middle}, nil)

	matches, err := service.RecommendedDrivers(context.Background(), jobID)

	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, strong.ID, matches[0].Driver.ID)
	require.Equal(t, middle.ID, matches[1].Driver.ID)
	require.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
	mockRepo.AssertExpectations(t)
}

func TestRecommendedJobsFiltersWeakMatches(t *testing.T) {
	mockRepo := new(MockRepository)
	service := newMatchingService(mockRepo, config.MarketplaceConfig{RecommendedJobsLimit: 5})

	driverID := uuid.New()
	driver := &models.DriverProfile{
		ID:              driverID,
		VehicleType:     "flatbed",
		Rating:          4.0,
		CurrentLocation: "Nairobi",
	}

	goodJob := models.JobPosting{
		ID:                  uuid.New(),
		RequiredVehicleType: "flatbed",
		Pickup:              models.Location{City: "Nairobi"},
	}
	weakJob := models.JobPosting{
		ID:                  uuid.New(),
		RequiredVehicleType: "tanker",
		Pickup:              models.Location{City: "Kisumu"},
	}

	mockRepo.On("FindDriverByID", mock.Anything, driverID).Return(driver, nil)
	mockRepo.On("ListApplicationsByDriver", mock.Anything, driverID).Return([]models.JobApplication{}, nil)
	mockRepo.On("ListJobsByStatus", mock.Anything, models.JobStatusPending, candidatePoolSize).
		Return([]models.JobPosting{goodJob, weakJob}, nil)

	matches, err := service.RecommendedJobsForDriver(context.Background(), driverID)

	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, goodJob.ID, matches[0].Job.ID)
	require.Greater(t, matches[0].Score, 60)
	mockRepo.AssertExpectations(t)
}

func TestSubstringMatchIgnoresCaseAndEmpties(t *testing.T) {
	require.True(t, substringMatch("Flatbed Truck", "flatbed"))
	require.True(t, substringMatch("nairobi", "Nairobi West"))
	require.False(t, substringMatch("", "flatbed"))
	require.False(t, substringMatch("flatbed", ""))
	require.False(t, substringMatch("van", "tanker"))
}
