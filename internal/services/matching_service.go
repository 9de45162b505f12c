package services

import (
	"context"
	"math"
	"sort"
	"strings"

	"example.com/cargomarket/config"
	"example.com/cargomarket/internal/models"
	"example.com/cargomarket/internal/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// candidatePoolSize bounds how many candidates are fetched for scoring
const candidatePoolSize = 200

const (
	defaultPricePerKm = 2.5
	defaultDistanceKm = 100.0
	urgentMultiplier  = 1.3
)

// MatchingService computes heuristic compatibility scores between jobs
// and drivers, and derives recommendation lists from them.
type MatchingService struct {
	repo repository.Repository
	cfg  config.MarketplaceConfig
}

// NewMatchingService creates a new matching service
func NewMatchingService(repo repository.Repository, cfg config.MarketplaceConfig) *MatchingService {
	return &MatchingService{
		repo: repo,
		cfg:  cfg,
	}
}

// DriverMatch is one scored driver candidate for a job
type DriverMatch struct {
	Driver        models.DriverProfile `json:"driver"`
	Score         int                  `json:"score"`
	EstimatedCost float64              `json:"estimated_cost"`
}

// JobMatch is one scored job candidate for a driver
type JobMatch struct {
	Job               models.JobPosting `json:"job"`
	Score             int               `json:"score"`
	EstimatedEarnings float64           `json:"estimated_earnings"`
}

// ScoreDriverForJob scores how well a driver fits a job, in [0,100].
// This is a heuristic, not a ranking guarantee: ties keep the candidate
// list's insertion order.
func (s *MatchingService) ScoreDriverForJob(job *models.JobPosting, driver *models.DriverProfile) int {
	score := 50.0

	// Vehicle-type fit: substring match in either direction
	if substringMatch(driver.VehicleType, job.RequiredVehicleType) {
		score += 20
	}

	// Rating and experience
	score += (driver.Rating - 3) * 10
	score += math.Min(float64(driver.CompletedJobs)/10, 15)

	// Location proximity
	if substringMatch(job.Pickup.Address, driver.CurrentLocation) ||
		substringMatch(job.Pickup.City, driver.CurrentLocation) {
		score += 15
	}

	// Availability
	if driver.Availability == models.DriverAvailable {
		score += 10
	}

	return clampScore(score)
}

// ScoreJobForDriver scores how attractive a job is for a driver, in
// [0,100]. The weight table differs from ScoreDriverForJob and the two
// must stay separate: the directions are not symmetric.
func (s *MatchingService) ScoreJobForDriver(driver *models.DriverProfile, job *models.JobPosting, avgBid float64) int {
	score := 50.0

	// Vehicle-type fit weighs heavier in this direction
	if substringMatch(driver.VehicleType, job.RequiredVehicleType) {
		score += 25
	}

	// City match: exact beats substring
	driverCity := strings.ToLower(strings.TrimSpace(driver.CurrentLocation))
	pickupCity := strings.ToLower(strings.TrimSpace(job.Pickup.City))
	switch {
	case driverCity != "" && driverCity == pickupCity:
		score += 20
	case substringMatch(job.Pickup.City, driver.CurrentLocation):
		score += 10
	}

	// Rating and experience
	score += (driver.Rating - 3) * 10
	score += math.Min(float64(driver.CompletedJobs)/10, 10)

	// Budget fit: within ±20% of the driver's historical average bid
	if avgBid > 0 && job.Budget >= avgBid*0.8 && job.Budget <= avgBid*1.2 {
		score += 15
	}

	// Urgent work pays better
	if job.Urgency != models.UrgencyStandard && job.Urgency != "" {
		score += 10
	}

	return clampScore(score)
}

// EstimateCost estimates what a job will cost with a given driver
func (s *MatchingService) EstimateCost(job *models.JobPosting, driver *models.DriverProfile) float64 {
	rate := driver.PricePerKm
	if rate <= 0 {
		rate = defaultPricePerKm
	}

	distance := defaultDistanceKm
	if job.EstimatedDistanceKm != nil && *job.EstimatedDistanceKm > 0 {
		distance = *job.EstimatedDistanceKm
	}

	multiplier := 1.0
	if job.Urgency == models.UrgencyUrgent {
		multiplier = urgentMultiplier
	}

	return rate * distance * multiplier
}

// RecommendedDrivers returns the best-scoring available drivers for a
// job, highest score first.
func (s *MatchingService) RecommendedDrivers(ctx context.Context, jobID uuid.UUID) ([]DriverMatch, error) {
	job, err := s.repo.FindJobByID(ctx, jobID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load job for driver recommendations")
	}

	drivers, err := s.repo.ListAvailableDrivers(ctx, candidatePoolSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list driver candidates")
	}

	matches := make([]DriverMatch, 0, len(drivers))
	for i := range drivers {
		driver := drivers[i]
		matches = append(matches, DriverMatch{
			Driver:        driver,
			Score:         s.ScoreDriverForJob(job, &driver),
			EstimatedCost: s.EstimateCost(job, &driver),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	limit := s.cfg.RecommendedDriversLimit
	if limit <= 0 {
		limit = 10
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// RecommendedJobsForDriver returns the best-scoring open jobs for a
// driver. Candidates scoring 60 or below are dropped before truncation.
func (s *MatchingService) RecommendedJobsForDriver(ctx context.Context, driverID uuid.UUID) ([]JobMatch, error) {
	driver, err := s.repo.FindDriverByID(ctx, driverID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load driver for job recommendations")
	}

	avgBid, err := s.averageBid(ctx, driverID)
	if err != nil {
		return nil, err
	}

	jobs, err := s.repo.ListJobsByStatus(ctx, models.JobStatusPending, candidatePoolSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list job candidates")
	}

	matches := make([]JobMatch, 0, len(jobs))
	for i := range jobs {
		job := jobs[i]
		score := s.ScoreJobForDriver(driver, &job, avgBid)
		if score <= 60 {
			continue
		}
		matches = append(matches, JobMatch{
			Job:               job,
			Score:             score,
			EstimatedEarnings: s.EstimateCost(&job, driver),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	limit := s.cfg.RecommendedJobsLimit
	if limit <= 0 {
		limit = 5
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// averageBid computes the driver's historical average bid amount
func (s *MatchingService) averageBid(ctx context.Context, driverID uuid.UUID) (float64, error) {
	apps, err := s.repo.ListApplicationsByDriver(ctx, driverID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to load driver bid history")
	}
	if len(apps) == 0 {
		return 0, nil
	}

	var total float64
	for _, app := range apps {
		total += app.BidAmount
	}
	return total / float64(len(apps)), nil
}

// substringMatch reports whether one non-empty string contains the
// other, case-insensitively
func substringMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// clampScore bounds a raw score to [0,100] and rounds to an integer
func clampScore(score float64) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(math.Round(score))
}
