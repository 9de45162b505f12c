package services

import (
	"context"
	"time"

	"example.com/cargomarket/config"
	"example.com/cargomarket/internal/cache"
	"example.com/cargomarket/internal/errs"
	"example.com/cargomarket/internal/models"
	"example.com/cargomarket/internal/realtime"
	"example.com/cargomarket/internal/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// dashboardListLimit bounds how many rows each dashboard section loads
const dashboardListLimit = 50

// marketSampleTTL is how long the market pricing sample stays cached
const marketSampleTTL = 5 * time.Minute

// Demand trend labels
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// trendThresholdPct is the band around zero treated as a stable trend
const trendThresholdPct = 10.0

// DashboardService aggregates the per-user views: merged dashboards for
// owners and drivers, market pricing insights, and driver analytics.
type DashboardService struct {
	repo     repository.Repository
	matching *MatchingService
	cache    *cache.RedisCache
	feed     *realtime.Feed
	cfg      config.MarketplaceConfig
}

// NewDashboardService creates a new dashboard aggregation service
func NewDashboardService(repo repository.Repository, matching *MatchingService, redisCache *cache.RedisCache, feed *realtime.Feed, cfg config.MarketplaceConfig) *DashboardService {
	return &DashboardService{
		repo:     repo,
		matching: matching,
		cache:    redisCache,
		feed:     feed,
		cfg:      cfg,
	}
}

// OwnerDashboard is the merged view for a cargo owner
type OwnerDashboard struct {
	Jobs                []models.JobPosting     `json:"jobs"`
	Applications        []models.JobApplication `json:"applications"`
	UnreadNotifications int64                   `json:"unread_notifications"`
}

// DriverDashboard is the merged view for a driver
type DriverDashboard struct {
	Applications        []models.JobApplication `json:"applications"`
	ActiveJobs          []models.JobPosting     `json:"active_jobs"`
	RecommendedJobs     []JobMatch              `json:"recommended_jobs"`
	UnreadNotifications int64                   `json:"unread_notifications"`
}

// MarketInsights compares an owner's pricing against the wider market
type MarketInsights struct {
	OwnerAverageBudget  float64  `json:"owner_average_budget"`
	MarketAverageBudget float64  `json:"market_average_budget"`
	SampleSize          int      `json:"sample_size"`
	DemandTrend         string   `json:"demand_trend"`
	DemandChangePct     float64  `json:"demand_change_pct"`
	Recommendations     []string `json:"recommendations"`
}

// DriverAnalytics summarizes a driver's marketplace performance
type DriverAnalytics struct {
	TotalApplications    int     `json:"total_applications"`
	AcceptedApplications int     `json:"accepted_applications"`
	CompletedJobs        int     `json:"completed_jobs"`
	AcceptanceRate       float64 `json:"acceptance_rate"`
	CompletionRate       float64 `json:"completion_rate"`
	TotalEarnings        float64 `json:"total_earnings"`
	AverageEarnings      float64 `json:"average_earnings"`
	CurrentMonthApps     int64   `json:"current_month_applications"`
	PreviousMonthApps    int64   `json:"previous_month_applications"`
	ApplicationTrend     string  `json:"application_trend"`
	ApplicationTrendPct  float64 `json:"application_trend_pct"`
}

// GetOwnerDashboard builds the merged owner view in one call
func (s *DashboardService) GetOwnerDashboard(ctx context.Context, ownerID uuid.UUID) (*OwnerDashboard, error) {
	jobs, err := s.repo.ListJobsByOwner(ctx, ownerID, dashboardListLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load owner jobs")
	}

	applications, err := s.repo.ListApplicationsByOwner(ctx, ownerID, dashboardListLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load owner applications")
	}

	unread, err := s.repo.CountUnreadNotifications(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count unread notifications")
	}

	return &OwnerDashboard{
		Jobs:                jobs,
		Applications:        applications,
		UnreadNotifications: unread,
	}, nil
}

// GetDriverDashboard builds the merged driver view. Active jobs are
// joined one fetch per accepted application; application counts per
// driver are small enough that the per-row reads stay cheap.
func (s *DashboardService) GetDriverDashboard(ctx context.Context, driverID uuid.UUID) (*DriverDashboard, error) {
	applications, err := s.repo.ListApplicationsByDriver(ctx, driverID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load driver applications")
	}

	activeJobs := make([]models.JobPosting, 0)
	for i := range applications {
		if applications[i].Status != models.ApplicationStatusAccepted {
			continue
		}
		job, err := s.repo.FindJobByID(ctx, applications[i].JobID)
		if err != nil {
			if errs.IsKind(err, errs.KindNotFound) {
				log.Warn().Str("job_id", applications[i].JobID.String()).Msg("Accepted application references missing job")
				continue
			}
			return nil, errors.Wrap(err, "failed to load active job")
		}
		activeJobs = append(activeJobs, *job)
	}

	recommended, err := s.matching.RecommendedJobsForDriver(ctx, driverID)
	if err != nil {
		// Recommendations are decoration on the dashboard, not its core
		log.Warn().Err(err).Str("driver_id", driverID.String()).Msg("Failed to compute job recommendations")
		recommended = []JobMatch{}
	}

	unread, err := s.repo.CountUnreadNotifications(ctx, driverID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count unread notifications")
	}

	return &DriverDashboard{
		Applications:        applications,
		ActiveJobs:          activeJobs,
		RecommendedJobs:     recommended,
		UnreadNotifications: unread,
	}, nil
}

// SubscribeOwnerDashboard recomputes and delivers the owner dashboard on
// every change to the owner's jobs, applications or notifications. The
// returned func stops the subscription.
func (s *DashboardService) SubscribeOwnerDashboard(ctx context.Context, ownerID uuid.UUID, callback func(*OwnerDashboard)) (func(), error) {
	channels := []string{
		realtime.UserChannel(ownerID, realtime.CollectionJobs),
		realtime.UserChannel(ownerID, realtime.CollectionApplications),
		realtime.UserChannel(ownerID, realtime.CollectionNotifications),
	}

	return s.feed.Subscribe(ctx, channels, func(event realtime.Event) {
		dashboard, err := s.GetOwnerDashboard(ctx, ownerID)
		if err != nil {
			log.Error().Err(err).Str("owner_id", ownerID.String()).Msg("Failed to refresh owner dashboard")
			return
		}
		callback(dashboard)
	})
}

// SubscribeDriverDashboard is the driver-side equivalent of
// SubscribeOwnerDashboard.
func (s *DashboardService) SubscribeDriverDashboard(ctx context.Context, driverID uuid.UUID, callback func(*DriverDashboard)) (func(), error) {
	channels := []string{
		realtime.UserChannel(driverID, realtime.CollectionJobs),
		realtime.UserChannel(driverID, realtime.CollectionApplications),
		realtime.UserChannel(driverID, realtime.CollectionNotifications),
	}

	return s.feed.Subscribe(ctx, channels, func(event realtime.Event) {
		dashboard, err := s.GetDriverDashboard(ctx, driverID)
		if err != nil {
			log.Error().Err(err).Str("driver_id", driverID.String()).Msg("Failed to refresh driver dashboard")
			return
		}
		callback(dashboard)
	})
}

// GetMarketInsights compares the owner's average budget against a market
// sample and reads the demand trend from recent posting volume.
func (s *DashboardService) GetMarketInsights(ctx context.Context, ownerID uuid.UUID) (*MarketInsights, error) {
	ownerJobs, err := s.repo.ListJobsByOwner(ctx, ownerID, dashboardListLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load owner jobs for insights")
	}

	sample, err := s.marketSample(ctx)
	if err != nil {
		return nil, err
	}

	insights := &MarketInsights{
		OwnerAverageBudget:  averageBudget(ownerJobs),
		MarketAverageBudget: averageBudget(sample),
		SampleSize:          len(sample),
	}

	trend, pct, err := s.demandTrend(ctx)
	if err != nil {
		return nil, err
	}
	insights.DemandTrend = trend
	insights.DemandChangePct = pct

	insights.Recommendations = buildRecommendations(insights.OwnerAverageBudget, insights.MarketAverageBudget, sample)

	return insights, nil
}

// GetDriverAnalytics computes the driver's rates, earnings and
// month-over-month application volume.
func (s *DashboardService) GetDriverAnalytics(ctx context.Context, driverID uuid.UUID) (*DriverAnalytics, error) {
	applications, err := s.repo.ListApplicationsByDriver(ctx, driverID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load driver applications for analytics")
	}

	analytics := &DriverAnalytics{TotalApplications: len(applications)}

	for i := range applications {
		switch applications[i].Status {
		case models.ApplicationStatusAccepted:
			analytics.AcceptedApplications++
		case models.ApplicationStatusCompleted:
			analytics.CompletedJobs++
			if applications[i].FinalAmount != nil {
				analytics.TotalEarnings += *applications[i].FinalAmount
			} else {
				analytics.TotalEarnings += applications[i].BidAmount
			}
		}
	}

	decided := analytics.AcceptedApplications + analytics.CompletedJobs
	if analytics.TotalApplications > 0 {
		analytics.AcceptanceRate = float64(decided) / float64(analytics.TotalApplications) * 100
	}
	if decided > 0 {
		analytics.CompletionRate = float64(analytics.CompletedJobs) / float64(decided) * 100
	}
	if analytics.CompletedJobs > 0 {
		analytics.AverageEarnings = analytics.TotalEarnings / float64(analytics.CompletedJobs)
	}

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prevMonthStart := monthStart.AddDate(0, -1, 0)

	current, err := s.repo.CountApplicationsByDriverBetween(ctx, driverID, monthStart, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count current month applications")
	}
	previous, err := s.repo.CountApplicationsByDriverBetween(ctx, driverID, prevMonthStart, monthStart)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count previous month applications")
	}

	analytics.CurrentMonthApps = current
	analytics.PreviousMonthApps = previous
	analytics.ApplicationTrend, analytics.ApplicationTrendPct = classifyTrend(float64(current), float64(previous))

	return analytics, nil
}

// marketSample returns a recent sample of job postings for pricing
// comparisons, cached in Redis to keep the insights endpoint off the
// jobs table on every call.
func (s *DashboardService) marketSample(ctx context.Context) ([]models.JobPosting, error) {
	var sample []models.JobPosting
	if s.cache != nil {
		if err := s.cache.Get(ctx, cache.MarketSampleKey, &sample); err == nil {
			return sample, nil
		}
	}

	size := s.cfg.MarketSampleSize
	if size <= 0 {
		size = 100
	}

	sample, err := s.repo.SampleMarketJobs(ctx, size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sample market jobs")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.MarketSampleKey, sample, marketSampleTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache market sample")
		}
	}

	return sample, nil
}

// demandTrend compares the trailing seven days of postings against the
// seven days before them.
func (s *DashboardService) demandTrend(ctx context.Context) (string, float64, error) {
	now := time.Now()
	weekAgo := now.AddDate(0, 0, -7)
	twoWeeksAgo := now.AddDate(0, 0, -14)

	current, err := s.repo.CountJobsCreatedBetween(ctx, weekAgo, now)
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to count recent jobs")
	}
	previous, err := s.repo.CountJobsCreatedBetween(ctx, twoWeeksAgo, weekAgo)
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to count prior period jobs")
	}

	trend, pct := classifyTrend(float64(current), float64(previous))
	return trend, pct, nil
}

// classifyTrend labels the change between two period counts. Changes
// within the threshold band read as stable; a jump from zero reads as
// a full increase.
func classifyTrend(current, previous float64) (string, float64) {
	var pct float64
	switch {
	case previous > 0:
		pct = (current - previous) / previous * 100
	case current > 0:
		pct = 100
	default:
		return TrendStable, 0
	}

	switch {
	case pct > trendThresholdPct:
		return TrendIncreasing, pct
	case pct < -trendThresholdPct:
		return TrendDecreasing, pct
	default:
		return TrendStable, pct
	}
}

func averageBudget(jobs []models.JobPosting) float64 {
	if len(jobs) == 0 {
		return 0
	}
	var total float64
	for i := range jobs {
		total += jobs[i].Budget
	}
	return total / float64(len(jobs))
}

// buildRecommendations emits pricing advice from the owner/market
// comparison and the sample's urgency mix.
func buildRecommendations(ownerAvg, marketAvg float64, sample []models.JobPosting) []string {
	recommendations := make([]string, 0, 3)

	if ownerAvg > 0 && marketAvg > 0 {
		if ownerAvg > marketAvg*1.2 {
			recommendations = append(recommendations, "Your average budget is more than 20% above the market; consider lowering budgets to attract competitive bids")
		} else if ownerAvg < marketAvg*0.8 {
			recommendations = append(recommendations, "Your average budget is more than 20% below the market; consider raising budgets to attract more drivers")
		}
	}

	if len(sample) > 0 {
		urgent := 0
		for i := range sample {
			if sample[i].Urgency != models.UrgencyStandard && sample[i].Urgency != "" {
				urgent++
			}
		}
		if float64(urgent)/float64(len(sample)) > 0.3 {
			recommendations = append(recommendations, "Urgent shipments dominate the market right now; marking time-sensitive jobs urgent may improve visibility")
		}
	}

	return recommendations
}
