package handlers

import (
	"net/http"

	"example.com/cargomarket/internal/services"

	"github.com/gin-gonic/gin"
)

// DashboardHandler handles dashboard and analytics HTTP requests
type DashboardHandler struct {
	dashboardService *services.DashboardService
	matching         *services.MatchingService
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboardService *services.DashboardService, matching *services.MatchingService) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		matching:         matching,
	}
}

// HandleOwnerDashboard returns the merged cargo-owner view
func (h *DashboardHandler) HandleOwnerDashboard(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	dashboard, err := h.dashboardService.GetOwnerDashboard(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dashboard)
}

// HandleDriverDashboard returns the merged driver view
func (h *DashboardHandler) HandleDriverDashboard(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	dashboard, err := h.dashboardService.GetDriverDashboard(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dashboard)
}

// HandleMarketInsights compares the caller's pricing against the market
func (h *DashboardHandler) HandleMarketInsights(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	insights, err := h.dashboardService.GetMarketInsights(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, insights)
}

// HandleDriverAnalytics returns the caller's performance summary
func (h *DashboardHandler) HandleDriverAnalytics(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	analytics, err := h.dashboardService.GetDriverAnalytics(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, analytics)
}

// HandleRecommendedJobs returns the best-scoring open jobs for the caller
func (h *DashboardHandler) HandleRecommendedJobs(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	matches, err := h.matching.RecommendedJobsForDriver(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// RegisterRoutes registers the handler's routes
func (h *DashboardHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/dashboard/owner", h.HandleOwnerDashboard)
	router.GET("/dashboard/driver", h.HandleDriverDashboard)
	router.GET("/dashboard/market-insights", h.HandleMarketInsights)
	router.GET("/dashboard/driver-analytics", h.HandleDriverAnalytics)
	router.GET("/dashboard/recommended-jobs", h.HandleRecommendedJobs)
}
