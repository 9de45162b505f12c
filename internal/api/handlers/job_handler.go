package handlers

import (
	"net/http"
	"strconv"

	"example.com/cargomarket/internal/models"
	"example.com/cargomarket/internal/services"
	"example.com/cargomarket/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// JobHandler handles job posting HTTP requests
type JobHandler struct {
	jobService *services.JobService
	matching   *services.MatchingService
	tracer     tracing.Tracer
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobService *services.JobService, matching *services.MatchingService, tracer tracing.Tracer) *JobHandler {
	return &JobHandler{
		jobService: jobService,
		matching:   matching,
		tracer:     tracer,
	}
}

// CreateJobRequest represents an incoming job posting request
type CreateJobRequest struct {
	Title               string          `json:"title" binding:"required"`
	Description         string          `json:"description"`
	CargoType           string          `json:"cargo_type" binding:"required"`
	WeightKg            float64         `json:"weight_kg"`
	Value               float64         `json:"value"`
	Pickup              models.Location `json:"pickup" binding:"required"`
	Delivery            models.Location `json:"delivery" binding:"required"`
	Budget              float64         `json:"budget" binding:"required"`
	RequiredVehicleType string          `json:"required_vehicle_type"`
	Urgency             string          `json:"urgency"`
	EstimatedDistanceKm *float64        `json:"estimated_distance_km"`
}

// HandleCreateJob posts a new job
func (h *JobHandler) HandleCreateJob(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-job")
	defer h.tracer.EndTransaction(txn)

	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid job request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	h.tracer.AddAttribute(txn, "owner_id", sess.UserID.String())
	h.tracer.AddAttribute(txn, "budget", req.Budget)

	job, err := h.jobService.CreateJob(c.Request.Context(), sess, services.CreateJobInput{
		Title:               req.Title,
		Description:         req.Description,
		CargoType:           req.CargoType,
		WeightKg:            req.WeightKg,
		Value:               req.Value,
		Pickup:              req.Pickup,
		Delivery:            req.Delivery,
		Budget:              req.Budget,
		RequiredVehicleType: req.RequiredVehicleType,
		Urgency:             req.Urgency,
		EstimatedDistanceKm: req.EstimatedDistanceKm,
	})
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// HandleGetJob fetches a single job
func (h *JobHandler) HandleGetJob(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	job, err := h.jobService.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// HandleListJobs lists the caller's job postings
func (h *JobHandler) HandleListJobs(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	jobs, err := h.jobService.ListOwnerJobs(c.Request.Context(), sess.UserID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// HandleCancelJob cancels a pending job
func (h *JobHandler) HandleCancelJob(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	job, err := h.jobService.CancelJob(c.Request.Context(), sess, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// HandleSearchJobs runs a full-text search over open postings
func (h *JobHandler) HandleSearchJobs(c *gin.Context) {
	query := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	results, err := h.jobService.SearchJobs(c.Request.Context(), query, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// HandleRecommendedDrivers returns the best-scoring drivers for a job
func (h *JobHandler) HandleRecommendedDrivers(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	matches, err := h.matching.RecommendedDrivers(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// RegisterRoutes registers the handler's routes
func (h *JobHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/jobs", h.HandleCreateJob)
	router.GET("/jobs", h.HandleListJobs)
	router.GET("/jobs/search", h.HandleSearchJobs)
	router.GET("/jobs/:id", h.HandleGetJob)
	router.POST("/jobs/:id/cancel", h.HandleCancelJob)
	router.GET("/jobs/:id/recommended-drivers", h.HandleRecommendedDrivers)
}
