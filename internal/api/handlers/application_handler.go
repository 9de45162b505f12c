package handlers

import (
	"net/http"

	"example.com/cargomarket/internal/services"
	"example.com/cargomarket/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ApplicationHandler handles job application HTTP requests
type ApplicationHandler struct {
	applicationService *services.ApplicationService
	tracer             tracing.Tracer
}

// NewApplicationHandler creates a new application handler
func NewApplicationHandler(applicationService *services.ApplicationService, tracer tracing.Tracer) *ApplicationHandler {
	return &ApplicationHandler{
		applicationService: applicationService,
		tracer:             tracer,
	}
}

// SubmitApplicationRequest represents a driver's bid on a job
type SubmitApplicationRequest struct {
	JobID     uuid.UUID `json:"job_id" binding:"required"`
	BidAmount float64   `json:"bid_amount" binding:"required"`
	Message   string    `json:"message"`
}

// RejectApplicationRequest carries the owner's rejection reason
type RejectApplicationRequest struct {
	Reason string `json:"reason"`
}

// CompleteJobRequest carries the owner's rating of the driver
type CompleteJobRequest struct {
	Rating float64 `json:"rating"`
}

// HandleSubmitApplication submits a driver's bid
func (h *ApplicationHandler) HandleSubmitApplication(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-submit-application")
	defer h.tracer.EndTransaction(txn)

	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	var req SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error().Err(err).Msg("Invalid application request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		h.tracer.RecordError(txn, err)
		return
	}

	h.tracer.AddAttribute(txn, "job_id", req.JobID.String())
	h.tracer.AddAttribute(txn, "bid_amount", req.BidAmount)

	application, err := h.applicationService.SubmitApplication(c.Request.Context(), sess, services.SubmitApplicationInput{
		JobID:     req.JobID,
		BidAmount: req.BidAmount,
		Message:   req.Message,
	})
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, application)
}

// HandleAcceptApplication accepts an application and assigns the job
func (h *ApplicationHandler) HandleAcceptApplication(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-accept-application")
	defer h.tracer.EndTransaction(txn)

	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	application, err := h.applicationService.AcceptApplication(c.Request.Context(), sess, id)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, application)
}

// HandleRejectApplication rejects a single application
func (h *ApplicationHandler) HandleRejectApplication(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req RejectApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	application, err := h.applicationService.RejectApplication(c.Request.Context(), sess, id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, application)
}

// HandleCompleteJob finalizes delivery and payment for an application
func (h *ApplicationHandler) HandleCompleteJob(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-complete-job")
	defer h.tracer.EndTransaction(txn)

	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req CompleteJobRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	application, err := h.applicationService.CompleteJob(c.Request.Context(), sess, id, req.Rating)
	if err != nil {
		h.tracer.RecordError(txn, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, application)
}

// RegisterRoutes registers the handler's routes
func (h *ApplicationHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/applications", h.HandleSubmitApplication)
	router.POST("/applications/:id/accept", h.HandleAcceptApplication)
	router.POST("/applications/:id/reject", h.HandleRejectApplication)
	router.POST("/applications/:id/complete", h.HandleCompleteJob)
}
