package handlers

import (
	"net/http"
	"strconv"

	"example.com/cargomarket/internal/services"

	"github.com/gin-gonic/gin"
)

// NotificationHandler handles notification HTTP requests
type NotificationHandler struct {
	notificationService *services.NotificationService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// HandleListNotifications lists the caller's notifications, newest first
func (h *NotificationHandler) HandleListNotifications(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	notifications, err := h.notificationService.ListForUser(c.Request.Context(), sess.UserID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// HandleMarkRead marks one notification as read
func (h *NotificationHandler) HandleMarkRead(c *gin.Context) {
	if _, ok := sessionFrom(c); !ok {
		return
	}

	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.notificationService.MarkRead(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HandleMarkAllRead marks every unread notification as read
func (h *NotificationHandler) HandleMarkAllRead(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	updated, err := h.notificationService.MarkAllRead(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// HandleUnreadCount returns the caller's unread notification count
func (h *NotificationHandler) HandleUnreadCount(c *gin.Context) {
	sess, ok := sessionFrom(c)
	if !ok {
		return
	}

	count, err := h.notificationService.UnreadCount(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// RegisterRoutes registers the handler's routes
func (h *NotificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/notifications", h.HandleListNotifications)
	router.GET("/notifications/unread-count", h.HandleUnreadCount)
	router.POST("/notifications/read-all", h.HandleMarkAllRead)
	router.POST("/notifications/:id/read", h.HandleMarkRead)
}
