package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Job posting statuses
const (
	JobStatusPending   = "pending"
	JobStatusAssigned  = "assigned"
	JobStatusPickedUp  = "picked_up"
	JobStatusInTransit = "in_transit"
	JobStatusDelivered = "delivered"
	JobStatusCancelled = "cancelled"
	JobStatusDelayed   = "delayed"
)

// Urgency levels
const (
	UrgencyStandard = "standard"
	UrgencyUrgent   = "urgent"
	UrgencyExpress  = "express"
)

// Application statuses
const (
	ApplicationStatusPending   = "pending"
	ApplicationStatusAccepted  = "accepted"
	ApplicationStatusRejected  = "rejected"
	ApplicationStatusCompleted = "completed"
)

// Driver availability statuses
const (
	DriverAvailable = "available"
	DriverBusy      = "busy"
	DriverOffline   = "offline"
)

// Notification types
const (
	NotificationTypeJobApplication   = "job_application"
	NotificationTypeJobAccepted      = "job_accepted"
	NotificationTypeJobRejected      = "job_rejected"
	NotificationTypeJobStatus        = "job_status"
	NotificationTypePayment          = "payment"
	NotificationTypeMessage          = "message"
	NotificationTypeDriverInvitation = "driver_invitation"
	NotificationTypeSystem           = "system"
	NotificationTypeVerification     = "verification"
)

// Notification priorities
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// KnownNotificationTypes lists the types consumers render with dedicated
// icons. Creation with an unknown type is permitted and only logged.
var KnownNotificationTypes = map[string]bool{
	NotificationTypeJobApplication:   true,
	NotificationTypeJobAccepted:      true,
	NotificationTypeJobRejected:      true,
	NotificationTypeJobStatus:        true,
	NotificationTypePayment:          true,
	NotificationTypeMessage:          true,
	NotificationTypeDriverInvitation: true,
	NotificationTypeSystem:           true,
	NotificationTypeVerification:     true,
}

// Location describes one end of a shipment
type Location struct {
	Address string   `json:"address"`
	City    string   `json:"city"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

// JobPosting represents a cargo shipment seeking a driver
type JobPosting struct {
	ID                    uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt             time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`
	OwnerID               uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_id"`
	Title                 string         `gorm:"not null" json:"title"`
	Description           string         `json:"description"`
	CargoType             string         `gorm:"not null" json:"cargo_type"`
	WeightKg              float64        `json:"weight_kg"`
	Value                 float64        `json:"value"`
	Pickup                Location       `gorm:"embedded;embeddedPrefix:pickup_" json:"pickup"`
	Delivery              Location       `gorm:"embedded;embeddedPrefix:delivery_" json:"delivery"`
	Budget                float64        `gorm:"not null" json:"budget"`
	RequiredVehicleType   string         `json:"required_vehicle_type"`
	Urgency               string         `gorm:"not null;default:standard" json:"urgency"`
	Status                string         `gorm:"not null;default:pending;index" json:"status"`
	ApplicationCount      int            `gorm:"not null;default:0" json:"application_count"`
	AssignedApplicationID *uuid.UUID     `gorm:"type:uuid" json:"assigned_application_id"`
	EstimatedDistanceKm   *float64       `json:"estimated_distance_km"`
	StatusHistory         []JobStatusEvent `gorm:"foreignKey:JobID" json:"-"`
	Applications          []JobApplication `gorm:"foreignKey:JobID" json:"-"`
}

// JobStatusEvent is one row of a job's append-only status log
type JobStatusEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	JobID     uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`
	Status    string    `gorm:"not null" json:"status"`
	Note      string    `json:"note"`
}

// JobSnapshot is the job info captured on an application at submission
// time. It is never refreshed.
type JobSnapshot struct {
	Title        string  `json:"title"`
	PickupCity   string  `json:"pickup_city"`
	DeliveryCity string  `json:"delivery_city"`
	Budget       float64 `json:"budget"`
	Urgency      string  `json:"urgency"`
}

// DriverSnapshot is the driver info captured on an application at
// submission time. It is never refreshed.
type DriverSnapshot struct {
	Name          string  `json:"name"`
	Rating        float64 `json:"rating"`
	CompletedJobs int     `json:"completed_jobs"`
	VehicleType   string  `json:"vehicle_type"`
}

// JobApplication represents one driver's bid on a JobPosting
type JobApplication struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
	JobID           uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	DriverID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"driver_id"`
	CargoOwnerID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"cargo_owner_id"`
	BidAmount       float64        `gorm:"not null" json:"bid_amount"`
	Message         string         `json:"message"`
	Status          string         `gorm:"not null;default:pending;index" json:"status"`
	SubmittedAt     time.Time      `gorm:"not null" json:"submitted_at"`
	DecidedAt       *time.Time     `json:"decided_at"`
	RejectionReason *string        `json:"rejection_reason"`
	FinalAmount     *float64       `json:"final_amount"`
	OwnerRating     *float64       `json:"owner_rating"`
	JobInfo         JobSnapshot    `gorm:"embedded;embeddedPrefix:job_" json:"job_info"`
	DriverInfo      DriverSnapshot `gorm:"embedded;embeddedPrefix:driver_" json:"driver_info"`
}

// DriverProfile represents a truck driver on the marketplace
type DriverProfile struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
	Name              string         `gorm:"not null" json:"name"`
	VehicleType       string         `json:"vehicle_type"`
	VehicleCapacityKg float64        `json:"vehicle_capacity_kg"`
	Rating            float64        `gorm:"not null;default:0" json:"rating"`
	CompletedJobs     int            `gorm:"not null;default:0" json:"completed_jobs"`
	TotalEarnings     float64        `gorm:"not null;default:0" json:"total_earnings"`
	CurrentLocation   string         `json:"current_location"`
	Availability      string         `gorm:"not null;default:offline;index" json:"availability"`
	PricePerKm        float64        `json:"price_per_km"`
	Applications      []JobApplication `gorm:"foreignKey:DriverID" json:"-"`
}

// Notification represents a message delivered to a user's in-app feed
type Notification struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	RecipientID uuid.UUID      `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Title       string         `gorm:"not null" json:"title"`
	Body        string         `json:"body"`
	Type        string         `gorm:"not null" json:"type"`
	Data        []byte         `gorm:"type:jsonb" json:"data"`
	Read        bool           `gorm:"not null;default:false;index" json:"read"`
	ReadAt      *time.Time     `json:"read_at"`
	Priority    string         `gorm:"not null;default:normal" json:"priority"`
	Dispatched  bool           `gorm:"not null;default:false;index" json:"-"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	// Apply all migrations
	err := db.AutoMigrate(
		&JobPosting{},
		&JobStatusEvent{},
		&JobApplication{},
		&DriverProfile{},
		&Notification{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
