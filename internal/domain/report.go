package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

// Report represents the main domain entity: a user-submitted waste site.
type Report struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    Location   `json:"location"`
	Images      []Image    `json:"images"`
	WasteType   string     `json:"wasteType"`
	Severity    string     `json:"severity"`
	Status      string     `json:"status"`
	ReportedBy  uuid.UUID  `json:"reportedBy"`
	VerifiedBy  *uuid.UUID `json:"verifiedBy,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	AdminNotes  string     `json:"adminNotes"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	// Reporter is the owner snapshot attached on reads, never persisted
	// on the report row itself.
	Reporter *UserRef `json:"reporter,omitempty"`
}

// Location is a GeoJSON-style point: [longitude, latitude].
type Location struct {
	Coordinates [2]float64 `json:"coordinates"`
	Address     string     `json:"address,omitempty"`
}

// Image is one stored photo attached to a report.
type Image struct {
	URL       string `json:"url"`
	StorageID string `json:"storageId"`
}

// UserRef is the public slice of a user embedded in report payloads.
type UserRef struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Avatar    string    `json:"avatar,omitempty"`
	EcoPoints int       `json:"ecoPoints"`
}

// Report status constants
const (
	StatusPending    = "pending"
	StatusVerified   = "verified"
	StatusInProgress = "in-progress"
	StatusResolved   = "resolved"
	StatusRejected   = "rejected"
)

// ValidStatuses represents valid report statuses
var ValidStatuses = []string{
	StatusPending,
	StatusVerified,
	StatusInProgress,
	StatusResolved,
	StatusRejected,
}

// ValidWasteTypes represents valid waste type categories
var ValidWasteTypes = []string{
	"plastic", "organic", "metal", "glass", "electronic", "mixed", "other",
}

// ValidSeverities represents valid severity levels
var ValidSeverities = []string{"low", "medium", "high", "critical"}

// Defaults applied when the client omits the field
const (
	DefaultWasteType = "mixed"
	DefaultSeverity  = "medium"
)

const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 500
	MaxImages         = 5
)

// IsValidStatus checks if status is valid
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsValidWasteType checks if wasteType is valid
func IsValidWasteType(wasteType string) bool {
	for _, t := range ValidWasteTypes {
		if t == wasteType {
			return true
		}
	}
	return false
}

// IsValidSeverity checks if severity is valid
func IsValidSeverity(severity string) bool {
	for _, s := range ValidSeverities {
		if s == severity {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether no further transitions are allowed.
// The old API never rejected transitions out of resolved/rejected because no
// UI path existed; here the server enforces it.
func IsTerminalStatus(status string) bool {
	return status == StatusResolved || status == StatusRejected
}

// CanTransition validates a status transition. Any non-terminal status may
// move to any other status; re-affirming the current status (including a
// terminal one) is allowed and treated as a no-op by the lifecycle.
func CanTransition(from, to string) error {
	if !IsValidStatus(to) {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("invalid status %q", to)}
	}
	if from == to {
		return nil
	}
	if IsTerminalStatus(from) {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("report is %s and can no longer change status", from)}
	}
	return nil
}

// ValidationError is a user-correctable input error (maps to HTTP 400).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// sanitizer strips all HTML from user-supplied text fields.
var sanitizer = bluemonday.StrictPolicy()

// NewReportInput carries the client-supplied fields of a report submission.
type NewReportInput struct {
	Title       string
	Description string
	Longitude   float64
	Latitude    float64
	Address     string
	WasteType   string
	Severity    string
}

// NewReport validates input and creates a pending Report with default values.
func NewReport(ownerID uuid.UUID, in NewReportInput) (*Report, error) {
	title := strings.TrimSpace(sanitizer.Sanitize(in.Title))
	description := strings.TrimSpace(sanitizer.Sanitize(in.Description))

	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "Title is required"}
	}
	if len(title) > MaxTitleLen {
		return nil, &ValidationError{Field: "title", Message: fmt.Sprintf("Title cannot exceed %d characters", MaxTitleLen)}
	}
	if description == "" {
		return nil, &ValidationError{Field: "description", Message: "Description is required"}
	}
	if len(description) > MaxDescriptionLen {
		return nil, &ValidationError{Field: "description", Message: fmt.Sprintf("Description cannot exceed %d characters", MaxDescriptionLen)}
	}
	// (0,0) is the client's "no location captured" sentinel, not a real point.
	if in.Longitude == 0 && in.Latitude == 0 {
		return nil, &ValidationError{Field: "location", Message: "Please provide valid location coordinates"}
	}
	if in.Longitude < -180 || in.Longitude > 180 || in.Latitude < -90 || in.Latitude > 90 {
		return nil, &ValidationError{Field: "location", Message: "Coordinates out of range"}
	}

	wasteType := in.WasteType
	if wasteType == "" {
		wasteType = DefaultWasteType
	}
	if !IsValidWasteType(wasteType) {
		return nil, &ValidationError{Field: "wasteType", Message: fmt.Sprintf("invalid waste type %q", in.WasteType)}
	}

	severity := in.Severity
	if severity == "" {
		severity = DefaultSeverity
	}
	if !IsValidSeverity(severity) {
		return nil, &ValidationError{Field: "severity", Message: fmt.Sprintf("invalid severity %q", in.Severity)}
	}

	now := time.Now()
	return &Report{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		Location: Location{
			Coordinates: [2]float64{in.Longitude, in.Latitude},
			Address:     strings.TrimSpace(sanitizer.Sanitize(in.Address)),
		},
		Images:     []Image{},
		WasteType:  wasteType,
		Severity:   severity,
		Status:     StatusPending,
		ReportedBy: ownerID,
		AdminNotes: "",
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// SanitizeText strips HTML from free text such as admin notes.
func SanitizeText(s string) string {
	return strings.TrimSpace(sanitizer.Sanitize(s))
}
