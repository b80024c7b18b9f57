package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"reviwa-server/internal/domain"
)

// Event types carried on the bus
const (
	ReportCreated      = "report.created"
	ReportStatusChange = "report.status.updated"
	ReportNotesUpdated = "report.notes.updated"
	ReportDeleted      = "report.deleted"
	PointsAwarded      = "user.points"
	ReportsBulkUpdated = "reports.bulk.updated"
)

// Event represents a domain event
type Event struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	ReportID  string          `json:"report_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ReportCreatedPayload - published when a user submits a report
type ReportCreatedPayload struct {
	Report    *domain.Report `json:"report"`
	OwnerRole string         `json:"owner_role"`
}

// StatusChangedPayload - published when an admin changes a report's status
type StatusChangedPayload struct {
	Report    *domain.Report `json:"report"`
	OldStatus string         `json:"old_status"`
	NewStatus string         `json:"new_status"`
	ChangedBy string         `json:"changed_by"`
	ChangedAt time.Time      `json:"changed_at"`
}

// NotesUpdatedPayload - published when admin notes are overwritten
type NotesUpdatedPayload struct {
	Report *domain.Report `json:"report"`
}

// ReportDeletedPayload - published when a report is removed
type ReportDeletedPayload struct {
	ReportID string `json:"report_id"`
}

// PointsAwardedPayload - published when a user's eco-point total moves
type PointsAwardedPayload struct {
	UserID    string `json:"user_id"`
	EcoPoints int    `json:"eco_points"`
}

// BulkUpdatedPayload - resync signal after a bulk admin update; clients are
// expected to refetch rather than patch itemized deltas
type BulkUpdatedPayload struct {
	ReportIDs []string `json:"report_ids"`
	Status    string   `json:"status"`
}

// NewEvent creates a new Event
func NewEvent(eventType string, reportID string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		EventID:   uuid.New().String(),
		EventType: eventType,
		ReportID:  reportID,
		Payload:   payloadBytes,
		Timestamp: time.Now(),
	}, nil
}

// ToJSON converts event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses event from JSON bytes
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ParsePayload parses the payload into the specified type
func (e *Event) ParsePayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}
