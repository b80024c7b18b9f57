package hub

import (
	"log"

	"reviwa-server/internal/domain"
	"reviwa-server/internal/events"
)

// Wire event names as seen by connected clients.
const (
	WireReportCreated = "report:created"
	WireReportUpdated = "report:updated"
	WireReportDeleted = "report:deleted"
	WireUserPoints    = "user:points"
	WireBulkUpdated   = "reports:bulkUpdated"
)

// ReportUpdate is the report:updated wire payload. Status changes fill the
// transition fields; notes-only updates carry just the report, so clients
// decode a single schema for the event.
type ReportUpdate struct {
	Report    *domain.Report `json:"report"`
	OldStatus string         `json:"oldStatus,omitempty"`
	NewStatus string         `json:"newStatus,omitempty"`
	ChangedBy string         `json:"changedBy,omitempty"`
}

// Dispatch fans one bus event out to the rooms it concerns. New pending
// reports stay admin-only until an admin verifies them; verified and resolved
// transitions are public. Watchers of a specific report see every change to
// it regardless of visibility.
func (h *Hub) Dispatch(e *events.Event) {
	switch e.EventType {
	case events.ReportCreated:
		var p events.ReportCreatedPayload
		if err := e.ParsePayload(&p); err != nil {
			log.Printf("[HUB] Bad %s payload: %v", e.EventType, err)
			return
		}
		h.Broadcast(&Message{Event: WireReportCreated, Data: p.Report}, RoomAdmins())

	case events.ReportStatusChange:
		var p events.StatusChangedPayload
		if err := e.ParsePayload(&p); err != nil {
			log.Printf("[HUB] Bad %s payload: %v", e.EventType, err)
			return
		}
		msg := &Message{Event: WireReportUpdated, Data: ReportUpdate{
			Report:    p.Report,
			OldStatus: p.OldStatus,
			NewStatus: p.NewStatus,
			ChangedBy: p.ChangedBy,
		}}
		if p.NewStatus == domain.StatusVerified || p.NewStatus == domain.StatusResolved {
			h.BroadcastAll(msg)
			return
		}
		h.Broadcast(msg, RoomAdmins(), RoomReport(e.ReportID))

	case events.ReportNotesUpdated:
		var p events.NotesUpdatedPayload
		if err := e.ParsePayload(&p); err != nil {
			log.Printf("[HUB] Bad %s payload: %v", e.EventType, err)
			return
		}
		h.BroadcastAll(&Message{Event: WireReportUpdated, Data: ReportUpdate{Report: p.Report}})

	case events.ReportDeleted:
		var p events.ReportDeletedPayload
		if err := e.ParsePayload(&p); err != nil {
			log.Printf("[HUB] Bad %s payload: %v", e.EventType, err)
			return
		}
		h.BroadcastAll(&Message{Event: WireReportDeleted, Data: p})

	case events.PointsAwarded:
		var p events.PointsAwardedPayload
		if err := e.ParsePayload(&p); err != nil {
			log.Printf("[HUB] Bad %s payload: %v", e.EventType, err)
			return
		}
		h.Broadcast(&Message{Event: WireUserPoints, Data: p}, RoomUser(p.UserID))

	case events.ReportsBulkUpdated:
		var p events.BulkUpdatedPayload
		if err := e.ParsePayload(&p); err != nil {
			log.Printf("[HUB] Bad %s payload: %v", e.EventType, err)
			return
		}
		h.BroadcastAll(&Message{Event: WireBulkUpdated, Data: p})

	default:
		log.Printf("[HUB] Unknown event type: %s", e.EventType)
	}
}
