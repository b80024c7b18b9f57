package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventPayloadRoundTrip(t *testing.T) {
	reportID := uuid.New().String()
	event, err := NewEvent(ReportStatusChange, reportID, StatusChangedPayload{
		OldStatus: "pending",
		NewStatus: "verified",
		ChangedBy: uuid.New().String(),
		ChangedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, reportID, event.ReportID)

	data, err := event.ToJSON()
	require.NoError(t, err)

	parsed, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, event.EventID, parsed.EventID)
	assert.Equal(t, ReportStatusChange, parsed.EventType)

	var payload StatusChangedPayload
	require.NoError(t, parsed.ParsePayload(&payload))
	assert.Equal(t, "pending", payload.OldStatus)
	assert.Equal(t, "verified", payload.NewStatus)
}
