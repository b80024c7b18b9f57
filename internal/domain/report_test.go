package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseInput() NewReportInput {
	return NewReportInput{
		Title:       "Illegal dump site",
		Description: "Construction debris piling up behind the market.",
		Longitude:   106.8456,
		Latitude:    -6.2088,
		Address:     "Behind the central market",
	}
}

func TestNewReportDefaults(t *testing.T) {
	owner := uuid.New()
	r, err := NewReport(owner, baseInput())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, DefaultWasteType, r.WasteType)
	assert.Equal(t, DefaultSeverity, r.Severity)
	assert.Equal(t, owner, r.ReportedBy)
	assert.NotNil(t, r.Images)
	assert.Empty(t, r.Images)
	assert.Nil(t, r.VerifiedBy)
	assert.Nil(t, r.ResolvedAt)
}

func TestNewReportValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*NewReportInput)
		field  string
	}{
		{"empty title", func(in *NewReportInput) { in.Title = "  " }, "title"},
		{"title too long", func(in *NewReportInput) { in.Title = strings.Repeat("x", MaxTitleLen+1) }, "title"},
		{"empty description", func(in *NewReportInput) { in.Description = "" }, "description"},
		{"description too long", func(in *NewReportInput) { in.Description = strings.Repeat("x", MaxDescriptionLen+1) }, "description"},
		{"null island sentinel", func(in *NewReportInput) { in.Longitude, in.Latitude = 0, 0 }, "location"},
		{"longitude out of range", func(in *NewReportInput) { in.Longitude = 181 }, "location"},
		{"latitude out of range", func(in *NewReportInput) { in.Latitude = -91 }, "location"},
		{"unknown waste type", func(in *NewReportInput) { in.WasteType = "nuclear" }, "wasteType"},
		{"unknown severity", func(in *NewReportInput) { in.Severity = "apocalyptic" }, "severity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInput()
			tc.mutate(&in)
			_, err := NewReport(uuid.New(), in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestNewReportStripsHTML(t *testing.T) {
	in := baseInput()
	in.Title = "<b>Dump</b> site"
	in.Description = "<script>alert(1)</script>Debris everywhere"

	r, err := NewReport(uuid.New(), in)
	require.NoError(t, err)
	assert.Equal(t, "Dump site", r.Title)
	assert.Equal(t, "Debris everywhere", r.Description)
}

func TestNewReportTitleOnlyHTMLIsEmpty(t *testing.T) {
	in := baseInput()
	in.Title = "<img src=x>"

	_, err := NewReport(uuid.New(), in)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)
}

func TestCanTransition(t *testing.T) {
	// Any non-terminal status may move anywhere valid.
	assert.NoError(t, CanTransition(StatusPending, StatusRejected))
	assert.NoError(t, CanTransition(StatusVerified, StatusPending))
	assert.NoError(t, CanTransition(StatusInProgress, StatusResolved))

	// Re-affirming the current status is allowed, even for terminal ones.
	assert.NoError(t, CanTransition(StatusResolved, StatusResolved))
	assert.NoError(t, CanTransition(StatusRejected, StatusRejected))

	// Terminal statuses reject everything else.
	assert.Error(t, CanTransition(StatusResolved, StatusInProgress))
	assert.Error(t, CanTransition(StatusRejected, StatusVerified))

	// Unknown target.
	assert.Error(t, CanTransition(StatusPending, "archived"))
}

func TestIsTerminalStatus(t *testing.T) {
	assert.True(t, IsTerminalStatus(StatusResolved))
	assert.True(t, IsTerminalStatus(StatusRejected))
	assert.False(t, IsTerminalStatus(StatusPending))
	assert.False(t, IsTerminalStatus(StatusVerified))
	assert.False(t, IsTerminalStatus(StatusInProgress))
}
