package lifecycle

import (
	"testing"
	"time"

	"fletera-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob() *models.Job {
	return &models.Job{
		ID:     "job-1",
		Status: models.JobStatusPending,
	}
}

func strPtr(s string) *string { return &s }

func TestTransitionFullLifecycle(t *testing.T) {
	job := newJob()
	now := int64(1_000_000)

	steps := []models.JobStatus{
		models.JobStatusToPickup,
		models.JobStatusLoading,
		models.JobStatusToDropoff,
		models.JobStatusUnloading,
		models.JobStatusDone,
	}

	for i, target := range steps {
		now += 60_000
		require.NoError(t, Transition(job, target, now), "step %d", i)
		assert.Equal(t, target, job.Status)
	}

	require.NotNil(t, job.StartJobAt)
	require.NotNil(t, job.StartLoadingAt)
	require.NotNil(t, job.EndLoadingAt)
	require.NotNil(t, job.StartTripAt)
	require.NotNil(t, job.EndTripAt)
	require.NotNil(t, job.StartUnloadingAt)
	require.NotNil(t, job.EndUnloadingAt)

	// TO_DROPOFF stamps end-of-loading and start-of-trip together
	assert.Equal(t, *job.EndLoadingAt, *job.StartTripAt)
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	job := newJob()
	err := Transition(job, models.JobStatus("FLYING"), 1000)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, models.JobStatusPending, job.Status)
}

func TestTransitionNeverRegresses(t *testing.T) {
	job := newJob()
	require.NoError(t, Transition(job, models.JobStatusToPickup, 1000))
	require.NoError(t, Transition(job, models.JobStatusLoading, 2000))

	err := Transition(job, models.JobStatusToPickup, 3000)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, models.JobStatusLoading, job.Status)
}

func TestTransitionIsIdempotent(t *testing.T) {
	job := newJob()
	require.NoError(t, Transition(job, models.JobStatusToPickup, 1000))
	first := *job.StartJobAt

	require.NoError(t, Transition(job, models.JobStatusToPickup, 9000))
	assert.Equal(t, first, *job.StartJobAt, "retry must not overwrite the stamp")
	assert.Equal(t, models.JobStatusToPickup, job.Status)
}

func TestTransitionInitializesStopIndex(t *testing.T) {
	job := newJob()
	job.ExtraStops = models.LocationList{{Address: "Stop A"}, {Address: "Stop B"}}
	require.NoError(t, Transition(job, models.JobStatusToPickup, 1000))
	require.NoError(t, Transition(job, models.JobStatusLoading, 2000))
	require.Nil(t, job.StopIndex)

	require.NoError(t, Transition(job, models.JobStatusToDropoff, 3000))
	require.NotNil(t, job.StopIndex)
	assert.Equal(t, 0, *job.StopIndex)
}

func TestAdvanceStopClampsAtEnd(t *testing.T) {
	job := newJob()
	job.ExtraStops = models.LocationList{{Address: "Stop A"}, {Address: "Stop B"}}
	require.NoError(t, Transition(job, models.JobStatusToPickup, 1000))
	require.NoError(t, Transition(job, models.JobStatusLoading, 2000))
	require.NoError(t, Transition(job, models.JobStatusToDropoff, 3000))

	assert.True(t, AdvanceStop(job))
	assert.Equal(t, 1, *job.StopIndex)
	assert.True(t, AdvanceStop(job))
	assert.Equal(t, 2, *job.StopIndex)

	// Repeated calls past the last stop never exceed the bound
	for i := 0; i < 5; i++ {
		assert.False(t, AdvanceStop(job))
		assert.Equal(t, 2, *job.StopIndex)
	}
	assert.Equal(t, models.JobStatusToDropoff, job.Status, "advancing stops never changes status")
}

func TestAdvanceStopOutsideToDropoff(t *testing.T) {
	job := newJob()
	job.ExtraStops = models.LocationList{{Address: "Stop A"}}
	assert.False(t, AdvanceStop(job))
	assert.Nil(t, job.StopIndex)
}

func TestScheduledAtUsesFixedOffset(t *testing.T) {
	// 15:00 local (UTC-3) is 18:00 UTC
	got := ScheduledAtMs(strPtr("2026-01-10"), strPtr("15:00"))
	require.NotNil(t, got)
	want := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, want, *got)
}

func TestScheduledAtMissingOrMalformed(t *testing.T) {
	assert.Nil(t, ScheduledAtMs(nil, nil))
	assert.Nil(t, ScheduledAtMs(strPtr(""), strPtr("15:00")))
	assert.Nil(t, ScheduledAtMs(strPtr("not-a-date"), strPtr("15:00")))

	// Missing time defaults to midnight local
	got := ScheduledAtMs(strPtr("2026-01-10"), nil)
	require.NotNil(t, got)
	want := time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, want, *got)
}

func TestStartWindowBoundary(t *testing.T) {
	date, hhmm := strPtr("2026-01-10"), strPtr("15:00")
	scheduledAt := *ScheduledAtMs(date, hhmm)

	assert.False(t, StartWindowOpen(date, hhmm, scheduledAt-3_600_001))
	assert.True(t, StartWindowOpen(date, hhmm, scheduledAt-3_599_999))
	assert.True(t, StartWindowOpen(date, hhmm, scheduledAt-3_600_000))
	assert.True(t, StartWindowOpen(date, hhmm, scheduledAt+1))

	// No schedule, always open
	assert.True(t, StartWindowOpen(nil, nil, 0))
}

func TestStartGateEndToEnd(t *testing.T) {
	// Job scheduled 61 minutes from "now": starting is rejected, then
	// allowed once the clock passes the one-hour mark.
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, serviceZone)
	scheduled := now.Add(61 * time.Minute)

	job := newJob()
	date := scheduled.Format("2006-01-02")
	hhmm := scheduled.Format("15:04")
	job.ScheduledDate = &date
	job.ScheduledTime = &hhmm

	err := Transition(job, models.JobStatusToPickup, now.UnixMilli())
	require.ErrorIs(t, err, ErrNotYetAvailable)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Nil(t, job.StartJobAt)

	later := now.Add(2 * time.Minute).UnixMilli()
	require.NoError(t, Transition(job, models.JobStatusToPickup, later))
	assert.Equal(t, models.JobStatusToPickup, job.Status)
	require.NotNil(t, job.StartJobAt)
	assert.Equal(t, later, *job.StartJobAt)
}
