// Package lifecycle implements the job state machine: the ordered
// progression PENDING → TO_PICKUP → LOADING → TO_DROPOFF → UNLOADING →
// DONE, the scheduling gate for starting a job, and the sub-progression
// over extra stops during TO_DROPOFF.
//
// All functions are pure over the Job struct; persistence is the
// caller's problem. Event timestamps are stamped at most once so
// retried requests are idempotent.
package lifecycle

import (
	"errors"
	"time"

	"fletera-backend/internal/models"
)

var (
	// ErrInvalidStatus means the requested target is not a known status
	// or would move the job backward
	ErrInvalidStatus = errors.New("invalid job status")

	// ErrNotYetAvailable means the start window has not opened yet.
	// Distinct from ErrInvalidStatus so clients can show a countdown.
	ErrNotYetAvailable = errors.New("job not yet available to start")
)

// StartWindowLeadMs is how long before the scheduled instant a driver
// may start the job (1 hour)
const StartWindowLeadMs = int64(time.Hour / time.Millisecond)

// The service operates on Argentina time. Fixed offset on purpose:
// Argentina does not observe DST.
var serviceZone = time.FixedZone("-03", -3*60*60)

// Transition moves a job to target, stamping the lifecycle timestamps
// that correspond to the new status. Timestamps already present are
// left alone, so calling Transition twice with the same target changes
// nothing after the first call.
//
// Starting a PENDING job (target TO_PICKUP) is rejected with
// ErrNotYetAvailable while the start window is closed. All other
// forward transitions are unconditional.
func Transition(job *models.Job, target models.JobStatus, nowMs int64) error {
	targetRank := models.StatusRank(target)
	if targetRank < 0 {
		return ErrInvalidStatus
	}
	if targetRank < models.StatusRank(job.Status) {
		// Status never regresses
		return ErrInvalidStatus
	}

	if target == models.JobStatusToPickup && job.Status == models.JobStatusPending {
		if !StartWindowOpen(job.ScheduledDate, job.ScheduledTime, nowMs) {
			return ErrNotYetAvailable
		}
	}

	switch target {
	case models.JobStatusToPickup:
		stamp(&job.StartJobAt, nowMs)
	case models.JobStatusLoading:
		stamp(&job.StartLoadingAt, nowMs)
	case models.JobStatusToDropoff:
		stamp(&job.EndLoadingAt, nowMs)
		stamp(&job.StartTripAt, nowMs)
		if job.StopIndex == nil {
			zero := 0
			job.StopIndex = &zero
		}
	case models.JobStatusUnloading:
		stamp(&job.EndTripAt, nowMs)
		stamp(&job.StartUnloadingAt, nowMs)
	case models.JobStatusDone:
		stamp(&job.EndUnloadingAt, nowMs)
	}

	job.Status = target
	return nil
}

// AdvanceStop marks the next extra stop as visited while the job is in
// TO_DROPOFF. Advancing past the last stop is a no-op, never an error.
// Returns true if the index actually moved.
func AdvanceStop(job *models.Job) bool {
	if job.Status != models.JobStatusToDropoff {
		return false
	}
	idx := 0
	if job.StopIndex != nil {
		idx = *job.StopIndex
	}
	if idx >= len(job.ExtraStops) {
		// Clamp in case stops were edited out from under the index
		clamped := len(job.ExtraStops)
		job.StopIndex = &clamped
		return false
	}
	idx++
	job.StopIndex = &idx
	return true
}

// ScheduledAtMs derives the scheduled instant (epoch ms) from the
// job's local date and time strings, interpreted in the service's
// fixed UTC-3 offset. Returns nil when no date is set or the strings
// do not parse, which callers treat as "no schedule".
func ScheduledAtMs(date, timeOfDay *string) *int64 {
	if date == nil || *date == "" {
		return nil
	}
	hhmm := "00:00"
	if timeOfDay != nil && *timeOfDay != "" {
		hhmm = *timeOfDay
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", *date+" "+hhmm, serviceZone)
	if err != nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// StartWindowOpen reports whether a job scheduled for the given local
// date/time may be started at nowMs. The window opens one hour before
// the scheduled instant and never closes. Jobs without a schedule can
// always be started.
func StartWindowOpen(date, timeOfDay *string, nowMs int64) bool {
	scheduledAt := ScheduledAtMs(date, timeOfDay)
	if scheduledAt == nil {
		return true
	}
	return nowMs >= *scheduledAt-StartWindowLeadMs
}

func stamp(field **int64, nowMs int64) {
	if *field == nil {
		v := nowMs
		*field = &v
	}
}
