// Package billing derives the invoice for a finished job from its
// lifecycle timestamps and the configured rates. Pure and read-only:
// nothing here mutates the job.
package billing

import (
	"fletera-backend/internal/models"
)

const msPerHour = int64(3_600_000)

// Result is the computed bill. Nil fields mean "cannot be computed"
// (missing timestamps or unset rates), never zero.
type Result struct {
	StartMs     *int64 `json:"start_ms"`
	EndMs       *int64 `json:"end_ms"`
	DurationMs  *int64 `json:"duration_ms"`
	BilledHours *int64 `json:"billed_hours"` // Duration rounded up to whole hours

	TripTotal    *float64 `json:"trip_total"`
	HelpersTotal *float64 `json:"helpers_total"`
	GrandTotal   *float64 `json:"grand_total"`

	// ChargedAmount is the operator's manual override. When present it
	// is the authoritative BilledTotal; GrandTotal stays alongside for
	// auditing.
	ChargedAmount *float64 `json:"charged_amount"`
	BilledTotal   *float64 `json:"billed_total"`
}

// Compute builds the bill for a job. Start is the earliest present of
// startJobAt, startLoadingAt, startTripAt, startUnloadingAt (in that
// preference order); end prefers endUnloadingAt over endTripAt. If
// either side is missing, every derived monetary field stays nil.
//
// Billed hours always round up: 1h25m bills as 2 hours.
func Compute(job *models.Job, rates models.RateSettings) Result {
	res := Result{ChargedAmount: job.ChargedAmount}

	res.StartMs = firstPresent(job.StartJobAt, job.StartLoadingAt, job.StartTripAt, job.StartUnloadingAt)
	res.EndMs = firstPresent(job.EndUnloadingAt, job.EndTripAt)

	if res.StartMs != nil && res.EndMs != nil {
		duration := *res.EndMs - *res.StartMs
		if duration < 0 {
			duration = 0
		}
		res.DurationMs = &duration

		hours := ceilHours(duration)
		res.BilledHours = &hours

		if rates.HourlyRate != nil {
			total := float64(hours) * *rates.HourlyRate
			res.TripTotal = &total
		}
		if job.HelpersCount > 0 && rates.HelperHourlyRate != nil {
			total := float64(hours) * *rates.HelperHourlyRate * float64(job.HelpersCount)
			res.HelpersTotal = &total
		}
		res.GrandTotal = sumPresent(res.TripTotal, res.HelpersTotal)
	}

	if res.ChargedAmount != nil {
		res.BilledTotal = res.ChargedAmount
	} else {
		res.BilledTotal = res.GrandTotal
	}
	return res
}

func ceilHours(durationMs int64) int64 {
	if durationMs <= 0 {
		return 0
	}
	return (durationMs + msPerHour - 1) / msPerHour
}

func firstPresent(candidates ...*int64) *int64 {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

func sumPresent(values ...*float64) *float64 {
	var sum float64
	found := false
	for _, v := range values {
		if v != nil {
			sum += *v
			found = true
		}
	}
	if !found {
		return nil
	}
	return &sum
}
