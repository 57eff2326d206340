// Package tracking turns noisy mobile GPS fixes into a trustworthy
// cumulative travel distance per job. Rejections are silent no-ops:
// noise is expected, not exceptional.
package tracking

import (
	"math"

	"fletera-backend/internal/models"
)

const (
	// MaxAccuracyM drops fixes whose reported accuracy is worse than this
	MaxAccuracyM = 60.0

	// MinStepM treats smaller steps as GPS jitter at rest
	MinStepM = 6.0

	// MaxSpeedMPS rejects implied speeds above this as teleports (162 km/h)
	MaxSpeedMPS = 45.0

	// MaxGapMS re-anchors instead of counting travel after a 5 min silence
	MaxGapMS = int64(300_000)

	earthRadiusM = 6371000.0
)

// FixOutcome reports the effect of an accepted or re-anchored fix.
// A nil *FixOutcome from ApplyFix means the fix was ignored outright
// and the job was not touched.
type FixOutcome struct {
	AddedMeters int64 `json:"added_meters"`
	TotalMeters int64 `json:"total_meters"`
}

// HaversineMeters returns the great-circle distance between two
// coordinates in meters, unrounded.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// ApplyFix runs one raw fix through the distance filter, mutating the
// job's reference point and cumulative distance in place. The caller
// must hold the job's lock and persist the job afterwards when the
// outcome is non-nil.
//
// The filter trades undercount for noise immunity: genuine movement
// below MinStepM re-anchors without being credited, and is never
// carried over later. That is intentional.
func ApplyFix(job *models.Job, lat, lng float64, accuracy *float64, nowMs int64) *FixOutcome {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return nil
	}
	if !job.Status.IsActive() {
		return nil
	}

	// First fix, or reacquisition after a signal gap: anchor here and
	// do not count the jump as travel.
	if job.LastLatitude == nil || job.LastLongitude == nil || job.LastFixAt == nil ||
		nowMs-*job.LastFixAt > MaxGapMS {
		anchor(job, lat, lng, nowMs)
		return &FixOutcome{AddedMeters: 0, TotalMeters: job.DistanceMeters}
	}

	elapsedMs := nowMs - *job.LastFixAt
	if elapsedMs <= 0 {
		// Stale or duplicated fix
		return nil
	}
	if accuracy != nil && *accuracy > MaxAccuracyM {
		// Keep the anchor and wait for a better fix
		return nil
	}

	distance := math.Round(HaversineMeters(*job.LastLatitude, *job.LastLongitude, lat, lng))
	if distance < MinStepM {
		// Jitter at rest: move the anchor so drift doesn't keep
		// re-triggering, but credit nothing.
		anchor(job, lat, lng, nowMs)
		return &FixOutcome{AddedMeters: 0, TotalMeters: job.DistanceMeters}
	}

	speed := distance / (float64(elapsedMs) / 1000)
	if speed > MaxSpeedMPS {
		// Teleport/outlier: leave anchor and distance alone
		return nil
	}

	job.DistanceMeters += int64(distance)
	anchor(job, lat, lng, nowMs)
	return &FixOutcome{AddedMeters: int64(distance), TotalMeters: job.DistanceMeters}
}

func anchor(job *models.Job, lat, lng float64, nowMs int64) {
	job.LastLatitude = &lat
	job.LastLongitude = &lng
	job.LastFixAt = &nowMs
}
