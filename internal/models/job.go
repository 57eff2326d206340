package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JobStatus represents where a job is in its lifecycle
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"    // Created, not started
	JobStatusToPickup  JobStatus = "TO_PICKUP"  // Driver en route to pickup
	JobStatusLoading   JobStatus = "LOADING"    // Loading at pickup
	JobStatusToDropoff JobStatus = "TO_DROPOFF" // Driving to dropoff (extra stops happen here)
	JobStatusUnloading JobStatus = "UNLOADING"  // Unloading at dropoff
	JobStatusDone      JobStatus = "DONE"       // Finished, immutable
)

// StatusRank returns the position of a status in the lifecycle order,
// or -1 for an unknown status. Transitions must never decrease the rank.
func StatusRank(s JobStatus) int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusToPickup:
		return 1
	case JobStatusLoading:
		return 2
	case JobStatusToDropoff:
		return 3
	case JobStatusUnloading:
		return 4
	case JobStatusDone:
		return 5
	}
	return -1
}

// IsActive reports whether position tracking accumulates distance in this status
func (s JobStatus) IsActive() bool {
	switch s {
	case JobStatusToPickup, JobStatusLoading, JobStatusToDropoff, JobStatusUnloading:
		return true
	}
	return false
}

// IsDriving reports whether the driver is on the road in this status
// (used by the map camera to decide when to follow the marker)
func (s JobStatus) IsDriving() bool {
	return s == JobStatusToPickup || s == JobStatusToDropoff
}

// Location is an address with coordinates
type Location struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LocationList stores a job's extra stops as a JSONB column
type LocationList []Location

// Value implements driver.Valuer for JSONB storage
func (l LocationList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for JSONB storage
func (l *LocationList) Scan(src interface{}) error {
	if src == nil {
		*l = LocationList{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into LocationList", src)
	}
	if len(data) == 0 {
		*l = LocationList{}
		return nil
	}
	return json.Unmarshal(data, l)
}

// Job represents a single freight job from pickup to delivery.
// All *_at fields are epoch milliseconds and are stamped at most once.
type Job struct {
	ID     string    `json:"id" db:"id"`
	Status JobStatus `json:"status" db:"status"`

	PickupAddress    string  `json:"pickup_address" db:"pickup_address"`
	PickupLatitude   float64 `json:"pickup_latitude" db:"pickup_latitude"`
	PickupLongitude  float64 `json:"pickup_longitude" db:"pickup_longitude"`
	DropoffAddress   string  `json:"dropoff_address" db:"dropoff_address"`
	DropoffLatitude  float64 `json:"dropoff_latitude" db:"dropoff_latitude"`
	DropoffLongitude float64 `json:"dropoff_longitude" db:"dropoff_longitude"`

	ExtraStops LocationList `json:"extra_stops" db:"extra_stops"`
	StopIndex  *int         `json:"stop_index" db:"stop_index"` // Next unvisited extra stop, only meaningful in TO_DROPOFF

	DriverID     *string `json:"driver_id" db:"driver_id"`
	HelpersCount int     `json:"helpers_count" db:"helpers_count"`

	ScheduledDate *string `json:"scheduled_date" db:"scheduled_date"` // "2006-01-02", service-local (UTC-3)
	ScheduledTime *string `json:"scheduled_time" db:"scheduled_time"` // "15:04"

	StartJobAt       *int64 `json:"start_job_at" db:"start_job_at"`
	StartLoadingAt   *int64 `json:"start_loading_at" db:"start_loading_at"`
	EndLoadingAt     *int64 `json:"end_loading_at" db:"end_loading_at"`
	StartTripAt      *int64 `json:"start_trip_at" db:"start_trip_at"`
	EndTripAt        *int64 `json:"end_trip_at" db:"end_trip_at"`
	StartUnloadingAt *int64 `json:"start_unloading_at" db:"start_unloading_at"`
	EndUnloadingAt   *int64 `json:"end_unloading_at" db:"end_unloading_at"`

	DistanceMeters int64 `json:"distance_meters" db:"distance_meters"`

	// Reference point of the distance filter, not part of the public record
	LastLatitude  *float64 `json:"-" db:"last_latitude"`
	LastLongitude *float64 `json:"-" db:"last_longitude"`
	LastFixAt     *int64   `json:"-" db:"last_fix_at"`

	ChargedAmount *float64 `json:"charged_amount" db:"charged_amount"` // Manual override of the computed bill
	Notes         *string  `json:"notes" db:"notes"`

	CreatedAt int64 `json:"created_at" db:"created_at"`
	UpdatedAt int64 `json:"updated_at" db:"updated_at"`
}
