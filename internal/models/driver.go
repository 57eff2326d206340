package models

// Driver represents a driver who can be assigned to jobs.
// The login code is unique and matched case-insensitively.
type Driver struct {
	ID        string  `json:"id" db:"id"`
	Name      string  `json:"name" db:"name"`
	Code      string  `json:"code" db:"code"`
	Phone     string  `json:"phone" db:"phone"`
	Active    bool    `json:"active" db:"active"`
	FCMToken  *string `json:"-" db:"fcm_token"` // Push token of the driver's device
	CreatedAt int64   `json:"created_at" db:"created_at"`
	UpdatedAt int64   `json:"updated_at" db:"updated_at"`
}

// DriverLocation is the latest known position of a driver.
// One row per driver, overwritten on every accepted report (not a track log).
type DriverLocation struct {
	DriverID  string   `json:"driver_id" db:"driver_id"`
	Latitude  float64  `json:"latitude" db:"latitude"`
	Longitude float64  `json:"longitude" db:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty" db:"accuracy"` // GPS accuracy in meters
	Heading   *float64 `json:"heading,omitempty" db:"heading"`   // Direction of travel (0-360 degrees)
	Speed     *float64 `json:"speed,omitempty" db:"speed"`       // Speed in m/s
	JobID     *string  `json:"job_id,omitempty" db:"job_id"`     // Job this fix is attributed to, if any
	UpdatedAt int64    `json:"updated_at" db:"updated_at"`
}

// DriverStatus is a driver row joined with their current job and last
// location, for the dispatcher's live map
type DriverStatus struct {
	Driver
	CurrentJobID     *string    `json:"current_job_id" db:"current_job_id"`
	CurrentJobStatus *JobStatus `json:"current_job_status" db:"current_job_status"`
	LastLatitude     *float64   `json:"last_latitude" db:"last_latitude"`
	LastLongitude    *float64   `json:"last_longitude" db:"last_longitude"`
	LastHeading      *float64   `json:"last_heading" db:"last_heading"`
	LastSeenAt       *int64     `json:"last_seen_at" db:"last_seen_at"`
}
