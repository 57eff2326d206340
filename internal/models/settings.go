package models

import "database/sql"

// Rate setting keys in the settings table
const (
	SettingHourlyRate       = "hourly_rate"
	SettingHelperHourlyRate = "helper_hourly_rate"
)

// RateSettings holds the configured billing rates.
// A nil rate means "unset" and disables the corresponding total.
type RateSettings struct {
	HourlyRate       *float64 `json:"hourly_rate"`
	HelperHourlyRate *float64 `json:"helper_hourly_rate"`
}

// ToNullInt64 converts an int64 pointer to sql.NullInt64
func ToNullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// FromNullInt64 converts sql.NullInt64 to an int64 pointer
func FromNullInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}

// ToNullString converts a string pointer to sql.NullString
func ToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

// FromNullString converts sql.NullString to a string pointer
func FromNullString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}
