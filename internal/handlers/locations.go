package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"time"

	"fletera-backend/internal/middleware"
	"fletera-backend/internal/models"
	"fletera-backend/internal/tracking"
	"fletera-backend/internal/websocket"
	"fletera-backend/pkg/utils"

	"github.com/jmoiron/sqlx"
)

type locationRequest struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
	Heading   *float64 `json:"heading"`
	Speed     *float64 `json:"speed"`
	JobID     *string  `json:"job_id"`
	Timestamp int64    `json:"timestamp"` // Client clock, epoch ms
}

// UpdateLocation ingests a driver position fix. The row in
// driver_locations is latest-only (upsert keyed on driver), and when
// the fix names an active job it also runs through the distance
// filter. A fix the filter ignores is not an error; the driver keeps
// reporting and the dispatcher map still updates.
// POST /api/driver/location
func UpdateLocation(db *sqlx.DB, hub *websocket.Hub, locks *tracking.JobLocks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req locationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if math.IsNaN(req.Latitude) || math.IsInf(req.Latitude, 0) ||
			math.IsNaN(req.Longitude) || math.IsInf(req.Longitude, 0) ||
			(req.Latitude == 0 && req.Longitude == 0) {
			utils.RespondError(w, http.StatusBadRequest, "Invalid coordinates")
			return
		}

		nowMs := req.Timestamp
		if nowMs <= 0 {
			nowMs = time.Now().UnixMilli()
		}

		// Attribute the fix to the named job while it is active
		var outcome *tracking.FixOutcome
		if req.JobID != nil {
			outcome = applyFixToJob(db, locks, *req.JobID, userClaims.UserID, req, nowMs)
		}

		location := models.DriverLocation{
			DriverID:  userClaims.UserID,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Accuracy:  req.Accuracy,
			Heading:   req.Heading,
			Speed:     req.Speed,
			JobID:     req.JobID,
			UpdatedAt: nowMs,
		}

		_, err := db.NamedExec(`
			INSERT INTO driver_locations (driver_id, latitude, longitude, accuracy, heading, speed, job_id, updated_at)
			VALUES (:driver_id, :latitude, :longitude, :accuracy, :heading, :speed, :job_id, :updated_at)
			ON CONFLICT (driver_id) DO UPDATE SET
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				accuracy = EXCLUDED.accuracy,
				heading = EXCLUDED.heading,
				speed = EXCLUDED.speed,
				job_id = EXCLUDED.job_id,
				updated_at = EXCLUDED.updated_at`, &location)
		if err != nil {
			log.Printf("❌ Error saving location: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to save location")
			return
		}

		// The dispatcher live map listens as "admin"
		update := map[string]interface{}{
			"location": location,
			"name":     userClaims.Name,
		}
		if outcome != nil {
			update["tracking"] = outcome
		}
		hub.BroadcastToRole(middleware.RoleAdmin, websocket.EventDriverLocation, update)

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"tracking": outcome, // null when the fix was not counted
		})
	}
}

// applyFixToJob runs the distance filter for one job under its lock.
// Any reason not to count the fix (unknown job, not this driver's job,
// inactive status, filter rejection) yields nil, never an error.
func applyFixToJob(db *sqlx.DB, locks *tracking.JobLocks, jobID, driverID string, req locationRequest, nowMs int64) *tracking.FixOutcome {
	unlock := locks.Lock(jobID)
	defer unlock()

	job, err := loadJob(db, jobID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		log.Printf("❌ Error loading job %s for fix: %v", jobID, err)
		return nil
	}
	if job.DriverID == nil || *job.DriverID != driverID {
		return nil
	}

	outcome := tracking.ApplyFix(job, req.Latitude, req.Longitude, req.Accuracy, nowMs)
	if outcome == nil {
		return nil
	}

	if err := saveJobLifecycle(db, job); err != nil {
		// The write failed: report nothing so the caller never sees a
		// distance the store doesn't have
		log.Printf("❌ Error persisting distance for job %s: %v", jobID, err)
		return nil
	}
	return outcome
}

// GetDriverLocations returns the latest snapshot of every driver that
// has ever reported, for the dispatcher's live map initial render
// GET /api/locations
func GetDriverLocations(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locations := []models.DriverLocation{}
		if err := db.Select(&locations, "SELECT * FROM driver_locations ORDER BY updated_at DESC"); err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": locations})
	}
}
