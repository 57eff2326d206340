package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"time"

	"fletera-backend/internal/billing"
	"fletera-backend/internal/lifecycle"
	"fletera-backend/internal/middleware"
	"fletera-backend/internal/models"
	"fletera-backend/internal/services"
	"fletera-backend/internal/tracking"
	"fletera-backend/internal/websocket"
	"fletera-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Error codes returned to clients so they can branch without parsing
// messages
const (
	CodeInvalidStatus   = "INVALID_STATUS"
	CodeNotYetAvailable = "NOT_YET_AVAILABLE"
	CodeNotFound        = "NOT_FOUND"
	CodeJobDone         = "JOB_DONE"
)

func loadJob(db *sqlx.DB, jobID string) (*models.Job, error) {
	var job models.Job
	if err := db.Get(&job, "SELECT * FROM jobs WHERE id = $1", jobID); err != nil {
		return nil, err
	}
	return &job, nil
}

// saveJobLifecycle persists every field the state machine and the
// distance filter are allowed to touch
func saveJobLifecycle(db *sqlx.DB, job *models.Job) error {
	job.UpdatedAt = time.Now().UnixMilli()
	_, err := db.NamedExec(`
		UPDATE jobs SET
			status = :status,
			stop_index = :stop_index,
			start_job_at = :start_job_at,
			start_loading_at = :start_loading_at,
			end_loading_at = :end_loading_at,
			start_trip_at = :start_trip_at,
			end_trip_at = :end_trip_at,
			start_unloading_at = :start_unloading_at,
			end_unloading_at = :end_unloading_at,
			distance_meters = :distance_meters,
			last_latitude = :last_latitude,
			last_longitude = :last_longitude,
			last_fix_at = :last_fix_at,
			updated_at = :updated_at
		WHERE id = :id`, job)
	return err
}

func loadRates(db *sqlx.DB) (models.RateSettings, error) {
	rows := []struct {
		Key   string   `db:"key"`
		Value *float64 `db:"value"`
	}{}
	if err := db.Select(&rows, "SELECT key, value FROM settings"); err != nil {
		return models.RateSettings{}, err
	}

	var rates models.RateSettings
	for _, row := range rows {
		switch row.Key {
		case models.SettingHourlyRate:
			rates.HourlyRate = row.Value
		case models.SettingHelperHourlyRate:
			rates.HelperHourlyRate = row.Value
		}
	}
	return rates, nil
}

type jobPayload struct {
	PickupAddress    *string             `json:"pickup_address"`
	PickupLatitude   *float64            `json:"pickup_latitude"`
	PickupLongitude  *float64            `json:"pickup_longitude"`
	DropoffAddress   *string             `json:"dropoff_address"`
	DropoffLatitude  *float64            `json:"dropoff_latitude"`
	DropoffLongitude *float64            `json:"dropoff_longitude"`
	ExtraStops       models.LocationList `json:"extra_stops"`
	DriverID         *string             `json:"driver_id"`
	HelpersCount     *int                `json:"helpers_count"`
	ScheduledDate    *string             `json:"scheduled_date"`
	ScheduledTime    *string             `json:"scheduled_time"`
	ChargedAmount    *float64            `json:"charged_amount"`
	Notes            *string             `json:"notes"`
}

// CreateJob creates a new job in PENDING
// POST /api/jobs
func CreateJob(db *sqlx.DB, hub *websocket.Hub, fcmService *services.FCMService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jobPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.PickupAddress == nil || req.DropoffAddress == nil {
			utils.RespondError(w, http.StatusBadRequest, "Pickup and dropoff addresses are required")
			return
		}
		if req.HelpersCount != nil && *req.HelpersCount < 0 {
			utils.RespondError(w, http.StatusBadRequest, "helpers_count must be >= 0")
			return
		}

		now := time.Now().UnixMilli()
		job := models.Job{
			ID:             uuid.New().String(),
			Status:         models.JobStatusPending,
			PickupAddress:  *req.PickupAddress,
			DropoffAddress: *req.DropoffAddress,
			ExtraStops:     req.ExtraStops,
			DriverID:       req.DriverID,
			ScheduledDate:  req.ScheduledDate,
			ScheduledTime:  req.ScheduledTime,
			ChargedAmount:  req.ChargedAmount,
			Notes:          req.Notes,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if job.ExtraStops == nil {
			job.ExtraStops = models.LocationList{}
		}
		if req.PickupLatitude != nil {
			job.PickupLatitude = *req.PickupLatitude
		}
		if req.PickupLongitude != nil {
			job.PickupLongitude = *req.PickupLongitude
		}
		if req.DropoffLatitude != nil {
			job.DropoffLatitude = *req.DropoffLatitude
		}
		if req.DropoffLongitude != nil {
			job.DropoffLongitude = *req.DropoffLongitude
		}
		if req.HelpersCount != nil {
			job.HelpersCount = *req.HelpersCount
		}

		_, err := db.NamedExec(`
			INSERT INTO jobs (
				id, status, pickup_address, pickup_latitude, pickup_longitude,
				dropoff_address, dropoff_latitude, dropoff_longitude, extra_stops,
				driver_id, helpers_count, scheduled_date, scheduled_time,
				distance_meters, charged_amount, notes, created_at, updated_at
			) VALUES (
				:id, :status, :pickup_address, :pickup_latitude, :pickup_longitude,
				:dropoff_address, :dropoff_latitude, :dropoff_longitude, :extra_stops,
				:driver_id, :helpers_count, :scheduled_date, :scheduled_time,
				0, :charged_amount, :notes, :created_at, :updated_at
			)`, &job)
		if err != nil {
			log.Printf("❌ Error creating job: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to create job")
			return
		}

		if job.DriverID != nil {
			notifyDriverAssigned(db, hub, fcmService, &job)
		}

		log.Printf("✅ Job created: %s (%s → %s)", job.ID, job.PickupAddress, job.DropoffAddress)
		utils.RespondJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "data": job})
	}
}

// GetJobs lists jobs, optionally filtered by status and/or driver
// GET /api/jobs?status=&driver_id=
func GetJobs(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := "SELECT * FROM jobs"
		args := []interface{}{}
		where := ""

		if status := r.URL.Query().Get("status"); status != "" {
			if models.StatusRank(models.JobStatus(status)) < 0 {
				utils.RespondErrorCode(w, http.StatusBadRequest, CodeInvalidStatus, "Unknown status: "+status)
				return
			}
			args = append(args, status)
			where = " WHERE status = $1"
		}
		if driverID := r.URL.Query().Get("driver_id"); driverID != "" {
			args = append(args, driverID)
			if where == "" {
				where = " WHERE driver_id = $1"
			} else {
				where += " AND driver_id = $2"
			}
		}

		jobs := []models.Job{}
		if err := db.Select(&jobs, query+where+" ORDER BY created_at DESC", args...); err != nil {
			log.Printf("❌ Error listing jobs: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": jobs})
	}
}

// GetJob returns a single job
// GET /api/jobs/{id}
func GetJob(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := loadJob(db, chi.URLParam(r, "id"))
		if err == sql.ErrNoRows {
			utils.RespondErrorCode(w, http.StatusNotFound, CodeNotFound, "Job not found")
			return
		}
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": job})
	}
}

// UpdateJob patches a job's editable fields. Status, lifecycle
// timestamps and tracked distance are never patchable; they only move
// through the transition and position-fix paths.
// PATCH /api/jobs/{id}
func UpdateJob(db *sqlx.DB, hub *websocket.Hub, fcmService *services.FCMService, locks *tracking.JobLocks) http.HandlerFunc {
	allowed := map[string]string{
		"pickup_address":    "pickup_address",
		"pickup_latitude":   "pickup_latitude",
		"pickup_longitude":  "pickup_longitude",
		"dropoff_address":   "dropoff_address",
		"dropoff_latitude":  "dropoff_latitude",
		"dropoff_longitude": "dropoff_longitude",
		"extra_stops":       "extra_stops",
		"driver_id":         "driver_id",
		"helpers_count":     "helpers_count",
		"scheduled_date":    "scheduled_date",
		"scheduled_time":    "scheduled_time",
		"charged_amount":    "charged_amount",
		"notes":             "notes",
	}

	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "id")

		var fields map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		for key := range fields {
			if _, ok := allowed[key]; !ok {
				utils.RespondError(w, http.StatusBadRequest, "Field not patchable: "+key)
				return
			}
		}

		unlock := locks.Lock(jobID)
		defer unlock()

		job, err := loadJob(db, jobID)
		if err == sql.ErrNoRows {
			utils.RespondErrorCode(w, http.StatusNotFound, CodeNotFound, "Job not found")
			return
		}
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}
		if job.Status == models.JobStatusDone {
			utils.RespondErrorCode(w, http.StatusConflict, CodeJobDone, "Finished jobs cannot be edited")
			return
		}

		oldDriverID := job.DriverID
		if err := applyPatch(job, fields); err != nil {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}

		// Editing stops out from under the index must not leave it
		// past the end
		if job.StopIndex != nil && *job.StopIndex > len(job.ExtraStops) {
			clamped := len(job.ExtraStops)
			job.StopIndex = &clamped
		}

		job.UpdatedAt = time.Now().UnixMilli()
		_, err = db.NamedExec(`
			UPDATE jobs SET
				pickup_address = :pickup_address,
				pickup_latitude = :pickup_latitude,
				pickup_longitude = :pickup_longitude,
				dropoff_address = :dropoff_address,
				dropoff_latitude = :dropoff_latitude,
				dropoff_longitude = :dropoff_longitude,
				extra_stops = :extra_stops,
				stop_index = :stop_index,
				driver_id = :driver_id,
				helpers_count = :helpers_count,
				scheduled_date = :scheduled_date,
				scheduled_time = :scheduled_time,
				charged_amount = :charged_amount,
				notes = :notes,
				updated_at = :updated_at
			WHERE id = :id`, job)
		if err != nil {
			log.Printf("❌ Error updating job %s: %v", jobID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to update job")
			return
		}

		notifyAssignmentChange(db, hub, fcmService, job, oldDriverID)

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": job})
	}
}

func applyPatch(job *models.Job, fields map[string]json.RawMessage) error {
	var payload jobPayload
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return errors.New("malformed field value")
	}

	if payload.PickupAddress != nil {
		job.PickupAddress = *payload.PickupAddress
	}
	if payload.PickupLatitude != nil {
		job.PickupLatitude = *payload.PickupLatitude
	}
	if payload.PickupLongitude != nil {
		job.PickupLongitude = *payload.PickupLongitude
	}
	if payload.DropoffAddress != nil {
		job.DropoffAddress = *payload.DropoffAddress
	}
	if payload.DropoffLatitude != nil {
		job.DropoffLatitude = *payload.DropoffLatitude
	}
	if payload.DropoffLongitude != nil {
		job.DropoffLongitude = *payload.DropoffLongitude
	}
	if _, ok := fields["extra_stops"]; ok {
		if payload.ExtraStops == nil {
			payload.ExtraStops = models.LocationList{}
		}
		job.ExtraStops = payload.ExtraStops
	}
	if _, ok := fields["driver_id"]; ok {
		job.DriverID = payload.DriverID // nil unassigns
	}
	if payload.HelpersCount != nil {
		if *payload.HelpersCount < 0 {
			return errors.New("helpers_count must be >= 0")
		}
		job.HelpersCount = *payload.HelpersCount
	}
	if _, ok := fields["scheduled_date"]; ok {
		job.ScheduledDate = payload.ScheduledDate
	}
	if _, ok := fields["scheduled_time"]; ok {
		job.ScheduledTime = payload.ScheduledTime
	}
	if _, ok := fields["charged_amount"]; ok {
		if payload.ChargedAmount != nil && (*payload.ChargedAmount < 0 || math.IsNaN(*payload.ChargedAmount)) {
			return errors.New("charged_amount must be >= 0")
		}
		job.ChargedAmount = payload.ChargedAmount
	}
	if _, ok := fields["notes"]; ok {
		job.Notes = payload.Notes
	}
	return nil
}

// DeleteJob removes a job permanently (admin only)
// DELETE /api/jobs/{id}
func DeleteJob(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "id")
		result, err := db.Exec("DELETE FROM jobs WHERE id = $1", jobID)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Failed to delete job")
			return
		}
		if n, _ := result.RowsAffected(); n == 0 {
			utils.RespondErrorCode(w, http.StatusNotFound, CodeNotFound, "Job not found")
			return
		}
		log.Printf("🗑️ Job deleted: %s", jobID)
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

type transitionRequest struct {
	Status models.JobStatus `json:"status"`
}

// TransitionJob moves a job forward through its lifecycle
// POST /api/jobs/{id}/transition
func TransitionJob(db *sqlx.DB, hub *websocket.Hub, locks *tracking.JobLocks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, _ := middleware.GetUserFromContext(r)
		jobID := chi.URLParam(r, "id")

		var req transitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		unlock := locks.Lock(jobID)
		defer unlock()

		job, err := loadJob(db, jobID)
		if err == sql.ErrNoRows {
			utils.RespondErrorCode(w, http.StatusNotFound, CodeNotFound, "Job not found")
			return
		}
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}

		// Drivers may only move their own jobs
		if userClaims.Role == middleware.RoleDriver &&
			(job.DriverID == nil || *job.DriverID != userClaims.UserID) {
			utils.RespondError(w, http.StatusForbidden, "Job is not assigned to you")
			return
		}

		err = lifecycle.Transition(job, req.Status, time.Now().UnixMilli())
		if errors.Is(err, lifecycle.ErrInvalidStatus) {
			utils.RespondErrorCode(w, http.StatusBadRequest, CodeInvalidStatus, "Invalid target status: "+string(req.Status))
			return
		}
		if errors.Is(err, lifecycle.ErrNotYetAvailable) {
			// Include the window opening so the app can show a countdown
			resp := map[string]interface{}{
				"success": false,
				"code":    CodeNotYetAvailable,
				"error":   "The job cannot be started yet",
			}
			if at := lifecycle.ScheduledAtMs(job.ScheduledDate, job.ScheduledTime); at != nil {
				resp["scheduled_at"] = *at
				resp["window_opens_at"] = *at - lifecycle.StartWindowLeadMs
			}
			utils.RespondJSON(w, http.StatusConflict, resp)
			return
		}

		if err := saveJobLifecycle(db, job); err != nil {
			log.Printf("❌ Error saving job %s: %v", jobID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to save job")
			return
		}

		log.Printf("✅ Job %s → %s", job.ID, job.Status)
		broadcastJobStatus(hub, job)

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": job})
	}
}

// AdvanceJobStop marks the next extra stop visited during TO_DROPOFF.
// Advancing past the last stop is a quiet no-op.
// POST /api/jobs/{id}/advance-stop
func AdvanceJobStop(db *sqlx.DB, hub *websocket.Hub, locks *tracking.JobLocks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, _ := middleware.GetUserFromContext(r)
		jobID := chi.URLParam(r, "id")

		unlock := locks.Lock(jobID)
		defer unlock()

		job, err := loadJob(db, jobID)
		if err == sql.ErrNoRows {
			utils.RespondErrorCode(w, http.StatusNotFound, CodeNotFound, "Job not found")
			return
		}
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}

		if userClaims.Role == middleware.RoleDriver &&
			(job.DriverID == nil || *job.DriverID != userClaims.UserID) {
			utils.RespondError(w, http.StatusForbidden, "Job is not assigned to you")
			return
		}

		advanced := lifecycle.AdvanceStop(job)
		if advanced {
			if err := saveJobLifecycle(db, job); err != nil {
				log.Printf("❌ Error saving job %s: %v", jobID, err)
				utils.RespondError(w, http.StatusInternalServerError, "Failed to save job")
				return
			}
			broadcastJobStatus(hub, job)
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"advanced": advanced,
			"data":     job,
		})
	}
}

// GetJobBilling computes the bill for a job with the current rates
// GET /api/jobs/{id}/billing
func GetJobBilling(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := loadJob(db, chi.URLParam(r, "id"))
		if err == sql.ErrNoRows {
			utils.RespondErrorCode(w, http.StatusNotFound, CodeNotFound, "Job not found")
			return
		}
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}

		rates, err := loadRates(db)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    billing.Compute(job, rates),
		})
	}
}

func broadcastJobStatus(hub *websocket.Hub, job *models.Job) {
	hub.BroadcastToRole(middleware.RoleAdmin, websocket.EventJobStatus, job)
	if job.DriverID != nil {
		hub.BroadcastToUser(*job.DriverID, websocket.EventJobStatus, job)
	}
}

// notifyAssignmentChange pushes assignment events when a patch moved a
// job between drivers
func notifyAssignmentChange(db *sqlx.DB, hub *websocket.Hub, fcmService *services.FCMService, job *models.Job, oldDriverID *string) {
	sameDriver := (oldDriverID == nil && job.DriverID == nil) ||
		(oldDriverID != nil && job.DriverID != nil && *oldDriverID == *job.DriverID)
	if sameDriver {
		return
	}

	if oldDriverID != nil {
		hub.BroadcastToUser(*oldDriverID, websocket.EventJobUnassigned, job)
		if fcmService != nil {
			var token *string
			if err := db.Get(&token, "SELECT fcm_token FROM drivers WHERE id = $1", *oldDriverID); err == nil && token != nil {
				if err := fcmService.SendJobUnassignedNotification(*token, job.ID); err != nil {
					log.Printf("⚠️ FCM push failed: %v", err)
				}
			}
		}
	}
	if job.DriverID != nil {
		notifyDriverAssigned(db, hub, fcmService, job)
	}
}

func notifyDriverAssigned(db *sqlx.DB, hub *websocket.Hub, fcmService *services.FCMService, job *models.Job) {
	hub.BroadcastToUser(*job.DriverID, websocket.EventJobAssigned, job)

	if fcmService == nil {
		return
	}
	var token *string
	if err := db.Get(&token, "SELECT fcm_token FROM drivers WHERE id = $1", *job.DriverID); err != nil || token == nil {
		return
	}
	date, hhmm := "", ""
	if job.ScheduledDate != nil {
		date = *job.ScheduledDate
	}
	if job.ScheduledTime != nil {
		hhmm = *job.ScheduledTime
	}
	if err := fcmService.SendJobAssignedNotification(*token, job.ID, job.PickupAddress, date, hhmm); err != nil {
		log.Printf("⚠️ FCM push failed: %v", err)
	}
}
