package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"fletera-backend/internal/middleware"
	"fletera-backend/internal/models"
	"fletera-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// GetDrivers lists all drivers with their current job and last known
// position, for the dispatcher's live map
// GET /api/drivers
func GetDrivers(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		drivers := []models.DriverStatus{}
		err := db.Select(&drivers, `
			SELECT d.*,
			       j.id AS current_job_id,
			       j.status AS current_job_status,
			       dl.latitude AS last_latitude,
			       dl.longitude AS last_longitude,
			       dl.heading AS last_heading,
			       dl.updated_at AS last_seen_at
			FROM drivers d
			LEFT JOIN driver_locations dl ON dl.driver_id = d.id
			LEFT JOIN LATERAL (
				SELECT id, status FROM jobs
				WHERE driver_id = d.id
				  AND status IN ('TO_PICKUP', 'LOADING', 'TO_DROPOFF', 'UNLOADING')
				ORDER BY updated_at DESC
				LIMIT 1
			) j ON TRUE
			ORDER BY d.name`)
		if err != nil {
			log.Printf("❌ Error listing drivers: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": drivers})
	}
}

type driverPayload struct {
	Name   *string `json:"name"`
	Code   *string `json:"code"`
	Phone  *string `json:"phone"`
	Active *bool   `json:"active"`
}

// CreateDriver registers a new driver
// POST /api/drivers
func CreateDriver(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req driverPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
			utils.RespondError(w, http.StatusBadRequest, "Name is required")
			return
		}
		if req.Code == nil || strings.TrimSpace(*req.Code) == "" {
			utils.RespondError(w, http.StatusBadRequest, "Code is required")
			return
		}

		now := time.Now().UnixMilli()
		driver := models.Driver{
			ID:        uuid.New().String(),
			Name:      strings.TrimSpace(*req.Name),
			Code:      strings.TrimSpace(*req.Code),
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if req.Phone != nil {
			driver.Phone = strings.TrimSpace(*req.Phone)
		}
		if req.Active != nil {
			driver.Active = *req.Active
		}

		_, err := db.NamedExec(`
			INSERT INTO drivers (id, name, code, phone, active, created_at, updated_at)
			VALUES (:id, :name, :code, :phone, :active, :created_at, :updated_at)`, &driver)
		if isUniqueViolation(err) {
			utils.RespondError(w, http.StatusConflict, "A driver with that code already exists")
			return
		}
		if err != nil {
			log.Printf("❌ Error creating driver: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to create driver")
			return
		}

		log.Printf("✅ Driver created: %s (%s)", driver.Name, driver.ID)
		utils.RespondJSON(w, http.StatusCreated, map[string]interface{}{"success": true, "data": driver})
	}
}

// UpdateDriver patches a driver's fields
// PATCH /api/drivers/{id}
func UpdateDriver(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID := chi.URLParam(r, "id")

		var req driverPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		var driver models.Driver
		err := db.Get(&driver, "SELECT * FROM drivers WHERE id = $1", driverID)
		if err == sql.ErrNoRows {
			utils.RespondErrorCode(w, http.StatusNotFound, CodeNotFound, "Driver not found")
			return
		}
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}

		if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
			driver.Name = strings.TrimSpace(*req.Name)
		}
		if req.Code != nil && strings.TrimSpace(*req.Code) != "" {
			driver.Code = strings.TrimSpace(*req.Code)
		}
		if req.Phone != nil {
			driver.Phone = strings.TrimSpace(*req.Phone)
		}
		if req.Active != nil {
			driver.Active = *req.Active
		}
		driver.UpdatedAt = time.Now().UnixMilli()

		_, err = db.NamedExec(`
			UPDATE drivers SET name = :name, code = :code, phone = :phone,
				active = :active, updated_at = :updated_at
			WHERE id = :id`, &driver)
		if isUniqueViolation(err) {
			utils.RespondError(w, http.StatusConflict, "A driver with that code already exists")
			return
		}
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Failed to update driver")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": driver})
	}
}

// DeleteDriver removes a driver. Their jobs survive with driver_id
// cleared (the FK is ON DELETE SET NULL), deletion never cascades to
// jobs.
// DELETE /api/drivers/{id}
func DeleteDriver(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID := chi.URLParam(r, "id")
		result, err := db.Exec("DELETE FROM drivers WHERE id = $1", driverID)
		if err != nil {
			log.Printf("❌ Error deleting driver %s: %v", driverID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to delete driver")
			return
		}
		if n, _ := result.RowsAffected(); n == 0 {
			utils.RespondErrorCode(w, http.StatusNotFound, CodeNotFound, "Driver not found")
			return
		}
		log.Printf("🗑️ Driver deleted: %s", driverID)
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

// GetMyJobs lists the authenticated driver's jobs, newest first.
// Finished jobs are included only with ?include_done=1.
// GET /api/driver/jobs
func GetMyJobs(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		query := "SELECT * FROM jobs WHERE driver_id = $1"
		if r.URL.Query().Get("include_done") != "1" {
			query += " AND status != 'DONE'"
		}
		query += " ORDER BY scheduled_date NULLS LAST, scheduled_time NULLS LAST, created_at DESC"

		jobs := []models.Job{}
		if err := db.Select(&jobs, query, userClaims.UserID); err != nil {
			log.Printf("❌ Error listing driver jobs: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": jobs})
	}
}

// RegisterFCMToken stores the push token of the driver's device
// POST /api/driver/fcm-token
func RegisterFCMToken(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
			utils.RespondError(w, http.StatusBadRequest, "Token is required")
			return
		}

		_, err := db.Exec("UPDATE drivers SET fcm_token = $1, updated_at = $2 WHERE id = $3",
			req.Token, time.Now().UnixMilli(), userClaims.UserID)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Failed to store token")
			return
		}

		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}
