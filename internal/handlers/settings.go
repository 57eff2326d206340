package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"fletera-backend/internal/models"
	"fletera-backend/pkg/utils"

	"github.com/jmoiron/sqlx"
)

// GetRateSettings returns the configured billing rates
// GET /api/settings/rates
func GetRateSettings(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rates, err := loadRates(db)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": rates})
	}
}

// UpdateRateSettings upserts the billing rates. A null value clears a
// rate back to "unset", which disables the corresponding billing line.
// PUT /api/settings/rates
func UpdateRateSettings(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields map[string]*float64
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		known := map[string]bool{
			models.SettingHourlyRate:       true,
			models.SettingHelperHourlyRate: true,
		}
		for key, value := range fields {
			if !known[key] {
				utils.RespondError(w, http.StatusBadRequest, "Unknown setting: "+key)
				return
			}
			if value != nil && *value < 0 {
				utils.RespondError(w, http.StatusBadRequest, "Rates must be >= 0")
				return
			}
		}

		now := time.Now().UnixMilli()
		for key, value := range fields {
			_, err := db.Exec(`
				INSERT INTO settings (key, value, updated_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
				key, value, now)
			if err != nil {
				log.Printf("❌ Error saving setting %s: %v", key, err)
				utils.RespondError(w, http.StatusInternalServerError, "Failed to save settings")
				return
			}
		}

		rates, err := loadRates(db)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": rates})
	}
}
