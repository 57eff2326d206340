package handlers

import (
	"encoding/csv"
	"log"
	"net/http"
	"strconv"
	"time"

	"fletera-backend/internal/billing"
	"fletera-backend/internal/models"
	"fletera-backend/pkg/utils"

	"github.com/jmoiron/sqlx"
)

// ExportJobsCSV streams every job with its computed billing as CSV.
// The billing columns come straight from the calculator so the export
// matches invoices exactly (billed hours round up, the manual override
// wins when present).
// GET /api/export/jobs.csv
func ExportJobsCSV(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type jobRow struct {
			models.Job
			DriverName *string `db:"driver_name"`
		}

		jobs := []jobRow{}
		err := db.Select(&jobs, `
			SELECT j.*, d.name AS driver_name
			FROM jobs j
			LEFT JOIN drivers d ON d.id = j.driver_id
			ORDER BY j.created_at DESC`)
		if err != nil {
			log.Printf("❌ Error exporting jobs: %v", err)
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}

		rates, err := loadRates(db)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Database error")
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="jobs.csv"`)

		cw := csv.NewWriter(w)
		defer cw.Flush()

		cw.Write([]string{
			"id", "status", "driver", "pickup", "dropoff", "extra_stops",
			"scheduled_date", "scheduled_time", "helpers",
			"distance_meters", "started_at", "ended_at", "billed_hours",
			"trip_total", "helpers_total", "grand_total", "charged_amount", "billed_total",
		})

		for i := range jobs {
			job := &jobs[i].Job
			bill := billing.Compute(job, rates)

			cw.Write([]string{
				job.ID,
				string(job.Status),
				strOrEmpty(jobs[i].DriverName),
				job.PickupAddress,
				job.DropoffAddress,
				strconv.Itoa(len(job.ExtraStops)),
				strOrEmpty(job.ScheduledDate),
				strOrEmpty(job.ScheduledTime),
				strconv.Itoa(job.HelpersCount),
				strconv.FormatInt(job.DistanceMeters, 10),
				msOrEmpty(bill.StartMs),
				msOrEmpty(bill.EndMs),
				intOrEmpty(bill.BilledHours),
				amountOrEmpty(bill.TripTotal),
				amountOrEmpty(bill.HelpersTotal),
				amountOrEmpty(bill.GrandTotal),
				amountOrEmpty(bill.ChargedAmount),
				amountOrEmpty(bill.BilledTotal),
			})
		}
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOrEmpty(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func amountOrEmpty(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// msOrEmpty renders an epoch-ms stamp as RFC3339 in the service's
// local time, matching what the back office shows on screen
func msOrEmpty(ms *int64) string {
	if ms == nil {
		return ""
	}
	return time.UnixMilli(*ms).In(time.FixedZone("-03", -3*60*60)).Format(time.RFC3339)
}
