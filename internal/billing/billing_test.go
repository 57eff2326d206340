package billing

import (
	"testing"

	"fletera-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(v int64) *int64       { return &v }
func rate(v float64) *float64 { return &v }

func TestOneHourTwentyFiveRoundsUpToTwo(t *testing.T) {
	job := &models.Job{
		Status:         models.JobStatusDone,
		StartJobAt:     ms(0),
		EndUnloadingAt: ms(85 * 60 * 1000), // 1h25m
	}
	res := Compute(job, models.RateSettings{HourlyRate: rate(1000)})

	require.NotNil(t, res.BilledHours)
	assert.Equal(t, int64(2), *res.BilledHours)
	require.NotNil(t, res.TripTotal)
	assert.Equal(t, 2000.0, *res.TripTotal)
	require.NotNil(t, res.BilledTotal)
	assert.Equal(t, 2000.0, *res.BilledTotal)
}

func TestExactHourDoesNotRoundUp(t *testing.T) {
	job := &models.Job{
		StartJobAt:     ms(0),
		EndUnloadingAt: ms(2 * 3_600_000),
	}
	res := Compute(job, models.RateSettings{HourlyRate: rate(500)})
	assert.Equal(t, int64(2), *res.BilledHours)
	assert.Equal(t, 1000.0, *res.TripTotal)
}

func TestZeroDurationBillsZeroHours(t *testing.T) {
	job := &models.Job{StartJobAt: ms(5000), EndUnloadingAt: ms(5000)}
	res := Compute(job, models.RateSettings{HourlyRate: rate(1000)})
	require.NotNil(t, res.BilledHours)
	assert.Equal(t, int64(0), *res.BilledHours)
	assert.Equal(t, 0.0, *res.TripTotal)
}

func TestMissingTimestampsYieldNilTotals(t *testing.T) {
	res := Compute(&models.Job{StartJobAt: ms(0)}, models.RateSettings{HourlyRate: rate(1000)})
	assert.Nil(t, res.EndMs)
	assert.Nil(t, res.DurationMs)
	assert.Nil(t, res.BilledHours)
	assert.Nil(t, res.TripTotal)
	assert.Nil(t, res.GrandTotal)
	assert.Nil(t, res.BilledTotal)

	res = Compute(&models.Job{EndTripAt: ms(1000)}, models.RateSettings{HourlyRate: rate(1000)})
	assert.Nil(t, res.StartMs)
	assert.Nil(t, res.BilledHours)
}

func TestStartAndEndPreferenceOrder(t *testing.T) {
	job := &models.Job{
		StartJobAt:     ms(100),
		StartLoadingAt: ms(200),
		EndTripAt:      ms(5000),
		EndUnloadingAt: ms(6000),
	}
	res := Compute(job, models.RateSettings{})
	assert.Equal(t, int64(100), *res.StartMs)
	assert.Equal(t, int64(6000), *res.EndMs)

	// Without startJobAt the next stamp in preference order wins;
	// without endUnloadingAt the trip end is used
	job2 := &models.Job{StartLoadingAt: ms(300), EndTripAt: ms(9000)}
	res2 := Compute(job2, models.RateSettings{})
	assert.Equal(t, int64(300), *res2.StartMs)
	assert.Equal(t, int64(9000), *res2.EndMs)
}

func TestHelpersTotal(t *testing.T) {
	job := &models.Job{
		HelpersCount:   2,
		StartJobAt:     ms(0),
		EndUnloadingAt: ms(90 * 60 * 1000), // 2 billed hours
	}
	rates := models.RateSettings{HourlyRate: rate(1000), HelperHourlyRate: rate(300)}
	res := Compute(job, rates)

	require.NotNil(t, res.HelpersTotal)
	assert.Equal(t, 1200.0, *res.HelpersTotal) // 2h * 300 * 2 helpers
	assert.Equal(t, 3200.0, *res.GrandTotal)

	// No helpers: no helpers line even with a rate configured
	job.HelpersCount = 0
	res = Compute(job, rates)
	assert.Nil(t, res.HelpersTotal)
	assert.Equal(t, 2000.0, *res.GrandTotal)

	// Helpers without a configured rate: line stays nil
	job.HelpersCount = 2
	res = Compute(job, models.RateSettings{HourlyRate: rate(1000)})
	assert.Nil(t, res.HelpersTotal)
	assert.Equal(t, 2000.0, *res.GrandTotal)
}

func TestUnsetHourlyRate(t *testing.T) {
	job := &models.Job{
		HelpersCount:   1,
		StartJobAt:     ms(0),
		EndUnloadingAt: ms(3_600_000),
	}
	res := Compute(job, models.RateSettings{HelperHourlyRate: rate(300)})
	assert.Nil(t, res.TripTotal)
	require.NotNil(t, res.HelpersTotal)
	assert.Equal(t, 300.0, *res.GrandTotal, "grand total falls back to whichever part is present")
}

func TestChargedAmountOverride(t *testing.T) {
	job := &models.Job{
		StartJobAt:     ms(0),
		EndUnloadingAt: ms(3_600_000),
		ChargedAmount:  rate(1500),
	}
	res := Compute(job, models.RateSettings{HourlyRate: rate(1000)})

	require.NotNil(t, res.BilledTotal)
	assert.Equal(t, 1500.0, *res.BilledTotal, "override is authoritative")
	require.NotNil(t, res.GrandTotal)
	assert.Equal(t, 1000.0, *res.GrandTotal, "computed total kept for auditing")
}
