package tracking

import (
	"math"
	"sync"
	"testing"

	"fletera-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeJob() *models.Job {
	return &models.Job{ID: "job-1", Status: models.JobStatusToDropoff}
}

func acc(v float64) *float64 { return &v }

func TestApplyFixIgnoresInactiveJob(t *testing.T) {
	for _, status := range []models.JobStatus{models.JobStatusPending, models.JobStatusDone} {
		job := &models.Job{ID: "j", Status: status}
		out := ApplyFix(job, -34.6037, -58.3816, acc(10), 1000)
		assert.Nil(t, out, "status %s", status)
		assert.Nil(t, job.LastFixAt)
		assert.Zero(t, job.DistanceMeters)
	}
}

func TestApplyFixIgnoresNonFiniteCoordinates(t *testing.T) {
	job := activeJob()
	assert.Nil(t, ApplyFix(job, math.NaN(), -58.0, acc(10), 1000))
	assert.Nil(t, ApplyFix(job, -34.0, math.Inf(1), acc(10), 1000))
	assert.Nil(t, job.LastFixAt)
}

func TestFirstFixAnchorsWithoutDistance(t *testing.T) {
	job := activeJob()
	out := ApplyFix(job, -34.6037, -58.3816, acc(10), 1000)
	require.NotNil(t, out)
	assert.Zero(t, out.AddedMeters)
	assert.Zero(t, job.DistanceMeters)
	require.NotNil(t, job.LastFixAt)
	assert.Equal(t, int64(1000), *job.LastFixAt)
}

func TestHundredMetersInTenSeconds(t *testing.T) {
	// Roughly 100 m north of the first point
	lat1, lng1 := -34.603700, -58.381600
	lat2, lng2 := -34.602801, -58.381600

	want := int64(math.Round(HaversineMeters(lat1, lng1, lat2, lng2)))
	require.Greater(t, want, int64(90))
	require.Less(t, want, int64(110))

	job := activeJob()
	ApplyFix(job, lat1, lng1, acc(10), 0)
	out := ApplyFix(job, lat2, lng2, acc(10), 10_000)

	require.NotNil(t, out)
	assert.Equal(t, want, out.AddedMeters)
	assert.Equal(t, want, job.DistanceMeters)
}

func TestJitterNeverAccumulates(t *testing.T) {
	job := activeJob()
	base := -34.603700
	ApplyFix(job, base, -58.3816, acc(10), 0)

	// ~2-3 m wiggles every 5 s, an hour of them
	for i := 1; i <= 720; i++ {
		wiggle := base + float64(i%2)*0.000025
		out := ApplyFix(job, wiggle, -58.3816, acc(10), int64(i)*5000)
		require.NotNil(t, out)
		assert.Zero(t, out.AddedMeters)
	}
	assert.Zero(t, job.DistanceMeters)
}

func TestTeleportRejected(t *testing.T) {
	job := activeJob()
	ApplyFix(job, -34.6037, -58.3816, acc(10), 0)
	anchorAt := *job.LastFixAt

	// ~1.1 km in 10 s ⇒ ~110 m/s, well past the cap
	out := ApplyFix(job, -34.5937, -58.3816, acc(10), 10_000)
	assert.Nil(t, out)
	assert.Zero(t, job.DistanceMeters)
	assert.Equal(t, anchorAt, *job.LastFixAt, "anchor must not move on a rejected outlier")
	assert.Equal(t, -34.6037, *job.LastLatitude)
}

func TestBadAccuracyRejectedWithoutReanchor(t *testing.T) {
	job := activeJob()
	ApplyFix(job, -34.6037, -58.3816, acc(10), 0)

	out := ApplyFix(job, -34.6027, -58.3816, acc(80), 10_000)
	assert.Nil(t, out)
	assert.Equal(t, int64(0), *job.LastFixAt)
	assert.Zero(t, job.DistanceMeters)
}

func TestStaleFixRejected(t *testing.T) {
	job := activeJob()
	ApplyFix(job, -34.6037, -58.3816, acc(10), 10_000)

	// Late-arriving fix with an older timestamp
	assert.Nil(t, ApplyFix(job, -34.6027, -58.3816, acc(10), 9_000))
	assert.Nil(t, ApplyFix(job, -34.6027, -58.3816, acc(10), 10_000))
	assert.Zero(t, job.DistanceMeters)
}

func TestGapReanchorsWithoutCredit(t *testing.T) {
	job := activeJob()
	ApplyFix(job, -34.6037, -58.3816, acc(10), 0)

	// 6 minutes of silence, then a fix 2 km away: no distance for the jump
	out := ApplyFix(job, -34.5857, -58.3816, acc(10), 360_000)
	require.NotNil(t, out)
	assert.Zero(t, out.AddedMeters)
	assert.Zero(t, job.DistanceMeters)
	assert.Equal(t, -34.5857, *job.LastLatitude)
	assert.Equal(t, int64(360_000), *job.LastFixAt)

	// Movement after the re-anchor counts again
	out = ApplyFix(job, -34.584801, -58.3816, acc(10), 370_000)
	require.NotNil(t, out)
	assert.Greater(t, out.AddedMeters, int64(0))
	assert.Equal(t, out.AddedMeters, job.DistanceMeters)
}

func TestDistanceOnlyGrows(t *testing.T) {
	job := activeJob()
	ApplyFix(job, -34.6037, -58.3816, acc(10), 0)

	prev := int64(0)
	lat := -34.6037
	for i := 1; i <= 50; i++ {
		lat += 0.0005 // ~55 m hops
		out := ApplyFix(job, lat, -58.3816, acc(15), int64(i)*10_000)
		require.NotNil(t, out)
		assert.GreaterOrEqual(t, job.DistanceMeters, prev)
		prev = job.DistanceMeters
	}
	assert.Greater(t, job.DistanceMeters, int64(2000))
}

func TestJobLocksSerializePerJob(t *testing.T) {
	locks := NewJobLocks()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("job-1")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)

	// Registry empties once nobody holds a lock
	locks.mu.Lock()
	assert.Empty(t, locks.locks)
	locks.mu.Unlock()
}
