package tracking

import "sync"

// JobLocks serializes read-modify-write cycles per job id, so a state
// transition racing a position fix for the same job cannot interleave,
// while updates to different jobs never block each other.
//
// Entries are reference-counted and removed once the last holder
// unlocks, so the map does not grow with the number of jobs ever seen.
type JobLocks struct {
	mu    sync.Mutex
	locks map[string]*jobLock
}

type jobLock struct {
	mu   sync.Mutex
	refs int
}

// NewJobLocks creates an empty lock registry. One registry is created
// in main and shared by every handler that mutates jobs.
func NewJobLocks() *JobLocks {
	return &JobLocks{locks: make(map[string]*jobLock)}
}

// Lock acquires the lock for the given job id and returns the matching
// unlock function.
func (j *JobLocks) Lock(jobID string) func() {
	j.mu.Lock()
	l, ok := j.locks[jobID]
	if !ok {
		l = &jobLock{}
		j.locks[jobID] = l
	}
	l.refs++
	j.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		j.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(j.locks, jobID)
		}
		j.mu.Unlock()
	}
}
