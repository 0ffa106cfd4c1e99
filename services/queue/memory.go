package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	job        Job
	reservedAt *time.Time
	failed     bool
}

// MemoryQueue keeps jobs in process. Jobs are lost on restart.
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	lease   time.Duration
	now     func() time.Time
}

func NewMemoryQueue(lease time.Duration) *MemoryQueue {
	return &MemoryQueue{
		entries: make(map[string]*memoryEntry),
		lease:   lease,
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

func (q *MemoryQueue) Dispatch(_ context.Context, job *Job, delay time.Duration, queue string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Queue = queue
	job.AvailableAt = q.now().Add(delay)

	stored := *job
	q.entries[job.ID] = &memoryEntry{job: stored}
	return nil
}

func (q *MemoryQueue) Reserve(ctx context.Context, queues ...string) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for _, name := range queues {
		var ready []*memoryEntry
		for _, e := range q.entries {
			if e.failed || e.job.Queue != name || e.job.AvailableAt.After(now) {
				continue
			}
			if e.reservedAt != nil && now.Sub(*e.reservedAt) < q.lease {
				continue
			}
			ready = append(ready, e)
		}
		if len(ready) == 0 {
			continue
		}

		sort.Slice(ready, func(i, j int) bool {
			return ready[i].job.AvailableAt.Before(ready[j].job.AvailableAt)
		})
		e := ready[0]
		e.reservedAt = &now
		e.job.Attempts++
		job := e.job
		return &job, nil
	}
	return nil, ErrNoJob
}

func (q *MemoryQueue) Complete(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, job.ID)
	return nil
}

func (q *MemoryQueue) Release(_ context.Context, job *Job, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[job.ID]
	if !ok {
		return ErrJobNotReserved
	}
	e.reservedAt = nil
	e.job.AvailableAt = q.now().Add(delay)
	e.job.LastError = job.LastError
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, job *Job, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.entries[job.ID]; ok {
		e.failed = true
		e.reservedAt = nil
		if cause != nil {
			e.job.LastError = cause.Error()
		}
	}
	return nil
}

// Pending returns copies of every job that has not failed, ordered by
// availability.
func (q *MemoryQueue) Pending() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var jobs []Job
	for _, e := range q.entries {
		if !e.failed {
			jobs = append(jobs, e.job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].AvailableAt.Before(jobs[j].AvailableAt)
	})
	return jobs
}
