package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tech-arch1tect/cloudtoken/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type JobRecord struct {
	ID          string     `gorm:"primarykey;size:36" json:"id"`
	Name        string     `gorm:"size:128;not null" json:"name"`
	Queue       string     `gorm:"size:64;not null;index:idx_jobs_pending,priority:1" json:"queue"`
	Payload     []byte     `json:"payload"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	AvailableAt time.Time  `gorm:"not null;index:idx_jobs_pending,priority:2" json:"available_at"`
	ReservedAt  *time.Time `json:"reserved_at"`
	FailedAt    *time.Time `gorm:"index" json:"failed_at"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (JobRecord) TableName() string {
	return "jobs"
}

func (r *JobRecord) toJob() *Job {
	return &Job{
		ID:          r.ID,
		Name:        r.Name,
		Queue:       r.Queue,
		Payload:     r.Payload,
		Attempts:    r.Attempts,
		AvailableAt: r.AvailableAt,
		LastError:   r.LastError,
	}
}

// DatabaseQueue stores jobs in the jobs table. Reservation is an optimistic
// update on reserved_at, so several workers can share one table.
type DatabaseQueue struct {
	db     *gorm.DB
	lease  time.Duration
	logger *logging.Service
	now    func() time.Time
}

func NewDatabaseQueue(db *gorm.DB, lease time.Duration, logger *logging.Service) *DatabaseQueue {
	return &DatabaseQueue{db: db, lease: lease, logger: logger, now: time.Now}
}

func (q *DatabaseQueue) Dispatch(ctx context.Context, job *Job, delay time.Duration, queue string) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Queue = queue
	job.AvailableAt = q.now().Add(delay)

	record := &JobRecord{
		ID:          job.ID,
		Name:        job.Name,
		Queue:       job.Queue,
		Payload:     job.Payload,
		Attempts:    job.Attempts,
		AvailableAt: job.AvailableAt,
	}
	if err := q.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to dispatch job: %w", err)
	}

	if q.logger != nil {
		q.logger.Debug("job dispatched",
			zap.String("job_id", job.ID),
			zap.String("job", job.Name),
			zap.String("queue", queue),
			zap.Duration("delay", delay))
	}
	return nil
}

func (q *DatabaseQueue) Reserve(ctx context.Context, queues ...string) (*Job, error) {
	for _, name := range queues {
		job, err := q.reserveFrom(ctx, name)
		if errors.Is(err, ErrNoJob) {
			continue
		}
		return job, err
	}
	return nil, ErrNoJob
}

func (q *DatabaseQueue) reserveFrom(ctx context.Context, queue string) (*Job, error) {
	db := q.db.WithContext(ctx)

	// A lost race for a candidate moves on to the next one.
	for tries := 0; tries < 3; tries++ {
		now := q.now()
		staleBefore := now.Add(-q.lease)

		var record JobRecord
		err := db.Where("queue = ? AND failed_at IS NULL AND available_at <= ?", queue, now).
			Where("reserved_at IS NULL OR reserved_at <= ?", staleBefore).
			Order("available_at").
			First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoJob
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find job: %w", err)
		}

		claim := db.Model(&JobRecord{}).
			Where("id = ? AND failed_at IS NULL", record.ID).
			Where("reserved_at IS NULL OR reserved_at <= ?", staleBefore)
		result := claim.Updates(map[string]any{
			"reserved_at": now,
			"attempts":    gorm.Expr("attempts + 1"),
		})
		if result.Error != nil {
			return nil, fmt.Errorf("failed to reserve job: %w", result.Error)
		}
		if result.RowsAffected == 1 {
			record.Attempts++
			return record.toJob(), nil
		}
	}
	return nil, ErrNoJob
}

func (q *DatabaseQueue) Complete(ctx context.Context, job *Job) error {
	if err := q.db.WithContext(ctx).Delete(&JobRecord{}, "id = ?", job.ID).Error; err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

func (q *DatabaseQueue) Release(ctx context.Context, job *Job, delay time.Duration) error {
	result := q.db.WithContext(ctx).Model(&JobRecord{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"reserved_at":  nil,
			"available_at": q.now().Add(delay),
			"last_error":   job.LastError,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to release job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotReserved
	}
	return nil
}

func (q *DatabaseQueue) Fail(ctx context.Context, job *Job, cause error) error {
	now := q.now()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := q.db.WithContext(ctx).Model(&JobRecord{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"reserved_at": nil,
			"failed_at":   now,
			"last_error":  msg,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// Failed lists permanently failed jobs, newest first.
func (q *DatabaseQueue) Failed(ctx context.Context, limit int) ([]JobRecord, error) {
	var records []JobRecord
	err := q.db.WithContext(ctx).
		Where("failed_at IS NOT NULL").
		Order("failed_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}
	return records, nil
}
