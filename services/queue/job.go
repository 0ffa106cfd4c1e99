package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	QueueHigh    = "high"
	QueueDefault = "default"
)

// Priority is the order workers drain queues in.
var Priority = []string{QueueHigh, QueueDefault}

var (
	ErrNoJob          = errors.New("no job available")
	ErrJobNotReserved = errors.New("job is not reserved by this worker")
)

type Job struct {
	ID          string
	Name        string
	Queue       string
	Payload     []byte
	Attempts    int
	AvailableAt time.Time
	LastError   string
}

func NewJob(name string, payload any) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job payload: %w", err)
	}
	return &Job{Name: name, Payload: data}, nil
}

func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Name, err)
	}
	return nil
}

// Dispatcher is the producer side of a queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *Job, delay time.Duration, queue string) error
}

// Queue is at-least-once: a reserved job that is neither completed nor
// released becomes visible again once its lease runs out.
type Queue interface {
	Dispatcher
	// Reserve leases the next available job, trying queues in order.
	Reserve(ctx context.Context, queues ...string) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	Release(ctx context.Context, job *Job, delay time.Duration) error
	Fail(ctx context.Context, job *Job, cause error) error
}

type Handler func(ctx context.Context, job *Job) error

// RetryError asks the worker to put the job back after Delay instead of
// applying its own backoff.
type RetryError struct {
	Delay  time.Duration
	Reason string
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry in %s: %s", e.Delay, e.Reason)
}

func Retry(delay time.Duration, reason string) error {
	return &RetryError{Delay: delay, Reason: reason}
}
