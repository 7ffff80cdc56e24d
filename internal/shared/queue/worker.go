package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Backoff computes exponential retry delays with jitter.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	// Jitter returns a value in [0, 1); nil uses math/rand.
	Jitter func() float64
}

// Delay returns base*2^retry plus up to one base of jitter, capped at Max.
func (b Backoff) Delay(retry int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	jitter := rand.Float64
	if b.Jitter != nil {
		jitter = b.Jitter
	}
	d := float64(base)*math.Pow(2, float64(retry)) + jitter()*float64(base)
	if b.Max > 0 && d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}

// Handler processes one message. Returning an error reschedules the message
// unless it is marked Permanent or retries are exhausted.
type Handler func(ctx context.Context, msg Message) error

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type Worker struct {
	queue      *Queue
	logger     *zap.Logger
	backoff    Backoff
	maxRetries int
	poll       time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewWorker(q *Queue, logger *zap.Logger, backoff Backoff, maxRetries int, poll time.Duration) *Worker {
	if poll <= 0 {
		poll = time.Second
	}
	return &Worker{
		queue:      q,
		logger:     logger,
		backoff:    backoff,
		maxRetries: maxRetries,
		poll:       poll,
		handlers:   make(map[string]Handler),
	}
}

func (w *Worker) Register(kind string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = h
}

// Run processes messages until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", zap.Int("max_retries", w.maxRetries))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		default:
		}
		if _, err := w.ProcessOne(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			time.Sleep(w.poll)
		}
	}
}

// ProcessOne handles at most one message and reports whether one was found.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	msg, err := w.queue.Dequeue(ctx, w.poll)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	w.mu.RLock()
	h, ok := w.handlers[msg.Kind]
	w.mu.RUnlock()
	if !ok {
		w.logger.Error("no handler for message", zap.String("kind", msg.Kind), zap.String("id", msg.ID))
		return true, nil
	}

	herr := h(ctx, *msg)
	if herr == nil {
		return true, nil
	}
	log := w.logger.With(zap.String("kind", msg.Kind), zap.String("job_id", msg.JobID), zap.Int("attempt", msg.Attempt), zap.Error(herr))
	if IsPermanent(herr) || msg.Attempt >= w.maxRetries {
		log.Error("job failed")
		return true, nil
	}
	delay := w.backoff.Delay(msg.Attempt)
	retry := *msg
	retry.Attempt++
	if err := w.queue.EnqueueAt(ctx, retry, time.Now().Add(delay)); err != nil {
		return true, fmt.Errorf("reschedule %s: %w", msg.ID, err)
	}
	log.Warn("job rescheduled", zap.Duration("delay", delay))
	return true, nil
}

// CanRetry reports whether a message on its given attempt will be retried
// after a failure.
func (w *Worker) CanRetry(attempt int) bool {
	return attempt < w.maxRetries
}
