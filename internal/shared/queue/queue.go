// Package queue is a redis backed job queue with delayed retries.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Message is a typed job payload on the queue.
type Message struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	JobID   string          `json:"job_id,omitempty"`
	Attempt int             `json:"attempt"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessage marshals payload into a message of the given kind.
func NewMessage(kind, jobID string, payload interface{}) (Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Message{ID: uuid.New().String(), Kind: kind, JobID: jobID, Payload: b}, nil
}

// Queue stores ready messages in a list and delayed ones in a sorted set
// scored by their due time.
type Queue struct {
	rdb     *redis.Client
	ready   string
	delayed string
}

func New(rdb *redis.Client, name string) *Queue {
	return &Queue{rdb: rdb, ready: "queue:" + name, delayed: "queue:" + name + ":delayed"}
}

func (q *Queue) Enqueue(ctx context.Context, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.ready, b).Err()
}

// EnqueueAt schedules msg to become ready at the given time.
func (q *Queue) EnqueueAt(ctx context.Context, msg Message, at time.Time) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.rdb.ZAdd(ctx, q.delayed, redis.Z{Score: float64(at.UnixMilli()), Member: b}).Err()
}

// promote moves due delayed messages to the ready list.
func (q *Queue) promote(ctx context.Context, now time.Time) error {
	due, err := q.rdb.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return err
	}
	for _, m := range due {
		removed, err := q.rdb.ZRem(ctx, q.delayed, m).Result()
		if err != nil {
			return err
		}
		// another worker already promoted it
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, q.ready, m).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Dequeue waits up to timeout for a message. It returns nil, nil when the
// queue stayed empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	if err := q.promote(ctx, time.Now()); err != nil {
		return nil, fmt.Errorf("promote delayed: %w", err)
	}
	res, err := q.rdb.BRPop(ctx, timeout, q.ready).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// Len returns the number of ready and delayed messages.
func (q *Queue) Len(ctx context.Context) (ready, delayed int64, err error) {
	if ready, err = q.rdb.LLen(ctx, q.ready).Result(); err != nil {
		return 0, 0, err
	}
	delayed, err = q.rdb.ZCard(ctx, q.delayed).Result()
	return ready, delayed, err
}
