// Package queue implements the durable render work queue on Redis. The
// payload of a unit of work is the job id only; the database row is the
// source of truth for everything else. Claimed units move to a processing
// list guarded by a per-job lease key, so a worker process dying mid-job
// leaves a stalled entry that the sweeper returns to the queue until the
// attempt budget runs out.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey      = "render:queue"
	processingKey = "render:processing"
	doneKey       = "render:done"
	deadKey       = "render:dead"

	doneRetention = 1000
	deadRetention = 100

	attemptsTTL = 24 * time.Hour
)

func leaseKey(jobID string) string {
	return "render:lease:" + jobID
}

func attemptsKey(jobID string) string {
	return "render:attempts:" + jobID
}

// disposition decides what happens to a unit after a failed attempt.
type disposition int

const (
	dispositionRetry disposition = iota
	dispositionDead
)

// retryDisposition applies the attempt budget: the unit goes back on the
// queue until attempts reaches maxAttempts, then it is dead-lettered.
func retryDisposition(attempts int64, maxAttempts int) disposition {
	if attempts >= int64(maxAttempts) {
		return dispositionDead
	}
	return dispositionRetry
}

// Queue enqueues render job ids for the worker process.
type Queue struct {
	rdb *redis.Client
}

// New creates a queue producer over the shared Redis client.
func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Enqueue adds one unit of work referencing the job id.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.rdb.LPush(ctx, queueKey, jobID).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Depth returns the number of units waiting in the queue.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, queueKey).Result()
}

// DeadLettered returns the ids of permanently failed units, newest first.
func (q *Queue) DeadLettered(ctx context.Context) ([]string, error) {
	return q.rdb.LRange(ctx, deadKey, 0, -1).Result()
}
