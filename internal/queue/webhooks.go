// Package queue buffers verified gateway webhooks in Redis so the HTTP
// handler can acknowledge them before they are applied.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"learncode/internal/apperr"
	"learncode/internal/logger"
	"learncode/internal/metrics"
)

const (
	pendingKey = "webhooks"
	failedKey  = "webhooks:failed"

	maxTries = 3
)

type Job struct {
	Body    json.RawMessage `json:"body"`
	Tries   int             `json:"tries"`
	Created time.Time       `json:"created"`
}

// HandleFunc applies one webhook body.
type HandleFunc func(ctx context.Context, body []byte) error

type WebhookQueue struct {
	redis      *redis.Client
	handle     HandleFunc
	pollWait   time.Duration
	retryDelay time.Duration
}

func New(redisAddr string, handle HandleFunc) *WebhookQueue {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: redisAddr}), handle)
}

func NewWithClient(rdb *redis.Client, handle HandleFunc) *WebhookQueue {
	return &WebhookQueue{
		redis:      rdb,
		handle:     handle,
		pollWait:   2 * time.Second,
		retryDelay: 5 * time.Second,
	}
}

func (q *WebhookQueue) Ping(ctx context.Context) error {
	return q.redis.Ping(ctx).Err()
}

func (q *WebhookQueue) Enqueue(ctx context.Context, body []byte) error {
	if !json.Valid(body) {
		return apperr.New(apperr.Invalid, "webhook body is not valid JSON")
	}

	data, err := json.Marshal(Job{Body: body, Created: time.Now()})
	if err != nil {
		return err
	}

	if err := q.redis.LPush(ctx, pendingKey, data).Err(); err != nil {
		logger.Error("failed to queue webhook", "error", err)
		return err
	}
	return nil
}

// Start consumes the queue until ctx is cancelled.
func (q *WebhookQueue) Start(ctx context.Context) error {
	logger.Info("webhook worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("webhook worker stopped")
			return nil
		default:
			if q.processNext(ctx) {
				q.QueueLength(ctx)
			}
		}
	}
}

// processNext pops and applies one job. It returns false when nothing was
// popped.
func (q *WebhookQueue) processNext(ctx context.Context) bool {
	result, err := q.redis.BRPop(ctx, q.pollWait, pendingKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			logger.Warn("webhook queue pop failed", "error", err)
			sleep(ctx, q.pollWait)
		}
		return false
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Error("bad webhook job", "error", err)
		return true
	}

	job.Tries++
	err = q.handle(ctx, job.Body)
	if err == nil {
		return true
	}

	logger.Warn("webhook processing failed", "attempt", job.Tries, "error", err)
	if job.Tries < maxTries && retryable(err) {
		sleep(ctx, q.retryDelay)
		data, _ := json.Marshal(job)
		q.redis.LPush(context.Background(), pendingKey, data)
		return true
	}

	q.saveFailed(job, err)
	return true
}

func retryable(err error) bool {
	kind := apperr.KindOf(err)
	return kind == apperr.Unavailable || kind == apperr.Internal
}

func (q *WebhookQueue) saveFailed(job Job, err error) {
	failed := map[string]interface{}{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	q.redis.LPush(context.Background(), failedKey, data)
	logger.Error("webhook moved to failed queue", "tries", job.Tries)
}

// QueueLength reports pending jobs and mirrors the count into the gauge.
func (q *WebhookQueue) QueueLength(ctx context.Context) int64 {
	length, _ := q.redis.LLen(ctx, pendingKey).Result()
	metrics.WebhookQueueLength.Set(float64(length))
	return length
}

func (q *WebhookQueue) Close() error {
	return q.redis.Close()
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
