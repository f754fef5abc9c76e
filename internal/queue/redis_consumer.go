/**
 * Direct Redis queue consumer.
 *
 * Compatible with the capture uploader's queue format: a LIST of job ids,
 * a HASH of job payloads, and status sets per queue. This is the default
 * driver; the asynq consumer covers asynq-based schedulers.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/reeflab/aquapanel-worker/internal/clients"
	"github.com/reeflab/aquapanel-worker/internal/logging"
	"github.com/reeflab/aquapanel-worker/internal/metrics"
	"github.com/reeflab/aquapanel-worker/internal/processor"
	"github.com/reeflab/aquapanel-worker/internal/storage"
)

// errNoJobs signals an empty queue poll, not a failure.
var errNoJobs = errors.New("no jobs available")

// RedisJobData represents a job entry from the capture uploader queue.
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// RedisConsumer handles job consumption from the raw Redis queue.
type RedisConsumer struct {
	client *redis.Client
	runner *runner
	config *RedisConsumerConfig
	log    *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration.
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.PanelProcessorInterface
	Storage           *storage.Manager
	Capture           *clients.CaptureClient
	ProcessingTimeout int64 // milliseconds
}

// NewRedisConsumer creates a new Redis-based queue consumer.
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "aquapanel:jobs"
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("Storage is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log := logging.NewLogger("queue")
	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client: client,
		runner: newRunner(cfg.Processor, cfg.Storage, cfg.Capture, cfg.ProcessingTimeout, log),
		config: cfg,
		log:    log,
		ctx:    consumerCtx,
		cancel: cancel,
	}, nil
}

// Start begins processing jobs from the queue.
func (c *RedisConsumer) Start(ctx context.Context) error {
	c.log.Info("starting Redis consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	return nil
}

// Stop gracefully stops the consumer.
func (c *RedisConsumer) Stop(ctx context.Context) error {
	c.log.Info("stopping Redis consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// worker is a goroutine that processes jobs until the consumer stops.
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.log.Debug("worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.log.Debug("worker stopping", "worker", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if !errors.Is(err, errNoJobs) {
					c.log.Error("worker error", "worker", id, "error", err)
					time.Sleep(1 * time.Second)
				}
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue.
func (c *RedisConsumer) processNextJob() error {
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("invalid BRPOP result")
	}

	jobID := result[1]

	jobData, err := c.client.HGet(c.ctx, c.dataKey(), jobID).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", jobID, err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	if job.ID == "" {
		job.ID = jobID
	}
	if job.Payload.JobID == "" {
		// Older uploaders only set the queue-level id; newer ones send a
		// UUID in the payload.
		job.Payload.JobID = job.ID
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = uuid.NewString()
	}

	c.markProcessing(job.Payload.JobID)
	c.log.Info("processing capture job", "job", job.Payload.JobID, "filename", job.Payload.Filename)

	processResult, err := c.runner.run(c.ctx, &job.Payload)
	if err != nil {
		c.log.Error("job failed", "job", job.Payload.JobID, "error", err)

		job.Attempts++
		if job.Attempts < job.MaxRetries {
			c.requeue(&job, jobID)
		} else {
			c.markFailed(job.Payload.JobID, err, job.Attempts)
		}
		return nil
	}

	c.markCompleted(job.Payload.JobID, processResult)
	return nil
}

// requeue puts a failed job back on the queue for another attempt.
func (c *RedisConsumer) requeue(job *RedisJobData, queueID string) {
	updatedData, err := json.Marshal(job)
	if err != nil {
		c.log.Error("failed to marshal job for retry", "job", job.Payload.JobID, "error", err)
		return
	}
	c.client.HSet(c.ctx, c.dataKey(), queueID, updatedData)
	c.client.LPush(c.ctx, c.config.QueueName, queueID)
	metrics.JobsTotal.WithLabelValues("retried").Inc()
	c.log.Info("job re-queued for retry", "job", job.Payload.JobID,
		"attempt", job.Attempts, "max", job.MaxRetries)
}

func (c *RedisConsumer) markProcessing(jobID string) {
	c.client.SAdd(c.ctx, c.statusKey("processing"), jobID)
	c.publishEvent(jobID, "processing")
}

func (c *RedisConsumer) markCompleted(jobID string, result *processor.ProcessResult) {
	c.client.SRem(c.ctx, c.statusKey("processing"), jobID)
	c.client.SAdd(c.ctx, c.statusKey("completed"), jobID)
	if result != nil {
		if resultData, err := json.Marshal(completionMetadata(result)); err == nil {
			c.client.HSet(c.ctx, c.statusKey("results"), jobID, resultData)
		}
	}
	c.publishEvent(jobID, "completed")
}

func (c *RedisConsumer) markFailed(jobID string, cause error, attempts int) {
	c.client.SRem(c.ctx, c.statusKey("processing"), jobID)
	c.client.SAdd(c.ctx, c.statusKey("failed"), jobID)
	errorData, err := json.Marshal(map[string]interface{}{
		"error":    cause.Error(),
		"attempts": attempts,
	})
	if err == nil {
		c.client.HSet(c.ctx, c.statusKey("errors"), jobID, errorData)
	}
	c.publishEvent(jobID, "failed")
}

// publishEvent notifies dashboard subscribers of a status transition.
func (c *RedisConsumer) publishEvent(jobID, status string) {
	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(c.ctx, fmt.Sprintf("%s:events", c.config.QueueName), eventData)
}

func (c *RedisConsumer) dataKey() string {
	return fmt.Sprintf("%s:data", c.config.QueueName)
}

func (c *RedisConsumer) statusKey(status string) string {
	return fmt.Sprintf("%s:%s", c.config.QueueName, status)
}

// GetStats returns queue statistics.
func (c *RedisConsumer) GetStats() (map[string]int64, error) {
	ctx := context.Background()

	waiting, _ := c.client.LLen(ctx, c.config.QueueName).Result()
	processing, _ := c.client.SCard(ctx, c.statusKey("processing")).Result()
	completed, _ := c.client.SCard(ctx, c.statusKey("completed")).Result()
	failed, _ := c.client.SCard(ctx, c.statusKey("failed")).Result()

	return map[string]int64{
		"waiting":    waiting,
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}, nil
}
