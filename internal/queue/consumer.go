/**
 * Asynq queue consumer.
 *
 * Alternative to the raw Redis consumer for deployments whose scheduler
 * enqueues via asynq. Retry policy lives entirely here; the extraction core
 * never retries.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/reeflab/aquapanel-worker/internal/clients"
	"github.com/reeflab/aquapanel-worker/internal/logging"
	"github.com/reeflab/aquapanel-worker/internal/processor"
	"github.com/reeflab/aquapanel-worker/internal/storage"
)

// TaskTypeProcessPanel is the asynq task type for panel capture jobs.
const TaskTypeProcessPanel = "panel:process"

// Consumer handles job consumption through asynq.
type Consumer struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	runner *runner
	config *ConsumerConfig
	log    *logging.Logger
}

// ConsumerConfig holds asynq consumer configuration.
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.PanelProcessorInterface
	Storage           *storage.Manager
	Capture           *clients.CaptureClient
	ProcessingTimeout int64 // milliseconds
}

// NewConsumer creates a new asynq-based queue consumer.
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
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

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	log := logging.NewLogger("queue")

	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				// Exponential backoff capped at one minute: 5s, 10s, 20s, ...
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error("task processing error", "type", task.Type(), "error", err)
			}),
		},
	)

	consumer := &Consumer{
		client: client,
		server: server,
		mux:    asynq.NewServeMux(),
		runner: newRunner(cfg.Processor, cfg.Storage, cfg.Capture, cfg.ProcessingTimeout, log),
		config: cfg,
		log:    log,
	}
	consumer.mux.HandleFunc(TaskTypeProcessPanel, consumer.handleProcessPanel)

	return consumer, nil
}

// Start starts the queue consumer.
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info("starting asynq consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			c.log.Error("asynq consumer stopped", "error", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully.
func (c *Consumer) Stop(ctx context.Context) error {
	c.log.Info("stopping asynq consumer")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close asynq client: %w", err)
	}
	return nil
}

// handleProcessPanel processes one panel capture task.
func (c *Consumer) handleProcessPanel(ctx context.Context, task *asynq.Task) error {
	var payload JobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	if payload.JobID == "" {
		if id, ok := asynq.GetTaskID(ctx); ok {
			payload.JobID = id
		}
	}

	c.log.Info("processing capture job", "job", payload.JobID, "filename", payload.Filename)

	if _, err := c.runner.run(ctx, &payload); err != nil {
		return fmt.Errorf("panel processing failed: %w", err)
	}
	return nil
}
