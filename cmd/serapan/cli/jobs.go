package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"

	"github.com/bulog/serapan/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers against the given Redis connection.
func NewJobsCLI(redisOpts asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{client: asynq.NewClient(redisOpts), inspector: asynq.NewInspector(redisOpts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// TriggerOptions defines the flags of jobs trigger.
type TriggerOptions struct {
	Name   string
	Import jobs.ReconcileImportPayload
	Date   string
	Stdout io.Writer
	Stderr io.Writer
}

// BuildTask constructs the task named by opts with its payload.
func BuildTask(opts TriggerOptions) (*asynq.Task, []asynq.Option, error) {
	switch opts.Name {
	case jobs.TaskReconcileImport:
		task, err := jobs.NewReconcileImportTask(opts.Import)
		return task, []asynq.Option{asynq.MaxRetry(3)}, err
	case jobs.TaskDashboardWarmup:
		task, err := jobs.NewDashboardWarmupTask(opts.Date)
		return task, []asynq.Option{asynq.MaxRetry(1)}, err
	default:
		return nil, nil, fmt.Errorf("jobs cli: unsupported job %q", opts.Name)
	}
}

// Trigger enqueues a supported job.
func (c *JobsCLI) Trigger(ctx context.Context, opts TriggerOptions) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, taskOpts, err := BuildTask(opts)
	if err != nil {
		return nil, err
	}
	taskOpts = append(taskOpts, asynq.Queue(jobs.QueueDefault))
	return c.client.EnqueueContext(ctx, task, taskOpts...)
}

// TriggerCommand enqueues a job and prints its id.
func (c *JobsCLI) TriggerCommand(ctx context.Context, opts TriggerOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	info, err := c.Trigger(ctx, opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
		return ExitError
	}
	_, _ = fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	return ExitOK
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	return statsFrom(info), nil
}

// StatsCommand prints queue statistics, as JSON when jsonOutput is set.
func (c *JobsCLI) StatsCommand(ctx context.Context, jsonOutput bool, stdout, stderr io.Writer) int {
	stdout, stderr = writers(stdout, stderr)
	stats, err := c.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs stats: %v\n", err)
		return ExitError
	}
	return printStats(stats, jsonOutput, stdout, stderr)
}

func statsFrom(info *asynq.QueueInfo) QueueStats {
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats
}

func printStats(stats QueueStats, jsonOutput bool, stdout, stderr io.Writer) int {
	if jsonOutput {
		if err := json.NewEncoder(stdout).Encode(stats); err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs stats: encode json: %v\n", err)
			return ExitError
		}
		return ExitOK
	}
	_, _ = fmt.Fprintf(stdout, "queue %s: pending %d, active %d, scheduled %d, retry %d, archived %d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	return ExitOK
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
