package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

// DLQConsumer drains the dead-letter topic and hands jobs back to the
// RetryManager for reprocessing.
type DLQConsumer struct {
	client       *kgo.Client
	retryManager *RetryManager
	jobs         domain.JobRepository
	groupID      string
	topic        string
	maxAge       time.Duration
	poller       *AdaptivePoller
	shutdown     chan struct{}

	processed   atomic.Int64
	failed      atomic.Int64
	reprocessed atomic.Int64
	expired     atomic.Int64
}

// NewDLQConsumer creates a consumer for the dead-letter topic.
func NewDLQConsumer(brokers []string, groupID string, retryManager *RetryManager, jobs domain.JobRepository) (*DLQConsumer, error) {
	slog.Info("creating DLQ consumer", slog.Any("brokers", brokers), slog.String("group_id", groupID))

	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(TopicGradeDLQ),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.RequireStableFetchOffsets(),

		// DLQ traffic is sparse; small fetches with short waits keep the
		// loop responsive without holding large buffers.
		kgo.FetchMaxBytes(1048576),
		kgo.FetchMaxWait(100 * time.Millisecond),
		kgo.FetchMinBytes(1),
		kgo.FetchMaxPartitionBytes(1048576),

		kgo.DialTimeout(30 * time.Second),
		kgo.RequestTimeoutOverhead(10 * time.Second),
		kgo.RetryTimeout(60 * time.Second),
		kgo.SessionTimeout(30 * time.Second),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		slog.Error("failed to create DLQ consumer client", slog.Any("error", err))
		return nil, fmt.Errorf("DLQ consumer client: %w", err)
	}

	slog.Info("DLQ consumer created", slog.String("group_id", groupID))
	return &DLQConsumer{
		client:       client,
		retryManager: retryManager,
		jobs:         jobs,
		groupID:      groupID,
		topic:        TopicGradeDLQ,
		maxAge:       7 * 24 * time.Hour,
		poller:       NewAdaptivePoller(100 * time.Millisecond),
		shutdown:     make(chan struct{}),
	}, nil
}

// WithMaxAge overrides how old a dead-lettered job may be before it is
// dropped instead of reprocessed.
func (dc *DLQConsumer) WithMaxAge(d time.Duration) *DLQConsumer {
	if d > 0 {
		dc.maxAge = d
	}
	return dc
}

// Start begins consuming DLQ messages in the background.
func (dc *DLQConsumer) Start(ctx context.Context) error {
	slog.Info("starting DLQ consumer", slog.String("group_id", dc.groupID), slog.String("topic", dc.topic))

	go dc.dlqMessageProcessor(ctx)
	return nil
}

// Stop stops the DLQ consumer.
func (dc *DLQConsumer) Stop() {
	slog.Info("stopping DLQ consumer")
	select {
	case <-dc.shutdown:
	default:
		close(dc.shutdown)
	}
	dc.client.Close()
}

// dlqMessageProcessor polls the dead-letter topic and dispatches records.
func (dc *DLQConsumer) dlqMessageProcessor(ctx context.Context) {
	slog.Info("DLQ message processor started", slog.String("topic", dc.topic), slog.String("group_id", dc.groupID))

	for {
		select {
		case <-ctx.Done():
			slog.Info("DLQ message processor shutting down due to context cancellation")
			return
		case <-dc.shutdown:
			slog.Info("DLQ message processor shutting down due to shutdown signal")
			return
		default:
			nextInterval := dc.poller.GetNextInterval()

			fetchCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
			fetches := dc.client.PollFetches(fetchCtx)
			cancel()

			if errs := fetches.Errors(); len(errs) > 0 {
				for _, err := range errs {
					slog.Error("DLQ fetch error",
						slog.String("topic", err.Topic),
						slog.Int("partition", int(err.Partition)),
						slog.Any("error", err.Err))
				}
				dc.poller.RecordFailure()
				time.Sleep(nextInterval)
				continue
			}

			if fetches.NumRecords() == 0 {
				dc.poller.RecordSuccess()
				time.Sleep(nextInterval)
				continue
			}

			dc.poller.RecordSuccess()
			fetches.EachRecord(func(record *kgo.Record) {
				dc.processDLQRecord(ctx, record)
			})

			slog.Info("processed DLQ messages", slog.Int("count", fetches.NumRecords()))
		}
	}
}

// processDLQRecord handles a single dead-lettered job.
func (dc *DLQConsumer) processDLQRecord(ctx context.Context, record *kgo.Record) {
	dc.processed.Add(1)

	slog.Info("processing DLQ record",
		slog.String("topic", record.Topic),
		slog.Int("partition", int(record.Partition)),
		slog.Int64("offset", record.Offset),
		slog.String("key", string(record.Key)))

	// Record values are serialized domain.DLQJob documents produced by the
	// retry manager.
	var dlqJob domain.DLQJob
	if err := json.Unmarshal(record.Value, &dlqJob); err != nil {
		dc.failed.Add(1)
		slog.Error("failed to unmarshal DLQ job",
			slog.String("topic", record.Topic),
			slog.Int("partition", int(record.Partition)),
			slog.Int64("offset", record.Offset),
			slog.Any("error", err))
		return
	}
	if dlqJob.JobID == "" {
		dc.failed.Add(1)
		slog.Error("DLQ record missing job id",
			slog.String("topic", record.Topic),
			slog.Int64("offset", record.Offset))
		return
	}

	// Jobs past the retention window stay failed; requeueing stale work
	// would grade long-abandoned submissions.
	if dc.maxAge > 0 && time.Since(dlqJob.MovedToDLQAt) > dc.maxAge {
		dc.expired.Add(1)
		slog.Warn("dropping expired DLQ job",
			slog.String("job_id", dlqJob.JobID),
			slog.Time("moved_to_dlq_at", dlqJob.MovedToDLQAt),
			slog.Duration("max_age", dc.maxAge))
		return
	}

	if err := dc.retryManager.ProcessDLQJob(ctx, dlqJob); err != nil {
		dc.failed.Add(1)
		slog.Error("failed to process DLQ job",
			slog.String("job_id", dlqJob.JobID),
			slog.Any("error", err))
		return
	}

	dc.reprocessed.Add(1)
	slog.Info("DLQ job processed",
		slog.String("job_id", dlqJob.JobID),
		slog.String("original_failure_reason", dlqJob.FailureReason))
}

// GetDLQStats returns counters for DLQ processing since startup.
func (dc *DLQConsumer) GetDLQStats(_ context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"dlq_messages_processed":   dc.processed.Load(),
		"dlq_messages_failed":      dc.failed.Load(),
		"dlq_messages_reprocessed": dc.reprocessed.Load(),
		"dlq_messages_expired":     dc.expired.Load(),
	}, nil
}
