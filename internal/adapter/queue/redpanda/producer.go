// Package redpanda provides the Redpanda/Kafka transport for grading jobs.
//
// It handles message publishing and consumption for job processing. The
// package provides reliable delivery with exactly-once semantics
// (transactional produce, read-committed consume) and supports horizontal
// scaling of workers.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/assignment-grader/internal/adapter/observability"
	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

const (
	// TopicGrade carries grading jobs from the API to the worker.
	TopicGrade = "grade.request"
	// TopicGradeDLQ holds jobs that exhausted their retries.
	TopicGradeDLQ = "grade.dlq"
)

// Producer wraps a transactional Kafka producer and implements domain.Queue.
type Producer struct {
	client *kgo.Client
	// transactionChan serializes transactions across concurrent callers.
	transactionChan chan struct{}
}

// NewProducer constructs a Producer with exactly-once semantics.
func NewProducer(brokers []string) (*Producer, error) {
	return NewProducerWithTransactionalID(brokers, "assignment-grader-producer")
}

// NewProducerWithTransactionalID constructs a Producer with a custom
// transactional ID. This is useful for testing to avoid conflicts between
// multiple producers.
func NewProducerWithTransactionalID(brokers []string, transactionalID string) (*Producer, error) {
	slog.Info("creating redpanda producer",
		slog.Any("brokers", brokers),
		slog.String("transactional_id", transactionalID))

	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		slog.Error("failed to create redpanda client", slog.Any("error", err))
		return nil, fmt.Errorf("redpanda client: %w", err)
	}

	// Don't fail if topic creation fails - the broker may already have them.
	ctx := context.Background()
	for _, topic := range []string{TopicGrade, TopicGradeDLQ} {
		if err := createTopicIfNotExists(ctx, client, topic, 1, 1); err != nil {
			slog.Warn("failed to create topic, it may already exist",
				slog.String("topic", topic),
				slog.Any("error", err))
		}
	}

	slog.Info("redpanda producer created successfully")
	return &Producer{
		client:          client,
		transactionChan: make(chan struct{}, 1),
	}, nil
}

// EnqueueGrade enqueues a grading task with exactly-once semantics.
func (p *Producer) EnqueueGrade(ctx domain.Context, payload domain.GradeTaskPayload) (string, error) {
	return p.EnqueueGradeToTopic(ctx, payload, TopicGrade)
}

// EnqueueGradeToTopic enqueues a grading task to a specific topic. This
// method allows tests to use unique topics for isolation.
func (p *Producer) EnqueueGradeToTopic(ctx domain.Context, payload domain.GradeTaskPayload, topic string) (string, error) {
	slog.Info("enqueueing grade task",
		slog.String("job_id", payload.JobID),
		slog.Int("file_count", len(payload.FileIDs)),
		slog.String("topic", topic))

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(payload.JobID), // job ID as key keeps per-job ordering
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "job_id", Value: []byte(payload.JobID)},
			{Key: "request_id", Value: []byte(payload.RequestID)},
		},
	}

	if err := p.produceInTransaction(ctx, payload.JobID, record); err != nil {
		return "", err
	}

	observability.EnqueueJob("grade")
	slog.Info("grade task enqueued",
		slog.String("topic", topic),
		slog.String("job_id", payload.JobID))
	return payload.JobID, nil
}

// EnqueueDLQ publishes a serialized dead-letter job to the DLQ topic inside a
// transaction so DLQ entries obey the same exactly-once guarantees.
func (p *Producer) EnqueueDLQ(ctx context.Context, jobID string, dlqData []byte) error {
	record := &kgo.Record{
		Topic: TopicGradeDLQ,
		Key:   []byte(jobID),
		Value: dlqData,
		Headers: []kgo.RecordHeader{
			{Key: "job_id", Value: []byte(jobID)},
		},
	}
	return p.produceInTransaction(ctx, jobID, record)
}

// produceInTransaction runs one produce inside a begin/commit pair.
// Transactions cannot interleave on a single client, so a buffered channel
// acts as the lock; waiting respects context cancellation.
func (p *Producer) produceInTransaction(ctx context.Context, jobID string, record *kgo.Record) error {
	select {
	case p.transactionChan <- struct{}{}:
		defer func() { <-p.transactionChan }()
	case <-ctx.Done():
		slog.Error("context cancelled while acquiring transaction lock", slog.String("job_id", jobID))
		return ctx.Err()
	}

	if err := p.client.BeginTransaction(); err != nil {
		slog.Error("failed to begin transaction",
			slog.String("job_id", jobID),
			slog.Any("error", err))
		return fmt.Errorf("begin transaction: %w", err)
	}

	e := kgo.AbortingFirstErrPromise(p.client)
	p.client.Produce(ctx, record, e.Promise())
	if err := e.Err(); err != nil {
		slog.Error("failed to produce message",
			slog.String("job_id", jobID),
			slog.String("topic", record.Topic),
			slog.Any("error", err))
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			slog.Error("failed to abort transaction", slog.Any("error", abortErr))
		}
		return fmt.Errorf("produce: %w", err)
	}

	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		slog.Error("failed to commit transaction",
			slog.String("job_id", jobID),
			slog.Any("error", err))
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	if p.transactionChan != nil {
		select {
		case <-p.transactionChan:
		default:
			close(p.transactionChan)
		}
	}
	return nil
}
