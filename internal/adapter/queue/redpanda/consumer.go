package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/assignment-grader/internal/adapter/observability"
	"github.com/fairyhunter13/assignment-grader/internal/adapter/queue/shared"
	"github.com/fairyhunter13/assignment-grader/internal/domain"
	obsctx "github.com/fairyhunter13/assignment-grader/internal/observability"
)

// Consumer wraps a Kafka consumer group session with exactly-once processing
// semantics and a worker pool that scales between minWorkers and maxWorkers
// with queue depth.
type Consumer struct {
	session *kgo.GroupTransactSession
	jobs    domain.JobRepository
	uploads domain.UploadRepository
	results domain.ResultRepository
	gateway domain.ModelGateway
	limits  shared.Limits

	retryManager *RetryManager

	groupID string
	topic   string

	// Worker pool state. activeWorkers counts live worker goroutines: the
	// pool manager increments when spawning, workers decrement themselves
	// on exit.
	minWorkers      int
	maxWorkers      int
	activeWorkers   int
	workerMu        sync.RWMutex
	jobQueue        chan *kgo.Record
	scalingInterval time.Duration
	idleTimeout     time.Duration

	poller   *AdaptivePoller
	shutdown chan struct{}
}

// NewConsumer constructs a Consumer with exactly-once semantics.
func NewConsumer(brokers []string, groupID string, jobs domain.JobRepository, uploads domain.UploadRepository, results domain.ResultRepository, gateway domain.ModelGateway, limits shared.Limits) (*Consumer, error) {
	return NewConsumerWithTransactionalID(brokers, groupID, "assignment-grader-consumer", jobs, uploads, results, gateway, limits)
}

// NewConsumerWithTransactionalID constructs a Consumer with a custom
// transactional ID. This is useful for testing to avoid conflicts between
// multiple consumers.
func NewConsumerWithTransactionalID(brokers []string, groupID string, transactionalID string, jobs domain.JobRepository, uploads domain.UploadRepository, results domain.ResultRepository, gateway domain.ModelGateway, limits shared.Limits) (*Consumer, error) {
	return NewConsumerWithConfig(brokers, groupID, transactionalID, jobs, uploads, results, gateway, limits, 2, 10)
}

// NewConsumerWithConfig constructs a Consumer with custom worker pool bounds.
func NewConsumerWithConfig(brokers []string, groupID string, transactionalID string, jobs domain.JobRepository, uploads domain.UploadRepository, results domain.ResultRepository, gateway domain.ModelGateway, limits shared.Limits, minWorkers, maxWorkers int) (*Consumer, error) {
	return NewConsumerWithTopic(brokers, groupID, transactionalID, jobs, uploads, results, gateway, limits, minWorkers, maxWorkers, TopicGrade)
}

// NewConsumerWithTopic constructs a Consumer with a custom topic. This method
// allows tests to use unique topics for isolation.
func NewConsumerWithTopic(brokers []string, groupID string, transactionalID string, jobs domain.JobRepository, uploads domain.UploadRepository, results domain.ResultRepository, gateway domain.ModelGateway, limits shared.Limits, minWorkers, maxWorkers int, topic string) (*Consumer, error) {
	slog.Info("creating redpanda consumer",
		slog.Any("brokers", brokers),
		slog.String("group_id", groupID),
		slog.String("transactional_id", transactionalID))

	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}
	if minWorkers < 1 {
		minWorkers = 1
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}

	// Create the topic up front with multiple partitions so consumers can
	// parallelize; fall back to a single partition on constrained brokers.
	ctx := context.Background()
	tempClient, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("temp client: %w", err)
	}
	defer tempClient.Close()
	if err := createTopicIfNotExists(ctx, tempClient, topic, 8, 1); err != nil {
		slog.Warn("failed to create multi-partition topic, falling back to single partition",
			slog.String("topic", topic),
			slog.Any("error", err))
		if err := createTopicIfNotExists(ctx, tempClient, topic, 1, 1); err != nil {
			slog.Warn("failed to create topic, it may already exist",
				slog.String("topic", topic),
				slog.Any("error", err))
		}
	}

	kotelTracer := kotel.NewTracer(
		kotel.TracerProvider(otel.GetTracerProvider()),
	)
	kotelService := kotel.NewKotel(
		kotel.WithTracer(kotelTracer),
	)

	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.RequireStableFetchOffsets(),

		// OpenTelemetry hooks for distributed tracing across the topic.
		kgo.WithHooks(kotelService.Hooks()...),

		kgo.DialTimeout(10 * time.Second),
		kgo.RequestTimeoutOverhead(5 * time.Second),
		kgo.RetryTimeout(30 * time.Second),
		kgo.SessionTimeout(30 * time.Second),
		kgo.HeartbeatInterval(3 * time.Second),
		kgo.RebalanceTimeout(10 * time.Second),

		kgo.FetchMaxBytes(10 * 1024 * 1024),
		kgo.FetchMaxWait(10 * time.Second),
		kgo.FetchMinBytes(512),
		kgo.FetchMaxPartitionBytes(2 * 1024 * 1024),

		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(1 * time.Second),
	}

	session, err := kgo.NewGroupTransactSession(opts...)
	if err != nil {
		slog.Error("failed to create redpanda transactional session",
			slog.Any("error", err),
			slog.String("transactional_id", transactionalID),
			slog.String("group_id", groupID),
			slog.String("topic", topic))
		return nil, fmt.Errorf("redpanda transactional session: %w", err)
	}

	slog.Info("redpanda consumer created",
		slog.String("group_id", groupID),
		slog.String("topic", topic),
		slog.Int("min_workers", minWorkers),
		slog.Int("max_workers", maxWorkers))
	return &Consumer{
		session:         session,
		jobs:            jobs,
		uploads:         uploads,
		results:         results,
		gateway:         gateway,
		limits:          limits,
		groupID:         groupID,
		topic:           topic,
		minWorkers:      minWorkers,
		maxWorkers:      maxWorkers,
		jobQueue:        make(chan *kgo.Record, maxWorkers*2),
		scalingInterval: 2 * time.Second,
		idleTimeout:     30 * time.Second,
		shutdown:        make(chan struct{}),
		poller:          NewAdaptivePoller(100 * time.Millisecond),
	}, nil
}

// WithRetryManager attaches a RetryManager so retryable upstream failures are
// routed through the retry/DLQ flow. When nil, the consumer simply returns
// the grading error.
func (c *Consumer) WithRetryManager(rm *RetryManager) *Consumer {
	c.retryManager = rm
	return c
}

// WithScalingInterval overrides how often the worker pool manager re-evaluates
// the pool size.
func (c *Consumer) WithScalingInterval(d time.Duration) *Consumer {
	if d > 0 {
		c.scalingInterval = d
	}
	return c
}

// WithIdleTimeout overrides how long an excess worker idles before exiting.
func (c *Consumer) WithIdleTimeout(d time.Duration) *Consumer {
	if d > 0 {
		c.idleTimeout = d
	}
	return c
}

// Start begins consuming messages with the dynamic worker pool. It blocks
// until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("starting redpanda consumer",
		slog.String("group_id", c.groupID),
		slog.String("topic", c.topic),
		slog.Int("min_workers", c.minWorkers),
		slog.Int("max_workers", c.maxWorkers))

	c.startWorkerPool(ctx)
	go c.messageFetcher(ctx)
	go c.workerPoolManager(ctx)

	<-ctx.Done()
	slog.Info("redpanda consumer shutting down")
	close(c.shutdown)
	return ctx.Err()
}

// startWorkerPool starts the initial set of workers.
func (c *Consumer) startWorkerPool(ctx context.Context) {
	for i := 0; i < c.minWorkers; i++ {
		c.incrementActiveWorkers()
		go c.worker(ctx, i)
	}
	slog.Info("started initial worker pool", slog.Int("workers", c.minWorkers))
}

// workerPoolManager periodically scales the pool up when the queue backs up.
// Scale-down is worker-driven: excess workers exit on their own.
func (c *Consumer) workerPoolManager(ctx context.Context) {
	ticker := time.NewTicker(c.scalingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.scaleWorkers(ctx)
		}
	}
}

// scaleWorkers adds workers while queued records outnumber active workers.
func (c *Consumer) scaleWorkers(ctx context.Context) {
	queueLen := len(c.jobQueue)
	active := c.getActiveWorkers()
	if queueLen == 0 || active >= c.maxWorkers {
		return
	}

	workersToAdd := min(queueLen, c.maxWorkers-active)
	for i := 0; i < workersToAdd; i++ {
		id := c.incrementActiveWorkers()
		go c.worker(ctx, id)
	}
	if workersToAdd > 0 {
		slog.Info("scaled up workers",
			slog.Int("added", workersToAdd),
			slog.Int("queue_length", queueLen),
			slog.Int("active_workers", c.getActiveWorkers()))
	}
}

// messageFetcher polls the transactional session and feeds records into the
// job queue. Poll pacing adapts to recent success/failure history.
func (c *Consumer) messageFetcher(ctx context.Context) {
	slog.Info("message fetcher started", slog.String("topic", c.topic), slog.String("group_id", c.groupID))

	for {
		select {
		case <-ctx.Done():
			slog.Info("message fetcher shutting down due to context cancellation")
			return
		case <-c.shutdown:
			slog.Info("message fetcher shutting down due to shutdown signal")
			return
		default:
			nextInterval := c.poller.GetNextInterval()

			fetches := c.session.PollFetches(ctx)
			if errs := fetches.Errors(); len(errs) > 0 {
				fatal := false
				for _, err := range errs {
					slog.Error("fetch error",
						slog.String("topic", err.Topic),
						slog.Int("partition", int(err.Partition)),
						slog.Any("error", err.Err))
					if err.Err != nil && (err.Err.Error() == "unable to dial" || err.Err.Error() == "context canceled") {
						fatal = true
					}
				}
				if fatal {
					slog.Error("fatal connection error, stopping message fetcher")
					return
				}
				c.poller.RecordFailure()
				time.Sleep(nextInterval)
				continue
			}

			if fetches.NumRecords() == 0 {
				// No errors, just an empty poll.
				c.poller.RecordSuccess()
				time.Sleep(nextInterval)
				continue
			}

			c.poller.RecordSuccess()
			fetches.EachRecord(func(record *kgo.Record) {
				jobID := string(record.Key)
				for _, h := range record.Headers {
					if h.Key == "job_id" {
						jobID = string(h.Value)
						break
					}
				}

				select {
				case c.jobQueue <- record:
					slog.Info("queued job for processing",
						slog.String("job_id", jobID),
						slog.Int64("offset", record.Offset),
						slog.Int("partition", int(record.Partition)),
						slog.Int("queue_length", len(c.jobQueue)))
				default:
					// Queue full; process outside the pool rather than
					// stalling the fetch loop.
					slog.Warn("job queue full, processing record directly",
						slog.String("job_id", jobID),
						slog.Int64("offset", record.Offset))
					go func(rec *kgo.Record) { _ = c.processRecord(ctx, rec) }(record)
				}
			})
		}
	}
}

// worker drains the job queue. Workers beyond minWorkers exit when the queue
// goes quiet or after sitting idle for idleTimeout.
func (c *Consumer) worker(ctx context.Context, workerID int) {
	slog.Info("worker started", slog.Int("worker_id", workerID))

	jobCount := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker shutting down due to context cancellation",
				slog.Int("worker_id", workerID),
				slog.Int("jobs_processed", jobCount))
			c.decrementActiveWorkers()
			return
		case <-c.shutdown:
			slog.Info("worker shutting down due to shutdown signal",
				slog.Int("worker_id", workerID),
				slog.Int("jobs_processed", jobCount))
			c.decrementActiveWorkers()
			return
		case <-time.After(c.idleTimeout):
			if c.tryReleaseWorker() {
				slog.Info("idle worker exiting",
					slog.Int("worker_id", workerID),
					slog.Int("jobs_processed", jobCount))
				return
			}
		case record := <-c.jobQueue:
			if record == nil {
				// Channel closed.
				c.decrementActiveWorkers()
				return
			}
			jobCount++
			if err := c.processRecord(ctx, record); err != nil {
				slog.Error("failed to process record",
					slog.Int("worker_id", workerID),
					slog.Int64("offset", record.Offset),
					slog.Int("partition", int(record.Partition)),
					slog.Any("error", err))
			}

			// Shed excess capacity once the backlog clears.
			if len(c.jobQueue) < c.getActiveWorkers() && c.tryReleaseWorker() {
				slog.Info("worker exiting after backlog drained",
					slog.Int("worker_id", workerID),
					slog.Int("jobs_processed", jobCount))
				return
			}
		}
	}
}

func (c *Consumer) getActiveWorkers() int {
	c.workerMu.RLock()
	defer c.workerMu.RUnlock()
	return c.activeWorkers
}

// incrementActiveWorkers bumps the live worker count and returns the new
// count for use as a worker id.
func (c *Consumer) incrementActiveWorkers() int {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()
	c.activeWorkers++
	return c.activeWorkers
}

func (c *Consumer) decrementActiveWorkers() {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()
	if c.activeWorkers > 0 {
		c.activeWorkers--
	}
}

// tryReleaseWorker decrements the worker count only while the pool stays at
// or above minWorkers, so concurrent drains never shed the whole pool.
func (c *Consumer) tryReleaseWorker() bool {
	c.workerMu.Lock()
	defer c.workerMu.Unlock()
	if c.activeWorkers <= c.minWorkers {
		return false
	}
	c.activeWorkers--
	return true
}

// processRecord processes a single record through the grading pipeline.
func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) error {
	tracer := otel.Tracer("queue.consumer")
	ctx, span := tracer.Start(ctx, "ProcessGradeJob")
	defer span.End()

	var payload domain.GradeTaskPayload
	if err := json.Unmarshal(record.Value, &payload); err != nil {
		slog.Error("failed to unmarshal payload",
			slog.Any("error", err),
			slog.String("value_preview", string(record.Value[:min(100, len(record.Value))])))
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	// Attach request-scoped metadata so downstream logs (including model
	// gateway logs) stay correlated with the originating API request.
	if payload.RequestID != "" {
		ctx = obsctx.ContextWithRequestID(ctx, payload.RequestID)
	}
	lg := obsctx.LoggerFromContext(ctx).With(
		slog.String("job_id", payload.JobID),
		slog.Int("file_count", len(payload.FileIDs)),
	)
	if payload.RequestID != "" {
		lg = lg.With(slog.String("request_id", payload.RequestID))
	}
	ctx = obsctx.ContextWithLogger(ctx, lg)

	lg.Info("processing grade task", slog.Int64("offset", record.Offset), slog.Int("partition", int(record.Partition)))

	err := shared.HandleGrade(ctx, c.jobs, c.uploads, c.results, c.gateway, c.limits, payload)
	if err != nil {
		lg.Error("grade task failed", slog.Any("error", err))

		code := classifyFailureCode(err.Error())
		observability.RecordJobFailureByCode("grade", code)

		// Route retryable upstream failures (rate limits and timeouts)
		// through the retry/DLQ flow when a retry manager is configured.
		if c.retryManager != nil && (code == "UPSTREAM_RATE_LIMIT" || code == "UPSTREAM_TIMEOUT") {
			retryInfo := &domain.RetryInfo{
				AttemptCount:  0,
				LastAttemptAt: time.Now(),
				RetryStatus:   domain.RetryStatusNone,
				LastError:     err.Error(),
				ErrorHistory:  []string{err.Error()},
				CreatedAt:     time.Now(),
				UpdatedAt:     time.Now(),
			}
			if rErr := c.retryManager.RetryJob(ctx, payload.JobID, retryInfo, payload); rErr != nil {
				lg.Error("retry manager failed to handle job failure",
					slog.String("failure_code", code),
					slog.Any("error", rErr))
			} else {
				lg.Info("retry manager scheduled retry or moved job to DLQ",
					slog.String("failure_code", code))
			}
		}
		return err
	}

	lg.Info("grade task completed")
	return nil
}

// Close shuts the consumer down.
func (c *Consumer) Close() error {
	if c.session != nil {
		c.session.Close()
	}
	if c.shutdown != nil {
		select {
		case <-c.shutdown:
		default:
			close(c.shutdown)
		}
	}
	return nil
}

// IsHealthy reports whether recent polling has been succeeding.
func (c *Consumer) IsHealthy() bool {
	return c.poller.IsHealthy()
}

// GetHealthStatus returns a snapshot of consumer health for diagnostics.
func (c *Consumer) GetHealthStatus() map[string]interface{} {
	status := "healthy"
	if !c.poller.IsHealthy() {
		status = "degraded"
	}
	return map[string]interface{}{
		"status":         status,
		"consumer_type":  "redpanda",
		"group_id":       c.groupID,
		"topic":          c.topic,
		"active_workers": c.getActiveWorkers(),
		"min_workers":    c.minWorkers,
		"max_workers":    c.maxWorkers,
		"queue_length":   len(c.jobQueue),
		"poller":         c.poller.GetStats(),
	}
}
