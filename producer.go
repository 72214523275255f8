package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBufferMemory     = 32 << 20
	defaultRetries          = 10
	defaultBatchSize        = 16384
	defaultRequestTimeoutMs = 500
	defaultMetadataRefreshMs = 300000
	defaultRetryBackoffMs   = 100
	defaultMaxBackoffMs     = 1000
)

// ErrProducerClosed is returned to any record still queued in the batcher
// when Disconnect runs (spec.md §4.H, §7). Records already handed to the
// sender are resolved by the sender's own flush cycle instead.
var ErrProducerClosed = errors.New("kafka: producer closed")

// ProducerConfig is the public knob set of spec.md §6, with the same
// defaulting behavior as the original's config validation step.
type ProducerConfig struct {
	ClientID         string
	BootstrapServers []string

	Acks              AcksPolicy
	LingerMs          int
	BufferMemory      int64
	Retries           int
	BatchSize         int
	RequestTimeoutMs  int32
	MetadataRefreshMs int

	Partitioner  Partitioner
	RetryBackoff BackoffFunc

	// MetricRegistry, if set, receives batch-size and request/retry rate
	// metrics the same way the teacher's Consumer reports to one.
	MetricRegistry metrics.Registry
}

func (c *ProducerConfig) applyDefaults() {
	if c.BufferMemory <= 0 {
		c.BufferMemory = defaultBufferMemory
	}
	if c.Retries <= 0 {
		c.Retries = defaultRetries
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.RequestTimeoutMs <= 0 {
		c.RequestTimeoutMs = defaultRequestTimeoutMs
	}
	if c.MetadataRefreshMs <= 0 {
		c.MetadataRefreshMs = defaultMetadataRefreshMs
	}
	if c.Partitioner == nil {
		c.Partitioner = &RoundRobinPartitioner{}
	}
	if c.RetryBackoff == nil {
		c.RetryBackoff = DefaultBackoff(defaultRetryBackoffMs*time.Millisecond, defaultMaxBackoffMs*time.Millisecond)
	}
}

func (c *ProducerConfig) validate() error {
	if len(c.BootstrapServers) == 0 {
		return errors.New("kafka: ProducerConfig.BootstrapServers must not be empty")
	}
	for _, s := range c.BootstrapServers {
		if _, _, err := splitHostPort(s); err != nil {
			return fmt.Errorf("kafka: invalid bootstrap server %q: %w", s, err)
		}
	}
	return nil
}

func splitHostPort(addr string) (string, int32, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port: %w", err)
	}
	return host, int32(port), nil
}

// Producer is the top-level handle of spec.md §6: it owns a connection
// pool, a metadata manager, and a batcher/sender pipeline, and exposes
// Produce/Flush/Disconnect as the only operations a caller needs.
type Producer struct {
	config ProducerConfig

	client   *Client
	metadata *MetadataManager
	sender   *Sender
	batcher  *Batcher

	cancel context.CancelFunc
	done   chan struct{}
}

// New validates config, applies defaults, and wires the pipeline
// together, but performs no I/O — call Init to connect.
func New(config ProducerConfig) (*Producer, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	client := NewClient(time.Duration(config.RequestTimeoutMs)*time.Millisecond, config.ClientID)
	metadata := NewMetadataManager(client, time.Duration(config.MetadataRefreshMs)*time.Millisecond)
	sender := NewSender(client, metadata, config.Acks, config.RequestTimeoutMs, config.Retries, config.RetryBackoff)
	if config.MetricRegistry != nil {
		sender.WithMetrics(config.MetricRegistry)
	}
	batcher := NewBatcher(sender, time.Duration(config.LingerMs)*time.Millisecond, config.BufferMemory)

	return &Producer{
		config:   config,
		client:   client,
		metadata: metadata,
		sender:   sender,
		batcher:  batcher,
	}, nil
}

// Init performs spec.md §6's bootstrap: connect to every configured
// broker in parallel, perform the first metadata refresh, then start
// the background metadata-refresh and flush loops.
func (p *Producer) Init(ctx context.Context) error {
	p.client.Start()

	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range p.config.BootstrapServers {
		addr := addr
		g.Go(func() error {
			host, port, err := splitHostPort(addr)
			if err != nil {
				return err
			}
			return p.client.Connect(gctx, host, port)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("kafka: bootstrap failed: %w", err)
	}

	if err := p.metadata.RefreshMetadata(nil); err != nil {
		return fmt.Errorf("kafka: initial metadata refresh failed: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); p.metadata.RunRefreshLoop(runCtx, nil) }()
		go func() { defer wg.Done(); p.batcher.Run(runCtx) }()
		wg.Wait()
	}()

	return nil
}

// Produce implements spec.md §6's per-record entry point: it derives
// the destination partition via the configured Partitioner, enqueues
// the record with the batcher, and blocks until that record's promise
// resolves (success or terminal failure) or ctx is canceled.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte) error {
	partition := p.choosePartition(topic, key)

	rec := &queuedRecord{
		topic:       topic,
		key:         key,
		value:       value,
		partition:   partition,
		timestampMs: time.Now().UnixMilli(),
		promise:     newRecordPromise(),
	}

	p.batcher.QueueMessage(rec)
	return rec.promise.wait(ctx)
}

// choosePartition resolves the current partition list for topic from
// the metadata snapshot and asks the partitioner to pick one. A topic
// missing from the snapshot (not yet discovered, or errored) falls back
// to partition 0; the sender will surface UNKNOWN_TOPIC_OR_PARTITION at
// dispatch time if that guess is wrong, which triggers a metadata
// refresh before the retry.
func (p *Producer) choosePartition(topic string, key []byte) int32 {
	snapshot := p.metadata.GetMetadata()
	t, ok := snapshot.TopicByName(topic)
	if !ok || len(t.Partitions) == 0 {
		return 0
	}
	partitions := make([]int32, len(t.Partitions))
	for i, part := range t.Partitions {
		partitions[i] = part.PartitionIndex
	}
	return p.config.Partitioner.GetPartition(key, partitions)
}

// Flush forces an immediate flush of whatever is currently queued and
// blocks until that cycle (including any retries) completes.
func (p *Producer) Flush(ctx context.Context) {
	p.batcher.Flush(ctx)
}

// Disconnect implements spec.md §6's shutdown: stop the background
// loops, fail any record still sitting in the queue with
// ErrProducerClosed, and close every open connection.
func (p *Producer) Disconnect(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.done != nil {
		select {
		case <-p.done:
		case <-ctx.Done():
		}
	}

	p.batcher.FailAll(ErrProducerClosed)

	return p.client.DisconnectAll()
}
