package kafka

import (
	"context"
	"sync"

	"github.com/rcrowley/go-metrics"
	"golang.org/x/sync/errgroup"
)

// queuedRecord is the batcher's in-memory representation of spec.md
// §3's Record (input): owned exclusively by the batcher until handed to
// the sender, then borrowed for exactly one dispatch cycle.
type queuedRecord struct {
	topic       string
	key         []byte
	value       []byte
	partition   int32
	timestampMs int64
	promise     *recordPromise
	lastErr     error
}

// recordPromise is the record's one-shot completion signal (§3). It can
// only be resolved once; later resolutions are no-ops, which matters
// because a record can be touched by at most one in-flight request at a
// time but its terminal state is reached from several different code
// paths (success, non-retriable failure, retries-exhausted failure,
// disconnect cleanup).
type recordPromise struct {
	once sync.Once
	ch   chan error
}

func newRecordPromise() *recordPromise {
	return &recordPromise{ch: make(chan error, 1)}
}

func (p *recordPromise) resolve(err error) {
	p.once.Do(func() { p.ch <- err })
}

func (p *recordPromise) wait(ctx context.Context) error {
	select {
	case err := <-p.ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// partitionKey groups queued records by destination partition; brokerKey
// groups those groups by destination broker so one Produce request per
// broker can be built (§4.H step 2).
type partitionKey struct {
	topic     string
	partition int32
}

// Sender is spec.md §4.H's sender half: it receives one flush cycle's
// worth of records from the Batcher and drives them to completion,
// splitting by leader broker, dispatching in parallel, reconciling
// responses, and retrying what is retriable.
type Sender struct {
	client   *Client
	metadata *MetadataManager

	acks       AcksPolicy
	timeoutMs  int32
	maxRetries int
	backoff    BackoffFunc

	metrics *producerMetrics
}

func NewSender(client *Client, metadata *MetadataManager, acks AcksPolicy, timeoutMs int32, maxRetries int, backoff BackoffFunc) *Sender {
	return &Sender{client: client, metadata: metadata, acks: acks, timeoutMs: timeoutMs, maxRetries: maxRetries, backoff: backoff}
}

// WithMetrics attaches a go-metrics registry the sender will report
// batch-size and request/retry rates to (spec.md SPEC_FULL ambient
// metrics hook).
func (s *Sender) WithMetrics(r metrics.Registry) *Sender {
	s.metrics = newProducerMetrics(r)
	return s
}

// Dispatch runs one flush cycle to completion: split/dispatch/reconcile,
// then (while retriable records remain and retries < maxRetries) refresh
// metadata if warranted, back off, and loop — spec.md §4.H steps 2-8.
// It never repeats step 1 (the batcher has already moved these records
// out of its queue before calling Dispatch).
func (s *Sender) Dispatch(ctx context.Context, records []*queuedRecord) {
	remaining := records

	for attempt := 0; len(remaining) > 0; attempt++ {
		byBroker, unresolved := s.splitByLeader(remaining)

		var mu sync.Mutex
		var retry []*queuedRecord
		refreshNeeded := false

		for _, rec := range unresolved {
			rec.lastErr = ErrUnknownTopicOrPartition
			retry = append(retry, rec)
			refreshNeeded = true
		}

		g, gctx := errgroup.WithContext(ctx)
		for broker, group := range byBroker {
			broker, group := broker, group
			g.Go(func() error {
				done, toRetry, needsRefresh := s.dispatchToBroker(gctx, broker, group)
				mu.Lock()
				retry = append(retry, toRetry...)
				if needsRefresh {
					refreshNeeded = true
				}
				mu.Unlock()
				for _, d := range done {
					d.rec.promise.resolve(d.err)
				}
				return nil
			})
		}
		_ = g.Wait()

		if refreshNeeded {
			_ = s.metadata.RefreshMetadata(nil)
		}

		if len(retry) == 0 {
			return
		}
		s.metrics.recordRetry(len(retry))
		if attempt >= s.maxRetries {
			for _, rec := range retry {
				rec.promise.resolve(rec.lastErr)
			}
			return
		}

		if d := s.backoff(attempt); d > 0 {
			if !sleepCancelable(ctx, d) {
				for _, rec := range retry {
					rec.promise.resolve(ctx.Err())
				}
				return
			}
		}
		remaining = retry
	}
}

// splitByLeader implements §4.H step 2: binary-search the metadata
// snapshot for each record's (topic, partition); records whose
// topic/partition is missing or errored are excluded from this round
// and reported back as unresolved.
func (s *Sender) splitByLeader(records []*queuedRecord) (map[brokerKey]map[partitionKey][]*queuedRecord, []*queuedRecord) {
	snapshot := s.metadata.GetMetadata()
	byBroker := make(map[brokerKey]map[partitionKey][]*queuedRecord)
	var unresolved []*queuedRecord

	for _, rec := range records {
		leader, ok := snapshot.PartitionLeader(rec.topic, rec.partition)
		if !ok {
			unresolved = append(unresolved, rec)
			continue
		}
		bk := brokerKey{Host: leader.Host, Port: leader.Port}
		pk := partitionKey{topic: rec.topic, partition: rec.partition}
		if byBroker[bk] == nil {
			byBroker[bk] = make(map[partitionKey][]*queuedRecord)
		}
		byBroker[bk][pk] = append(byBroker[bk][pk], rec)
	}
	return byBroker, unresolved
}

// dispatched pairs a record with its resolved outcome for step 5/6.
type dispatched struct {
	rec *queuedRecord
	err error
}

// dispatchToBroker builds and sends one Produce request covering every
// partition this broker leads among the given records (§4.H step 3),
// then reconciles the response (§4.H steps 5-6).
func (s *Sender) dispatchToBroker(ctx context.Context, broker brokerKey, groups map[partitionKey][]*queuedRecord) (done []dispatched, retry []*queuedRecord, refreshNeeded bool) {
	version, ok := s.client.EffectiveVersion(broker.Host, broker.Port, apiKeyProduce)
	if !ok {
		version = MaxSupportedApiVersions[apiKeyProduce]
	}
	req := &ProduceRequest{
		Version:   version,
		Acks:      s.acks,
		TimeoutMs: s.timeoutMs,
	}

	byTopic := make(map[string][]ProducePartitionRequest)
	var topicOrder []string
	for pk, recs := range groups {
		batch := buildRecordBatch(recs)
		if _, ok := byTopic[pk.topic]; !ok {
			topicOrder = append(topicOrder, pk.topic)
		}
		byTopic[pk.topic] = append(byTopic[pk.topic], ProducePartitionRequest{
			PartitionIndex: pk.partition,
			Records:        batch,
		})
	}
	for _, topic := range topicOrder {
		req.Topics = append(req.Topics, ProduceTopicRequest{Name: topic, Partitions: byTopic[topic]})
	}
	recordCount := 0
	for _, recs := range groups {
		recordCount += len(recs)
	}
	s.metrics.recordBatch(recordCount)

	allRecords := func() []*queuedRecord {
		var all []*queuedRecord
		for _, recs := range groups {
			all = append(all, recs...)
		}
		return all
	}

	if s.acks == AcksNone {
		err := s.client.SendWithoutResponse(broker.Host, broker.Port, req)
		for _, rec := range allRecords() {
			rec.promise.resolve(err)
		}
		return nil, nil, false
	}

	resp := &ProduceResponse{}
	if err := s.client.Send(broker.Host, broker.Port, req, resp); err != nil {
		ke, _ := err.(KError)
		for _, recs := range groups {
			for _, rec := range recs {
				rec.lastErr = err
				if ke.Retriable() {
					retry = append(retry, rec)
				} else {
					done = append(done, dispatched{rec: rec, err: err})
				}
			}
		}
		if ke.InvalidatesMetadata() {
			refreshNeeded = true
		}
		return done, retry, refreshNeeded
	}

	byPartitionResp := make(map[partitionKey]KError)
	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			byPartitionResp[partitionKey{topic: t.Name, partition: p.PartitionIndex}] = p.ErrorCode
		}
	}

	for pk, recs := range groups {
		code, ok := byPartitionResp[pk]
		if !ok {
			code = ErrUnknownTopicOrPartition
		}
		for _, rec := range recs {
			if code == ErrNoError {
				done = append(done, dispatched{rec: rec, err: nil})
				continue
			}
			rec.lastErr = code
			if code.Retriable() {
				retry = append(retry, rec)
				if code.InvalidatesMetadata() {
					refreshNeeded = true
				}
			} else {
				done = append(done, dispatched{rec: rec, err: code})
			}
		}
	}
	return done, retry, refreshNeeded
}

// buildRecordBatch implements §4.H step 3's within-partition framing:
// enqueue order preserved, offset_delta = i, first_timestamp =
// records[0].ts, max_timestamp = max(records[i].ts).
func buildRecordBatch(recs []*queuedRecord) *RecordBatch {
	firstTs := recs[0].timestampMs
	wireRecords := make([]*Record, len(recs))
	for i, rec := range recs {
		wireRecords[i] = &Record{
			TimestampDelta: int32(rec.timestampMs - firstTs),
			OffsetDelta:    int32(i),
			Key:            rec.key,
			Value:          rec.value,
		}
	}
	return &RecordBatch{
		PartitionLeaderEpoch: -1,
		Magic:                RecordBatchMagic,
		FirstTimestamp:       firstTs,
		ProducerID:           -1,
		ProducerEpoch:        -1,
		BaseSequence:         -1,
		Records:              wireRecords,
	}
}
