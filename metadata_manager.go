package kafka

import (
	"context"
	"sort"
	"sync/atomic"
	"time"
)

// Metadata is the read-only snapshot of spec.md §3: brokers, topics and
// partition leadership, sorted so routing decisions can binary-search
// it. Once installed it is never mutated — callers take the pointer and
// read through it (a "cheap clone" in the sense that no defensive copy
// is made, since nothing ever writes back into it).
type Metadata struct {
	Brokers      []Broker
	Topics       []TopicMetadata
	ClusterID    *string
	ControllerID int32
}

// BrokerByID binary-searches the sorted broker list. A miss must be
// treated as a routing failure rather than undefined behavior (§9
// "Open question — broker_for_id miss").
func (m *Metadata) BrokerByID(id int32) (Broker, bool) {
	if m == nil {
		return Broker{}, false
	}
	i := sort.Search(len(m.Brokers), func(i int) bool { return m.Brokers[i].NodeID >= id })
	if i >= len(m.Brokers) || m.Brokers[i].NodeID != id {
		return Broker{}, false
	}
	return m.Brokers[i], true
}

// TopicByName binary-searches the sorted topic list.
func (m *Metadata) TopicByName(name string) (TopicMetadata, bool) {
	if m == nil {
		return TopicMetadata{}, false
	}
	i := sort.Search(len(m.Topics), func(i int) bool { return m.Topics[i].Name >= name })
	if i >= len(m.Topics) || m.Topics[i].Name != name {
		return TopicMetadata{}, false
	}
	return m.Topics[i], true
}

// PartitionLeader resolves the leader broker for (topic, partition), or
// ok=false if the topic/partition is missing or errored — the caller is
// expected to assign UNKNOWN_TOPIC_OR_PARTITION in that case (§4.H step
// 2).
func (m *Metadata) PartitionLeader(topic string, partition int32) (Broker, bool) {
	t, ok := m.TopicByName(topic)
	if !ok || t.ErrorCode != ErrNoError {
		return Broker{}, false
	}
	i := sort.Search(len(t.Partitions), func(i int) bool { return t.Partitions[i].PartitionIndex >= partition })
	if i >= len(t.Partitions) || t.Partitions[i].PartitionIndex != partition {
		return Broker{}, false
	}
	p := t.Partitions[i]
	if p.ErrorCode != ErrNoError {
		return Broker{}, false
	}
	return m.BrokerByID(p.LeaderID)
}

// normalizeMetadata applies spec.md §3's post-refresh invariants:
// brokers sorted by node_id; topics sorted by name (error-free
// preferred on ties); partitions within a topic sorted by
// partition_index (error-free preferred on ties).
func normalizeMetadata(resp *MetadataResponse) *Metadata {
	m := &Metadata{
		Brokers:      append([]Broker(nil), resp.Brokers...),
		Topics:       append([]TopicMetadata(nil), resp.Topics...),
		ClusterID:    resp.ClusterID,
		ControllerID: resp.ControllerID,
	}

	sort.Slice(m.Brokers, func(i, j int) bool { return m.Brokers[i].NodeID < m.Brokers[j].NodeID })

	sort.SliceStable(m.Topics, func(i, j int) bool {
		a, b := m.Topics[i], m.Topics[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ErrorCode == ErrNoError && b.ErrorCode != ErrNoError
	})
	m.Topics = dedupTopics(m.Topics)

	for ti := range m.Topics {
		parts := append([]PartitionMetadata(nil), m.Topics[ti].Partitions...)
		sort.SliceStable(parts, func(i, j int) bool {
			a, b := parts[i], parts[j]
			if a.PartitionIndex != b.PartitionIndex {
				return a.PartitionIndex < b.PartitionIndex
			}
			return a.ErrorCode == ErrNoError && b.ErrorCode != ErrNoError
		})
		m.Topics[ti].Partitions = dedupPartitions(parts)
	}

	return m
}

func dedupTopics(sorted []TopicMetadata) []TopicMetadata {
	out := sorted[:0:0]
	for i, t := range sorted {
		if i > 0 && sorted[i-1].Name == t.Name {
			continue
		}
		out = append(out, t)
	}
	return out
}

func dedupPartitions(sorted []PartitionMetadata) []PartitionMetadata {
	out := sorted[:0:0]
	for i, p := range sorted {
		if i > 0 && sorted[i-1].PartitionIndex == p.PartitionIndex {
			continue
		}
		out = append(out, p)
	}
	return out
}

// MetadataManager is spec.md §4.G: a background refresher that keeps an
// authoritative snapshot and exposes it as an immutable read view.
type MetadataManager struct {
	client          *Client
	refreshInterval time.Duration

	snapshot atomic.Pointer[Metadata]
	stopped  chan struct{}
}

// NewMetadataManager constructs a manager holding an empty snapshot
// until the first successful refresh (§3 "Lifecycle: created empty").
func NewMetadataManager(client *Client, refreshInterval time.Duration) *MetadataManager {
	mm := &MetadataManager{client: client, refreshInterval: refreshInterval}
	mm.snapshot.Store(&Metadata{})
	return mm
}

// GetMetadata returns the current immutable view. Callers must not
// retain it across await points that might trigger a refresh (§4.G).
func (mm *MetadataManager) GetMetadata() *Metadata {
	return mm.snapshot.Load()
}

// RefreshMetadata asks the connection manager for fresh metadata,
// normalizes it, and atomically replaces the held snapshot.
// ErrMetadataRefreshFailed leaves the prior snapshot intact — this is
// intentional (§9 "metadata_refresh_exception swallowed").
func (mm *MetadataManager) RefreshMetadata(topics []string) error {
	resp, err := mm.client.AskForMetadata(&MetadataRequest{Topics: topics})
	if err != nil {
		return err
	}
	mm.snapshot.Store(normalizeMetadata(resp))
	return nil
}

// RunRefreshLoop sleeps refreshInterval between refreshes and is
// cooperatively cancelable via ctx: cancellation wakes the sleep and the
// loop exits before mm.stopped is closed (§4.G, §5).
func (mm *MetadataManager) RunRefreshLoop(ctx context.Context, topics []string) {
	mm.stopped = make(chan struct{})
	defer close(mm.stopped)

	timer := time.NewTimer(mm.refreshInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			// Swallow refresh failures: the loop keeps the previous
			// snapshot and tries again next interval (§9).
			_ = mm.RefreshMetadata(topics)
			timer.Reset(mm.refreshInterval)
		}
	}
}

// Stopped returns a channel closed once RunRefreshLoop has returned
// after a cancellation request.
func (mm *MetadataManager) Stopped() <-chan struct{} {
	return mm.stopped
}
