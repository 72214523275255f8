package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMetadataSortsAndDedupsPreferringErrorFree(t *testing.T) {
	resp := &MetadataResponse{
		Brokers: []Broker{
			{NodeID: 2, Host: "b2", Port: 9092},
			{NodeID: 1, Host: "b1", Port: 9092},
		},
		Topics: []TopicMetadata{
			{Name: "topic-b", ErrorCode: ErrNoError, Partitions: []PartitionMetadata{
				{PartitionIndex: 1, LeaderID: 1, ErrorCode: ErrNoError},
				{PartitionIndex: 0, LeaderID: 1, ErrorCode: ErrNoError},
			}},
			{Name: "topic-a", ErrorCode: ErrLeaderNotAvailable},
			{Name: "topic-a", ErrorCode: ErrNoError, Partitions: []PartitionMetadata{
				{PartitionIndex: 0, LeaderID: 2, ErrorCode: ErrNoError},
			}},
		},
	}

	m := normalizeMetadata(resp)

	require.Len(t, m.Brokers, 2)
	assert.Equal(t, int32(1), m.Brokers[0].NodeID)
	assert.Equal(t, int32(2), m.Brokers[1].NodeID)

	require.Len(t, m.Topics, 2)
	assert.Equal(t, "topic-a", m.Topics[0].Name)
	assert.Equal(t, ErrNoError, m.Topics[0].ErrorCode)
	assert.Equal(t, "topic-b", m.Topics[1].Name)

	require.Len(t, m.Topics[1].Partitions, 2)
	assert.Equal(t, int32(0), m.Topics[1].Partitions[0].PartitionIndex)
	assert.Equal(t, int32(1), m.Topics[1].Partitions[1].PartitionIndex)
}

func TestMetadataPartitionLeaderResolution(t *testing.T) {
	m := &Metadata{
		Brokers: []Broker{{NodeID: 5, Host: "h", Port: 1}},
		Topics: []TopicMetadata{
			{Name: "t", ErrorCode: ErrNoError, Partitions: []PartitionMetadata{
				{PartitionIndex: 0, LeaderID: 5, ErrorCode: ErrNoError},
			}},
		},
	}
	leader, ok := m.PartitionLeader("t", 0)
	require.True(t, ok)
	assert.Equal(t, int32(5), leader.NodeID)

	_, ok = m.PartitionLeader("missing", 0)
	assert.False(t, ok)

	_, ok = m.PartitionLeader("t", 9)
	assert.False(t, ok)
}

func TestBrokerByIDMiss(t *testing.T) {
	m := &Metadata{Brokers: []Broker{{NodeID: 1}, {NodeID: 3}}}
	_, ok := m.BrokerByID(2)
	assert.False(t, ok)
	b, ok := m.BrokerByID(3)
	assert.True(t, ok)
	assert.Equal(t, int32(3), b.NodeID)
}
