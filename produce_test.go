package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduceRequestEncodeDecodeRoundTrip(t *testing.T) {
	batch := &RecordBatch{
		Magic:         RecordBatchMagic,
		ProducerID:    -1,
		ProducerEpoch: -1,
		BaseSequence:  -1,
		Records: []*Record{
			{Key: []byte("k"), Value: []byte("v")},
		},
	}
	req := &ProduceRequest{
		Version:   7,
		Acks:      AcksAll,
		TimeoutMs: 1500,
		Topics: []ProduceTopicRequest{
			{Name: "orders", Partitions: []ProducePartitionRequest{
				{PartitionIndex: 0, Records: batch},
			}},
		},
	}

	enc := newRealEncoder()
	require.NoError(t, req.encode(enc))

	got := &ProduceRequest{}
	require.NoError(t, got.decode(newRealDecoder(enc.bytes()), 7))

	assert.Equal(t, AcksAll, got.Acks)
	assert.Equal(t, int32(1500), got.TimeoutMs)
	require.Len(t, got.Topics, 1)
	assert.Equal(t, "orders", got.Topics[0].Name)
	require.Len(t, got.Topics[0].Partitions, 1)
	require.Len(t, got.Topics[0].Partitions[0].Records.Records, 1)
	assert.Equal(t, []byte("k"), got.Topics[0].Partitions[0].Records.Records[0].Key)
}

func TestProduceResponseEncodeDecodeVersionGating(t *testing.T) {
	resp := &ProduceResponse{
		Version: 5,
		Topics: []ProduceTopicResponse{
			{Name: "orders", Partitions: []ProducePartitionResponse{
				{PartitionIndex: 0, ErrorCode: ErrNoError, BaseOffset: 42, LogStartOffset: 1, LogAppendTime: time.UnixMilli(1000)},
			}},
		},
		ThrottleMs: 3,
	}
	enc := newRealEncoder()
	require.NoError(t, resp.encode(enc))

	got := &ProduceResponse{}
	require.NoError(t, got.decode(newRealDecoder(enc.bytes()), 5))

	require.Len(t, got.Topics, 1)
	p := got.Topics[0].Partitions[0]
	assert.Equal(t, int64(42), p.BaseOffset)
	assert.Equal(t, int64(1), p.LogStartOffset)
	assert.Equal(t, int64(1000), p.LogAppendTime.UnixMilli())
	assert.Equal(t, int32(3), got.ThrottleMs)
}

func TestTimeToMsAndMsToTimeSentinels(t *testing.T) {
	assert.Equal(t, int64(-1), timeToMs(time.Time{}))
	assert.True(t, msToTime(-1).IsZero())
}
