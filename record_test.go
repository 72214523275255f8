package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordBatchEncodeDecodeRoundTrip(t *testing.T) {
	batch := &RecordBatch{
		PartitionLeaderEpoch: -1,
		Magic:                RecordBatchMagic,
		FirstTimestamp:       1000,
		ProducerID:           -1,
		ProducerEpoch:        -1,
		BaseSequence:         -1,
		Records: []*Record{
			{TimestampDelta: 0, OffsetDelta: 0, Key: []byte("k1"), Value: []byte("v1")},
			{TimestampDelta: 5, OffsetDelta: 1, Key: nil, Value: []byte("v2"), Headers: []*RecordHeader{
				{Key: "h1", Value: []byte("hv")},
			}},
		},
	}

	enc := newRealEncoder()
	require.NoError(t, batch.Encode(enc))

	got := &RecordBatch{}
	require.NoError(t, got.Decode(newRealDecoder(enc.bytes())))

	require.Len(t, got.Records, 2)
	assert.Equal(t, []byte("k1"), got.Records[0].Key)
	assert.Equal(t, []byte("v1"), got.Records[0].Value)
	assert.Equal(t, int32(1), got.Records[1].OffsetDelta)
	assert.Nil(t, got.Records[1].Key)
	require.Len(t, got.Records[1].Headers, 1)
	assert.Equal(t, "h1", got.Records[1].Headers[0].Key)
	assert.Equal(t, int8(RecordBatchMagic), got.Magic)
	assert.Equal(t, int32(1), got.LastOffsetDelta)
}

func TestRecordBatchDecodeRejectsBadMagic(t *testing.T) {
	// Magic 1 (the old message-set format) must be rejected outright since
	// this module only understands v2 record batches.
	got := &RecordBatch{}
	raw := buildRawBatchWithMagic(1)
	err := got.Decode(newRealDecoder(raw))
	assert.ErrorIs(t, err, ErrUnsupportedRecordBatchVersion)
}

// buildRawBatchWithMagic hand-assembles just enough of a record batch
// header to exercise the magic-byte check without a full valid payload.
func buildRawBatchWithMagic(magic int8) []byte {
	e := newRealEncoder()
	e.putInt64(0)           // base offset
	e.putInt32(0)           // batch length (unchecked by this path)
	e.putInt32(-1)          // partition leader epoch
	e.putInt8(magic)        // magic
	e.putInt32(0)           // crc
	e.putInt16(0)           // attributes
	e.putInt32(0)           // last offset delta
	e.putInt64(0)           // first timestamp
	e.putInt64(0)           // max timestamp
	e.putInt64(-1)          // producer id
	e.putInt16(-1)          // producer epoch
	e.putInt32(-1)          // base sequence
	e.putInt32(0)           // record count
	return e.bytes()
}

func TestRecordBatchCRCCoversPayloadOnly(t *testing.T) {
	batch := &RecordBatch{
		Magic:         RecordBatchMagic,
		ProducerID:    -1,
		ProducerEpoch: -1,
		BaseSequence:  -1,
		Records: []*Record{
			{Key: []byte("a"), Value: []byte("b")},
		},
	}
	enc := newRealEncoder()
	require.NoError(t, batch.Encode(enc))

	got := &RecordBatch{}
	require.NoError(t, got.Decode(newRealDecoder(enc.bytes())))
	assert.NotZero(t, got.CRC)
	// The payload starts after base offset(8), batch length(4), partition
	// leader epoch(4), magic(1) and crc(4).
	assert.Equal(t, crc32cChecksum(enc.bytes()[21:]), got.CRC)
}
