package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(key, value string) *queuedRecord {
	return &queuedRecord{
		topic:   "t",
		key:     []byte(key),
		value:   []byte(value),
		promise: newRecordPromise(),
	}
}

func TestBatcherQueueMessageTracksByteCounter(t *testing.T) {
	b := NewBatcher(nil, 0, 1<<20)
	b.QueueMessage(newTestRecord("k1", "v1"))
	assert.Equal(t, int64(4), b.PendingBytes())
	b.QueueMessage(newTestRecord("k22", "v22"))
	assert.Equal(t, int64(4+6), b.PendingBytes())
}

func TestBatcherTakeDrainsQueueAndResetsCounter(t *testing.T) {
	b := NewBatcher(nil, 0, 1<<20)
	b.QueueMessage(newTestRecord("k", "v"))
	b.QueueMessage(newTestRecord("k2", "v2"))

	records := b.take()
	require.Len(t, records, 2)
	assert.Equal(t, int64(0), b.PendingBytes())
	assert.Nil(t, b.take())
}

func TestBatcherLingerZeroSignalsOnEveryMessage(t *testing.T) {
	b := NewBatcher(nil, 0, 1<<20)
	b.QueueMessage(newTestRecord("k", "v"))
	select {
	case <-b.flushSignal:
	default:
		t.Fatal("expected a flush signal with linger_ms == 0")
	}
}

func TestBatcherBufferMemoryTriggersRegardlessOfLinger(t *testing.T) {
	b := NewBatcher(nil, 1000, 2)
	b.QueueMessage(newTestRecord("key", "value"))
	select {
	case <-b.flushSignal:
	default:
		t.Fatal("expected a flush signal once buffer_memory was exceeded")
	}
}

func TestBatcherFailAllResolvesQueuedPromises(t *testing.T) {
	b := NewBatcher(nil, 1000, 1<<20)
	rec := newTestRecord("k", "v")
	b.QueueMessage(rec)
	b.FailAll(ErrProducerClosed)

	err := rec.promise.wait(context.Background())
	assert.ErrorIs(t, err, ErrProducerClosed)
}
