package kafka

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetadataManager(m *Metadata) *MetadataManager {
	mm := NewMetadataManager(nil, 0)
	mm.snapshot.Store(m)
	return mm
}

func TestSplitByLeaderGroupsByBrokerAndReportsUnresolved(t *testing.T) {
	m := &Metadata{
		Brokers: []Broker{
			{NodeID: 1, Host: "h1", Port: 9092},
			{NodeID: 2, Host: "h2", Port: 9092},
		},
		Topics: []TopicMetadata{
			{Name: "t", ErrorCode: ErrNoError, Partitions: []PartitionMetadata{
				{PartitionIndex: 0, LeaderID: 1, ErrorCode: ErrNoError},
				{PartitionIndex: 1, LeaderID: 2, ErrorCode: ErrNoError},
			}},
		},
	}
	s := &Sender{metadata: newTestMetadataManager(m)}

	recs := []*queuedRecord{
		{topic: "t", partition: 0, promise: newRecordPromise()},
		{topic: "t", partition: 1, promise: newRecordPromise()},
		{topic: "missing", partition: 0, promise: newRecordPromise()},
	}

	byBroker, unresolved := s.splitByLeader(recs)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "missing", unresolved[0].topic)

	require.Len(t, byBroker, 2)
	assert.Contains(t, byBroker, brokerKey{Host: "h1", Port: 9092})
	assert.Contains(t, byBroker, brokerKey{Host: "h2", Port: 9092})
}

func TestBuildRecordBatchPreservesOrderAndComputesDeltas(t *testing.T) {
	recs := []*queuedRecord{
		{key: []byte("k0"), value: []byte("v0"), timestampMs: 1000},
		{key: []byte("k1"), value: []byte("v1"), timestampMs: 1005},
		{key: []byte("k2"), value: []byte("v2"), timestampMs: 999},
	}
	batch := buildRecordBatch(recs)

	assert.Equal(t, int64(1000), batch.FirstTimestamp)
	require.Len(t, batch.Records, 3)
	assert.Equal(t, int32(0), batch.Records[0].OffsetDelta)
	assert.Equal(t, int32(1), batch.Records[1].OffsetDelta)
	assert.Equal(t, int32(2), batch.Records[2].OffsetDelta)
	assert.Equal(t, int32(5), batch.Records[1].TimestampDelta)
	assert.Equal(t, int32(-1), batch.Records[2].TimestampDelta)
	assert.Equal(t, int64(-1), batch.ProducerID)
	assert.Equal(t, int32(-1), batch.BaseSequence)
}

// serveFakeBroker answers the ApiVersions handshake, then fails every
// Produce request with a retriable, metadata-invalidating error code,
// and answers Metadata requests with a single-broker/single-partition
// snapshot pointing right back at itself.
func serveFakeBroker(t *testing.T, conn net.Conn, host string, port int32, produceCount *int32) {
	defer conn.Close()
	for {
		var lenBuf [4]byte
		if _, err := readFull(conn, lenBuf[:]); err != nil {
			return
		}
		size := int32(lenBuf[0])<<24 | int32(lenBuf[1])<<16 | int32(lenBuf[2])<<8 | int32(lenBuf[3])
		body := make([]byte, size)
		if _, err := readFull(conn, body); err != nil {
			return
		}

		pd := newRealDecoder(body)
		apiKey, err := pd.getInt16()
		require.NoError(t, err)
		apiVersion, err := pd.getInt16()
		require.NoError(t, err)
		correlationID, err := pd.getInt32()
		require.NoError(t, err)
		_, err = pd.getNullableString()
		require.NoError(t, err)

		var resp protocolBody
		switch apiKey {
		case apiKeyApiVersions:
			resp = &ApiVersionsResponse{
				Version:   apiVersion,
				ErrorCode: ErrNoError,
				ApiVersions: []ApiVersionRange{
					{ApiKey: apiKeyApiVersions, Min: 0, Max: 2},
					{ApiKey: apiKeyMetadata, Min: 0, Max: 8},
					{ApiKey: apiKeyProduce, Min: 0, Max: 8},
				},
			}
		case apiKeyMetadata:
			req := &MetadataRequest{}
			require.NoError(t, req.decode(pd, apiVersion))
			resp = &MetadataResponse{
				Version: apiVersion,
				Brokers: []Broker{{NodeID: 1, Host: host, Port: port}},
				Topics: []TopicMetadata{
					{Name: "t", ErrorCode: ErrNoError, Partitions: []PartitionMetadata{
						{PartitionIndex: 0, LeaderID: 1, ErrorCode: ErrNoError},
					}},
				},
			}
		case apiKeyProduce:
			atomic.AddInt32(produceCount, 1)
			req := &ProduceRequest{}
			require.NoError(t, req.decode(pd, apiVersion))
			preq := &ProduceResponse{Version: apiVersion}
			for _, topic := range req.Topics {
				tresp := ProduceTopicResponse{Name: topic.Name}
				for _, part := range topic.Partitions {
					tresp.Partitions = append(tresp.Partitions, ProducePartitionResponse{
						PartitionIndex: part.PartitionIndex,
						ErrorCode:      ErrLeaderNotAvailable,
					})
				}
				preq.Topics = append(preq.Topics, tresp)
			}
			resp = preq
		default:
			return
		}

		pe := newRealEncoder()
		pe.putInt32(correlationID)
		require.NoError(t, resp.encode(pe))
		payload := pe.bytes()

		framed := newRealEncoder()
		framed.putInt32(int32(len(payload)))
		require.NoError(t, framed.putRawBytes(payload))
		if _, err := conn.Write(framed.bytes()); err != nil {
			return
		}
	}
}

func TestDispatchStopsAfterInitialAttemptPlusMaxRetries(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	portInt, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	port := int32(portInt)

	var produceCount int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveFakeBroker(t, conn, host, port, &produceCount)
		}
	}()

	client := NewClient(2*time.Second, "test")
	client.Start()

	mm := NewMetadataManager(client, time.Hour)
	mm.snapshot.Store(&Metadata{
		Brokers: []Broker{{NodeID: 1, Host: host, Port: port}},
		Topics: []TopicMetadata{
			{Name: "t", ErrorCode: ErrNoError, Partitions: []PartitionMetadata{
				{PartitionIndex: 0, LeaderID: 1, ErrorCode: ErrNoError},
			}},
		},
	})

	noBackoff := func(n int) time.Duration { return 0 }
	s := NewSender(client, mm, AcksAll, 2000, 3, noBackoff)

	rec := &queuedRecord{topic: "t", partition: 0, key: []byte("k"), value: []byte("v"), promise: newRecordPromise()}
	s.Dispatch(context.Background(), []*queuedRecord{rec})

	gotErr := rec.promise.wait(context.Background())
	assert.Equal(t, KError(ErrLeaderNotAvailable), gotErr)
	assert.Equal(t, int32(4), atomic.LoadInt32(&produceCount))
}
