package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerConfigDefaults(t *testing.T) {
	cfg := ProducerConfig{BootstrapServers: []string{"localhost:9092"}}
	cfg.applyDefaults()

	assert.Equal(t, int64(defaultBufferMemory), cfg.BufferMemory)
	assert.Equal(t, defaultRetries, cfg.Retries)
	assert.Equal(t, defaultBatchSize, cfg.BatchSize)
	assert.Equal(t, int32(defaultRequestTimeoutMs), cfg.RequestTimeoutMs)
	assert.Equal(t, defaultMetadataRefreshMs, cfg.MetadataRefreshMs)
	require.NotNil(t, cfg.Partitioner)
	require.NotNil(t, cfg.RetryBackoff)
}

func TestProducerConfigValidateRejectsEmptyBootstrap(t *testing.T) {
	cfg := ProducerConfig{}
	cfg.applyDefaults()
	assert.Error(t, cfg.validate())
}

func TestProducerConfigValidateRejectsBadAddress(t *testing.T) {
	cfg := ProducerConfig{BootstrapServers: []string{"not-a-valid-addr"}}
	cfg.applyDefaults()
	assert.Error(t, cfg.validate())
}

func TestNewProducerWiresPipeline(t *testing.T) {
	p, err := New(ProducerConfig{BootstrapServers: []string{"localhost:9092"}})
	require.NoError(t, err)
	require.NotNil(t, p.client)
	require.NotNil(t, p.metadata)
	require.NotNil(t, p.sender)
	require.NotNil(t, p.batcher)
}

func TestChoosePartitionFallsBackToZeroForUnknownTopic(t *testing.T) {
	p, err := New(ProducerConfig{BootstrapServers: []string{"localhost:9092"}})
	require.NoError(t, err)
	assert.Equal(t, int32(0), p.choosePartition("unknown-topic", []byte("k")))
}
