package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupErrorKnownCodes(t *testing.T) {
	entry, err := LookupError(ErrUnknownTopicOrPartition)
	require.NoError(t, err)
	assert.True(t, entry.retriable)
	assert.True(t, entry.invalidatesMetadata)

	entry, err = LookupError(ErrCorruptMessage)
	require.NoError(t, err)
	assert.True(t, entry.retriable)
	assert.False(t, entry.invalidatesMetadata)
}

func TestLookupErrorUnknownCode(t *testing.T) {
	_, err := LookupError(KError(9999))
	assert.Error(t, err)
}

func TestKErrorRetriableAndInvalidatesMetadata(t *testing.T) {
	assert.True(t, ErrLeaderNotAvailable.Retriable())
	assert.True(t, ErrLeaderNotAvailable.InvalidatesMetadata())
	assert.False(t, ErrNoError.Retriable())
	assert.Equal(t, "kafka server: no error", ErrNoError.Error())
}

func TestKErrorErrorStringForUnknownCode(t *testing.T) {
	e := KError(-100)
	assert.Contains(t, e.Error(), "unknown error code")
}
