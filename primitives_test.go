package kafka

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealEncoderDecoderVarintRoundTrip(t *testing.T) {
	cases := []int32{0, 1, -1, 63, 64, -64, -65, 1 << 20, -(1 << 20), math.MinInt32, math.MaxInt32}
	for _, v := range cases {
		e := newRealEncoder()
		e.putVarint(v)
		d := newRealDecoder(e.bytes())
		got, err := d.getVarint()
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, 0, d.remaining())
	}
}

func TestGetVarintAcceptsFullWidthFifthByte(t *testing.T) {
	d := newRealDecoder([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F})
	got, err := d.getVarint()
	require.NoError(t, err)
	assert.Equal(t, int32(math.MinInt32), got)
}

func TestGetVarintRejectsOverflowingFifthByte(t *testing.T) {
	d := newRealDecoder([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x1F})
	_, err := d.getVarint()
	assert.Error(t, err)
}

func TestRealEncoderDecoderVarlongRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 1 << 40, -(1 << 40)}
	for _, v := range cases {
		e := newRealEncoder()
		e.putVarlong(v)
		d := newRealDecoder(e.bytes())
		got, err := d.getVarlong()
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestNullableStringRoundTrip(t *testing.T) {
	e := newRealEncoder()
	require.NoError(t, e.putNullableString(nil))
	s := "hello"
	require.NoError(t, e.putNullableString(&s))

	d := newRealDecoder(e.bytes())
	got, err := d.getNullableString()
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = d.getNullableString()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", *got)
}

func TestNullableBytesRoundTrip(t *testing.T) {
	e := newRealEncoder()
	require.NoError(t, e.putNullableBytes(nil))
	require.NoError(t, e.putNullableBytes([]byte{1, 2, 3}))

	d := newRealDecoder(e.bytes())
	got, err := d.getNullableBytes()
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = d.getNullableBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestDecoderInsufficientData(t *testing.T) {
	d := newRealDecoder([]byte{0x00, 0x01})
	_, err := d.getInt32()
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRequestMessageEncodeFrame(t *testing.T) {
	clientID := "test-client"
	msg := &requestMessage{
		CorrelationID: 42,
		ClientID:      &clientID,
		Body:          &ApiVersionsRequest{Version: 2},
	}
	frame, err := msg.encode()
	require.NoError(t, err)

	d := newRealDecoder(frame)
	size, err := d.getInt32()
	require.NoError(t, err)
	assert.Equal(t, len(frame)-4, int(size))

	apiKey, err := d.getInt16()
	require.NoError(t, err)
	assert.Equal(t, apiKeyApiVersions, apiKey)

	version, err := d.getInt16()
	require.NoError(t, err)
	assert.Equal(t, int16(2), version)

	correlationID, err := d.getInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(42), correlationID)

	gotClientID, err := d.getNullableString()
	require.NoError(t, err)
	require.NotNil(t, gotClientID)
	assert.Equal(t, clientID, *gotClientID)
}
