package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, ServerHeaderSize)
	want := ServerHeader{TickAdjustment: -5, AdjustmentIteration: 3, BatchSize: 1200, Compressed: true}
	EncodeServerHeader(buf, want)
	got, err := DecodeServerHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestServerHeaderBatchSizeHighBitReservedForCompression(t *testing.T) {
	buf := make([]byte, ServerHeaderSize)
	EncodeServerHeader(buf, ServerHeader{BatchSize: MaxBatchSize, Compressed: false})
	got, err := DecodeServerHeader(buf)
	require.NoError(t, err)
	assert.False(t, got.Compressed, "expected compressed flag false for max uncompressed size")
	assert.Equal(t, uint16(MaxBatchSize), got.BatchSize)
}

func TestClientHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, ClientHeaderSize)
	EncodeClientHeader(buf, ClientHeader{AdjustmentIteration: 7})
	got, err := DecodeClientHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, uint8(7), got.AdjustmentIteration)
}

func TestMessageHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, MessageHeaderSize)
	want := MessageHeader{Type: MessageHeartbeat, Size: 4}
	EncodeMessageHeader(buf, want)
	got, err := DecodeMessageHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeServerHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeServerHeader([]byte{1, 2})
	assert.Error(t, err, "expected error decoding truncated server header")
}
