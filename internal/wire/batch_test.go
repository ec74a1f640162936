package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, threshold int) *Codec {
	t.Helper()
	codec, err := NewCodec(threshold)
	require.NoError(t, err)
	t.Cleanup(codec.Close)
	return codec
}

func TestBatchBuilderRoundTripUncompressed(t *testing.T) {
	codec := newTestCodec(t, 1<<20) // high threshold, compression never kicks in
	b := NewBatchBuilder()
	require.NoError(t, b.Add(Encode(MessageHeartbeat, Heartbeat{Tick: 1})))
	require.NoError(t, b.Add(Encode(MessageExplicitConfirmation, ExplicitConfirmation{Tick: 1})))

	frame, err := b.BuildServer(codec, -2, 5)
	require.NoError(t, err)

	header, messages, err := ReadServerBatch(codec, frame)
	require.NoError(t, err)
	assert.False(t, header.Compressed, "expected uncompressed batch below threshold")
	assert.Equal(t, int8(-2), header.TickAdjustment)
	assert.Equal(t, uint8(5), header.AdjustmentIteration)
	require.Len(t, messages, 2)
	assert.Equal(t, MessageHeartbeat, messages[0].Type)
	assert.Equal(t, MessageExplicitConfirmation, messages[1].Type)
}

func TestBatchBuilderCompressesAboveThreshold(t *testing.T) {
	codec := newTestCodec(t, 16) // low threshold, guaranteed to compress
	b := NewBatchBuilder()
	longScript := strings.Repeat("aaaaaaaaaa", 200)
	require.NoError(t, b.Add(Encode(MessageInitScriptResponse, InitScriptResponse{Name: "intro", Script: longScript})))

	frame, err := b.BuildServer(codec, 0, 1)
	require.NoError(t, err)

	header, messages, err := ReadServerBatch(codec, frame)
	require.NoError(t, err)
	assert.True(t, header.Compressed, "expected compressed batch above threshold")
	require.Len(t, messages, 1)
	decoded, err := DecodeByType(messages[0].Type, messages[0].Payload)
	require.NoError(t, err)
	resp := decoded.(InitScriptResponse)
	assert.Equal(t, longScript, resp.Script)
}

func TestClientBatchRoundTrip(t *testing.T) {
	b := NewBatchBuilder()
	require.NoError(t, b.Add(Encode(MessageInputChangeRequest, InputChangeRequest{Tick: 3, Entity: 1, InputBits: 1})))
	frame, err := b.BuildClient(9)
	require.NoError(t, err)
	header, messages, err := ReadClientBatch(frame)
	require.NoError(t, err)
	assert.Equal(t, uint8(9), header.AdjustmentIteration)
	require.Len(t, messages, 1)
	assert.Equal(t, MessageInputChangeRequest, messages[0].Type)
}

func TestBatchBuilderRejectsOversizeMessage(t *testing.T) {
	b := NewBatchBuilder()
	huge := EncodedMessage{Type: MessageChunkUpdate, Payload: make([]byte, MaxBatchSize+1)}
	assert.Error(t, b.Add(huge), "expected error adding a message larger than MaxBatchSize")
}

func TestBatchBuilderOversizeReportsWhenFull(t *testing.T) {
	b := NewBatchBuilder()
	assert.False(t, b.Oversize(64), "empty builder should not report oversize for a small payload")
	assert.True(t, b.Oversize(MaxBatchSize), "expected oversize once header+payload would exceed MaxBatchSize")
}
