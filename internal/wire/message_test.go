package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tessera-mmo/core/internal/entity"
	"github.com/tessera-mmo/core/internal/tilemap"
)

func TestHeartbeatRoundTrip(t *testing.T) {
	msg := Heartbeat{Tick: 4242}
	enc := Encode(MessageHeartbeat, msg)
	decoded, err := DecodeByType(enc.Type, enc.Payload)
	require.NoError(t, err)
	got, ok := decoded.(Heartbeat)
	require.True(t, ok)
	assert.Equal(t, msg, got)
}

func TestClientInputRoundTrip(t *testing.T) {
	msg := ClientInput{Tick: 10, Entity: entity.ID(99), InputBits: uint8(entity.InputUp | entity.InputRight)}
	enc := Encode(MessageClientInput, msg)
	decoded, err := DecodeByType(enc.Type, enc.Payload)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded.(ClientInput))
}

func TestEntityInitRoundTripsSerializedComponents(t *testing.T) {
	msg := EntityInit{
		Entity: entity.ID(7),
		Components: []entity.SerializedComponent{
			{Type: entity.ComponentPosition, Payload: []byte{1, 2, 3, 4}},
			{Type: entity.ComponentRotation, Payload: []byte{5}},
		},
	}
	enc := Encode(MessageEntityInit, msg)
	decoded, err := DecodeByType(enc.Type, enc.Payload)
	require.NoError(t, err)
	got := decoded.(EntityInit)
	assert.Equal(t, msg.Entity, got.Entity)
	require.Len(t, got.Components, 2)
	assert.Equal(t, entity.ComponentPosition, got.Components[0].Type)
	assert.Equal(t, "\x01\x02\x03\x04", string(got.Components[0].Payload))
}

func TestMovementUpdateRoundTrip(t *testing.T) {
	msg := MovementUpdate{
		Tick: 55,
		States: []MovementState{
			{Entity: 1, InputBits: 2, PosX: 1.5, PosY: -2.5, PosZ: 0, VelX: 0.1, VelY: 0.2, VelZ: 0, IsFalling: true, Modifiers: 9},
		},
	}
	enc := Encode(MessageMovementUpdate, msg)
	decoded, err := DecodeByType(enc.Type, enc.Payload)
	require.NoError(t, err)
	got := decoded.(MovementUpdate)
	assert.Equal(t, msg.Tick, got.Tick)
	require.Len(t, got.States, 1)
	assert.Equal(t, msg.States[0], got.States[0])
}

func TestTileUpdateRoundTrip(t *testing.T) {
	msg := TileUpdate{X: -3, Y: 12, Z: 0, LayerIndex: 2, Kind: tilemap.LayerWall, SpriteID: 44, WallType: tilemap.WallNorth}
	enc := Encode(MessageTileUpdate, msg)
	decoded, err := DecodeByType(enc.Type, enc.Payload)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded.(TileUpdate))
}

func TestChunkUpdateRequestRoundTrip(t *testing.T) {
	msg := ChunkUpdateRequest{Chunks: []tilemap.ChunkPos{{X: 1, Y: 2, Z: 0}, {X: -1, Y: -2, Z: 0}}}
	enc := Encode(MessageChunkUpdateRequest, msg)
	decoded, err := DecodeByType(enc.Type, enc.Payload)
	require.NoError(t, err)
	got := decoded.(ChunkUpdateRequest)
	require.Len(t, got.Chunks, 2)
	assert.Equal(t, msg.Chunks[1], got.Chunks[1])
}

func TestDecodeByTypeRejectsUnknownType(t *testing.T) {
	_, err := DecodeByType(MessageType(250), nil)
	assert.Error(t, err, "expected error for unknown message type")
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	enc := Encode(MessageHeartbeat, Heartbeat{Tick: 1})
	truncated := enc.Payload[:len(enc.Payload)-1]
	_, err := DecodeByType(enc.Type, truncated)
	assert.Error(t, err, "expected error decoding truncated payload")
}
