package wire

import (
	"fmt"

	"github.com/tessera-mmo/core/internal/apperrors"
	"github.com/tessera-mmo/core/internal/entity"
	"github.com/tessera-mmo/core/internal/tilemap"
)

// MessageType identifies the payload that follows a MessageHeader (§3.4).
// Values below NotSet/ExplicitConfirmation/Heartbeat/ConnectionResponse keep
// a stable low numbering; everything after continues the finer-grained
// split this core makes between EntityUpdate/UpdateChunks and their
// constituent message kinds.
type MessageType uint8

const (
	MessageNotSet MessageType = iota
	MessageExplicitConfirmation
	MessageHeartbeat
	MessageConnectionResponse
	MessageClientInput
	MessageInputChangeRequest
	MessageEntityInit
	MessageEntityDelete
	MessageMovementUpdate
	MessageComponentUpdate
	MessageComponentUpdateRequest
	MessageChunkUpdateRequest
	MessageChunkUpdate
	MessageTileUpdateRequest
	MessageTileUpdate
	MessageInitScriptRequest
	MessageInitScriptResponse
)

func (t MessageType) String() string {
	switch t {
	case MessageNotSet:
		return "NotSet"
	case MessageExplicitConfirmation:
		return "ExplicitConfirmation"
	case MessageHeartbeat:
		return "Heartbeat"
	case MessageConnectionResponse:
		return "ConnectionResponse"
	case MessageClientInput:
		return "ClientInput"
	case MessageInputChangeRequest:
		return "InputChangeRequest"
	case MessageEntityInit:
		return "EntityInit"
	case MessageEntityDelete:
		return "EntityDelete"
	case MessageMovementUpdate:
		return "MovementUpdate"
	case MessageComponentUpdate:
		return "ComponentUpdate"
	case MessageComponentUpdateRequest:
		return "ComponentUpdateRequest"
	case MessageChunkUpdateRequest:
		return "ChunkUpdateRequest"
	case MessageChunkUpdate:
		return "ChunkUpdate"
	case MessageTileUpdateRequest:
		return "TileUpdateRequest"
	case MessageTileUpdate:
		return "TileUpdate"
	case MessageInitScriptRequest:
		return "InitScriptRequest"
	case MessageInitScriptResponse:
		return "InitScriptResponse"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// Heartbeat carries only a tick; sent in either direction to keep a
// connection's implicit-confirmation tracking moving (§3.4, §4.3).
type Heartbeat struct {
	Tick uint32
}

func (m Heartbeat) Encode(w *Writer) { w.WriteUint32(m.Tick) }

func DecodeHeartbeat(r *Reader) (Heartbeat, error) {
	tick, err := r.ReadUint32()
	return Heartbeat{Tick: tick}, err
}

// ClientInput is the server-authoritative record of a client's input bits
// at a tick, used by MovementUpdate-adjacent systems (§3.4).
type ClientInput struct {
	Tick      uint32
	Entity    entity.ID
	InputBits uint8
}

func (m ClientInput) Encode(w *Writer) {
	w.WriteUint32(m.Tick)
	w.WriteUint32(uint32(m.Entity))
	w.WriteUint8(m.InputBits)
}

func DecodeClientInput(r *Reader) (ClientInput, error) {
	var m ClientInput
	tick, err := r.ReadUint32()
	if err != nil {
		return m, err
	}
	id, err := r.ReadUint32()
	if err != nil {
		return m, err
	}
	bits, err := r.ReadUint8()
	if err != nil {
		return m, err
	}
	return ClientInput{Tick: tick, Entity: entity.ID(id), InputBits: bits}, nil
}

// InputChangeRequest is the client->server request to change input at a
// given tick; the simulation validates its tick window before applying it
// (§4.7 step 5, §4.8).
type InputChangeRequest struct {
	Tick      uint32
	Entity    entity.ID
	InputBits uint8
}

func (m InputChangeRequest) Encode(w *Writer) {
	w.WriteUint32(m.Tick)
	w.WriteUint32(uint32(m.Entity))
	w.WriteUint8(m.InputBits)
}

func DecodeInputChangeRequest(r *Reader) (InputChangeRequest, error) {
	ci, err := DecodeClientInput(r)
	return InputChangeRequest(ci), err
}

// ConnectionResponse tells a newly accepted client which entity it controls
// and the current authoritative state to bootstrap prediction from (§3.4).
type ConnectionResponse struct {
	AssignedEntity entity.ID
	CurrentTick    uint32
	SpawnX         float64
	SpawnY         float64
	SpawnZ         float64
	MapExtent      tilemap.TileExtent
}

func (m ConnectionResponse) Encode(w *Writer) {
	w.WriteUint32(uint32(m.AssignedEntity))
	w.WriteUint32(m.CurrentTick)
	w.WriteFloat64(m.SpawnX)
	w.WriteFloat64(m.SpawnY)
	w.WriteFloat64(m.SpawnZ)
	w.WriteInt32(m.MapExtent.OriginX)
	w.WriteInt32(m.MapExtent.OriginY)
	w.WriteInt32(m.MapExtent.OriginZ)
	w.WriteInt32(m.MapExtent.LenX)
	w.WriteInt32(m.MapExtent.LenY)
	w.WriteInt32(m.MapExtent.LenZ)
}

func DecodeConnectionResponse(r *Reader) (ConnectionResponse, error) {
	var m ConnectionResponse
	var err error
	var id uint32
	if id, err = r.ReadUint32(); err != nil {
		return m, err
	}
	m.AssignedEntity = entity.ID(id)
	if m.CurrentTick, err = r.ReadUint32(); err != nil {
		return m, err
	}
	if m.SpawnX, err = r.ReadFloat64(); err != nil {
		return m, err
	}
	if m.SpawnY, err = r.ReadFloat64(); err != nil {
		return m, err
	}
	if m.SpawnZ, err = r.ReadFloat64(); err != nil {
		return m, err
	}
	if m.MapExtent.OriginX, err = r.ReadInt32(); err != nil {
		return m, err
	}
	if m.MapExtent.OriginY, err = r.ReadInt32(); err != nil {
		return m, err
	}
	if m.MapExtent.OriginZ, err = r.ReadInt32(); err != nil {
		return m, err
	}
	if m.MapExtent.LenX, err = r.ReadInt32(); err != nil {
		return m, err
	}
	if m.MapExtent.LenY, err = r.ReadInt32(); err != nil {
		return m, err
	}
	if m.MapExtent.LenZ, err = r.ReadInt32(); err != nil {
		return m, err
	}
	return m, nil
}

func encodeSerializedComponents(w *Writer, components []entity.SerializedComponent) {
	w.WriteUint16(uint16(len(components)))
	for _, c := range components {
		w.WriteUint8(uint8(c.Type))
		w.WriteUint16(uint16(len(c.Payload)))
		w.WriteBytes(c.Payload)
	}
}

func decodeSerializedComponents(r *Reader) ([]entity.SerializedComponent, error) {
	count, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	components := make([]entity.SerializedComponent, 0, count)
	for i := uint16(0); i < count; i++ {
		typeIndex, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadUint16()
		if err != nil {
			return nil, err
		}
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}
		// копируем — Reader.ReadBytes возвращает срез над общим буфером.
		owned := make([]byte, len(payload))
		copy(owned, payload)
		components = append(components, entity.SerializedComponent{
			Type:    entity.ComponentTypeIndex(typeIndex),
			Payload: owned,
		})
	}
	return components, nil
}

// EntityInit tells a client about an entity newly within its AOI, carrying
// every currently-replicated component so the client can construct it
// without a round trip (§3.4, §4.2).
type EntityInit struct {
	Entity     entity.ID
	Components []entity.SerializedComponent
}

func (m EntityInit) Encode(w *Writer) {
	w.WriteUint32(uint32(m.Entity))
	encodeSerializedComponents(w, m.Components)
}

func DecodeEntityInit(r *Reader) (EntityInit, error) {
	var m EntityInit
	id, err := r.ReadUint32()
	if err != nil {
		return m, err
	}
	m.Entity = entity.ID(id)
	m.Components, err = decodeSerializedComponents(r)
	return m, err
}

// EntityDelete tells a client an entity left its AOI or was destroyed (§3.4).
type EntityDelete struct {
	Entity entity.ID
}

func (m EntityDelete) Encode(w *Writer) { w.WriteUint32(uint32(m.Entity)) }

func DecodeEntityDelete(r *Reader) (EntityDelete, error) {
	id, err := r.ReadUint32()
	return EntityDelete{Entity: entity.ID(id)}, err
}

// MovementState is one entity's authoritative kinematic snapshot within a
// MovementUpdate (§3.4).
type MovementState struct {
	Entity    entity.ID
	InputBits uint8
	PosX      float64
	PosY      float64
	PosZ      float64
	VelX      float64
	VelY      float64
	VelZ      float64
	IsFalling bool
	// Modifiers is an opaque bitfield reserved for project-specific movement
	// modifiers (speed multipliers, status effects); the core never reads it.
	Modifiers uint8
}

// MovementUpdate carries every client-relevant entity's movement state for a
// tick — the per-tick bulk path used instead of individual ComponentUpdates
// for Position/Movement/Input (§3.4, §4.7 step 9).
type MovementUpdate struct {
	Tick   uint32
	States []MovementState
}

func (m MovementUpdate) Encode(w *Writer) {
	w.WriteUint32(m.Tick)
	w.WriteUint16(uint16(len(m.States)))
	for _, s := range m.States {
		w.WriteUint32(uint32(s.Entity))
		w.WriteUint8(s.InputBits)
		w.WriteFloat64(s.PosX)
		w.WriteFloat64(s.PosY)
		w.WriteFloat64(s.PosZ)
		w.WriteFloat64(s.VelX)
		w.WriteFloat64(s.VelY)
		w.WriteFloat64(s.VelZ)
		w.WriteBool(s.IsFalling)
		w.WriteUint8(s.Modifiers)
	}
}

func DecodeMovementUpdate(r *Reader) (MovementUpdate, error) {
	var m MovementUpdate
	var err error
	if m.Tick, err = r.ReadUint32(); err != nil {
		return m, err
	}
	count, err := r.ReadUint16()
	if err != nil {
		return m, err
	}
	m.States = make([]MovementState, count)
	for i := range m.States {
		s := &m.States[i]
		var id uint32
		if id, err = r.ReadUint32(); err != nil {
			return m, err
		}
		s.Entity = entity.ID(id)
		if s.InputBits, err = r.ReadUint8(); err != nil {
			return m, err
		}
		if s.PosX, err = r.ReadFloat64(); err != nil {
			return m, err
		}
		if s.PosY, err = r.ReadFloat64(); err != nil {
			return m, err
		}
		if s.PosZ, err = r.ReadFloat64(); err != nil {
			return m, err
		}
		if s.VelX, err = r.ReadFloat64(); err != nil {
			return m, err
		}
		if s.VelY, err = r.ReadFloat64(); err != nil {
			return m, err
		}
		if s.VelZ, err = r.ReadFloat64(); err != nil {
			return m, err
		}
		if s.IsFalling, err = r.ReadBool(); err != nil {
			return m, err
		}
		if s.Modifiers, err = r.ReadUint8(); err != nil {
			return m, err
		}
	}
	return m, nil
}

// ComponentUpdate carries a sparse set of component changes for one entity
// outside the per-tick MovementUpdate path — used for lower-frequency
// replicated components such as AnimationState (§3.4).
type ComponentUpdate struct {
	Tick       uint32
	Entity     entity.ID
	Components []entity.SerializedComponent
}

func (m ComponentUpdate) Encode(w *Writer) {
	w.WriteUint32(m.Tick)
	w.WriteUint32(uint32(m.Entity))
	encodeSerializedComponents(w, m.Components)
}

func DecodeComponentUpdate(r *Reader) (ComponentUpdate, error) {
	var m ComponentUpdate
	var err error
	if m.Tick, err = r.ReadUint32(); err != nil {
		return m, err
	}
	var id uint32
	if id, err = r.ReadUint32(); err != nil {
		return m, err
	}
	m.Entity = entity.ID(id)
	m.Components, err = decodeSerializedComponents(r)
	return m, err
}

// ComponentUpdateRequest is the client->server analogue, used for
// client-authoritative component changes the server must validate before
// accepting (§3.4).
type ComponentUpdateRequest struct {
	Entity     entity.ID
	Components []entity.SerializedComponent
}

func (m ComponentUpdateRequest) Encode(w *Writer) {
	w.WriteUint32(uint32(m.Entity))
	encodeSerializedComponents(w, m.Components)
}

func DecodeComponentUpdateRequest(r *Reader) (ComponentUpdateRequest, error) {
	var m ComponentUpdateRequest
	id, err := r.ReadUint32()
	if err != nil {
		return m, err
	}
	m.Entity = entity.ID(id)
	m.Components, err = decodeSerializedComponents(r)
	return m, err
}

// ChunkUpdateRequest asks the server to stream the named chunks, typically
// issued by the client as it crosses a chunk boundary (§3.4, §4.9).
type ChunkUpdateRequest struct {
	Chunks []tilemap.ChunkPos
}

func (m ChunkUpdateRequest) Encode(w *Writer) {
	w.WriteUint16(uint16(len(m.Chunks)))
	for _, c := range m.Chunks {
		w.WriteInt32(c.X)
		w.WriteInt32(c.Y)
		w.WriteInt32(c.Z)
	}
}

func DecodeChunkUpdateRequest(r *Reader) (ChunkUpdateRequest, error) {
	var m ChunkUpdateRequest
	count, err := r.ReadUint16()
	if err != nil {
		return m, err
	}
	m.Chunks = make([]tilemap.ChunkPos, count)
	for i := range m.Chunks {
		x, err := r.ReadInt32()
		if err != nil {
			return m, err
		}
		y, err := r.ReadInt32()
		if err != nil {
			return m, err
		}
		z, err := r.ReadInt32()
		if err != nil {
			return m, err
		}
		m.Chunks[i] = tilemap.ChunkPos{X: x, Y: y, Z: z}
	}
	return m, nil
}

// ChunkUpdate carries full chunk snapshots in the same per-chunk record
// format as the persisted map (§3.4, §6.1 — EncodeChunkSnapshot).
type ChunkUpdate struct {
	Snapshots [][]byte
}

func (m ChunkUpdate) Encode(w *Writer) {
	w.WriteUint16(uint16(len(m.Snapshots)))
	for _, s := range m.Snapshots {
		w.WriteUint32(uint32(len(s)))
		w.WriteBytes(s)
	}
}

func DecodeChunkUpdate(r *Reader) (ChunkUpdate, error) {
	var m ChunkUpdate
	count, err := r.ReadUint16()
	if err != nil {
		return m, err
	}
	m.Snapshots = make([][]byte, count)
	for i := range m.Snapshots {
		size, err := r.ReadUint32()
		if err != nil {
			return m, err
		}
		raw, err := r.ReadBytes(int(size))
		if err != nil {
			return m, err
		}
		owned := make([]byte, len(raw))
		copy(owned, raw)
		m.Snapshots[i] = owned
	}
	return m, nil
}

// TileUpdateRequest asks the server to change a single tile layer; the
// server validates it and, if accepted, calls TileMap.SetLayer and
// rebroadcasts a TileUpdate (§3.4, §4.1).
type TileUpdateRequest struct {
	X, Y, Z    int32
	LayerIndex int32
	Kind       tilemap.LayerKind
	SpriteID   tilemap.SpriteID
	WallType   tilemap.WallType
}

func (m TileUpdateRequest) Encode(w *Writer) {
	w.WriteInt32(m.X)
	w.WriteInt32(m.Y)
	w.WriteInt32(m.Z)
	w.WriteInt32(m.LayerIndex)
	w.WriteUint8(uint8(m.Kind))
	w.WriteInt32(int32(m.SpriteID))
	w.WriteUint8(uint8(m.WallType))
}

func DecodeTileUpdateRequest(r *Reader) (TileUpdateRequest, error) {
	m, err := decodeTileUpdateLike(r)
	return TileUpdateRequest(m), err
}

// TileUpdate is the server's broadcast of the same shape, sent to every
// client with the tile in their AOI (§3.4, §4.9).
type TileUpdate struct {
	X, Y, Z    int32
	LayerIndex int32
	Kind       tilemap.LayerKind
	SpriteID   tilemap.SpriteID
	WallType   tilemap.WallType
}

func (m TileUpdate) Encode(w *Writer) {
	TileUpdateRequest(m).Encode(w)
}

func DecodeTileUpdate(r *Reader) (TileUpdate, error) {
	m, err := decodeTileUpdateLike(r)
	return TileUpdate(m), err
}

func decodeTileUpdateLike(r *Reader) (TileUpdateRequest, error) {
	var m TileUpdateRequest
	var err error
	if m.X, err = r.ReadInt32(); err != nil {
		return m, err
	}
	if m.Y, err = r.ReadInt32(); err != nil {
		return m, err
	}
	if m.Z, err = r.ReadInt32(); err != nil {
		return m, err
	}
	if m.LayerIndex, err = r.ReadInt32(); err != nil {
		return m, err
	}
	kind, err := r.ReadUint8()
	if err != nil {
		return m, err
	}
	m.Kind = tilemap.LayerKind(kind)
	spriteID, err := r.ReadInt32()
	if err != nil {
		return m, err
	}
	m.SpriteID = tilemap.SpriteID(spriteID)
	wallType, err := r.ReadUint8()
	if err != nil {
		return m, err
	}
	m.WallType = tilemap.WallType(wallType)
	return m, nil
}

// ExplicitConfirmation tells a client "I processed tick T with no updates
// for you", so it can advance its last-authoritative-tick tracking even
// during ticks with nothing to send (§3.4, §4.3).
type ExplicitConfirmation struct {
	Tick uint32
}

func (m ExplicitConfirmation) Encode(w *Writer) { w.WriteUint32(m.Tick) }

func DecodeExplicitConfirmation(r *Reader) (ExplicitConfirmation, error) {
	tick, err := r.ReadUint32()
	return ExplicitConfirmation{Tick: tick}, err
}

// InitScriptRequest asks for an opaque, project-defined init script by
// name; the core never interprets script contents (§1 Non-goals, §3.4).
type InitScriptRequest struct {
	Name string
}

func (m InitScriptRequest) Encode(w *Writer) { w.WriteString(m.Name) }

func DecodeInitScriptRequest(r *Reader) (InitScriptRequest, error) {
	name, err := r.ReadString()
	return InitScriptRequest{Name: name}, err
}

// InitScriptResponse carries the requested script's opaque text back.
type InitScriptResponse struct {
	Name   string
	Script string
}

func (m InitScriptResponse) Encode(w *Writer) {
	w.WriteString(m.Name)
	w.WriteString(m.Script)
}

func DecodeInitScriptResponse(r *Reader) (InitScriptResponse, error) {
	var m InitScriptResponse
	var err error
	if m.Name, err = r.ReadString(); err != nil {
		return m, err
	}
	m.Script, err = r.ReadString()
	return m, err
}

// EncodedMessage pairs a message type tag with its already-serialized
// payload, ready to be framed into a batch (§4.3).
type EncodedMessage struct {
	Type    MessageType
	Payload []byte
}

// Encode serializes any message value into an EncodedMessage tagged with
// msgType. It does not check that msgType matches the payload's type —
// callers only ever pass the typed message constants above.
func Encode(msgType MessageType, payload interface {
	Encode(w *Writer)
}) EncodedMessage {
	w := NewWriter(64)
	payload.Encode(w)
	return EncodedMessage{Type: msgType, Payload: w.Bytes()}
}

// DecodeByType dispatches a raw payload to the decoder matching msgType.
// Returns a protocol error for an unrecognized type (§7 — unknown message
// type is a protocol error, not a panic).
func DecodeByType(msgType MessageType, payload []byte) (interface{}, error) {
	r := NewReader(payload)
	switch msgType {
	case MessageHeartbeat:
		return DecodeHeartbeat(r)
	case MessageClientInput:
		return DecodeClientInput(r)
	case MessageInputChangeRequest:
		return DecodeInputChangeRequest(r)
	case MessageConnectionResponse:
		return DecodeConnectionResponse(r)
	case MessageEntityInit:
		return DecodeEntityInit(r)
	case MessageEntityDelete:
		return DecodeEntityDelete(r)
	case MessageMovementUpdate:
		return DecodeMovementUpdate(r)
	case MessageComponentUpdate:
		return DecodeComponentUpdate(r)
	case MessageComponentUpdateRequest:
		return DecodeComponentUpdateRequest(r)
	case MessageChunkUpdateRequest:
		return DecodeChunkUpdateRequest(r)
	case MessageChunkUpdate:
		return DecodeChunkUpdate(r)
	case MessageTileUpdateRequest:
		return DecodeTileUpdateRequest(r)
	case MessageTileUpdate:
		return DecodeTileUpdate(r)
	case MessageExplicitConfirmation:
		return DecodeExplicitConfirmation(r)
	case MessageInitScriptRequest:
		return DecodeInitScriptRequest(r)
	case MessageInitScriptResponse:
		return DecodeInitScriptResponse(r)
	default:
		return nil, apperrors.Protocol("wire.DecodeByType", fmt.Errorf("unknown message type %d", uint8(msgType)))
	}
}
