package wire

import (
	"fmt"

	"github.com/tessera-mmo/core/internal/apperrors"
	"github.com/tessera-mmo/core/internal/entity"
)

// EncodeComponent serializes one currently-attached component to its wire
// form (§3.4). Returns false if the entity doesn't carry a component of that
// type — callers iterating a ReplicatedComponentList should never see that,
// but directly-requested indices (e.g. from a client) can race a concurrent
// removal within the same tick.
func EncodeComponent(s *entity.Store, id entity.ID, typeIndex entity.ComponentTypeIndex) (entity.SerializedComponent, bool) {
	w := NewWriter(24)
	switch typeIndex {
	case entity.ComponentPosition:
		pos, ok := entity.Get[entity.Position](s, id)
		if !ok {
			return entity.SerializedComponent{}, false
		}
		w.WriteFloat64(pos.X)
		w.WriteFloat64(pos.Y)
		w.WriteFloat64(pos.Z)
	case entity.ComponentInput:
		in, ok := entity.Get[entity.Input](s, id)
		if !ok {
			return entity.SerializedComponent{}, false
		}
		w.WriteUint8(in.Bits)
	case entity.ComponentMovement:
		m, ok := entity.Get[entity.Movement](s, id)
		if !ok {
			return entity.SerializedComponent{}, false
		}
		w.WriteFloat64(m.VelocityX)
		w.WriteFloat64(m.VelocityY)
		w.WriteFloat64(m.VelocityZ)
		w.WriteBool(m.IsFalling)
	case entity.ComponentRotation:
		rot, ok := entity.Get[entity.Rotation](s, id)
		if !ok {
			return entity.SerializedComponent{}, false
		}
		w.WriteUint8(uint8(rot))
	case entity.ComponentAnimationState:
		anim, ok := entity.Get[entity.AnimationState](s, id)
		if !ok {
			return entity.SerializedComponent{}, false
		}
		w.WriteUint8(uint8(anim.SetType))
		w.WriteUint32(anim.NumericID)
		w.WriteUint16(anim.FrameIndex)
	default:
		return entity.SerializedComponent{}, false
	}
	return entity.SerializedComponent{Type: typeIndex, Payload: w.Bytes()}, true
}

// EncodeAllComponents serializes every component currently listed in id's
// ReplicatedComponentList — used to build EntityInit so a client can
// construct a newly-visible entity without a round trip (§3.4, §4.2).
func EncodeAllComponents(s *entity.Store, id entity.ID) []entity.SerializedComponent {
	list, _ := entity.Get[entity.ReplicatedComponentList](s, id)
	out := make([]entity.SerializedComponent, 0, len(list.Types))
	for _, t := range list.Types {
		if c, ok := EncodeComponent(s, id, t); ok {
			out = append(out, c)
		}
	}
	return out
}

// ApplyComponent decodes a serialized component and replaces it on id,
// going through entity.Replace so the change feeds the matching observer
// (§3.1 — replace is the only path that marks an entity observed). Used by
// the simulation to apply client ComponentUpdateRequest payloads.
func ApplyComponent(s *entity.Store, id entity.ID, c entity.SerializedComponent) error {
	r := NewReader(c.Payload)
	switch c.Type {
	case entity.ComponentPosition:
		x, err := r.ReadFloat64()
		if err != nil {
			return apperrors.Serialization("wire.ApplyComponent:Position", err)
		}
		y, err := r.ReadFloat64()
		if err != nil {
			return apperrors.Serialization("wire.ApplyComponent:Position", err)
		}
		z, err := r.ReadFloat64()
		if err != nil {
			return apperrors.Serialization("wire.ApplyComponent:Position", err)
		}
		entity.Replace(s, id, entity.Position{X: x, Y: y, Z: z})
	case entity.ComponentInput:
		bits, err := r.ReadUint8()
		if err != nil {
			return apperrors.Serialization("wire.ApplyComponent:Input", err)
		}
		entity.Replace(s, id, entity.Input{Bits: bits})
	case entity.ComponentMovement:
		vx, err := r.ReadFloat64()
		if err != nil {
			return apperrors.Serialization("wire.ApplyComponent:Movement", err)
		}
		vy, err := r.ReadFloat64()
		if err != nil {
			return apperrors.Serialization("wire.ApplyComponent:Movement", err)
		}
		vz, err := r.ReadFloat64()
		if err != nil {
			return apperrors.Serialization("wire.ApplyComponent:Movement", err)
		}
		falling, err := r.ReadBool()
		if err != nil {
			return apperrors.Serialization("wire.ApplyComponent:Movement", err)
		}
		entity.Replace(s, id, entity.Movement{VelocityX: vx, VelocityY: vy, VelocityZ: vz, IsFalling: falling})
	case entity.ComponentRotation:
		rot, err := r.ReadUint8()
		if err != nil {
			return apperrors.Serialization("wire.ApplyComponent:Rotation", err)
		}
		entity.Replace(s, id, entity.Rotation(rot))
	case entity.ComponentAnimationState:
		setType, err := r.ReadUint8()
		if err != nil {
			return apperrors.Serialization("wire.ApplyComponent:AnimationState", err)
		}
		numericID, err := r.ReadUint32()
		if err != nil {
			return apperrors.Serialization("wire.ApplyComponent:AnimationState", err)
		}
		frameIndex, err := r.ReadUint16()
		if err != nil {
			return apperrors.Serialization("wire.ApplyComponent:AnimationState", err)
		}
		entity.Replace(s, id, entity.AnimationState{SetType: entity.SpriteSetType(setType), NumericID: numericID, FrameIndex: frameIndex})
	default:
		return apperrors.Serialization("wire.ApplyComponent", fmt.Errorf("unknown component type %d", uint8(c.Type)))
	}
	return nil
}
