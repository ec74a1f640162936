package entity

import "reflect"

// replicatedTypes maps a component's reflect.Type to its wire-level
// ComponentTypeIndex. Registration happens once at startup (typically from
// an init() in the package that defines the component) via
// RegisterReplicated, mirroring the original engine's on-construct/
// on-destroy hooks that kept ReplicatedComponentList in sync without
// reflection on the hot path (SPEC_FULL.md §3 supplemental).
var replicatedTypes = make(map[reflect.Type]ComponentTypeIndex)

// RegisterReplicated marks component type T as replicated under the given
// wire index. After registration, every Insert/Replace/Remove of T updates
// the entity's ReplicatedComponentList automatically (§3.2 invariant).
func RegisterReplicated[T any](typeIndex ComponentTypeIndex) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	replicatedTypes[t] = typeIndex
}

func init() {
	RegisterReplicated[Position](ComponentPosition)
	RegisterReplicated[Input](ComponentInput)
	RegisterReplicated[Movement](ComponentMovement)
	RegisterReplicated[Rotation](ComponentRotation)
	RegisterReplicated[AnimationState](ComponentAnimationState)
}

// runReplicationHook updates id's ReplicatedComponentList if T is a
// registered replicated type. present=true for insert/replace, false for
// remove. It must not itself be registered as replicated (it isn't — there
// is no RegisterReplicated[ReplicatedComponentList] call), or it would
// recurse.
func runReplicationHook[T any](s *Store, id ID, present bool) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	typeIndex, ok := replicatedTypes[t]
	if !ok {
		return
	}

	list, _ := Get[ReplicatedComponentList](s, id)
	var next ReplicatedComponentList
	if present {
		next = list.with(typeIndex)
	} else {
		next = list.without(typeIndex)
	}

	col := columnFor[ReplicatedComponentList](s)
	col.data[id] = next
}

// SerializedComponent carries a single replicated component's wire form,
// used to build EntityInit/ComponentUpdate payloads (§3.4).
type SerializedComponent struct {
	Type    ComponentTypeIndex
	Payload []byte
}

// ComponentEncoder serializes a single component type to its wire form.
// Implementations live in internal/wire, which knows the byte layout; entity
// only needs the interface to stay decoupled from codec details.
type ComponentEncoder interface {
	Encode(s *Store, id ID, typeIndex ComponentTypeIndex) (SerializedComponent, bool)
}
