package entity

import "github.com/tessera-mmo/core/internal/vec"

// Position — мировые координаты сущности (§3.2).
type Position struct {
	X, Y, Z float64
}

func (p Position) ToVec3Float() vec.Vec3Float { return vec.Vec3Float{X: p.X, Y: p.Y, Z: p.Z} }

// PreviousPosition — снимок Position на начало тика, используется клиентом
// для интерполяции между кадрами (§4.10).
type PreviousPosition struct {
	X, Y, Z float64
}

// InputBit перечисляет логические флаги ввода. Канонический порядок битов
// фиксирован здесь раз и навсегда, как того требует §9 (Open Questions) —
// любое изменение порядка ломает совместимость по сети.
type InputBit uint8

const (
	InputUp InputBit = 1 << iota
	InputDown
	InputLeft
	InputRight
)

// Input — битовый набор логических направлений движения (§3.2). Противоположные
// биты могут быть выставлены одновременно; разрешение конфликта — в движении (§4.7).
type Input struct {
	Bits uint8
}

func (i Input) Has(bit InputBit) bool { return i.Bits&uint8(bit) != 0 }

// Rotation — одно из 8 направлений либо None (§3.2).
type Rotation uint8

const (
	RotationNone Rotation = iota
	RotationNorth
	RotationNorthEast
	RotationEast
	RotationSouthEast
	RotationSouth
	RotationSouthWest
	RotationWest
	RotationNorthWest
)

// Movement — производная скорость и признак падения (§3.2).
type Movement struct {
	VelocityX, VelocityY, VelocityZ float64
	IsFalling                       bool
}

// Collision — мировой AABB, поддерживаемый в синхронизации с Position (§3.2,
// invariant: Collision.worldBounds == modelBounds translated by Position).
type Collision struct {
	ModelBounds vec.Box // границы модели в локальных координатах (до переноса)
	WorldBounds vec.Box
}

// SyncToPosition пересчитывает WorldBounds из ModelBounds и текущей позиции.
func (c *Collision) SyncToPosition(pos Position) {
	c.WorldBounds = c.ModelBounds.Translated(pos.X, pos.Y, pos.Z)
}

// SpriteSetType классифицирует набор анимации (из какой таблицы спрайтов
// браться кадру — персонаж, NPC, объект...). Непрозрачен для ядра за пределами
// репликации.
type SpriteSetType uint8

// AnimationState — текущий кадр анимации сущности (§3.2).
type AnimationState struct {
	SetType    SpriteSetType
	NumericID  uint32
	FrameIndex uint16
}

// ComponentTypeIndex идентифицирует реплицируемый тип компонента в сетевых
// сообщениях EntityInit/ComponentUpdate (§3.4). Значения стабильны на всём
// протяжении жизни протокола — изменение нумерации ломает совместимость.
type ComponentTypeIndex uint8

const (
	ComponentPosition ComponentTypeIndex = iota
	ComponentInput
	ComponentMovement
	ComponentRotation
	ComponentAnimationState
)

// ReplicatedComponentList — множество индексов реплицируемых типов,
// прикреплённых к сущности сейчас (§3.2). Поддерживается автоматически
// хуками Insert/Remove для зарегистрированных типов (см. replication.go);
// системы не должны писать в него напрямую.
type ReplicatedComponentList struct {
	Types []ComponentTypeIndex
}

func (l ReplicatedComponentList) has(t ComponentTypeIndex) bool {
	for _, existing := range l.Types {
		if existing == t {
			return true
		}
	}
	return false
}

func (l ReplicatedComponentList) with(t ComponentTypeIndex) ReplicatedComponentList {
	if l.has(t) {
		return l
	}
	next := make([]ComponentTypeIndex, len(l.Types), len(l.Types)+1)
	copy(next, l.Types)
	next = append(next, t)
	return ReplicatedComponentList{Types: next}
}

func (l ReplicatedComponentList) without(t ComponentTypeIndex) ReplicatedComponentList {
	if !l.has(t) {
		return l
	}
	next := make([]ComponentTypeIndex, 0, len(l.Types))
	for _, existing := range l.Types {
		if existing != t {
			next = append(next, existing)
		}
	}
	return ReplicatedComponentList{Types: next}
}

// NetworkID идентифицирует клиентское соединение, которому принадлежит
// сущность (§3.2 ClientSimData).
type NetworkID uint32

// ClientSimData — серверный компонент, ровно один на клиентскую сущность
// (§3.2 invariant). Хранит сетевой id и текущее членство в AOI.
type ClientSimData struct {
	Network NetworkID
	AOISet  map[ID]struct{}
}

// NewClientSimData создаёт пустой ClientSimData для указанного сетевого id.
func NewClientSimData(network NetworkID) ClientSimData {
	return ClientSimData{Network: network, AOISet: make(map[ID]struct{})}
}

// InputHistoryCapacityDefault — запасной размер кольцевого буфера, если
// конфигурация явно не переопределяет его (см. internal/config).
const InputHistoryCapacityDefault = 128

// InputHistory — кольцевой буфер вводов игрока по тикам, ровно один на
// игровую сущность клиента (§3.2 invariant). Используется только клиентом.
type InputHistory struct {
	capacity uint32
	entries  []Input
	last     uint32 // последний тик, для которого вызывался Record
	filled   bool
}

// NewInputHistory создаёт буфер указанной ёмкости.
func NewInputHistory(capacity int) *InputHistory {
	if capacity <= 0 {
		capacity = InputHistoryCapacityDefault
	}
	return &InputHistory{capacity: uint32(capacity), entries: make([]Input, capacity)}
}

// Capacity возвращает размер кольцевого буфера.
func (h *InputHistory) Capacity() uint32 { return h.capacity }

// Record сохраняет ввод для указанного тика, перезаписывая самый старый слот.
func (h *InputHistory) Record(tick uint32, input Input) {
	h.entries[tick%h.capacity] = input
	if !h.filled || tick > h.last {
		h.last = tick
	}
	h.filled = true
}

// At возвращает ввод, записанный для указанного тика, если он ещё находится
// в окне буфера (tick оказался в последних `capacity` записанных тиках).
func (h *InputHistory) At(tick uint32) (Input, bool) {
	if !h.filled || tick > h.last {
		return Input{}, false
	}
	if h.last-tick >= h.capacity {
		return Input{}, false
	}
	return h.entries[tick%h.capacity], true
}
