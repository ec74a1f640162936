// Package entity implements the core's entity/component data model (§3.1,
// §3.2, §4.2): a generational id pool, a sparse typed component store with
// replace-path observers, and the core component set the simulation and
// predictor understand.
package entity

import "sync"

// ID is the opaque 32-bit entity identifier used on the wire (§3.1). The low
// 24 bits are a slot index into the pool; the high 8 bits are a generation
// counter that increments every time the slot is recycled, so a stale ID
// held by a disconnected client or a delayed message can never alias a
// different, freshly-spawned entity.
type ID uint32

const (
	indexBits = 24
	indexMask = 1<<indexBits - 1
)

func newID(index uint32, generation uint8) ID {
	return ID(uint32(generation)<<indexBits | (index & indexMask))
}

func (id ID) index() uint32      { return uint32(id) & indexMask }
func (id ID) generation() uint8  { return uint8(uint32(id) >> indexBits) }

// Invalid is the zero value, never handed out by Pool.Allocate.
const Invalid ID = 0

// Pool allocates and recycles entity IDs. Allocation/Release are only ever
// called from the simulation thread (§4.2 — the store is single-threaded
// with respect to structural mutation), so the pool needs no locking beyond
// what protects concurrent reads from the send thread; we keep a mutex
// anyway so misuse fails safely rather than racing silently.
type Pool struct {
	mu          sync.Mutex
	generations []uint8
	free        []uint32
}

// NewPool создаёt пустой пул идентификаторов.
func NewPool() *Pool {
	// Индекс 0 зарезервирован под Invalid.
	return &Pool{generations: []uint8{0}}
}

// Allocate выделяет новый ID, переиспользуя освобождённый слот при наличии.
func (p *Pool) Allocate() ID {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		index := p.free[n-1]
		p.free = p.free[:n-1]
		return newID(index, p.generations[index])
	}

	index := uint32(len(p.generations))
	p.generations = append(p.generations, 0)
	return newID(index, 0)
}

// Release возвращает слот в пул и увеличивает его поколение, инвалидируя
// все ранее выданные ID для этого слота.
func (p *Pool) Release(id ID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	index := id.index()
	if int(index) >= len(p.generations) {
		return
	}
	p.generations[index]++
	p.free = append(p.free, index)
}

// IsLive сообщает, совпадает ли поколение ID с текущим поколением слота.
func (p *Pool) IsLive(id ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	index := id.index()
	if int(index) >= len(p.generations) || index == 0 {
		return false
	}
	return p.generations[index] == id.generation()
}
