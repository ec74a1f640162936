// Package simulation implements the authoritative per-tick pipeline (§4.7):
// connection events, tile/input application, movement+collision, AOI
// diffing, and the replication messages that fall out of each step.
//
// The per-tick phase ordering (apply input, move, broadcast) is generalized
// from a flat per-entity loop into the explicit 12-step pipeline
// SPEC_FULL.md §4.7 specifies, built on internal/entity's View4/Observer
// primitives for the movement and component-sync steps. Lua-driven NCE
// spawns are out of scope (§1 "OUT OF SCOPE" excludes the scripting
// bindings), so step 2 only
// applies component-update-request-driven entity lifecycle; since there is
// no dedicated SpriteChange wire message (only the generic
// ComponentUpdateRequest), steps 2 and 4 share one code path,
// stepComponentRequests, instead of separate script-lifecycle and
// sprite-only handlers.
package simulation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tessera-mmo/core/internal/cache"
	"github.com/tessera-mmo/core/internal/config"
	"github.com/tessera-mmo/core/internal/entity"
	"github.com/tessera-mmo/core/internal/eventbus"
	"github.com/tessera-mmo/core/internal/kinematics"
	"github.com/tessera-mmo/core/internal/logging"
	"github.com/tessera-mmo/core/internal/netruntime"
	"github.com/tessera-mmo/core/internal/observability"
	"github.com/tessera-mmo/core/internal/physics"
	"github.com/tessera-mmo/core/internal/tickadjust"
	"github.com/tessera-mmo/core/internal/tilemap"
	"github.com/tessera-mmo/core/internal/vec"
	"github.com/tessera-mmo/core/internal/wire"
)

// MovementSpeed re-exports kinematics.MovementSpeed for callers that only
// import this package.
const MovementSpeed = kinematics.MovementSpeed

// EntitySpawner assigns a starting position to a newly connected client
// (§4.7 step 1). Implemented by SpawnAllocator.
type EntitySpawner interface {
	Next() entity.Position
}

// Config bundles the simulation's tunables, pulled from config.Config once
// at construction so RunTick never touches the YAML-backed accessors on the
// hot path.
type Config struct {
	Timestep              time.Duration
	AOIRadius              float64
	MapSavePeriod          time.Duration
	MapPath                string
	MinAcceptableTickDiff  int64
	MaxAcceptableTickDiff  int64
}

// FromConfig derives a simulation Config from the loaded configuration.
func FromConfig(cfg *config.Config) Config {
	lower, upper := cfg.TickAdjust.AcceptableBounds()
	return Config{
		Timestep:              cfg.Simulation.TickTimestep(),
		AOIRadius:              cfg.Simulation.AOIRadiusOrDefault(),
		MapSavePeriod:          cfg.Simulation.MapSavePeriod(),
		MapPath:                cfg.Map.DataPathOrDefault(),
		MinAcceptableTickDiff:  lower,
		MaxAcceptableTickDiff:  upper,
	}
}

// Sim owns the entity store, tile map and network runtime, and runs the
// §4.7 pipeline once per tick.
type Sim struct {
	cfg     Config
	store   *entity.Store
	tiles   *tilemap.TileMap
	runtime *netruntime.Runtime
	codec   *wire.Codec
	spawner EntitySpawner

	inputObserver *entity.Observer[entity.Input]
	movementObs   *entity.Observer[entity.Movement]
	rotationObs   *entity.Observer[entity.Rotation]
	animObs       *entity.Observer[entity.AnimationState]

	chunkCache cache.CacheRepo
	eventBus   eventbus.EventBus
	metrics    *observability.Metrics

	lastSave time.Time
}

// New wires together a Sim from its already-constructed collaborators.
func New(cfg Config, store *entity.Store, tiles *tilemap.TileMap, rt *netruntime.Runtime, codec *wire.Codec, spawner EntitySpawner) *Sim {
	return &Sim{
		cfg:           cfg,
		store:         store,
		tiles:         tiles,
		runtime:       rt,
		codec:         codec,
		spawner:       spawner,
		inputObserver: entity.NewObserver[entity.Input](store),
		movementObs:   entity.NewObserver[entity.Movement](store),
		rotationObs:   entity.NewObserver[entity.Rotation](store),
		animObs:       entity.NewObserver[entity.AnimationState](store),
		lastSave:      time.Now(),
	}
}

// WithChunkCache installs a hot cache in front of chunk snapshot encoding
// (§4.7 step 10): a popular chunk's encoded bytes are reused across
// ChunkUpdateRequests instead of re-running EncodeChunkSnapshot every time,
// and the cache's write-behind flush persists it to cold storage between
// full-map saves (stepMapSave). Passing nil (the zero value) disables
// caching entirely — stepChunkStreaming always falls back to encoding
// directly from the tile map.
func (s *Sim) WithChunkCache(c cache.CacheRepo) *Sim {
	s.chunkCache = c
	return s
}

// WithEventBus installs an event bus that stepConnectionEvents publishes
// connect/disconnect envelopes to, for any out-of-process consumer
// (internal/observability's metrics, internal/regional's cross-shard hook)
// to subscribe to without the simulation package knowing about either.
// Passing nil (the zero value) disables publishing.
func (s *Sim) WithEventBus(bus eventbus.EventBus) *Sim {
	s.eventBus = bus
	return s
}

// WithMetrics installs the Prometheus collectors RunTick reports tick
// duration, AOI set sizes, and tick-adjustment events to. Passing nil (the
// zero value) disables all reporting.
func (s *Sim) WithMetrics(m *observability.Metrics) *Sim {
	s.metrics = m
	return s
}

// publishEvent emits an envelope of eventType if an event bus is installed;
// a publish failure (e.g. a canceled subscriber context) is logged and
// otherwise ignored — connection/lifecycle events are observability, not
// part of the authoritative simulation state.
func (s *Sim) publishEvent(eventType string, payload []byte) {
	if s.eventBus == nil {
		return
	}
	env := &eventbus.Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Source:    "simulation",
		EventType: eventType,
		Version:   1,
		Payload:   payload,
	}
	if err := s.eventBus.Publish(context.Background(), env); err != nil {
		logging.Warn("simulation: failed to publish %s event: %v", eventType, err)
	}
}

func chunkCacheKey(pos tilemap.ChunkPos) string {
	return fmt.Sprintf("chunk:%d:%d:%d", pos.X, pos.Y, pos.Z)
}

// chunkStreamRadius converts AOIRadius (world units) into a chunk-grid
// radius, with one chunk of slack so a client doesn't lose the chunk it's
// straddling the edge of.
func (s *Sim) chunkStreamRadius() float64 {
	return s.cfg.AOIRadius/float64(tilemap.ChunkWidth) + 1
}

// clientChunkPos returns the chunk-grid XY position of a client's attached
// entity, or false if it has none (not yet spawned, or disconnected).
func (s *Sim) clientChunkPos(c *netruntime.ClientHandle) (vec.Vec2, bool) {
	if c.Entity == entity.Invalid {
		return vec.Vec2{}, false
	}
	pos, ok := entity.Get[entity.Position](s.store, c.Entity)
	if !ok {
		return vec.Vec2{}, false
	}
	tile := tilemap.TilePos{
		X: int32(math.Floor(pos.X)),
		Y: int32(math.Floor(pos.Y)),
		Z: int32(math.Floor(pos.Z)),
	}
	cp := tile.ChunkPos()
	return vec.Vec2{X: int(cp.X), Y: int(cp.Y)}, true
}

// withinChunkStreamRadius reports whether requested is close enough to
// clientChunk to stream. A Chebyshev prefilter rejects anything obviously
// out of range before the Euclidean DistanceTo check, which is what
// actually shapes the streamed area into a circle rather than a square.
func withinChunkStreamRadius(clientChunk, requested vec.Vec2, radius float64) bool {
	if float64(clientChunk.ChebyshevDistance(requested)) > radius+1 {
		return false
	}
	from := vec.Vec2Float{X: float64(clientChunk.X), Y: float64(clientChunk.Y)}
	to := vec.Vec2Float{X: float64(requested.X), Y: float64(requested.Y)}
	return from.DistanceTo(to) <= radius
}

type tileRequest struct {
	client *netruntime.ClientHandle
	req    wire.TileUpdateRequest
}

type chunkRequest struct {
	client *netruntime.ClientHandle
	req    wire.ChunkUpdateRequest
}

type inputRequest struct {
	client *netruntime.ClientHandle
	req    wire.InputChangeRequest
}

type pendingMessages struct {
	tiles      []tileRequest
	chunks     []chunkRequest
	inputs     []inputRequest
	components []wire.ComponentUpdateRequest
}

// RunTick executes one authoritative tick (§4.7 steps 1-12).
func (s *Sim) RunTick(tick uint32) {
	start := time.Now()
	if s.metrics != nil {
		defer func() { s.metrics.ObserveTick(time.Since(start)) }()
	}

	clients := s.runtime.Clients()
	pending := s.drainInbound(tick)

	s.stepConnectionEvents(tick, clients)
	s.stepComponentRequests(pending.components)
	s.stepTileUpdates(pending.tiles)
	s.stepInput(tick, pending.inputs)
	s.stepMovement()
	currentAOI := s.stepAOI(clients)
	s.stepMovementSync(tick, clients, currentAOI)
	s.stepComponentSync(tick, clients, currentAOI)
	s.stepChunkStreaming(pending.chunks, clients)
	s.stepMapSave()

	adjustments := s.stepTickAdjust(clients)
	s.runtime.FlushAll(adjustments)
}

// drainInbound is the entry point for every message queued by the network
// runtime since the last tick (§4.5, §4.7 steps 1/3/5). Messages carrying a
// tick field feed the per-client tick-adjustment controller (§4.8) as they
// are bucketed; a client whose single diff violates the hard bound is
// force-disconnected immediately rather than waiting for stepTickAdjust's
// once-per-tick aggregate pass.
func (s *Sim) drainInbound(tick uint32) pendingMessages {
	var pending pendingMessages
	for _, msg := range s.runtime.Drain() {
		switch payload := msg.Payload.(type) {
		case wire.InputChangeRequest:
			if s.observeTickDiff(msg.Client, int64(payload.Tick)-int64(tick)) {
				continue
			}
			pending.inputs = append(pending.inputs, inputRequest{client: msg.Client, req: payload})
		case wire.Heartbeat:
			s.observeTickDiff(msg.Client, int64(payload.Tick)-int64(tick))
		case wire.ComponentUpdateRequest:
			pending.components = append(pending.components, payload)
		case wire.TileUpdateRequest:
			pending.tiles = append(pending.tiles, tileRequest{client: msg.Client, req: payload})
		case wire.ChunkUpdateRequest:
			pending.chunks = append(pending.chunks, chunkRequest{client: msg.Client, req: payload})
		default:
			// ClientInput is server->client only; ExplicitConfirmation and
			// InitScriptRequest/Response carry nothing the pipeline acts on here.
		}
	}
	return pending
}

// observeTickDiff feeds one tick-carrying message into its client's
// controller, closing the connection on a hard-bound violation. Returns true
// if the client was disconnected, so callers can drop the message.
func (s *Sim) observeTickDiff(client *netruntime.ClientHandle, diff int64) bool {
	outcome := client.TickAdjust().Observe(diff)
	if outcome.ForceDisconnect {
		if s.metrics != nil {
			s.metrics.IncTickAdjustEvent("disconnect")
		}
		logging.LogClientDisconnect(uint32(client.NetworkID), "tick diff exceeded max bound")
		client.Close()
		return true
	}
	return false
}

// stepConnectionEvents is §4.7 step 1: reap disconnected clients (despawning
// their entities and notifying every other client whose AOI held them), and
// spawn a fresh entity plus ConnectionResponse for anything the runtime
// accepted since the last tick. The runtime's accept loop already registered
// the peer; a client with Entity == Invalid hasn't been spawned yet.
func (s *Sim) stepConnectionEvents(tick uint32, clients []*netruntime.ClientHandle) {
	for _, gone := range s.runtime.ReapDisconnected() {
		if gone.Entity == entity.Invalid {
			continue
		}
		s.despawnClientEntity(gone.Entity, clients)
		s.publishEvent("ClientDisconnected", []byte(fmt.Sprintf("entity:%d", gone.Entity)))
	}

	for _, c := range clients {
		if c.Entity != entity.Invalid {
			continue
		}
		s.spawnClient(tick, c)
		s.publishEvent("ClientConnected", []byte(fmt.Sprintf("entity:%d", c.Entity)))
	}
}

func defaultModelBounds() vec.Box {
	return vec.Box{MinX: -0.4, MinY: -0.4, MinZ: 0, MaxX: 0.4, MaxY: 0.4, MaxZ: 1}
}

func (s *Sim) spawnClient(tick uint32, c *netruntime.ClientHandle) {
	pos := s.spawner.Next()
	id := s.store.Spawn()

	entity.Insert(s.store, id, entity.NewClientSimData(c.NetworkID))
	entity.Replace(s.store, id, pos)
	entity.Insert(s.store, id, entity.PreviousPosition{X: pos.X, Y: pos.Y, Z: pos.Z})
	entity.Replace(s.store, id, entity.Input{})
	entity.Replace(s.store, id, entity.Movement{})
	entity.Replace(s.store, id, entity.RotationNone)

	collision := entity.Collision{ModelBounds: defaultModelBounds()}
	collision.SyncToPosition(pos)
	entity.Insert(s.store, id, collision)

	c.SetEntity(id)

	response := wire.Encode(wire.MessageConnectionResponse, wire.ConnectionResponse{
		AssignedEntity: id,
		CurrentTick:    tick,
		SpawnX:         pos.X,
		SpawnY:         pos.Y,
		SpawnZ:         pos.Z,
		MapExtent:      s.tiles.TileExtent(),
	})
	if err := c.Enqueue(s.codec, tickadjust.Adjustment{}, response); err != nil {
		logging.Warn("simulation: failed to enqueue ConnectionResponse for client %d: %v", c.NetworkID, err)
	}
	logging.Info("simulation: spawned entity %d for client %d at (%.1f, %.1f, %.1f)", id, c.NetworkID, pos.X, pos.Y, pos.Z)
}

func (s *Sim) despawnClientEntity(id entity.ID, clients []*netruntime.ClientHandle) {
	s.store.Destroy(id)

	deleteMsg := wire.Encode(wire.MessageEntityDelete, wire.EntityDelete{Entity: id})
	for _, c := range clients {
		if c.Entity == id {
			continue
		}
		other, ok := entity.Get[entity.ClientSimData](s.store, c.Entity)
		if !ok {
			continue
		}
		if _, present := other.AOISet[id]; !present {
			continue
		}
		// Dropped here so this tick's AOI diff does not send a second delete.
		delete(other.AOISet, id)
		if err := c.Enqueue(s.codec, tickadjust.Adjustment{}, deleteMsg); err != nil {
			logging.Warn("simulation: failed to enqueue EntityDelete to client %d: %v", c.NetworkID, err)
		}
	}
}

// stepComponentRequests is §4.7 steps 2 and 4 merged (see package doc):
// applies client-submitted ComponentUpdateRequest payloads generically. A
// bad component in a request drops only that component (§7), not the whole
// request.
func (s *Sim) stepComponentRequests(requests []wire.ComponentUpdateRequest) {
	for _, req := range requests {
		for _, c := range req.Components {
			if err := wire.ApplyComponent(s.store, req.Entity, c); err != nil {
				logging.Warn("simulation: dropping component update for entity %d: %v", req.Entity, err)
			}
		}
	}
}

// stepTileUpdates is §4.7 step 3.
func (s *Sim) stepTileUpdates(requests []tileRequest) {
	for _, r := range requests {
		pos := tilemap.TilePos{X: r.req.X, Y: r.req.Y, Z: r.req.Z}
		if err := s.tiles.SetLayer(pos, int(r.req.LayerIndex), r.req.Kind, r.req.SpriteID, r.req.WallType); err != nil {
			logging.Warn("simulation: rejecting tile update from client %d: %v", r.client.NetworkID, err)
		}
	}
}

// stepInput is §4.7 step 5: a request is applied only if its tick falls
// within the controller's acceptable window relative to currentTick (§4.8);
// otherwise it's dropped and the entity's input is cleared rather than left
// stale, so a laggy client doesn't keep an entity running in a stale
// direction.
func (s *Sim) stepInput(tick uint32, requests []inputRequest) {
	for _, r := range requests {
		diff := int64(r.req.Tick) - int64(tick)
		if diff >= s.cfg.MinAcceptableTickDiff && diff <= s.cfg.MaxAcceptableTickDiff {
			entity.Replace(s.store, r.req.Entity, entity.Input{Bits: r.req.InputBits})
		} else {
			entity.Replace(s.store, r.req.Entity, entity.Input{})
		}
	}
}

// stepMovement is §4.7 step 6.
func (s *Sim) stepMovement() {
	timestepSeconds := s.cfg.Timestep.Seconds()
	entity.View4(s.store, func(id entity.ID, in entity.Input, pos entity.Position, mv entity.Movement, col entity.Collision) bool {
		resolve := func(from vec.Vec3Float, modelBounds vec.Box, delta vec.Vec3Float) vec.Vec3Float {
			query := physics.ObstacleQuery{
				Tiles:    physics.TilesInRadius(s.tiles),
				Entities: s.nearbyEntities(id),
			}
			return physics.Resolve(from, modelBounds, delta, query)
		}
		newPos, newMovement, newRotation := kinematics.Step(pos, in, timestepSeconds, col.ModelBounds, resolve)

		entity.Insert(s.store, id, entity.PreviousPosition{X: pos.X, Y: pos.Y, Z: pos.Z})
		entity.Replace(s.store, id, newPos)

		col.SyncToPosition(newPos)
		entity.Insert(s.store, id, col)

		entity.Replace(s.store, id, newMovement)
		entity.Replace(s.store, id, newRotation)
		return true
	})
}

// nearbyEntities returns an ObstacleQuery.Entities closure excluding self,
// scanning every live entity's Collision component. A linear scan is
// acceptable at this core's scale; a spatial index is the natural upgrade
// path and does not change the interface (§4.7 step 6d).
func (s *Sim) nearbyEntities(self entity.ID) func(area vec.Box) []physics.DynamicObstacle {
	return func(area vec.Box) []physics.DynamicObstacle {
		var out []physics.DynamicObstacle
		for _, id := range s.store.Entities() {
			if id == self {
				continue
			}
			col, ok := entity.Get[entity.Collision](s.store, id)
			if !ok || !col.WorldBounds.Intersects(area) {
				continue
			}
			out = append(out, physics.DynamicObstacle{Entity: id, Bounds: col.WorldBounds})
		}
		return out
	}
}

// stepAOI is §4.7 step 7: for each client entity, diff its previous AOI set
// against entities within AOIRadius of its new position, emitting pending
// EntityInit/EntityDelete. Returns each client's fresh AOI set for steps 8-9
// to filter against.
func (s *Sim) stepAOI(clients []*netruntime.ClientHandle) map[entity.NetworkID]map[entity.ID]struct{} {
	all := s.store.Entities()
	currentByClient := make(map[entity.NetworkID]map[entity.ID]struct{}, len(clients))

	for _, c := range clients {
		if c.Entity == entity.Invalid {
			continue
		}
		data, ok := entity.Get[entity.ClientSimData](s.store, c.Entity)
		if !ok {
			continue
		}
		pos, ok := entity.Get[entity.Position](s.store, c.Entity)
		if !ok {
			continue
		}

		current := make(map[entity.ID]struct{})
		from := pos.ToVec3Float()
		for _, other := range all {
			if other == c.Entity {
				continue
			}
			otherPos, ok := entity.Get[entity.Position](s.store, other)
			if !ok {
				continue
			}
			if from.DistanceTo(otherPos.ToVec3Float()) <= s.cfg.AOIRadius {
				current[other] = struct{}{}
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveAOISetSize(len(current))
		}

		for id := range current {
			if _, was := data.AOISet[id]; was {
				continue
			}
			init := wire.Encode(wire.MessageEntityInit, wire.EntityInit{Entity: id, Components: wire.EncodeAllComponents(s.store, id)})
			if err := c.Enqueue(s.codec, tickadjust.Adjustment{}, init); err != nil {
				logging.Warn("simulation: failed to enqueue EntityInit to client %d: %v", c.NetworkID, err)
			}
		}
		for id := range data.AOISet {
			if _, still := current[id]; still {
				continue
			}
			del := wire.Encode(wire.MessageEntityDelete, wire.EntityDelete{Entity: id})
			if err := c.Enqueue(s.codec, tickadjust.Adjustment{}, del); err != nil {
				logging.Warn("simulation: failed to enqueue EntityDelete to client %d: %v", c.NetworkID, err)
			}
		}

		entity.Insert(s.store, c.Entity, entity.ClientSimData{Network: data.Network, AOISet: current})
		currentByClient[c.NetworkID] = current
	}
	return currentByClient
}

func buildMovementState(s *entity.Store, id entity.ID) (wire.MovementState, bool) {
	pos, ok := entity.Get[entity.Position](s, id)
	if !ok {
		return wire.MovementState{}, false
	}
	mv, _ := entity.Get[entity.Movement](s, id)
	in, _ := entity.Get[entity.Input](s, id)
	return wire.MovementState{
		Entity:    id,
		InputBits: in.Bits,
		PosX:      pos.X, PosY: pos.Y, PosZ: pos.Z,
		VelX: mv.VelocityX, VelY: mv.VelocityY, VelZ: mv.VelocityZ,
		IsFalling: mv.IsFalling,
	}, true
}

func dedupeIDs(ids []entity.ID) []entity.ID {
	seen := make(map[entity.ID]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// stepMovementSync is §4.7 step 8: entities whose Input or Movement changed
// this tick are bundled into a MovementUpdate per client, filtered to that
// client's AOI plus its own entity (the predictor needs its own corrections
// too, §4.9 step 3).
func (s *Sim) stepMovementSync(tick uint32, clients []*netruntime.ClientHandle, currentAOI map[entity.NetworkID]map[entity.ID]struct{}) {
	changed := dedupeIDs(append(s.inputObserver.Drain(), s.movementObs.Drain()...))
	if len(changed) == 0 {
		return
	}

	states := make(map[entity.ID]wire.MovementState, len(changed))
	for _, id := range changed {
		if state, ok := buildMovementState(s.store, id); ok {
			states[id] = state
		}
	}

	for _, c := range clients {
		if c.Entity == entity.Invalid {
			continue
		}
		aoi := currentAOI[c.NetworkID]
		var relevant []wire.MovementState
		for id, state := range states {
			if id == c.Entity {
				relevant = append(relevant, state)
				continue
			}
			if _, in := aoi[id]; in {
				relevant = append(relevant, state)
			}
		}
		if len(relevant) == 0 {
			continue
		}
		msg := wire.Encode(wire.MessageMovementUpdate, wire.MovementUpdate{Tick: tick, States: relevant})
		if err := c.Enqueue(s.codec, tickadjust.Adjustment{}, msg); err != nil {
			logging.Warn("simulation: failed to enqueue MovementUpdate to client %d: %v", c.NetworkID, err)
		}
	}
}

// stepComponentSync is §4.7 step 9: for every other observed-replicated
// component type, an entity whose component was replaced this tick gets a
// ComponentUpdate sent to every client whose AOI contains it (or to itself,
// if it is a client entity).
func (s *Sim) stepComponentSync(tick uint32, clients []*netruntime.ClientHandle, currentAOI map[entity.NetworkID]map[entity.ID]struct{}) {
	changes := make(map[entity.ID][]entity.SerializedComponent)
	collect := func(ids []entity.ID, typeIndex entity.ComponentTypeIndex) {
		for _, id := range ids {
			if c, ok := wire.EncodeComponent(s.store, id, typeIndex); ok {
				changes[id] = append(changes[id], c)
			}
		}
	}
	collect(s.rotationObs.Drain(), entity.ComponentRotation)
	collect(s.animObs.Drain(), entity.ComponentAnimationState)
	if len(changes) == 0 {
		return
	}

	for id, components := range changes {
		msg := wire.Encode(wire.MessageComponentUpdate, wire.ComponentUpdate{Tick: tick, Entity: id, Components: components})
		for _, c := range clients {
			if c.Entity == entity.Invalid {
				continue
			}
			send := c.Entity == id
			if !send {
				_, send = currentAOI[c.NetworkID][id]
			}
			if !send {
				continue
			}
			if err := c.Enqueue(s.codec, tickadjust.Adjustment{}, msg); err != nil {
				logging.Warn("simulation: failed to enqueue ComponentUpdate to client %d: %v", c.NetworkID, err)
			}
		}
	}
}

// encodedChunk returns pos's encoded snapshot, consulting the hot cache
// first when one is installed. A cache miss or a disabled cache falls
// through to encoding straight from the tile map and, on a hit-free read,
// populates the cache for the next request. Returns (nil, nil) if pos names
// a chunk that doesn't exist.
func (s *Sim) encodedChunk(pos tilemap.ChunkPos) ([]byte, error) {
	if s.chunkCache != nil {
		ctx := context.Background()
		if snap, err := s.chunkCache.Get(ctx, chunkCacheKey(pos)); err == nil {
			return snap, nil
		} else if !cache.IsCacheMiss(err) {
			logging.Warn("simulation: chunk cache read error for %+v: %v", pos, err)
		}
	}

	chunk, ok := s.tiles.ChunkAt(pos)
	if !ok {
		return nil, nil
	}
	snap, err := tilemap.EncodeChunkSnapshot(chunk)
	if err != nil {
		return nil, err
	}

	if s.chunkCache != nil {
		ctx := context.Background()
		if err := s.chunkCache.Set(ctx, chunkCacheKey(pos), snap, 0); err != nil {
			logging.Warn("simulation: chunk cache write error for %+v: %v", pos, err)
		}
	}
	return snap, nil
}

// stepChunkStreaming is §4.7 step 10: respond to ChunkUpdateRequests with
// full chunk snapshots, and forward every tile dirtied in step 3 to clients
// whose position is within AOIRadius of that tile.
//
// Chunks a client asks for are culled against its own chunk-grid position
// first — a client whose ComponentUpdateRequest pipeline got desynced (or
// is probing) doesn't get to pull arbitrary chunks by listing them in a
// ChunkUpdateRequest.
func (s *Sim) stepChunkStreaming(requests []chunkRequest, clients []*netruntime.ClientHandle) {
	streamRadius := s.chunkStreamRadius()
	for _, r := range requests {
		clientChunk, haveClientChunk := s.clientChunkPos(r.client)
		var snapshots [][]byte
		for _, cp := range r.req.Chunks {
			requestedChunk := vec.Vec2{X: int(cp.X), Y: int(cp.Y)}
			if haveClientChunk && !withinChunkStreamRadius(clientChunk, requestedChunk, streamRadius) {
				continue
			}
			snap, err := s.encodedChunk(cp)
			if err != nil {
				logging.Warn("simulation: failed to encode chunk %+v for client %d: %v", cp, r.client.NetworkID, err)
				continue
			}
			if snap == nil {
				continue
			}
			snapshots = append(snapshots, snap)
		}
		if len(snapshots) == 0 {
			continue
		}
		msg := wire.Encode(wire.MessageChunkUpdate, wire.ChunkUpdate{Snapshots: snapshots})
		if err := r.client.Enqueue(s.codec, tickadjust.Adjustment{}, msg); err != nil {
			logging.Warn("simulation: failed to enqueue ChunkUpdate to client %d: %v", r.client.NetworkID, err)
		}
	}

	dirty := s.tiles.TakeDirtyTiles()
	for pos, layerIndex := range dirty {
		tile, err := s.tiles.GetTile(pos)
		if err != nil {
			continue
		}
		layer := tile.At(layerIndex)
		msg := wire.Encode(wire.MessageTileUpdate, wire.TileUpdate{
			X: pos.X, Y: pos.Y, Z: pos.Z,
			LayerIndex: int32(layerIndex),
			Kind:       layer.Kind,
			SpriteID:   layer.SpriteID,
			WallType:   layer.WallType,
		})
		tileWorld := vec.Vec3Float{X: float64(pos.X) + 0.5, Y: float64(pos.Y) + 0.5, Z: float64(pos.Z)}

		for _, c := range clients {
			if c.Entity == entity.Invalid {
				continue
			}
			cpos, ok := entity.Get[entity.Position](s.store, c.Entity)
			if !ok {
				continue
			}
			if cpos.ToVec3Float().DistanceTo(tileWorld) > s.cfg.AOIRadius {
				continue
			}
			if err := c.Enqueue(s.codec, tickadjust.Adjustment{}, msg); err != nil {
				logging.Warn("simulation: failed to enqueue TileUpdate to client %d: %v", c.NetworkID, err)
			}
		}
	}
}

// stepMapSave is §4.7 step 11.
func (s *Sim) stepMapSave() {
	if time.Since(s.lastSave) < s.cfg.MapSavePeriod {
		return
	}
	if err := s.tiles.Save(s.cfg.MapPath); err != nil {
		logging.Warn("simulation: map save failed: %v", err)
		return
	}
	s.lastSave = time.Now()
}

// stepTickAdjust evaluates each client's accumulated fresh diffs (§4.8); the
// result feeds FlushAll, which is §4.7 step 12 ("signal send thread")
// generalized to Go's goroutine model — FlushAll sends every client's
// accumulated batch, carrying whatever adjustment was issued this tick.
func (s *Sim) stepTickAdjust(clients []*netruntime.ClientHandle) map[entity.NetworkID]tickadjust.Adjustment {
	out := make(map[entity.NetworkID]tickadjust.Adjustment, len(clients))
	for _, c := range clients {
		outcome := c.TickAdjust().Tick()
		if outcome.Adjustment.Issued {
			out[c.NetworkID] = outcome.Adjustment
			if s.metrics != nil {
				s.metrics.IncTickAdjustEvent("correction")
			}
		}
	}
	return out
}
