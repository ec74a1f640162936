// Package netruntime implements the accept/receive/send thread trio (§4.4,
// §4.5) around a client map keyed by network id. The simulation goroutine
// is the sole owner of per-tick flow: it drains decoded inbound messages,
// mutates the entity store, then asks the runtime to flush every client's
// accumulated outbound batch.
//
// The accept loop, RWMutex-guarded connection map, and periodic sweep that
// closes stale connections feed a typed decode pipeline per SPEC_FULL.md
// §4.5; per-connection goroutines come from internal/transport.Peer,
// adapting §4.4's select()-based three-OS-thread model to goroutines+
// channels (see DESIGN.md's concurrency model note).
package netruntime

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tessera-mmo/core/internal/apperrors"
	"github.com/tessera-mmo/core/internal/entity"
	"github.com/tessera-mmo/core/internal/logging"
	"github.com/tessera-mmo/core/internal/tickadjust"
	"github.com/tessera-mmo/core/internal/transport"
	"github.com/tessera-mmo/core/internal/wire"
)

const (
	outboundBuffer = 64
	inboundBuffer  = 256
	fanInBuffer    = 2048
)

// ClientHandle is one connected client's full runtime state: its transport
// peer, its tick-adjustment controller, and the outbound batch the
// simulation is currently filling for it this tick.
type ClientHandle struct {
	NetworkID entity.NetworkID
	Entity    entity.ID // assigned once the simulation spawns the client's entity; entity.Invalid until then

	peer       *transport.Peer
	tickAdjust *tickadjust.Controller
	outbound   *wire.BatchBuilder

	mu sync.Mutex // guards Entity and outbound across simulation/runtime access
}

// SetEntity records the entity spawned for this client (§4.7 step 1).
func (c *ClientHandle) SetEntity(id entity.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Entity = id
}

// TickAdjust returns this client's tick-skew controller.
func (c *ClientHandle) TickAdjust() *tickadjust.Controller { return c.tickAdjust }

// Enqueue appends one message to the client's pending outbound batch,
// flushing the current batch to the wire first if the new message would
// overflow it — a single tick's outbound data for one client may span more
// than one physical frame (§4.3, §8 P6).
func (c *ClientHandle) Enqueue(codec *wire.Codec, adjustment tickadjust.Adjustment, msg wire.EncodedMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.outbound.Oversize(len(msg.Payload)) && !c.outbound.Empty() {
		if err := c.flushLocked(codec, adjustment); err != nil {
			return err
		}
	}
	return c.outbound.Add(msg)
}

// FlushPending builds and sends whatever has accumulated in this client's
// outbound batch this tick, even if empty (an empty flush still carries the
// tick adjustment fields and stands in for an implicit confirmation).
// Returns the sent frame's size in bytes.
func (c *ClientHandle) FlushPending(codec *wire.Codec, adjustment tickadjust.Adjustment) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(codec, adjustment)
}

func (c *ClientHandle) flushLocked(codec *wire.Codec, adjustment tickadjust.Adjustment) (int, error) {
	frame, err := c.outbound.BuildServer(codec, adjustment.TickAdjustment, adjustment.AdjustmentIteration)
	if err != nil {
		return 0, err
	}
	c.outbound = wire.NewBatchBuilder()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.peer.Send(ctx, frame); err != nil {
		return 0, err
	}
	return len(frame), nil
}

// Disconnected reports whether the underlying peer has closed, either
// because of an I/O error, a protocol violation, or an explicit Close.
func (c *ClientHandle) Disconnected() bool {
	select {
	case <-c.peer.Done():
		return true
	default:
		return false
	}
}

// LastActivity returns the last time a frame was read from this client.
func (c *ClientHandle) LastActivity() time.Time { return c.peer.LastActivity() }

// Close tears down the client's peer connection.
func (c *ClientHandle) Close() error { return c.peer.Close() }

// InboundMessage pairs a decoded wire message with the client that sent it.
type InboundMessage struct {
	Client  *ClientHandle
	Type    wire.MessageType
	Payload interface{}
}

// Runtime owns the client map (§4.5 — writers: accept-loop insert, tick-
// boundary sweep erase; readers: flush, directed sends) and the inbound
// fan-in channel every client's receive goroutine feeds into.
type Runtime struct {
	mu      sync.RWMutex
	clients map[entity.NetworkID]*ClientHandle
	nextID  uint32

	listener      net.Listener
	maxClients    int
	clientTimeout time.Duration
	bounds        tickadjust.Bounds
	codec         *wire.Codec

	inbound chan InboundMessage

	onFlush func(bytes int)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WithFlushObserver installs a callback invoked with the byte size of every
// batch FlushPending sends, for internal/observability's batch-size metric.
// Passing nil disables it.
func (r *Runtime) WithFlushObserver(observe func(bytes int)) *Runtime {
	r.onFlush = observe
	return r
}

// Config bundles the runtime's construction-time tunables.
type Config struct {
	MaxClients    int
	ClientTimeout time.Duration
	Bounds        tickadjust.Bounds
}

// New wraps an already-listening net.Listener. Run starts the accept loop
// and the timeout sweep; both stop when ctx passed to Run is cancelled.
func New(listener net.Listener, codec *wire.Codec, cfg Config) *Runtime {
	return &Runtime{
		clients:       make(map[entity.NetworkID]*ClientHandle),
		listener:      listener,
		maxClients:    cfg.MaxClients,
		clientTimeout: cfg.ClientTimeout,
		bounds:        cfg.Bounds,
		codec:         codec,
		inbound:       make(chan InboundMessage, fanInBuffer),
	}
}

// Run starts the accept loop and a periodic timeout check, blocking until
// ctx is cancelled.
func (r *Runtime) Run(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(2)
	go r.acceptLoop()
	go r.timeoutLoop()

	<-r.ctx.Done()
	r.listener.Close()
	r.wg.Wait()

	r.mu.Lock()
	for _, c := range r.clients {
		c.Close()
	}
	r.mu.Unlock()
}

func (r *Runtime) acceptLoop() {
	defer r.wg.Done()
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			select {
			case <-r.ctx.Done():
				return
			default:
				logging.Warn("netruntime: accept failed: %v", err)
				continue
			}
		}

		r.mu.RLock()
		atCapacity := len(r.clients) >= r.maxClients
		r.mu.RUnlock()
		if atCapacity {
			logging.Warn("netruntime: rejecting connection from %s, at capacity (%d)", conn.RemoteAddr(), r.maxClients)
			conn.Close()
			continue
		}

		client := r.register(conn)
		r.wg.Add(1)
		go r.decodeLoop(client)
	}
}

func (r *Runtime) register(conn net.Conn) *ClientHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := entity.NetworkID(r.nextID)
	client := &ClientHandle{
		NetworkID:  id,
		Entity:     entity.Invalid,
		peer:       transport.NewPeer(conn, uint32(id), outboundBuffer, inboundBuffer),
		tickAdjust: tickadjust.New(r.bounds),
		outbound:   wire.NewBatchBuilder(),
	}
	r.clients[id] = client
	logging.Info("netruntime: client %d connected from %s", id, conn.RemoteAddr())
	return client
}

func (r *Runtime) decodeLoop(client *ClientHandle) {
	defer r.wg.Done()
	for frame := range client.peer.Inbound() {
		header, messages, err := wire.ReadClientBatch(frame)
		if err != nil {
			logging.LogProtocolError(fmt.Sprintf("client:%d", client.NetworkID), err, frame)
			client.Close()
			return
		}
		client.tickAdjust.Acknowledge(header.AdjustmentIteration)

		for _, encoded := range messages {
			payload, err := wire.DecodeByType(encoded.Type, encoded.Payload)
			if err != nil {
				logging.LogProtocolError(fmt.Sprintf("client:%d", client.NetworkID), err, encoded.Payload)
				continue
			}
			select {
			case r.inbound <- InboundMessage{Client: client, Type: encoded.Type, Payload: payload}:
			default:
				logging.Warn("netruntime: inbound queue full, dropping message from client %d", client.NetworkID)
			}
		}
	}
}

func (r *Runtime) timeoutLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.clientTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.mu.RLock()
			var stale []*ClientHandle
			for _, c := range r.clients {
				if time.Since(c.LastActivity()) > r.clientTimeout {
					stale = append(stale, c)
				}
			}
			r.mu.RUnlock()

			for _, c := range stale {
				logging.LogClientDisconnect(uint32(c.NetworkID), "client timeout")
				c.Close()
			}
		}
	}
}

// Drain returns every inbound message queued since the last call, without
// blocking. The simulation calls this once per tick (§4.7 step 1/5).
func (r *Runtime) Drain() []InboundMessage {
	var out []InboundMessage
	for {
		select {
		case msg := <-r.inbound:
			out = append(out, msg)
		default:
			return out
		}
	}
}

// ReapDisconnected removes every client whose peer has closed (I/O error,
// protocol violation, or timeout) from the client map and returns them, so
// the simulation can despawn their entities. Actual map erasure happens
// here, once per tick, rather than from the accept/receive goroutines
// directly — "the simulation never sees a client vanish mid-tick" (§4.5).
func (r *Runtime) ReapDisconnected() []*ClientHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*ClientHandle
	for id, c := range r.clients {
		if c.Disconnected() {
			delete(r.clients, id)
			removed = append(removed, c)
		}
	}
	return removed
}

// Clients returns a snapshot of every currently connected client.
func (r *Runtime) Clients() []*ClientHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ClientHandle, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// ByNetworkID looks up a connected client, used for directed sends.
func (r *Runtime) ByNetworkID(id entity.NetworkID) (*ClientHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// FlushAll builds and sends every client's accumulated batch for this tick
// (the send-thread equivalent of §4.4 point 2), embedding each client's own
// tick-adjustment outcome.
func (r *Runtime) FlushAll(adjustments map[entity.NetworkID]tickadjust.Adjustment) {
	for _, c := range r.Clients() {
		adjustment := adjustments[c.NetworkID]
		n, err := c.FlushPending(r.codec, adjustment)
		if err != nil {
			if !apperrors.Is(err, apperrors.KindDisconnect) {
				logging.Warn("netruntime: flush to client %d failed: %v", c.NetworkID, err)
			}
			continue
		}
		if r.onFlush != nil && n > 0 {
			r.onFlush(n)
		}
	}
}
