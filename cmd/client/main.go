// Command client is a headless reference client: it connects to a server,
// predicts its own entity locally (internal/predictor), reconciles against
// authoritative MovementUpdates, and replicates every other entity through
// the delayed FIFO (internal/npcreplication). It has no renderer — the
// engine's own clients are written against this package's protocol
// directly (§3.4) — but it exercises the same wire format and client-side
// packages a real client would.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"time"

	"github.com/tessera-mmo/core/internal/config"
	"github.com/tessera-mmo/core/internal/entity"
	"github.com/tessera-mmo/core/internal/logging"
	"github.com/tessera-mmo/core/internal/npcreplication"
	"github.com/tessera-mmo/core/internal/predictor"
	"github.com/tessera-mmo/core/internal/tilemap"
	"github.com/tessera-mmo/core/internal/transport"
	"github.com/tessera-mmo/core/internal/vec"
	"github.com/tessera-mmo/core/internal/wire"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7777", "server address")
	flag.Parse()

	if err := logging.InitLogger(); err != nil {
		log.Fatalf("logging: init failed: %v", err)
	}
	defer logging.CloseLogger()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: load failed: %v", err)
	}

	codec, err := wire.NewCodec(cfg.Map.CompressionThresholdOrDefault())
	if err != nil {
		log.Fatalf("wire: codec init failed: %v", err)
	}
	defer codec.Close()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("client: dial %s failed: %v", *addr, err)
	}

	peer := transport.NewPeer(conn, 0, 64, 64)
	store := entity.NewStore(entity.NewPool())
	replicator := npcreplication.New(cfg.Simulation.PastTickOffsetOrDefault())
	sampler := predictor.NewInputSampler()

	resp, err := awaitConnectionResponse(codec, peer)
	if err != nil {
		log.Fatalf("client: handshake failed: %v", err)
	}
	logging.Info("client: connected as entity %d at tick %d, spawn (%.1f, %.1f, %.1f)",
		resp.AssignedEntity, resp.CurrentTick, resp.SpawnX, resp.SpawnY, resp.SpawnZ)

	tiles := tilemap.NewTileMap(tilemap.ChunkExtent{
		OriginX: resp.MapExtent.OriginX / tilemap.ChunkWidth,
		OriginY: resp.MapExtent.OriginY / tilemap.ChunkWidth,
		OriginZ: resp.MapExtent.OriginZ,
		LenX:    resp.MapExtent.LenX / tilemap.ChunkWidth,
		LenY:    resp.MapExtent.LenY / tilemap.ChunkWidth,
		LenZ:    resp.MapExtent.LenZ,
	}, tilemap.NewStaticSpriteRegistry())

	modelBounds := vec.Box{MinX: -0.4, MinY: -0.4, MinZ: 0, MaxX: 0.4, MaxY: 0.4, MaxZ: 1}
	pred := predictor.New(
		resp.AssignedEntity,
		tiles,
		modelBounds,
		cfg.Replication.InputHistoryCapacityOrDefault(),
		entity.Position{X: resp.SpawnX, Y: resp.SpawnY, Z: resp.SpawnZ},
	)

	timestep := cfg.Simulation.TickTimestep()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inbound := make(chan interface{}, 256)
	go decodeInbound(ctx, codec, peer, inbound)

	tick := resp.CurrentTick
	ticker := time.NewTicker(timestep)
	defer ticker.Stop()

	heartbeatInterval := cfg.Replication.HeartbeatInterval()

	for range ticker.C {
		applyInbound(inbound, pred, replicator, timestep.Seconds())

		in := entity.Input{} // a real client samples its input device here
		pred.Sample(tick, in, timestep.Seconds())
		replicator.Drain(tick, store)

		if err := sendInputOrHeartbeat(peer, tick, resp.AssignedEntity, in, sampler, heartbeatInterval); err != nil {
			logging.Warn("client: send failed, disconnecting: %v", err)
			return
		}

		tick++

		select {
		case <-peer.Done():
			logging.Info("client: server closed the connection")
			return
		default:
		}
	}
}

// awaitConnectionResponse blocks for the first inbound frame, which the
// server always sends as a ConnectionResponse right after accepting a new
// connection (§3.4, internal/simulation.spawnClient).
func awaitConnectionResponse(codec *wire.Codec, peer *transport.Peer) (wire.ConnectionResponse, error) {
	frame := <-peer.Inbound()
	_, messages, err := wire.ReadServerBatch(codec, frame)
	if err != nil {
		return wire.ConnectionResponse{}, err
	}
	for _, msg := range messages {
		if msg.Type != wire.MessageConnectionResponse {
			continue
		}
		payload, err := wire.DecodeByType(msg.Type, msg.Payload)
		if err != nil {
			return wire.ConnectionResponse{}, err
		}
		return payload.(wire.ConnectionResponse), nil
	}
	return wire.ConnectionResponse{}, errNoConnectionResponse
}

var errNoConnectionResponse = errors.New("first server batch carried no ConnectionResponse")

// decodeInbound decodes every inbound frame off the network goroutine and
// forwards each message to out. Decoding happens concurrently with the tick
// loop, but applying a decoded message to pred/replicator does not — both
// are single-goroutine types, so that happens on the tick loop via
// applyInbound, the same split the server keeps between netruntime's
// receive goroutines and the simulation goroutine's Drain call.
func decodeInbound(ctx context.Context, codec *wire.Codec, peer *transport.Peer, out chan<- interface{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-peer.Inbound():
			if !ok {
				return
			}
			_, messages, err := wire.ReadServerBatch(codec, frame)
			if err != nil {
				logging.Warn("client: malformed server batch: %v", err)
				continue
			}
			for _, msg := range messages {
				payload, err := wire.DecodeByType(msg.Type, msg.Payload)
				if err != nil {
					logging.Warn("client: failed to decode %v: %v", msg.Type, err)
					continue
				}
				select {
				case out <- payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// applyInbound drains every message decodeInbound has queued since the last
// tick and routes MovementUpdates into the predictor's reconciliation (the
// client's own entity) and the NPC replicator (everyone else).
func applyInbound(inbound <-chan interface{}, pred *predictor.Predictor, replicator *npcreplication.Replicator, dt float64) {
	for {
		select {
		case payload := <-inbound:
			switch m := payload.(type) {
			case wire.MovementUpdate:
				if err := pred.Reconcile(m, dt); err != nil {
					logging.Warn("client: reconcile failed: %v", err)
				}
				replicator.ObserveMovementUpdate(m)
			case wire.ExplicitConfirmation:
				replicator.ObserveConfirmation(m.Tick)
			}
		default:
			return
		}
	}
}

func sendInputOrHeartbeat(peer *transport.Peer, tick uint32, id entity.ID, in entity.Input, sampler *predictor.InputSampler, heartbeatInterval time.Duration) error {
	b := wire.NewBatchBuilder()
	now := time.Now()

	if sampler.Changed(in) {
		msg := wire.Encode(wire.MessageInputChangeRequest, wire.InputChangeRequest{Tick: tick, Entity: id, InputBits: in.Bits})
		if err := b.Add(msg); err != nil {
			return err
		}
	} else if sampler.HeartbeatDue(now, heartbeatInterval) {
		msg := wire.Encode(wire.MessageHeartbeat, wire.Heartbeat{Tick: tick})
		if err := b.Add(msg); err != nil {
			return err
		}
	}

	if b.Empty() {
		return nil
	}

	frame, err := b.BuildClient(0)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return peer.Send(ctx, frame)
}
