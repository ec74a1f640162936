// Package regional carries the wire format for chunk-ownership handoff
// between shards over NATS. A single-shard deployment (the only
// configuration this core's authoritative server supports — horizontal
// scaling is out of scope) only ever sends announcements and never races
// against a conflicting one; the subject/payload shape is kept so a second
// shard could attach without changing this package.
//
// A larger design along these lines would add change batching, conflict
// resolution, and a wrapper over a full world-state type; all of that
// assumes packages this module doesn't carry. ShardLink keeps only the
// part of that idea a single shard actually exercises: publishing what it
// owns, and being able to hear about another shard's claim if one ever
// joins.
package regional

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/tessera-mmo/core/internal/logging"
	"github.com/tessera-mmo/core/internal/tilemap"
)

const ownershipSubject = "tessera.shard.ownership"

// Ownership announces that a shard has loaded (and is now authoritative
// for) a chunk.
type Ownership struct {
	ShardID string          `json:"shard_id"`
	Chunk   tilemap.ChunkPos `json:"chunk"`
}

// ShardLink is a thin NATS pub/sub wrapper for chunk-ownership handoff. The
// zero value is not usable; construct with Connect.
type ShardLink struct {
	shardID string
	conn    *nats.Conn
	sub     *nats.Subscription
}

// Connect dials the NATS server at url and identifies this process as
// shardID in every announcement it publishes.
func Connect(url, shardID string) (*ShardLink, error) {
	conn, err := nats.Connect(url, nats.Name(fmt.Sprintf("tessera-shard-%s", shardID)))
	if err != nil {
		return nil, fmt.Errorf("regional: connect to %s: %w", url, err)
	}
	return &ShardLink{shardID: shardID, conn: conn}, nil
}

// AnnounceOwnership publishes that this shard now owns pos. A single-shard
// deployment calls this for every chunk it loads, and since it is the only
// publisher, it never observes a conflicting claim — that is the whole of
// the single-shard behavior this stub needs.
func (l *ShardLink) AnnounceOwnership(pos tilemap.ChunkPos) error {
	payload, err := json.Marshal(Ownership{ShardID: l.shardID, Chunk: pos})
	if err != nil {
		return fmt.Errorf("regional: marshal ownership: %w", err)
	}
	return l.conn.Publish(ownershipSubject, payload)
}

// Subscribe begins delivering ownership announcements from other shards to
// onClaim. Announcements this shard made itself are filtered out. Calling
// Subscribe is optional — a single-shard deployment has no other shard to
// hear from, but a second shard attaching to the same NATS server would use
// exactly this to learn what the first shard already owns.
func (l *ShardLink) Subscribe(onClaim func(Ownership)) error {
	sub, err := l.conn.Subscribe(ownershipSubject, func(msg *nats.Msg) {
		var o Ownership
		if err := json.Unmarshal(msg.Data, &o); err != nil {
			logging.Warn("regional: malformed ownership announcement: %v", err)
			return
		}
		if o.ShardID == l.shardID {
			return
		}
		onClaim(o)
	})
	if err != nil {
		return fmt.Errorf("regional: subscribe: %w", err)
	}
	l.sub = sub
	return nil
}

// Close unsubscribes (if Subscribe was called) and drains the connection.
func (l *ShardLink) Close() {
	if l.sub != nil {
		l.sub.Unsubscribe()
	}
	l.conn.Drain()
}
