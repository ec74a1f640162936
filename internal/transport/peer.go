// Package transport implements the per-connection send/receive goroutines
// that carry wire-framed batches over TCP (§4.4, §4.5).
//
// A select()-based socket multiplexer has no idiomatic Go equivalent, so
// this adapts the concurrency model to goroutine-per-connection with
// channels (recorded in DESIGN.md ahead of this package): one goroutine
// reading, one writing, both gated by a context and a WaitGroup, with
// send/receive buffered channels standing in for an intrusive
// per-connection queue.
//
// wire.ClientHeader (unlike ServerHeader) carries no body-size field — a
// datagram transport's own framing would supply that. Since this transport
// runs over TCP (a byte stream), Peer adds its own 4-byte length prefix
// ahead of each wire frame instead.
package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tessera-mmo/core/internal/apperrors"
	"github.com/tessera-mmo/core/internal/logging"
)

// MaxFrameSize bounds the length prefix against a hostile or corrupted
// peer claiming an absurd frame size.
const MaxFrameSize = 1 << 20

// Peer wraps one TCP connection, running independent send and receive
// goroutines. Send and Inbound are the peer's only data surface;
// callers never touch the socket directly.
type Peer struct {
	conn net.Conn
	id   uint32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	outbound chan []byte
	inbound  chan []byte

	bytesSent     uint64
	bytesReceived uint64
	lastActivity  atomic.Int64 // UnixNano, updated by the receive goroutine

	closeOnce sync.Once
}

// NewPeer wraps an accepted or dialed connection and starts its send/receive
// goroutines. outboundBuffer/inboundBuffer size the channels (§4.5 — typed,
// bounded, single-producer/single-consumer queues).
func NewPeer(conn net.Conn, id uint32, outboundBuffer, inboundBuffer int) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		conn:     conn,
		id:       id,
		ctx:      ctx,
		cancel:   cancel,
		outbound: make(chan []byte, outboundBuffer),
		inbound:  make(chan []byte, inboundBuffer),
	}
	p.lastActivity.Store(time.Now().UnixNano())

	p.wg.Add(2)
	go p.sendLoop()
	go p.receiveLoop()
	return p
}

// ID returns the peer's opaque connection id (distinct from any entity ID).
func (p *Peer) ID() uint32 { return p.id }

// RemoteAddr returns the peer's remote network address as text.
func (p *Peer) RemoteAddr() string { return p.conn.RemoteAddr().String() }

// LastActivity returns the time the receive goroutine last read a frame.
func (p *Peer) LastActivity() time.Time {
	return time.Unix(0, p.lastActivity.Load())
}

// Send enqueues one already wire-framed batch for transmission. It never
// blocks past ctx's lifetime or the peer's own closure.
func (p *Peer) Send(ctx context.Context, frame []byte) error {
	select {
	case p.outbound <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return apperrors.Disconnect("transport.Peer.Send", fmt.Errorf("peer %d closed", p.id))
	}
}

// Inbound returns the channel of raw wire frames read from the socket, one
// per successfully length-delimited read.
func (p *Peer) Inbound() <-chan []byte {
	return p.inbound
}

// Done reports the peer's closure via its context.
func (p *Peer) Done() <-chan struct{} { return p.ctx.Done() }

// Close cancels both goroutines and closes the underlying connection,
// waiting for both to exit before returning.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		err = p.conn.Close()
		p.wg.Wait()
	})
	return err
}

func (p *Peer) sendLoop() {
	defer p.wg.Done()
	for {
		select {
		case frame := <-p.outbound:
			if writeErr := p.writeFrame(frame); writeErr != nil {
				logging.Warn("transport: peer %d write failed: %v", p.id, writeErr)
				p.cancel()
				return
			}
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Peer) receiveLoop() {
	defer p.wg.Done()
	defer close(p.inbound)
	for {
		frame, err := p.readFrame()
		if err != nil {
			if err != io.EOF {
				logging.Warn("transport: peer %d read failed: %v", p.id, err)
			}
			p.cancel()
			return
		}
		p.lastActivity.Store(time.Now().UnixNano())
		select {
		case p.inbound <- frame:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Peer) writeFrame(frame []byte) error {
	var lengthPrefix [4]byte
	binary.LittleEndian.PutUint32(lengthPrefix[:], uint32(len(frame)))
	if _, err := p.conn.Write(lengthPrefix[:]); err != nil {
		return err
	}
	if _, err := p.conn.Write(frame); err != nil {
		return err
	}
	atomic.AddUint64(&p.bytesSent, uint64(4+len(frame)))
	return nil
}

func (p *Peer) readFrame() ([]byte, error) {
	var lengthPrefix [4]byte
	if _, err := io.ReadFull(p.conn, lengthPrefix[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(lengthPrefix[:])
	if size > MaxFrameSize {
		return nil, apperrors.Protocol("transport.Peer.readFrame", fmt.Errorf("frame size %d exceeds max %d", size, MaxFrameSize))
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(p.conn, buf); err != nil {
		return nil, err
	}
	atomic.AddUint64(&p.bytesReceived, uint64(4+len(buf)))
	return buf, nil
}

// SetDeadline applies an absolute read/write deadline to the underlying
// connection. internal/netruntime does not call it: its timeout sweep
// enforces CLIENT_TIMEOUT_S (§4.8) from LastActivity.
func (p *Peer) SetDeadline(t time.Time) error {
	return p.conn.SetDeadline(t)
}
