package netruntime

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tessera-mmo/core/internal/tickadjust"
	"github.com/tessera-mmo/core/internal/wire"
)

func testBounds() tickadjust.Bounds {
	return tickadjust.Bounds{
		HistoryLength:        15,
		MinFreshDiffs:        3,
		Target:               2,
		AcceptableBoundLower: 1,
		AcceptableBoundUpper: 3,
		MaxBoundLower:        -128,
		MaxBoundUpper:        60,
	}
}

func newTestRuntime(t *testing.T) (*Runtime, net.Addr) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	codec, err := wire.NewCodec(1 << 20)
	require.NoError(t, err)
	t.Cleanup(codec.Close)

	rt := New(listener, codec, Config{MaxClients: 2, ClientTimeout: time.Second, Bounds: testBounds()})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go rt.Run(ctx)
	return rt, listener.Addr()
}

func TestAcceptRegistersClientAndDecodesMessages(t *testing.T) {
	rt, addr := newTestRuntime(t)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	b := wire.NewBatchBuilder()
	require.NoError(t, b.Add(wire.Encode(wire.MessageInputChangeRequest, wire.InputChangeRequest{Tick: 1, Entity: 5, InputBits: 2})))
	frame, err := b.BuildClient(0)
	require.NoError(t, err)
	require.NoError(t, writeLengthPrefixed(conn, frame))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for a registered client with drained messages")
		default:
		}
		if len(rt.Clients()) == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		msgs := rt.Drain()
		if len(msgs) == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		require.Equal(t, wire.MessageInputChangeRequest, msgs[0].Type)
		req := msgs[0].Payload.(wire.InputChangeRequest)
		require.Equal(t, uint32(1), req.Tick)
		require.Equal(t, uint8(2), req.InputBits)
		return
	}
}

func TestAcceptRejectsBeyondMaxClients(t *testing.T) {
	rt, addr := newTestRuntime(t)

	var conns []net.Conn
	for i := 0; i < 2; i++ {
		conn, err := net.Dial("tcp", addr.String())
		require.NoError(t, err)
		conns = append(conns, conn)
		defer conn.Close()
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(rt.Clients()) < 2 {
		time.Sleep(10 * time.Millisecond)
	}
	require.Len(t, rt.Clients(), 2)

	third, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer third.Close()

	buf := make([]byte, 1)
	third.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = third.Read(buf)
	require.Error(t, err, "expected the third connection to be closed by the server")
}

func writeLengthPrefixed(conn net.Conn, frame []byte) error {
	lengthPrefix := make([]byte, 4)
	lengthPrefix[0] = byte(len(frame))
	lengthPrefix[1] = byte(len(frame) >> 8)
	lengthPrefix[2] = byte(len(frame) >> 16)
	lengthPrefix[3] = byte(len(frame) >> 24)
	if _, err := conn.Write(lengthPrefix); err != nil {
		return err
	}
	_, err := conn.Write(frame)
	return err
}
