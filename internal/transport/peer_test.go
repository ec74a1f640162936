package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerSendReceiveRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := NewPeer(clientConn, 1, 4, 4)
	server := NewPeer(serverConn, 2, 4, 4)
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	payload := []byte{1, 2, 3, 4, 5}
	require.NoError(t, client.Send(ctx, payload))

	select {
	case got := <-server.Inbound():
		assert.Equal(t, payload, got)
	case <-ctx.Done():
		t.Fatalf("timed out waiting for inbound frame")
	}
}

func TestPeerCloseStopsGoroutines(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	client := NewPeer(clientConn, 1, 4, 4)
	require.NoError(t, client.Close())

	select {
	case <-client.Done():
	default:
		t.Fatalf("expected Done() to be closed after Close()")
	}
}

func TestPeerRejectsOversizeFrame(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	server := NewPeer(serverConn, 2, 4, 4)
	defer server.Close()

	huge := make([]byte, MaxFrameSize+1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		client := NewPeer(clientConn, 1, 1, 1)
		_ = client.Send(ctx, huge)
	}()

	select {
	case <-server.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected server peer to close on oversize frame")
	}
}
