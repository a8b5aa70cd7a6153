//go:build integration
// +build integration

// Package integration exercises a running server end-to-end over a real
// TCP loopback connection, per the benchmark's end-to-end scenarios (§8).
package integration

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	echobench "github.com/behrlich/echobench"
)

// TestEpollSingleConnectionRoundTrip is end-to-end scenario 1: one
// connection sends 128 bytes and expects the identical 128 bytes back, and
// the server's counters reflect exactly one accepted and one closed
// connection.
func TestEpollSingleConnectionRoundTrip(t *testing.T) {
	server, err := echobench.NewServer(echobench.Options{
		Engine: echobench.EngineEpoll,
		Port:   19991,
	})
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- server.Run() }()

	payload := make([]byte, 128)
	for i := range payload {
		payload[i] = byte('A' + i%26)
	}

	conn, err := net.Dial("tcp", "127.0.0.1:19991")
	require.NoError(t, err)

	_, err = conn.Write(payload)
	require.NoError(t, err)

	got := make([]byte, len(payload))
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	require.NoError(t, conn.Close())
	time.Sleep(200 * time.Millisecond)

	server.Shutdown()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down in time")
	}
	require.NoError(t, server.Close())

	snap := server.MetricsSnapshot()
	require.Equal(t, uint64(1), snap.ConnsAccepted)
	require.Equal(t, uint64(1), snap.ConnsClosed)
	require.GreaterOrEqual(t, snap.Messages, uint64(1))
	require.Equal(t, uint64(128), snap.Bytes)
}

// TestEpollClientImmediateDisconnect is the boundary behaviour where a
// client connects and disconnects without sending data: accepted and
// closed both advance and the server does not crash.
func TestEpollClientImmediateDisconnect(t *testing.T) {
	server, err := echobench.NewServer(echobench.Options{
		Engine: echobench.EngineEpoll,
		Port:   19995,
	})
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- server.Run() }()

	conn, err := net.Dial("tcp", "127.0.0.1:19995")
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	time.Sleep(200 * time.Millisecond)

	server.Shutdown()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down in time")
	}
	require.NoError(t, server.Close())

	snap := server.MetricsSnapshot()
	require.Equal(t, uint64(1), snap.ConnsAccepted)
	require.Equal(t, uint64(1), snap.ConnsClosed)
}
