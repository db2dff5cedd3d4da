package rcon_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsubei/rconbot/internal/rcon"
)

// gameServer drives the server side of an in-process pipe, speaking raw
// protocol frames. Read and write helpers report failures with assert so
// they are safe to call from a background goroutine.
type gameServer struct {
	t    *testing.T
	conn net.Conn
	buf  []byte
}

func (s *gameServer) read() (rcon.Packet, bool) {
	tmp := make([]byte, rcon.MaxPacketSize)
	for {
		pkt, n, err := rcon.DecodePacket(s.buf)
		if err == nil {
			s.buf = s.buf[n:]
			return pkt, true
		}
		if !errors.Is(err, rcon.ErrIncomplete) {
			assert.Fail(s.t, "server decode failed", "%v", err)
			return rcon.Packet{}, false
		}

		s.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, rerr := s.conn.Read(tmp)
		if rerr != nil {
			assert.Fail(s.t, "server read failed", "%v", rerr)
			return rcon.Packet{}, false
		}
		s.buf = append(s.buf, tmp[:n]...)
	}
}

func (s *gameServer) write(pkt rcon.Packet) {
	data, err := rcon.EncodePacket(pkt)
	if !assert.NoError(s.t, err) {
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err = s.conn.Write(data)
	assert.NoError(s.t, err)
}

// serveAuth accepts one password handshake, mimicking the empty mirror
// packet Squad sends ahead of the real auth response.
func (s *gameServer) serveAuth(password string) {
	pkt, ok := s.read()
	if !ok {
		return
	}
	assert.Equal(s.t, rcon.TypeAuth, pkt.Type)
	assert.Equal(s.t, password, pkt.Body)

	s.write(rcon.Packet{ID: pkt.ID, Type: rcon.TypeResponseValue})
	s.write(rcon.Packet{ID: pkt.ID, Type: rcon.TypeAuthResponse})
}

func newTestPair(t *testing.T, cfg rcon.Config) (*rcon.Client, *gameServer) {
	clientConn, serverConn := net.Pipe()
	client := rcon.NewClient(clientConn, cfg)
	t.Cleanup(func() { client.Close() })
	return client, &gameServer{t: t, conn: serverConn}
}

func TestAuthenticateSuccess(t *testing.T) {
	client, srv := newTestPair(t, rcon.Config{})

	go srv.serveAuth("hunter2")

	require.NoError(t, client.Authenticate("hunter2"))
}

func TestAuthenticateRejected(t *testing.T) {
	client, srv := newTestPair(t, rcon.Config{})

	go func() {
		if _, ok := srv.read(); !ok {
			return
		}
		// Failure marker is response id -1.
		srv.write(rcon.Packet{ID: -1, Type: rcon.TypeAuthResponse})
	}()

	err := client.Authenticate("wrong")
	var authErr *rcon.AuthError
	require.True(t, errors.As(err, &authErr))
}

func TestAuthenticateTimeout(t *testing.T) {
	client, srv := newTestPair(t, rcon.Config{AuthTimeout: 100 * time.Millisecond})

	go srv.read() // swallow the auth packet, never answer

	err := client.Authenticate("hunter2")
	var authErr *rcon.AuthError
	require.True(t, errors.As(err, &authErr))
}

func TestExecuteRequiresAuth(t *testing.T) {
	client, _ := newTestPair(t, rcon.Config{})

	_, err := client.Execute(context.Background(), "ListPlayers")
	assert.ErrorIs(t, err, rcon.ErrNotAuthenticated)
}

func TestExecuteSingleResponse(t *testing.T) {
	client, srv := newTestPair(t, rcon.Config{})

	go func() {
		srv.serveAuth("pw")

		cmd, ok := srv.read()
		if !ok {
			return
		}
		assert.Equal(t, "ShowNextMap", cmd.Body)
		followup, ok := srv.read()
		if !ok {
			return
		}
		assert.Empty(t, followup.Body)

		srv.write(rcon.Packet{ID: cmd.ID, Type: rcon.TypeResponseValue, Body: "Current map is Narva, Next map is Gorodok"})
		srv.write(rcon.Packet{ID: followup.ID, Type: rcon.TypeResponseValue})
	}()

	require.NoError(t, client.Authenticate("pw"))

	body, err := client.Execute(context.Background(), "ShowNextMap")
	require.NoError(t, err)
	assert.Equal(t, "Current map is Narva, Next map is Gorodok", body)
}

func TestExecuteReassemblesFragments(t *testing.T) {
	client, srv := newTestPair(t, rcon.Config{})

	go func() {
		srv.serveAuth("pw")

		cmd, ok := srv.read()
		if !ok {
			return
		}
		followup, ok := srv.read()
		if !ok {
			return
		}

		srv.write(rcon.Packet{ID: cmd.ID, Type: rcon.TypeResponseValue, Body: "part one, "})
		srv.write(rcon.Packet{ID: cmd.ID, Type: rcon.TypeResponseValue, Body: "part two, "})
		srv.write(rcon.Packet{ID: cmd.ID, Type: rcon.TypeResponseValue, Body: "part three"})
		srv.write(rcon.Packet{ID: followup.ID, Type: rcon.TypeResponseValue})
		// Stray echo after the terminator must not surface as chat.
		srv.write(rcon.Packet{ID: cmd.ID, Type: rcon.TypeResponseValue, Body: "junk"})
		srv.write(rcon.Packet{ID: 0, Type: rcon.TypeResponseValue, Body: "[ChatAll] hello"})
	}()

	require.NoError(t, client.Authenticate("pw"))

	body, err := client.Execute(context.Background(), "ListPlayers")
	require.NoError(t, err)
	assert.Equal(t, "part one, part two, part three", body)

	select {
	case line := <-client.Events():
		assert.Equal(t, "[ChatAll] hello", line.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("chat line never arrived")
	}
}

func TestChatBroadcastDelivery(t *testing.T) {
	client, srv := newTestPair(t, rcon.Config{})

	go func() {
		srv.serveAuth("pw")
		srv.write(rcon.Packet{ID: 0, Type: rcon.TypeResponseValue, Body: "[ChatAll] [SteamID:1] Player : !mapvote"})
	}()

	require.NoError(t, client.Authenticate("pw"))

	select {
	case line := <-client.Events():
		assert.Equal(t, "[ChatAll] [SteamID:1] Player : !mapvote", line.Text)
		assert.WithinDuration(t, time.Now(), line.Received, 5*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("chat line never arrived")
	}
}

func TestExecuteTimeout(t *testing.T) {
	client, srv := newTestPair(t, rcon.Config{ResponseTimeout: 100 * time.Millisecond})

	go func() {
		srv.serveAuth("pw")
		srv.read() // command
		srv.read() // follow-up, never answered
	}()

	require.NoError(t, client.Authenticate("pw"))

	_, err := client.Execute(context.Background(), "ListPlayers")
	assert.ErrorIs(t, err, rcon.ErrTimeout)
}

func TestExecuteContextCancel(t *testing.T) {
	client, srv := newTestPair(t, rcon.Config{})

	go func() {
		srv.serveAuth("pw")
		srv.read()
		srv.read()
	}()

	require.NoError(t, client.Authenticate("pw"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.Execute(ctx, "ListPlayers")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCloseCancelsInFlightExecute(t *testing.T) {
	client, srv := newTestPair(t, rcon.Config{})

	read := make(chan struct{})
	go func() {
		srv.serveAuth("pw")
		srv.read()
		srv.read()
		close(read)
	}()

	require.NoError(t, client.Authenticate("pw"))

	result := make(chan error, 1)
	go func() {
		_, err := client.Execute(context.Background(), "ListPlayers")
		result <- err
	}()

	<-read
	client.Close()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, rcon.ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("Execute never returned after Close")
	}
}

func TestEventsChannelClosesOnDisconnect(t *testing.T) {
	client, srv := newTestPair(t, rcon.Config{})

	go srv.serveAuth("pw")
	require.NoError(t, client.Authenticate("pw"))

	srv.conn.Close()

	select {
	case _, open := <-client.Events():
		assert.False(t, open, "events channel should close when the stream dies")
	case <-time.After(2 * time.Second):
		t.Fatal("events channel never closed")
	}

	// Calls after the connection died fail fast.
	_, err := client.Execute(context.Background(), "ListPlayers")
	assert.ErrorIs(t, err, rcon.ErrClosed)
}
