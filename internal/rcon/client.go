package rcon

import (
	"context"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Default client tuning. A single slow response is not fatal; the connection
// is only torn down after MaxConsecutiveTimeouts Execute calls time out in a
// row, or on a stream-level error.
const (
	DefaultDialTimeout     = 10 * time.Second
	DefaultAuthTimeout     = 10 * time.Second
	DefaultResponseTimeout = 10 * time.Second

	DefaultMaxConsecutiveTimeouts = 3
	DefaultEventBufferSize        = 256

	writeTimeout = 10 * time.Second
)

// Config tunes client timeouts and buffering. Zero values fall back to the
// package defaults.
type Config struct {
	DialTimeout            time.Duration
	AuthTimeout            time.Duration
	ResponseTimeout        time.Duration
	MaxConsecutiveTimeouts int
	EventBufferSize        int
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.MaxConsecutiveTimeouts <= 0 {
		c.MaxConsecutiveTimeouts = DefaultMaxConsecutiveTimeouts
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = DefaultEventBufferSize
	}
	return c
}

// ChatLine is an unsolicited chat broadcast received from the server,
// delivered through Events in the order the packets arrived.
type ChatLine struct {
	Text     string
	Received time.Time
}

// requestResult resolves a pendingRequest exactly once.
type requestResult struct {
	body string
	err  error
}

// pendingRequest tracks one in-flight Execute (or Authenticate) call. Owned
// by the client; created when the request is sent and destroyed when its
// responses are fully received, it times out, or the connection closes.
type pendingRequest struct {
	id         int32
	followupID int32 // terminator id for the multi-packet trick; 0 for auth
	isAuth     bool
	issuedAt   time.Time
	body       strings.Builder
	done       chan requestResult // buffered, resolved at most once
}

// Client owns one live RCON connection. A single read-loop goroutine decodes
// the stream and routes packets either to pending request resolution or to
// the chat event channel; the write path is serialized behind a mutex so
// authentication, commands and the empty follow-up packet never interleave
// their bytes on the wire.
type Client struct {
	logger zerolog.Logger
	cfg    Config

	conn net.Conn

	writeMu sync.Mutex

	mu          sync.Mutex
	pending     map[int32]*pendingRequest // keyed by both request id and follow-up id
	authPending *pendingRequest
	recentDone  []int32 // ring of retired ids; stray echoes for them are dropped
	recentNext  int
	nextID      int32
	authed      bool
	closed      bool
	timeouts    int // consecutive Execute timeouts

	events chan ChatLine
}

// Dial opens a TCP connection to the RCON endpoint and starts the read loop.
// The returned client is not yet authenticated.
func Dial(address string, port int, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	addr := net.JoinHostPort(address, strconv.Itoa(port))

	conn, err := net.DialTimeout("tcp", addr, cfg.DialTimeout)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}

	return NewClient(conn, cfg), nil
}

// NewClient wraps an established connection. Used by Dial and by tests that
// drive the client over an in-process pipe.
func NewClient(conn net.Conn, cfg Config) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		logger:     log.With().Str("component", "rcon").Str("remote", conn.RemoteAddr().String()).Logger(),
		cfg:        cfg,
		conn:       conn,
		pending:    make(map[int32]*pendingRequest),
		recentDone: make([]int32, 16),
		nextID:     1,
		events:     make(chan ChatLine, cfg.EventBufferSize),
	}
	go c.readLoop()
	return c
}

// Events returns the channel of unsolicited chat broadcasts. The channel is
// closed when the connection dies, which is also the disconnect signal for
// consumers. Sends never block the read loop: if a consumer falls behind the
// buffer, lines are dropped with a warning rather than stalling the protocol.
func (c *Client) Events() <-chan ChatLine {
	return c.events
}

// Authenticate performs the password handshake. The server answers an AUTH
// packet with an AUTH_RESPONSE whose id matches the request on success and
// is -1 on failure. Some servers send an empty RESPONSE_VALUE with the
// matching id first; that one is skipped.
func (c *Client) Authenticate(password string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	pr := &pendingRequest{
		id:       c.allocIDLocked(),
		isAuth:   true,
		issuedAt: time.Now(),
		done:     make(chan requestResult, 1),
	}
	c.authPending = pr
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.writePacket(Packet{ID: pr.id, Type: TypeAuth, Body: password})
	c.writeMu.Unlock()
	if err != nil {
		c.clearAuthPending(pr)
		return &AuthError{Reason: fmt.Sprintf("send failed: %v", err)}
	}

	timer := time.NewTimer(c.cfg.AuthTimeout)
	defer timer.Stop()

	select {
	case res := <-pr.done:
		if res.err != nil {
			return res.err
		}
		c.logger.Info().Msg("authenticated")
		return nil
	case <-timer.C:
		c.clearAuthPending(pr)
		return &AuthError{Reason: "no auth response within timeout"}
	}
}

// Execute sends a command and waits for the complete correlated response.
//
// A single response packet of exactly the maximum size is indistinguishable
// from the first fragment of a multi-packet response, so every command is
// followed by an empty EXEC_COMMAND packet with its own fresh id. The
// server echoes it with an empty RESPONSE_VALUE, which acts as the
// definitive terminator: all RESPONSE_VALUE bodies carrying the original id
// are accumulated in arrival order until the terminator id is observed.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if !c.authed {
		c.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	pr := &pendingRequest{
		id:       c.allocIDLocked(),
		issuedAt: time.Now(),
		done:     make(chan requestResult, 1),
	}
	pr.followupID = c.allocIDLocked()
	c.pending[pr.id] = pr
	c.pending[pr.followupID] = pr
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.writePacket(Packet{ID: pr.id, Type: TypeExecCommand, Body: command})
	if err == nil {
		err = c.writePacket(Packet{ID: pr.followupID, Type: TypeExecCommand})
	}
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(pr)
		return "", fmt.Errorf("rcon: send failed: %w", err)
	}

	timer := time.NewTimer(c.cfg.ResponseTimeout)
	defer timer.Stop()

	select {
	case res := <-pr.done:
		if res.err == nil {
			c.mu.Lock()
			c.timeouts = 0
			c.mu.Unlock()
		}
		return res.body, res.err
	case <-timer.C:
		c.dropPending(pr)
		c.noteTimeout(command)
		return "", ErrTimeout
	case <-ctx.Done():
		c.dropPending(pr)
		return "", ctx.Err()
	}
}

// Close tears down the connection. Every in-flight request is resolved with
// ErrCancelled so no caller is left dangling, and the events channel is
// closed once the read loop drains out.
func (c *Client) Close() error {
	c.closeWithErr(nil)
	return nil
}

// readLoop is the single reader of the connection. It appends raw bytes to
// a reassembly buffer, decodes as many full packets as are available, and
// dispatches each one. Decode errors are fatal: a misaligned stream cannot
// be resynchronized safely.
func (c *Client) readLoop() {
	defer close(c.events)

	buf := make([]byte, 0, MaxPacketSize)
	tmp := make([]byte, MaxPacketSize)

	for {
		n, err := c.conn.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			for {
				pkt, consumed, derr := DecodePacket(buf)
				if derr == ErrIncomplete {
					break
				}
				if derr != nil {
					c.logger.Error().Err(derr).Msg("protocol decode failed, closing connection")
					c.closeWithErr(derr)
					return
				}
				buf = buf[consumed:]
				c.handlePacket(pkt)
			}
		}
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.logger.Warn().Err(err).Msg("connection read failed")
			}
			c.closeWithErr(err)
			return
		}
	}
}

// handlePacket routes one decoded packet: auth handshake resolution first,
// then pending request correlation, then the chat event stream.
func (c *Client) handlePacket(pkt Packet) {
	c.mu.Lock()

	if ap := c.authPending; ap != nil {
		if pkt.ID == ap.id && pkt.Type == TypeResponseValue {
			// Empty mirror some servers send ahead of the real auth response.
			c.mu.Unlock()
			return
		}
		c.authPending = nil
		ok := pkt.ID == ap.id
		if ok {
			c.authed = true
		}
		c.mu.Unlock()

		if ok {
			ap.done <- requestResult{}
		} else {
			ap.done <- requestResult{err: &AuthError{Reason: fmt.Sprintf("server rejected password (response id %d)", pkt.ID)}}
		}
		return
	}

	if pr, found := c.pending[pkt.ID]; found {
		if pkt.ID == pr.followupID {
			// Terminator observed: the accumulated body is complete.
			delete(c.pending, pr.id)
			delete(c.pending, pr.followupID)
			c.retireLocked(pr.id)
			c.retireLocked(pr.followupID)
			body := pr.body.String()
			c.mu.Unlock()

			pr.done <- requestResult{body: body}
			return
		}
		pr.body.WriteString(pkt.Body)
		c.mu.Unlock()
		return
	}

	if c.isRetiredLocked(pkt.ID) {
		// Stray echo for a request that already completed or timed out,
		// e.g. the junk packet some servers append after the terminator.
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	// Uncorrelated packet: Squad streams chat broadcasts as RESPONSE_VALUE
	// frames with an out-of-band id (usually 0).
	line := ChatLine{Text: pkt.Body, Received: time.Now()}
	select {
	case c.events <- line:
	default:
		c.logger.Warn().Str("text", pkt.Body).Msg("event buffer full, dropping chat line")
	}
}

func (c *Client) writePacket(p Packet) error {
	data, err := EncodePacket(p)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err = c.conn.Write(data)
	return err
}

// allocIDLocked hands out a fresh positive request id. 0 is the chat
// sentinel and -1 the auth failure marker, so both are skipped on wrap.
func (c *Client) allocIDLocked() int32 {
	id := c.nextID
	if c.nextID == math.MaxInt32 {
		c.nextID = 1
	} else {
		c.nextID++
	}
	return id
}

// retireLocked records an id whose request is finished so late packets for
// it are discarded instead of masquerading as chat.
func (c *Client) retireLocked(id int32) {
	c.recentDone[c.recentNext] = id
	c.recentNext = (c.recentNext + 1) % len(c.recentDone)
}

func (c *Client) isRetiredLocked(id int32) bool {
	for _, done := range c.recentDone {
		if done != 0 && done == id {
			return true
		}
	}
	return false
}

func (c *Client) dropPending(pr *pendingRequest) {
	c.mu.Lock()
	delete(c.pending, pr.id)
	delete(c.pending, pr.followupID)
	c.retireLocked(pr.id)
	c.retireLocked(pr.followupID)
	c.mu.Unlock()
}

func (c *Client) clearAuthPending(pr *pendingRequest) {
	c.mu.Lock()
	if c.authPending == pr {
		c.authPending = nil
	}
	c.mu.Unlock()
}

func (c *Client) noteTimeout(command string) {
	c.mu.Lock()
	c.timeouts++
	count := c.timeouts
	limit := c.cfg.MaxConsecutiveTimeouts
	c.mu.Unlock()

	c.logger.Warn().Str("command", command).Int("consecutive", count).Msg("command timed out")
	if count >= limit {
		c.logger.Error().Int("count", count).Msg("too many consecutive timeouts, closing connection")
		c.closeWithErr(ErrTimeout)
	}
}

// closeWithErr shuts the connection down once and cancels everything that
// was still waiting on it.
func (c *Client) closeWithErr(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.authed = false

	cancelled := make(map[*pendingRequest]struct{})
	for _, pr := range c.pending {
		cancelled[pr] = struct{}{}
	}
	c.pending = make(map[int32]*pendingRequest)
	ap := c.authPending
	c.authPending = nil
	c.mu.Unlock()

	c.conn.Close()

	for pr := range cancelled {
		pr.done <- requestResult{err: ErrCancelled}
	}
	if ap != nil {
		ap.done <- requestResult{err: ErrCancelled}
	}

	if cause != nil {
		c.logger.Info().Err(cause).Msg("connection closed")
	} else {
		c.logger.Info().Msg("connection closed")
	}
}
