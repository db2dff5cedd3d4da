package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bsubei/rconbot/internal/chat"
	"github.com/bsubei/rconbot/internal/config"
	"github.com/bsubei/rconbot/internal/events"
	"github.com/bsubei/rconbot/internal/rcon"
	"github.com/bsubei/rconbot/internal/voter"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// rconManager owns the RCON connection lifecycle: dial, authenticate, pump
// chat lines into the coordinator, and reconnect with backoff when the
// stream dies. Execute routes through whichever client is currently live,
// so the rest of the bot never holds a direct client reference.
type rconManager struct {
	cfg         *config.Config
	bus         *events.Bus
	coordinator *voter.Coordinator
	logger      zerolog.Logger

	mu     sync.RWMutex
	client *rcon.Client
	closed bool
}

var _ voter.Executor = (*rconManager)(nil)

func newRCONManager(cfg *config.Config, bus *events.Bus) *rconManager {
	return &rconManager{
		cfg:    cfg,
		bus:    bus,
		logger: log.With().Str("component", "rcon-manager").Logger(),
	}
}

// Execute implements voter.Executor against the live connection.
func (m *rconManager) Execute(ctx context.Context, command string) (string, error) {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()

	if client == nil {
		return "", errNotConnected
	}
	return client.Execute(ctx, command)
}

// Connected reports whether an authenticated connection is currently up.
func (m *rconManager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// Close tears down the current connection and stops reconnecting.
func (m *rconManager) Close() {
	m.mu.Lock()
	m.closed = true
	client := m.client
	m.client = nil
	m.mu.Unlock()

	if client != nil {
		client.Close()
	}
}

// Run drives the connect/pump/reconnect loop until the context is cancelled
// or authentication fails with a rejected password.
func (m *rconManager) Run(ctx context.Context) error {
	delay := reconnectBaseDelay

	for {
		if ctx.Err() != nil || m.isClosed() {
			return nil
		}

		client, err := m.connect()
		if err != nil {
			var authErr *rcon.AuthError
			if errors.As(err, &authErr) {
				// A rejected password will not fix itself.
				return err
			}

			m.logger.Warn().Err(err).Dur("retry_in", delay).Msg("connection failed")
			if !sleepCtx(ctx, delay) {
				return nil
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		delay = reconnectBaseDelay
		m.setClient(client)
		m.logger.Info().Str("address", m.cfg.Address).Int("port", m.cfg.Port).Msg("connected and authenticated")
		m.bus.Emit(ctx, events.Event{Type: events.EventConnected, Source: "rcon-manager"})

		m.pump(client)

		m.setClient(nil)
		if ctx.Err() != nil || m.isClosed() {
			return nil
		}

		m.logger.Warn().Msg("connection lost, discarding vote state")
		m.coordinator.NotifyDisconnect()
		m.bus.Emit(ctx, events.Event{Type: events.EventDisconnected, Source: "rcon-manager"})

		if !sleepCtx(ctx, delay) {
			return nil
		}
	}
}

func (m *rconManager) connect() (*rcon.Client, error) {
	client, err := rcon.Dial(m.cfg.Address, m.cfg.Port, rcon.Config{})
	if err != nil {
		return nil, err
	}
	if err := client.Authenticate(m.cfg.Password); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// pump feeds chat lines into the coordinator until the event channel closes,
// which is the client's disconnect signal.
func (m *rconManager) pump(client *rcon.Client) {
	for line := range client.Events() {
		ev, ok := chat.ParseLine(line.Text, line.Received)
		if !ok {
			m.logger.Debug().Str("raw", line.Text).Msg("unparseable chat line")
			continue
		}
		m.coordinator.HandleChat(ev)
	}
}

func (m *rconManager) setClient(client *rcon.Client) {
	m.mu.Lock()
	old := m.client
	m.client = client
	m.mu.Unlock()

	if old != nil && old != client {
		old.Close()
	}
}

func (m *rconManager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// sleepCtx waits for d, returning false if the context was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
