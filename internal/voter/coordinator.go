package voter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bsubei/rconbot/internal/chat"
	"github.com/bsubei/rconbot/internal/config"
	"github.com/bsubei/rconbot/internal/events"
	"github.com/bsubei/rconbot/internal/mappool"
)

// Executor issues admin commands through the RCON transport.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// coordinator input messages. Chat events, timer expirations and console
// commands all funnel through one queue so session mutation is serialized
// on a single goroutine; there is no second mutation path.
type coordMsg interface{}

type chatMsg struct{ ev chat.Event }
type deadlineMsg struct{ sessionID string }
type reminderMsg struct{ sessionID string }
type disconnectMsg struct{}
type forceStartMsg struct{}
type setMapMsg struct{ name string }

// Coordinator drives the vote state machine. All state mutation happens on
// the Run goroutine; other goroutines interact only through the message
// queue and the read-only Snapshot.
type Coordinator struct {
	logger     zerolog.Logger
	cfg        *config.Config
	exec       Executor
	pool       mappool.Provider
	randomPool mappool.Provider // used for redo votes; falls back to pool
	dispatcher *chat.Dispatcher
	bus        *events.Bus

	now func() time.Time

	msgs chan coordMsg

	// Owned by the Run goroutine.
	session        *session
	requesters     map[string]struct{}
	lastResolvedAt time.Time
	redoRequested  bool
	deadlineTimer  *time.Timer
	reminderTimer  *time.Timer

	snapMu   sync.RWMutex
	snapshot Snapshot
}

// New creates a coordinator. randomPool may be nil; redo votes then reuse
// the primary pool.
func New(cfg *config.Config, exec Executor, pool, randomPool mappool.Provider, bus *events.Bus) *Coordinator {
	return &Coordinator{
		logger:     log.With().Str("component", "voter").Logger(),
		cfg:        cfg,
		exec:       exec,
		pool:       pool,
		randomPool: randomPool,
		dispatcher: chat.NewDispatcher(cfg.VoteCommands),
		bus:        bus,
		now:        time.Now,
		msgs:       make(chan coordMsg, 128),
		requesters: make(map[string]struct{}),
	}
}

// HandleChat feeds one chat event into the coordinator queue, preserving
// the arrival order of server packets.
func (c *Coordinator) HandleChat(ev chat.Event) {
	c.msgs <- chatMsg{ev: ev}
}

// NotifyDisconnect resets the machine to IDLE, discarding any in-flight
// vote. No map change is issued: if the bot dies, the server's own rotation
// governs the next map.
func (c *Coordinator) NotifyDisconnect() {
	c.msgs <- disconnectMsg{}
}

// ForceStart starts a vote from the admin console, bypassing quorum and
// cooldown. No-op while a vote is already running.
func (c *Coordinator) ForceStart() {
	c.msgs <- forceStartMsg{}
}

// SetNextMap issues a set-next-map command from the admin console.
func (c *Coordinator) SetNextMap(name string) {
	c.msgs <- setMapMsg{name: name}
}

// Snapshot returns a copy of the current vote state.
func (c *Coordinator) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapshot
}

// Run drains the message queue until the context is cancelled. Commands
// issued while handling one message complete (or time out) before the next
// message is processed.
func (c *Coordinator) Run(ctx context.Context) {
	c.logger.Info().
		Dur("cooldown", c.cfg.VotingCooldown).
		Dur("duration", c.cfg.VotingDuration).
		Int("quorum", c.cfg.QuorumThreshold).
		Str("clan_tag", c.cfg.ClanTag).
		Msg("vote coordinator started")

	c.publishSnapshot()

	for {
		select {
		case <-ctx.Done():
			c.stopTimers()
			c.logger.Info().Msg("vote coordinator stopped")
			return
		case m := <-c.msgs:
			c.handle(ctx, m)
			c.publishSnapshot()
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, m coordMsg) {
	switch msg := m.(type) {
	case chatMsg:
		c.handleChatEvent(ctx, msg.ev)
	case deadlineMsg:
		if c.session != nil && c.session.id == msg.sessionID && c.session.status == StatusActive {
			c.resolve(ctx)
		}
	case reminderMsg:
		if c.session != nil && c.session.id == msg.sessionID && c.session.status == StatusActive {
			c.broadcast(ctx, startVoteMessage(c.session.candidates))
		}
	case disconnectMsg:
		c.handleDisconnect()
	case forceStartMsg:
		if c.session == nil || c.session.status == StatusIdle || c.session.status == StatusPendingQuorum {
			c.startVote(ctx, true)
		} else {
			c.logger.Info().Msg("forced vote start ignored, vote already running")
		}
	case setMapMsg:
		c.issueSetNextMap(ctx, msg.name)
	}
}

func (c *Coordinator) handleChatEvent(ctx context.Context, ev chat.Event) {
	var candidates []string
	if c.session != nil && c.session.status == StatusActive {
		candidates = c.session.candidates
	}

	switch cmd := c.dispatcher.Dispatch(ev, candidates).(type) {
	case chat.VoteRequested:
		c.handleVoteRequested(ctx, cmd.Event)
	case chat.BallotCast:
		c.handleBallot(cmd.Event, cmd.Choice)
	}
}

func (c *Coordinator) handleVoteRequested(ctx context.Context, ev chat.Event) {
	privileged := c.cfg.ClanTag != "" && ev.ClanTag == c.cfg.ClanTag

	if c.session != nil && (c.session.status == StatusActive || c.session.status == StatusResolving) {
		if privileged && c.cfg.RestartOnPrivileged {
			c.logger.Info().Str("speaker", ev.Speaker).Msg("privileged restart of running vote")
			c.stopTimers()
			c.session = nil
			c.startVote(ctx, true)
			return
		}
		c.logger.Debug().Str("speaker", ev.Speaker).Msg("vote request ignored, vote already running")
		return
	}

	if privileged {
		if remaining := c.cooldownRemaining(); remaining > 0 {
			c.logger.Info().
				Str("speaker", ev.Speaker).
				Dur("remaining", remaining).
				Msg("privileged vote request during cooldown")
			c.requesters[ev.VoterKey()] = struct{}{}
			return
		}
		c.logger.Info().Str("speaker", ev.Speaker).Str("clan_tag", ev.ClanTag).Msg("privileged vote request")
		c.startVote(ctx, true)
		return
	}

	// Non-privileged: accumulate toward quorum.
	before := len(c.requesters)
	c.requesters[ev.VoterKey()] = struct{}{}
	count := len(c.requesters)

	if c.session == nil || c.session.status == StatusIdle {
		c.session = &session{status: StatusPendingQuorum}
	}

	if count >= c.cfg.QuorumThreshold {
		if remaining := c.cooldownRemaining(); remaining > 0 {
			c.logger.Info().
				Int("requesters", count).
				Dur("remaining", remaining).
				Msg("quorum reached but cooldown not elapsed")
			return
		}
		c.startVote(ctx, false)
		return
	}

	if count != before {
		needed := c.cfg.QuorumThreshold - count
		c.logger.Info().
			Str("speaker", ev.Speaker).
			Int("requesters", count).
			Int("needed", needed).
			Msg("map vote requested")
		c.broadcast(ctx, quorumProgressMessage(needed))
		c.bus.Emit(ctx, events.Event{
			Type:   events.EventQuorumProgress,
			Source: "voter",
			Payload: events.QuorumProgressPayload{
				Requesters: count,
				Threshold:  c.cfg.QuorumThreshold,
			},
		})
	}
}

func (c *Coordinator) handleBallot(ev chat.Event, choice int) {
	// Session is guaranteed ACTIVE here; the dispatcher only produces
	// ballots when it was handed candidates.
	if c.now().After(c.session.deadline) {
		c.logger.Debug().Str("speaker", ev.Speaker).Msg("ballot after deadline ignored")
		return
	}

	key := ev.VoterKey()
	prev, resubmitted := c.session.ballots[key]
	c.session.ballots[key] = choice

	logEv := c.logger.Info().
		Str("speaker", ev.Speaker).
		Int("choice", choice+1).
		Str("map", c.session.candidates[choice])
	if resubmitted {
		logEv = logEv.Int("previous", prev+1)
	}
	logEv.Msg("ballot recorded")
}

// startVote transitions to ACTIVE: fetch candidates, broadcast the numbered
// options, arm the deadline and halftime reminder timers.
func (c *Coordinator) startVote(ctx context.Context, privileged bool) {
	pool := c.pool
	if c.redoRequested && c.randomPool != nil {
		pool = c.randomPool
	}
	c.redoRequested = false

	candidates, err := pool.NextCandidates(c.cfg.CandidateCount)
	if err != nil {
		// Candidate pool too small: abort back to IDLE without broadcasting
		// options. The coordinator never crashes on vote-domain errors.
		c.logger.Error().Err(err).Msg("failed to fetch vote candidates, aborting vote")
		c.session = nil
		c.requesters = make(map[string]struct{})
		c.bus.Emit(ctx, events.Event{
			Type:    events.EventVoteFailed,
			Source:  "voter",
			Payload: events.VoteFailedPayload{Reason: err.Error()},
		})
		return
	}
	if c.cfg.IncludeRedoOption {
		candidates = append(candidates, RedoOption)
	}

	now := c.now()
	c.session = &session{
		id:         uuid.NewString(),
		status:     StatusActive,
		candidates: candidates,
		ballots:    make(map[string]int),
		startedAt:  now,
		deadline:   now.Add(c.cfg.VotingDuration),
	}

	c.logger.Info().
		Str("session", c.session.id).
		Strs("candidates", candidates).
		Bool("privileged", privileged).
		Time("deadline", c.session.deadline).
		Msg("map vote started")

	c.broadcast(ctx, startVoteMessage(candidates))
	c.armTimers(c.session.id)

	c.bus.Emit(ctx, events.Event{
		Type:   events.EventVoteStarted,
		Source: "voter",
		Payload: events.VoteStartedPayload{
			SessionID:  c.session.id,
			Candidates: candidates,
			Deadline:   c.session.deadline,
			Privileged: privileged,
		},
	})
}

// resolve tallies the finished vote and issues the winning map change. Zero
// ballots means no map change (the server's rotation stands), but the
// cooldown clock still restarts.
func (c *Coordinator) resolve(ctx context.Context) {
	sess := c.session
	sess.status = StatusResolving
	c.stopTimers()

	c.broadcast(ctx, votingOverMessage)

	winner, votes := tally(len(sess.candidates), sess.ballots)

	switch {
	case winner < 0:
		c.logger.Warn().Str("session", sess.id).Msg("map vote ended with no ballots")
		c.broadcast(ctx, voteFailedMessage)
		c.bus.Emit(ctx, events.Event{
			Type:    events.EventVoteFailed,
			Source:  "voter",
			Payload: events.VoteFailedPayload{SessionID: sess.id, Reason: "no ballots cast"},
		})

	case c.cfg.IncludeRedoOption && winner == len(sess.candidates)-1:
		c.logger.Info().Str("session", sess.id).Int("votes", votes).Msg("redo option won, next vote uses random candidates")
		c.broadcast(ctx, voteRedoMessage(votes))
		c.redoRequested = true
		c.bus.Emit(ctx, events.Event{
			Type:   events.EventVoteResolved,
			Source: "voter",
			Payload: events.VoteResolvedPayload{
				SessionID:    sess.id,
				Winner:       RedoOption,
				WinnerVotes:  votes,
				TotalBallots: len(sess.ballots),
				Redo:         true,
			},
		})

	default:
		winnerMap := sess.candidates[winner]
		c.logger.Info().
			Str("session", sess.id).
			Str("winner", winnerMap).
			Int("votes", votes).
			Int("ballots", len(sess.ballots)).
			Msg("map vote resolved")
		c.broadcast(ctx, voteResultMessage(winnerMap, votes))
		c.issueSetNextMap(ctx, winnerMap)
		c.bus.Emit(ctx, events.Event{
			Type:   events.EventVoteResolved,
			Source: "voter",
			Payload: events.VoteResolvedPayload{
				SessionID:    sess.id,
				Winner:       winnerMap,
				WinnerVotes:  votes,
				TotalBallots: len(sess.ballots),
			},
		})
	}

	c.lastResolvedAt = c.now()
	c.requesters = make(map[string]struct{})
	c.session = nil
}

func (c *Coordinator) handleDisconnect() {
	if c.session != nil {
		c.logger.Warn().Str("status", c.session.status.String()).Msg("transport lost, discarding in-flight vote")
	}
	c.stopTimers()
	c.session = nil
	c.requesters = make(map[string]struct{})
}

func (c *Coordinator) issueSetNextMap(ctx context.Context, name string) {
	if _, err := c.exec.Execute(ctx, adminSetNextMap(name)); err != nil {
		c.logger.Error().Err(err).Str("map", name).Msg("failed to set next map")
		return
	}
	c.logger.Info().Str("map", name).Msg("next map set")
	c.bus.Emit(ctx, events.Event{
		Type:    events.EventMapSet,
		Source:  "voter",
		Payload: events.MapSetPayload{Map: name},
	})
}

// broadcast sends an admin chat broadcast, logging instead of failing:
// per-call command errors are recoverable and never stop the vote.
func (c *Coordinator) broadcast(ctx context.Context, message string) {
	if _, err := c.exec.Execute(ctx, adminBroadcast(message)); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.logger.Warn().Err(err).Msg("broadcast failed")
	}
}

func (c *Coordinator) cooldownRemaining() time.Duration {
	if c.lastResolvedAt.IsZero() {
		return 0
	}
	remaining := c.cfg.VotingCooldown - c.now().Sub(c.lastResolvedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *Coordinator) armTimers(sessionID string) {
	duration := c.cfg.VotingDuration
	c.deadlineTimer = time.AfterFunc(duration, func() {
		c.msgs <- deadlineMsg{sessionID: sessionID}
	})
	if half := duration / 2; half > 0 {
		c.reminderTimer = time.AfterFunc(half, func() {
			c.msgs <- reminderMsg{sessionID: sessionID}
		})
	}
}

func (c *Coordinator) stopTimers() {
	if c.deadlineTimer != nil {
		c.deadlineTimer.Stop()
		c.deadlineTimer = nil
	}
	if c.reminderTimer != nil {
		c.reminderTimer.Stop()
		c.reminderTimer = nil
	}
}

func (c *Coordinator) publishSnapshot() {
	snap := Snapshot{
		Status:         StatusIdle,
		Requesters:     len(c.requesters),
		LastResolvedAt: c.lastResolvedAt,
		RedoRequested:  c.redoRequested,
	}
	if c.session != nil {
		snap.Status = c.session.status
		snap.SessionID = c.session.id
		snap.Deadline = c.session.deadline
		snap.Candidates = append([]string(nil), c.session.candidates...)
		if len(c.session.ballots) > 0 {
			snap.Ballots = make(map[string]int, len(c.session.ballots))
			for k, v := range c.session.ballots {
				snap.Ballots[k] = v
			}
		}
	}

	c.snapMu.Lock()
	c.snapshot = snap
	c.snapMu.Unlock()
}
