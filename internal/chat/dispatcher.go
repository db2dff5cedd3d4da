package chat

import (
	"strconv"
	"strings"
)

// DefaultVoteCommands are the chat tokens that count as a map-vote request.
var DefaultVoteCommands = []string{"!mapvote", "!votemap", "!rtv"}

// Command is a structured vote-domain event produced by the Dispatcher.
// Exactly one of the concrete types below, or nil for ignored chatter.
type Command interface {
	isCommand()
}

// VoteRequested is emitted when a speaker asks for a map vote.
type VoteRequested struct {
	Event Event
}

// BallotCast is emitted while a vote is active and a speaker names a valid
// candidate, either by its 1-based number or by a unique name prefix.
type BallotCast struct {
	Event  Event
	Choice int // 0-based index into the active candidate list
}

func (VoteRequested) isCommand() {}
func (BallotCast) isCommand()    {}

// Dispatcher classifies chat events against the vote grammar. It holds no
// vote state itself; the active candidate list is passed in per call so the
// coordinator remains the single owner of the session.
type Dispatcher struct {
	commands []string // lowercase vote-command tokens
}

// NewDispatcher builds a dispatcher for the given vote-command tokens
// (DefaultVoteCommands when empty).
func NewDispatcher(commands []string) *Dispatcher {
	if len(commands) == 0 {
		commands = DefaultVoteCommands
	}
	lowered := make([]string, len(commands))
	for i, cmd := range commands {
		lowered[i] = strings.ToLower(cmd)
	}
	return &Dispatcher{commands: lowered}
}

// Dispatch maps a chat event to a vote command. candidates is the active
// vote's candidate list, or nil when no vote is active (ballots are then
// never produced). Returns nil for irrelevant or malformed lines.
func (d *Dispatcher) Dispatch(ev Event, candidates []string) Command {
	if d.hasVoteCommand(ev.Text) {
		return VoteRequested{Event: ev}
	}

	if len(candidates) > 0 {
		if choice, ok := parseBallot(ev.Text, candidates); ok {
			return BallotCast{Event: ev, Choice: choice}
		}
	}

	return nil
}

func (d *Dispatcher) hasVoteCommand(text string) bool {
	lowered := strings.ToLower(text)
	for _, cmd := range d.commands {
		if strings.Contains(lowered, cmd) {
			return true
		}
	}
	return false
}

// parseBallot interprets the last word of the message as a vote, the way
// players actually type them ("2", "gorodok", "I'll go 3"). A numeral must
// be in 1..len(candidates); otherwise the word must be a prefix of exactly
// one candidate name (case-insensitive).
func parseBallot(text string, candidates []string) (int, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return 0, false
	}
	word := fields[len(fields)-1]

	if n, err := strconv.Atoi(word); err == nil {
		if n >= 1 && n <= len(candidates) {
			return n - 1, true
		}
		return 0, false
	}

	lowered := strings.ToLower(word)
	match := -1
	for i, candidate := range candidates {
		if strings.HasPrefix(strings.ToLower(candidate), lowered) {
			if match >= 0 {
				return 0, false // ambiguous prefix
			}
			match = i
		}
	}
	if match >= 0 {
		return match, true
	}
	return 0, false
}
