// Package voter implements the map-vote coordinator: a single-goroutine
// state machine that consumes chat events, enforces cooldown and quorum
// rules, tallies ballots, and issues the winning map change back through
// the RCON transport.
package voter

import "time"

// Status is the coordinator's state. Exactly one session cycle is live per
// connection; the machine loops IDLE -> PENDING_QUORUM -> ACTIVE ->
// RESOLVING -> IDLE indefinitely.
type Status int

const (
	StatusIdle Status = iota
	StatusPendingQuorum
	StatusActive
	StatusResolving
)

var statusStrings = map[Status]string{
	StatusIdle:          "idle",
	StatusPendingQuorum: "pending_quorum",
	StatusActive:        "active",
	StatusResolving:     "resolving",
}

// String returns the lowercase name of the status.
func (s Status) String() string {
	if str, ok := statusStrings[s]; ok {
		return str
	}
	return "idle"
}

// MarshalJSON serializes Status as a JSON string (e.g. "active").
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// session is the live vote state, owned exclusively by the coordinator
// goroutine. Created when leaving IDLE, reset on resolution, timeout or
// forced cancellation.
type session struct {
	id         string
	status     Status
	candidates []string
	ballots    map[string]int // voter key -> candidate index, last write wins
	startedAt  time.Time
	deadline   time.Time
}

// Snapshot is a read-only copy of coordinator state for the status API and
// the interactive console.
type Snapshot struct {
	Status         Status         `json:"status"`
	SessionID      string         `json:"session_id,omitempty"`
	Candidates     []string       `json:"candidates,omitempty"`
	Ballots        map[string]int `json:"ballots,omitempty"`
	Deadline       time.Time      `json:"deadline,omitempty"`
	Requesters     int            `json:"requesters"`
	LastResolvedAt time.Time      `json:"last_resolved_at,omitempty"`
	RedoRequested  bool           `json:"redo_requested"`
}

// tally counts ballots per candidate and picks the winner. Ties break
// toward the candidate appearing earliest in the original ordering. Returns
// winner index -1 when no ballots were cast.
func tally(candidateCount int, ballots map[string]int) (winner, votes int) {
	counts := make([]int, candidateCount)
	for _, choice := range ballots {
		if choice >= 0 && choice < candidateCount {
			counts[choice]++
		}
	}

	winner = -1
	for i, n := range counts {
		if n > 0 && n > votes {
			winner = i
			votes = n
		}
	}
	return winner, votes
}
