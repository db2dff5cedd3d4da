// Package events defines the vote lifecycle event bus. The coordinator is
// the only producer; telemetry and logging consumers subscribe without ever
// touching vote state directly.
package events

import "time"

// EventType identifies a vote lifecycle event.
type EventType string

const (
	EventConnected      EventType = "rcon_connected"
	EventDisconnected   EventType = "rcon_disconnected"
	EventVoteStarted    EventType = "vote_started"
	EventVoteResolved   EventType = "vote_resolved"
	EventVoteFailed     EventType = "vote_failed"
	EventQuorumProgress EventType = "quorum_progress"
	EventMapSet         EventType = "map_set"
	EventShutdown       EventType = "shutdown"
)

// Event is a single event published through the Bus.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// VoteStartedPayload is published when a session transitions to ACTIVE.
type VoteStartedPayload struct {
	SessionID  string    `json:"session_id"`
	Candidates []string  `json:"candidates"`
	Deadline   time.Time `json:"deadline"`
	Privileged bool      `json:"privileged"`
}

// VoteResolvedPayload is published when a session resolves with a winner.
type VoteResolvedPayload struct {
	SessionID    string `json:"session_id"`
	Winner       string `json:"winner"`
	WinnerVotes  int    `json:"winner_votes"`
	TotalBallots int    `json:"total_ballots"`
	Redo         bool   `json:"redo"`
}

// VoteFailedPayload is published when a session ends without a winner
// (zero ballots or candidate fetch failure).
type VoteFailedPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// QuorumProgressPayload is published as non-privileged requests accumulate.
type QuorumProgressPayload struct {
	Requesters int `json:"requesters"`
	Threshold  int `json:"threshold"`
}

// MapSetPayload is published when a set-next-map command is issued.
type MapSetPayload struct {
	Map string `json:"map"`
}
