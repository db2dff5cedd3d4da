// Package chat parses raw Squad chat broadcast lines into structured events
// and dispatches them against the small vote-command grammar. Normal chat
// traffic dominates; anything that is not a vote command or a ballot is
// silently ignored.
package chat

import (
	"regexp"
	"strings"
	"time"
)

// chatLinePattern matches the Squad chat broadcast format:
//
//	[ChatAll] [SteamID:76561198000000000] [FP] PlayerName : !mapvote
//
// The channel prefix and SteamID bracket are fixed; the clan tag is an
// optional leading bracket inside the player name.
var (
	chatLinePattern = regexp.MustCompile(`^\[(Chat[A-Za-z]+)\]\s*\[SteamID:(\w*)\]\s*(.+?)\s*:\s*(.*)$`)
	clanTagPattern  = regexp.MustCompile(`^\[([^\[\]]+)\]\s*`)
)

// Event is one structured chat message. Immutable once produced; the
// coordinator consumes each event exactly once.
type Event struct {
	Channel string // e.g. "ChatAll"
	SteamID string
	Speaker string // display name, clan tag stripped
	ClanTag string // "[FP]" style tag, empty when absent
	Text    string // message text after the colon
	Raw     string
	Time    time.Time
}

// VoterKey identifies the speaker for ballot bookkeeping. SteamIDs are
// stable across renames, so they win over display names when present.
func (e Event) VoterKey() string {
	if e.SteamID != "" {
		return e.SteamID
	}
	return e.Speaker
}

// ParseLine parses a raw chat broadcast line. Returns false for anything
// that does not match the chat format (console noise, command responses).
func ParseLine(raw string, at time.Time) (Event, bool) {
	m := chatLinePattern.FindStringSubmatch(strings.TrimRight(raw, "\x00\n\r "))
	if m == nil {
		return Event{}, false
	}

	ev := Event{
		Channel: m[1],
		SteamID: m[2],
		Speaker: m[3],
		Text:    m[4],
		Raw:     raw,
		Time:    at,
	}

	if tag := clanTagPattern.FindStringSubmatch(ev.Speaker); tag != nil {
		ev.ClanTag = "[" + tag[1] + "]"
		ev.Speaker = strings.TrimSpace(clanTagPattern.ReplaceAllString(ev.Speaker, ""))
	}

	return ev, true
}
