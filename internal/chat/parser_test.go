package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "plain player",
			raw:  "[ChatAll] [SteamID:76561198012345678] SomePlayer : !mapvote",
			want: Event{Channel: "ChatAll", SteamID: "76561198012345678", Speaker: "SomePlayer", Text: "!mapvote"},
		},
		{
			name: "clan tagged player",
			raw:  "[ChatAll] [SteamID:76561198000000001] [FP] Boss : !mapvote please",
			want: Event{Channel: "ChatAll", SteamID: "76561198000000001", Speaker: "Boss", ClanTag: "[FP]", Text: "!mapvote please"},
		},
		{
			name: "team chat",
			raw:  "[ChatTeam] [SteamID:42] Grunt : 2",
			want: Event{Channel: "ChatTeam", SteamID: "42", Speaker: "Grunt", Text: "2"},
		},
		{
			name: "empty message",
			raw:  "[ChatAll] [SteamID:42] Grunt : ",
			want: Event{Channel: "ChatAll", SteamID: "42", Speaker: "Grunt", Text: ""},
		},
		{
			name: "missing steam id",
			raw:  "[ChatAll] [SteamID:] Grunt : hello",
			want: Event{Channel: "ChatAll", SteamID: "", Speaker: "Grunt", Text: "hello"},
		},
		{
			name: "trailing nul and newline",
			raw:  "[ChatAll] [SteamID:42] Grunt : hi\x00\n",
			want: Event{Channel: "ChatAll", SteamID: "42", Speaker: "Grunt", Text: "hi"},
		},
		{
			name: "colon inside message",
			raw:  "[ChatAll] [SteamID:42] Grunt : note: vote 2",
			want: Event{Channel: "ChatAll", SteamID: "42", Speaker: "Grunt", Text: "note: vote 2"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseLine(tc.raw, now)
			require.True(t, ok)

			tc.want.Raw = tc.raw
			tc.want.Time = now
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseLineRejectsNonChat(t *testing.T) {
	rejects := []string{
		"",
		"Current map is Narva, Next map is Gorodok",
		"There are 14 players online",
		"[Something] [SteamID:42] Grunt : hi",
		"ChatAll [SteamID:42] Grunt : hi",
	}
	for _, raw := range rejects {
		_, ok := ParseLine(raw, time.Now())
		assert.False(t, ok, "should reject %q", raw)
	}
}

func TestVoterKeyPrefersSteamID(t *testing.T) {
	withID := Event{SteamID: "76561198000000001", Speaker: "Boss"}
	assert.Equal(t, "76561198000000001", withID.VoterKey())

	withoutID := Event{Speaker: "Boss"}
	assert.Equal(t, "Boss", withoutID.VoterKey())
}
