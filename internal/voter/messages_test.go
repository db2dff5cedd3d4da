package voter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartVoteMessageNumbersCandidates(t *testing.T) {
	msg := startVoteMessage([]string{"Narva", "Gorodok", "Skorpo"})

	assert.Contains(t, msg, "Please cast a vote")
	assert.Contains(t, msg, "1) Narva")
	assert.Contains(t, msg, "2) Gorodok")
	assert.Contains(t, msg, "3) Skorpo")
}

func TestAdminBroadcastKeepsNewlinesLiteral(t *testing.T) {
	cmd := adminBroadcast("line one\nline two")
	assert.Equal(t, "AdminBroadcast \"line one\nline two\"", cmd)
}

func TestAdminSetNextMap(t *testing.T) {
	assert.Equal(t, `AdminSetNextMap "Narva_AAS_v1"`, adminSetNextMap("Narva_AAS_v1"))
}
