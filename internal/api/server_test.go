package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsubei/rconbot/internal/config"
	"github.com/bsubei/rconbot/internal/voter"
)

type fakeVotes struct {
	snap voter.Snapshot
}

func (f fakeVotes) Snapshot() voter.Snapshot { return f.snap }

func newTestServer(snap voter.Snapshot, connected bool) *Server {
	cfg := config.Default()
	cfg.Address = "192.0.2.10"
	cfg.Password = "pw"
	return NewServer(cfg, fakeVotes{snap: snap}, func() bool { return connected })
}

func doRequest(s *Server, path string) *httptest.ResponseRecorder {
	router := s.buildRouter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealthzConnected(t *testing.T) {
	w := doRequest(newTestServer(voter.Snapshot{}, true), "/healthz")

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["connected"])
}

func TestHealthzDisconnected(t *testing.T) {
	w := doRequest(newTestServer(voter.Snapshot{}, false), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusReportsVoteState(t *testing.T) {
	snap := voter.Snapshot{
		Status:     voter.StatusActive,
		SessionID:  "session-1",
		Candidates: []string{"Narva", "Gorodok"},
		Requesters: 5,
	}
	w := doRequest(newTestServer(snap, true), "/status")

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Server string `json:"server"`
		Vote   struct {
			Status     string   `json:"status"`
			SessionID  string   `json:"session_id"`
			Candidates []string `json:"candidates"`
		} `json:"vote"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "192.0.2.10:21114", body.Server)
	assert.Equal(t, "active", body.Vote.Status)
	assert.Equal(t, "session-1", body.Vote.SessionID)
	assert.Equal(t, []string{"Narva", "Gorodok"}, body.Vote.Candidates)
}

func TestUnknownRouteIs404(t *testing.T) {
	w := doRequest(newTestServer(voter.Snapshot{}, true), "/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
