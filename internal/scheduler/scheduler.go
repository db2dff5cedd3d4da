// Package scheduler runs the periodic map-check task: it polls the server
// for the current and next map, keeps the rotation cursor in step, and
// repairs the degenerate case where the next map equals the current one.
package scheduler

import (
	"context"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bsubei/rconbot/internal/config"
	"github.com/bsubei/rconbot/internal/mappool"
	"github.com/bsubei/rconbot/internal/voter"
)

// showNextMapPattern extracts both map names from the ShowNextMap response,
// e.g. "Current map is Gorodok AAS v1, Next map is Yehorivka RAAS v2".
var showNextMapPattern = regexp.MustCompile(`Current map is (.+?),\s*[Nn]ext map is\s*(.*)`)

// MapChecker polls the server's current map on a fixed period.
type MapChecker struct {
	logger   zerolog.Logger
	cfg      *config.Config
	exec     voter.Executor
	rotation *mappool.RotationProvider // nil when running on random maps only
	voter    *voter.Coordinator
}

// NewMapChecker creates the poller. rotation may be nil; the cursor update
// and same-map repair are then skipped.
func NewMapChecker(cfg *config.Config, exec voter.Executor, rotation *mappool.RotationProvider, v *voter.Coordinator) *MapChecker {
	return &MapChecker{
		logger:   log.With().Str("component", "mapcheck").Logger(),
		cfg:      cfg,
		exec:     exec,
		rotation: rotation,
		voter:    v,
	}
}

// Run polls until the context is cancelled. Poll failures are logged and
// retried on the next tick; a missed poll never affects vote state.
func (m *MapChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.MapCheckPeriod)
	defer ticker.Stop()

	m.logger.Info().Dur("period", m.cfg.MapCheckPeriod).Msg("map checker started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("map checker stopped")
			return
		case <-ticker.C:
			m.checkOnce(ctx)
		}
	}
}

func (m *MapChecker) checkOnce(ctx context.Context) {
	current, next, err := m.CurrentAndNextMap(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("map check failed")
		return
	}

	m.logger.Debug().Str("current", current).Str("next", next).Msg("map check")

	if m.rotation == nil {
		return
	}

	m.rotation.SetCurrentMap(current)

	// A vote can set the next map equal to the one already playing; repair
	// by picking a different rotation map so the server never repeats.
	if next != "" && next == current {
		candidates, err := m.rotation.NextCandidates(1)
		if err != nil || len(candidates) == 0 {
			m.logger.Warn().Err(err).Msg("next map equals current but no replacement available")
			return
		}
		m.logger.Warn().
			Str("map", current).
			Str("replacement", candidates[0]).
			Msg("next map is same as current map, replacing")
		m.voter.SetNextMap(candidates[0])
	}
}

// CurrentAndNextMap asks the server via ShowNextMap and parses the reply.
func (m *MapChecker) CurrentAndNextMap(ctx context.Context) (current, next string, err error) {
	response, err := m.exec.Execute(ctx, "ShowNextMap")
	if err != nil {
		return "", "", err
	}
	return ParseShowNextMap(response)
}

// ParseShowNextMap extracts the current and next map names from a
// ShowNextMap response body.
func ParseShowNextMap(response string) (current, next string, err error) {
	matches := showNextMapPattern.FindStringSubmatch(response)
	if matches == nil {
		return "", "", &ParseError{Response: response}
	}
	return matches[1], matches[2], nil
}

// ParseError reports an unrecognized ShowNextMap response.
type ParseError struct {
	Response string
}

func (e *ParseError) Error() string {
	return "scheduler: failed to parse ShowNextMap response: " + e.Response
}
