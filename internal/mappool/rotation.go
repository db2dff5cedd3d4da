package mappool

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RotationProvider serves candidates from an ordered map rotation, advancing
// a cursor as the server moves through it. Deterministic: the next N maps
// after the current one, wrapping around the end of the rotation.
type RotationProvider struct {
	mu      sync.Mutex
	logger  zerolog.Logger
	maps    []string
	current int // index of the map currently being played, -1 if unknown
}

// NewRotationProvider builds a provider over an ordered rotation. The
// rotation must not contain duplicate identifiers; duplicates would make
// the cursor position ambiguous.
func NewRotationProvider(maps []string) (*RotationProvider, error) {
	seen := make(map[string]struct{}, len(maps))
	for _, m := range maps {
		if _, dup := seen[m]; dup {
			return nil, fmt.Errorf("mappool: duplicate map %q in rotation", m)
		}
		seen[m] = struct{}{}
	}
	return &RotationProvider{
		logger:  log.With().Str("component", "mappool").Logger(),
		maps:    maps,
		current: -1,
	}, nil
}

// LoadRotationFile reads a rotation file listing one map per line. Blank
// lines are skipped; surrounding whitespace is trimmed.
func LoadRotationFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mappool: failed to open rotation file: %w", err)
	}
	defer f.Close()

	var maps []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			maps = append(maps, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mappool: failed to read rotation file: %w", err)
	}
	return maps, nil
}

// SetCurrentMap moves the cursor to the given map. Unknown maps leave the
// cursor where it was; the rotation still serves from the last known point.
func (p *RotationProvider) SetCurrentMap(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, m := range p.maps {
		if m == name {
			p.current = i
			return
		}
	}
	p.logger.Warn().Str("map", name).Msg("current map not found in rotation")
}

// NextCandidates returns the next count maps after the cursor, wrapping
// around the rotation. With no cursor set, candidates start from the head.
func (p *RotationProvider) NextCandidates(count int) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if count <= 0 {
		return nil, nil
	}
	if count > len(p.maps) {
		return nil, &InsufficientMapsError{Requested: count, Available: len(p.maps)}
	}

	candidates := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		candidates = append(candidates, p.maps[(p.current+i)%len(p.maps)])
	}
	return candidates, nil
}

// Maps returns a copy of the full rotation.
func (p *RotationProvider) Maps() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.maps))
	copy(out, p.maps)
	return out
}
