package mappool

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"
)

// RandomProvider samples candidates uniformly without replacement from a
// flat list of map layers. Stands in for the external map randomizer tool
// when no rotation file is configured.
type RandomProvider struct {
	mu     sync.Mutex
	layers []string
	rng    *rand.Rand
}

// NewRandomProvider builds a provider over the given layers. seed fixes the
// sampling order, which tests rely on; production passes a time-based seed.
func NewRandomProvider(layers []string, seed int64) *RandomProvider {
	return &RandomProvider{
		layers: layers,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// LoadLayersFile reads a JSON array of map layer names.
func LoadLayersFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mappool: failed to read layers file: %w", err)
	}
	var layers []string
	if err := json.Unmarshal(data, &layers); err != nil {
		return nil, fmt.Errorf("mappool: failed to parse layers file: %w", err)
	}
	return layers, nil
}

// NextCandidates draws count distinct layers by partial Fisher-Yates
// shuffle over a scratch copy.
func (p *RandomProvider) NextCandidates(count int) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if count <= 0 {
		return nil, nil
	}
	if count > len(p.layers) {
		return nil, &InsufficientMapsError{Requested: count, Available: len(p.layers)}
	}

	scratch := make([]string, len(p.layers))
	copy(scratch, p.layers)
	for i := 0; i < count; i++ {
		j := i + p.rng.Intn(len(scratch)-i)
		scratch[i], scratch[j] = scratch[j], scratch[i]
	}
	return scratch[:count], nil
}
