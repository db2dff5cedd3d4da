package mappool

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomCandidatesAreDistinct(t *testing.T) {
	layers := []string{"L1", "L2", "L3", "L4", "L5", "L6", "L7", "L8"}
	p := NewRandomProvider(layers, 1)

	for i := 0; i < 20; i++ {
		got, err := p.NextCandidates(4)
		require.NoError(t, err)
		require.Len(t, got, 4)

		seen := make(map[string]struct{}, len(got))
		for _, layer := range got {
			_, dup := seen[layer]
			assert.False(t, dup, "duplicate candidate %q in draw %d", layer, i)
			seen[layer] = struct{}{}
			assert.Contains(t, layers, layer)
		}
	}
}

func TestRandomSeedIsDeterministic(t *testing.T) {
	layers := []string{"L1", "L2", "L3", "L4", "L5"}

	first, err := NewRandomProvider(layers, 7).NextCandidates(3)
	require.NoError(t, err)
	second, err := NewRandomProvider(layers, 7).NextCandidates(3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRandomInsufficientLayers(t *testing.T) {
	p := NewRandomProvider([]string{"L1"}, 1)

	_, err := p.NextCandidates(2)
	var insufficient *InsufficientMapsError
	assert.True(t, errors.As(err, &insufficient))
}

func TestLoadLayersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.json")
	require.NoError(t, os.WriteFile(path, []byte(`["Narva_AAS_v1","Gorodok_RAAS_v2"]`), 0o644))

	layers, err := LoadLayersFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Narva_AAS_v1", "Gorodok_RAAS_v2"}, layers)
}

func TestLoadLayersFileBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"a list"}`), 0o644))

	_, err := LoadLayersFile(path)
	assert.Error(t, err)
}
