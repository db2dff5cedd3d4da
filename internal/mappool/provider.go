// Package mappool supplies candidate map identifiers for votes, either from
// a configured rotation file or by uniform random sampling from a layer
// list when no rotation is available.
package mappool

import "fmt"

// Provider produces candidate maps for a vote.
type Provider interface {
	// NextCandidates returns exactly count distinct map identifiers, or an
	// *InsufficientMapsError when the pool is too small.
	NextCandidates(count int) ([]string, error)
}

// InsufficientMapsError reports that the pool cannot produce the requested
// number of distinct candidates. The pending vote is aborted, never started
// with a short list.
type InsufficientMapsError struct {
	Requested int
	Available int
}

func (e *InsufficientMapsError) Error() string {
	return fmt.Sprintf("mappool: %d candidates requested but only %d maps available", e.Requested, e.Available)
}
