package registry

import (
	"fmt"

	"github.com/pabra/hilfmir/internal/errors"
)

// Seeker ports are allocated from this closed range.
const (
	PortMin = 41300
	PortMax = 41399
)

// NextFreePort returns the lowest port in [PortMin, PortMax] that is not in used.
func NextFreePort(used map[int]bool) (int, error) {
	for port := PortMin; port <= PortMax; port++ {
		if !used[port] {
			return port, nil
		}
	}
	return 0, errors.New(errors.KindNoFreePorts,
		fmt.Sprintf("No more free ports (%d-%d).", PortMin, PortMax),
		"Remove a seeker that is no longer needed")
}
