package gridding

import (
	"math"

	"github.com/couchcryptid/storm-data-maxprecip/internal/domain"
)

// GateFilter selects the gates that take part in gridding.
type GateFilter struct {
	// ExcludeTransition drops every gate of rays recorded during an antenna transition.
	ExcludeTransition bool
	// ExcludeMasked drops gates that are masked (NaN) in any of the named fields.
	ExcludeMasked []string
}

// BasicFilter excludes antenna transitions and gates masked in field.
func BasicFilter(field string) GateFilter {
	return GateFilter{ExcludeTransition: true, ExcludeMasked: []string{field}}
}

// Excluded reports whether the gate at (ray, gate) is filtered out.
func (f GateFilter) Excluded(s *domain.Sweep, ray, gate int) bool {
	if f.ExcludeTransition && ray < len(s.Transition) && s.Transition[ray] {
		return true
	}
	for _, name := range f.ExcludeMasked {
		field, ok := s.Fields[name]
		if !ok {
			return true
		}
		if math.IsNaN(field.Get(ray, gate)) {
			return true
		}
	}
	return false
}
