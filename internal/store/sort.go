package store

import (
	"fmt"
	"strings"

	"github.com/sadaqah/roundup-service/internal/domain"
)

const (
	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// SortSpec is a validated ORDER BY field and direction.
type SortSpec struct {
	Field     string
	Direction string
}

// ResolveSort turns a client sort key into a SortSpec. A leading '-' selects DESC; an
// empty key selects allowed[0] ASC. Matching is exact and case-sensitive.
func ResolveSort(requested string, allowed []string) (SortSpec, error) {
	if len(allowed) == 0 {
		return SortSpec{}, fmt.Errorf("%w: no sortable fields", domain.ErrInvalidSort)
	}
	if requested == "" {
		return SortSpec{Field: allowed[0], Direction: SortAsc}, nil
	}

	direction := SortAsc
	field := requested
	if strings.HasPrefix(field, "-") {
		direction = SortDesc
		field = field[1:]
	}
	for _, candidate := range allowed {
		if candidate == field {
			return SortSpec{Field: candidate, Direction: direction}, nil
		}
	}
	return SortSpec{}, fmt.Errorf("%w: %q", domain.ErrInvalidSort, requested)
}
