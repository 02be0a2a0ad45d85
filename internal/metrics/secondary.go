package metrics

import (
	"fmt"
	"strings"

	"github.com/ignite/punchlist-monitor/internal/domain"
)

// Secondary holds the figures of a secondary list (E-House, Vendors).
type Secondary struct {
	List             string
	TotalRows        int
	PendingCount     int
	DisciplineCounts []Count
}

// ComputeSecondary tallies the rows of table whose status is the secondary
// pending marker, by discipline.
func ComputeSecondary(table *domain.Table, rules Rules) (*Secondary, error) {
	status := table.Index(rules.StatusField)
	if status < 0 {
		return nil, fmt.Errorf("%w: %q in %s", ErrMissingColumn, rules.StatusField, table.Name)
	}
	discipline := table.Index(rules.DisciplineField)

	s := &Secondary{List: table.Name, TotalRows: len(table.Rows)}
	disc := newTally()
	for _, row := range table.Rows {
		if status >= len(row) || !same(row[status], rules.SecondaryPending) {
			continue
		}
		s.PendingCount++
		if discipline >= 0 && discipline < len(row) {
			disc.add(strings.TrimSpace(row[discipline]))
		}
	}
	s.DisciplineCounts = disc.counts()
	return s, nil
}
