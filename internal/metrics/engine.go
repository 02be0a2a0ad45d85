// Package metrics derives pending and overdue figures from a persisted punch
// table. Field names and group sets come from configuration; the engine
// holds no deployment-specific names.
package metrics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ignite/punchlist-monitor/internal/config"
	"github.com/ignite/punchlist-monitor/internal/domain"
)

// Rules are the business-rule field names and values.
type Rules = config.MetricsConfig

// ErrMissingColumn is returned when the status column is not in the table.
var ErrMissingColumn = errors.New("metrics: required column missing")

// Count is one bucket of a tally.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// DailyCount is the number of items cleared on one day.
type DailyCount struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// Derived holds everything computed from the primary list.
type Derived struct {
	Now          time.Time
	TotalRows    int
	StatusCounts []Count
	PendingCount int
	// DisciplineCounts tallies the pending set by discipline.
	DisciplineCounts []Count

	AwaitingRoleReply *domain.Table
	RoleOverdue       *domain.Table
	SecondaryOverdue  *domain.Table
	// SecondaryDependent counts overdue rows also awaiting the role's reply;
	// SecondaryIndependent counts the rest.
	SecondaryDependent   int
	SecondaryIndependent int

	RoleAnsweredTotal         int
	EngineeringAnsweredByRole int

	Mentions       []string
	RoleCheck      *domain.Table
	SecondaryCheck *domain.Table
	// ClosureCheck holds items the role accepted, waiting for final closure.
	ClosureCheck  *domain.Table
	DailyClosures []DailyCount
}

// MentionLine joins the mentions with a space.
func (d *Derived) MentionLine() string { return strings.Join(d.Mentions, " ") }

// StatusCount returns the tally for one status value.
func (d *Derived) StatusCount(status string) int {
	for _, c := range d.StatusCounts {
		if same(c.Key, status) {
			return c.Count
		}
	}
	return 0
}

// columns caches the resolved positions of the rule fields.
type columns struct {
	status, group, acceptance, roleTarget, roleCleared, secondaryTarget, discipline int
}

func (c columns) get(row domain.Record, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// Compute derives the metrics of table at now. lookup maps a discipline
// (first column) to up to three responsible people (columns 2 to 4); it may
// be nil.
func Compute(table *domain.Table, lookup *domain.Table, rules Rules, now time.Time) (*Derived, error) {
	cols := columns{
		status:          table.Index(rules.StatusField),
		group:           table.Index(rules.OriginGroupField),
		acceptance:      table.Index(rules.AcceptanceField),
		roleTarget:      table.Index(rules.RoleTargetField),
		roleCleared:     table.Index(rules.RoleClearedField),
		secondaryTarget: table.Index(rules.SecondaryTargetField),
		discipline:      table.Index(rules.DisciplineField),
	}
	if cols.status < 0 {
		return nil, fmt.Errorf("%w: %q in %s", ErrMissingColumn, rules.StatusField, table.Name)
	}

	d := &Derived{
		Now:               now,
		TotalRows:         len(table.Rows),
		AwaitingRoleReply: domain.NewTable(table.Name, table.Columns),
		RoleOverdue:       domain.NewTable(table.Name, table.Columns),
		SecondaryOverdue:  domain.NewTable(table.Name, table.Columns),
		RoleCheck:         domain.NewTable(table.Name, table.Columns),
		SecondaryCheck:    domain.NewTable(table.Name, table.Columns),
		ClosureCheck:      domain.NewTable(table.Name, table.Columns),
	}

	statusTally := newTally()
	disciplineTally := newTally()
	disciplines := make(map[string]bool)
	closures := make(map[time.Time]int)
	secondarySeen := make(map[string]bool)
	var secondaryByTarget, secondaryByRefusal []domain.Record

	for _, row := range table.Rows {
		status := strings.TrimSpace(cols.get(row, cols.status))
		group := cols.get(row, cols.group)
		accept := parseAcceptance(cols.get(row, cols.acceptance))
		cleared := cols.get(row, cols.roleCleared)
		watched := inGroup(group, rules.WatchedGroups)
		engineering := same(group, rules.EngineeringGroup)

		statusTally.add(status)

		if set(cleared) {
			if watched {
				d.RoleAnsweredTotal++
			}
			if engineering {
				d.EngineeringAnsweredByRole++
			}
			if t, ok := parseDate(cleared, now.Location()); ok {
				closures[dateOnly(t)]++
			}
		}

		if status != strings.TrimSpace(rules.PendingStatus) {
			continue
		}

		d.PendingCount++
		discipline := strings.TrimSpace(cols.get(row, cols.discipline))
		disciplineTally.add(discipline)
		disciplines[discipline] = true

		awaiting := watched && accept == acceptUnset
		if awaiting {
			d.AwaitingRoleReply.Rows = append(d.AwaitingRoleReply.Rows, row)
			if before(cols.get(row, cols.roleTarget), now) && !set(cleared) {
				d.RoleOverdue.Rows = append(d.RoleOverdue.Rows, row)
			}
		}

		if before(cols.get(row, cols.secondaryTarget), now) {
			d.SecondaryOverdue.Rows = append(d.SecondaryOverdue.Rows, row)
			if awaiting {
				d.SecondaryDependent++
			} else {
				d.SecondaryIndependent++
			}
		}

		if watched && !set(cleared) {
			d.RoleCheck.Rows = append(d.RoleCheck.Rows, row)
		}
		if engineering && before(cols.get(row, cols.roleTarget), now) {
			secondaryByTarget = append(secondaryByTarget, row)
		}
		if watched && accept == acceptFalse {
			secondaryByRefusal = append(secondaryByRefusal, row)
		}
		if watched && accept == acceptTrue {
			d.ClosureCheck.Rows = append(d.ClosureCheck.Rows, row)
		}
	}

	for _, row := range append(secondaryByTarget, secondaryByRefusal...) {
		key := strings.Join(row, "\x1f")
		if secondarySeen[key] {
			continue
		}
		secondarySeen[key] = true
		d.SecondaryCheck.Rows = append(d.SecondaryCheck.Rows, row)
	}

	d.StatusCounts = statusTally.counts()
	d.DisciplineCounts = disciplineTally.counts()
	d.Mentions = Mentions(disciplines, lookup)
	d.DailyClosures = dailySeries(closures, now)
	return d, nil
}

// Mentions formats the responsible people of every discipline as sorted,
// deduplicated @name tokens. Disciplines absent from lookup are skipped.
func Mentions(disciplines map[string]bool, lookup *domain.Table) []string {
	if lookup == nil || len(disciplines) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	for disc := range disciplines {
		if disc == "" {
			continue
		}
		for _, row := range lookup.Rows {
			if len(row) == 0 || !same(row[0], disc) {
				continue
			}
			for i := 1; i <= 3 && i < len(row); i++ {
				if name := strings.TrimSpace(row[i]); name != "" {
					seen["@"+name] = true
				}
			}
			break
		}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// dailySeries returns one entry per day from the first closure up to now,
// with zero for days without closures.
func dailySeries(closures map[time.Time]int, now time.Time) []DailyCount {
	if len(closures) == 0 {
		return nil
	}
	var first time.Time
	for day := range closures {
		if first.IsZero() || day.Before(first) {
			first = day
		}
	}
	last := dateOnly(now)
	var out []DailyCount
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		out = append(out, DailyCount{Date: day, Count: closures[day]})
	}
	return out
}

type tally struct {
	order []string
	n     map[string]int
}

func newTally() *tally { return &tally{n: make(map[string]int)} }

func (t *tally) add(key string) {
	if _, ok := t.n[key]; !ok {
		t.order = append(t.order, key)
	}
	t.n[key]++
}

// counts returns the buckets by descending count, ties in first-seen order.
// Empty keys are dropped, as blank cells are not a category.
func (t *tally) counts() []Count {
	out := make([]Count, 0, len(t.order))
	for _, k := range t.order {
		if k == "" {
			continue
		}
		out = append(out, Count{Key: k, Count: t.n[k]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}
