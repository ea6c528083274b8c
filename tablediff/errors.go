package tablediff

import "fmt"

// ConfigError indicates an invalid TableDiffer parameter combination
// (spec.md §7): bisection_factor < 2, or bisection_factor >=
// bisection_threshold.
type ConfigError struct{ msg string }

func (e *ConfigError) Error() string { return "tablediff: config: " + e.msg }

// DivergenceError is returned when find_checkpoints comes back empty
// after deduplication: no checkpoint key chosen from side 1 exists in
// side 2, meaning the two segments share no key at all. spec.md §7
// calls this fatal with the message "tables are too different".
type DivergenceError struct{ Level int }

func (e *DivergenceError) Error() string {
	return "tablediff: tables are too different"
}

// ConsistencyError indicates a debug-mode sanity check failed: the
// counts of a segment's children did not sum to the parent's count,
// implying a non-repeatable read or a logic bug (spec.md §7).
type ConsistencyError struct {
	Level                int
	ParentCount, ChildSum int64
	Side                  string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf(
		"tablediff: consistency check failed at level %d on side %s: parent count %d != children sum %d",
		e.Level, e.Side, e.ParentCount, e.ChildSum,
	)
}
