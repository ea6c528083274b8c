// Package tablediff implements the recursive bisection algorithm that
// finds row-level differences between two TableSegments without
// downloading either side in full (spec.md §4.5).
package tablediff

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/rowdelta/rowdelta/tablesegment"
)

// Row is one emitted diff tuple: Sign is '+' for a row present only in
// side 1, '-' for a row present only in side 2 (spec.md §3, §4.6).
type Row struct {
	Sign   byte
	Values []any
}

// TableDiffer finds the diff between two SQL tables using hashing to
// quickly check equality, bisecting recursively where they differ.
// Works best when the two tables are mostly identical.
type TableDiffer struct {
	// BisectionFactor is the target number of children per split.
	BisectionFactor int
	// BisectionThreshold is the row count below which both sides are
	// materialized and compared locally.
	BisectionThreshold int64
	// Debug enables an O(n) sanity check at each level that children's
	// counts sum to the parent's count.
	Debug bool
	// Limit caps the number of diff rows emitted; 0 means unlimited.
	Limit int
	// Log receives per-level progress; defaults to an entry on logrus's
	// standard logger if nil.
	Log *logrus.Entry
}

// NewTableDiffer returns a TableDiffer with spec.md's defaults:
// bisection_factor=32, bisection_threshold=1024^2.
func NewTableDiffer() *TableDiffer {
	return &TableDiffer{
		BisectionFactor:    32,
		BisectionThreshold: 1024 * 1024,
		Log:                logrus.NewEntry(logrus.StandardLogger()),
	}
}

func (d *TableDiffer) validate() error {
	if d.BisectionFactor < 2 {
		return &ConfigError{msg: "bisection_factor must be at least 2"}
	}
	if int64(d.BisectionFactor) >= d.BisectionThreshold {
		return &ConfigError{msg: "bisection_factor must be less than bisection_threshold"}
	}
	return nil
}

// Diff compares t1 and t2 and streams the differences on the returned
// channel. The channel is closed when the diff completes or fails; any
// terminal error is delivered on the error channel before rowCh closes.
// Rows already sent before a failure are valid (spec.md §7's
// propagation policy).
func (d *TableDiffer) Diff(ctx context.Context, t1, t2 *tablesegment.TableSegment) (<-chan Row, <-chan error) {
	rowCh := make(chan Row)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		if err := d.validate(); err != nil {
			errCh <- err
			return
		}
		if d.Log == nil {
			d.Log = logrus.NewEntry(logrus.StandardLogger())
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		c1, err := t1.Checksum(ctx)
		if err != nil {
			errCh <- err
			return
		}
		c2, err := t2.Checksum(ctx)
		if err != nil {
			errCh <- err
			return
		}
		d.Log.WithFields(logrus.Fields{"checksum1": c1, "checksum2": c2}).Info("tablediff: root checksums")
		if c1 == c2 {
			return
		}

		state := &diffState{limit: int64(d.Limit)}
		if err := d.diffLevel(ctx, t1, t2, 0, rowCh, state, cancel); err != nil {
			if !(atomic.LoadInt32(&state.limitHit) == 1 && errors.Is(err, context.Canceled)) {
				errCh <- err
			}
		}
	}()

	return rowCh, errCh
}

// diffState is shared across the whole recursion tree.
type diffState struct {
	limit    int64 // 0 = unlimited
	emitted  int64 // atomic
	limitHit int32 // atomic; set before cancel so Diff can tell a reached-limit
	// cancellation apart from a genuine failure
}

// tryEmit sends row on rowCh unless the limit has already been
// reached, in which case it marks the limit as hit and cancels cancel
// so callers stop issuing further queries. Cancelling ctx this way
// makes sibling goroutines' in-flight queries fail with
// context.Canceled; Diff uses limitHit to recognize that failure as
// the expected side effect of stopping early, not a real error.
func (s *diffState) tryEmit(ctx context.Context, rowCh chan<- Row, row Row, cancel context.CancelFunc) bool {
	if s.limit > 0 && atomic.AddInt64(&s.emitted, 1) > s.limit {
		atomic.StoreInt32(&s.limitHit, 1)
		cancel()
		return false
	}
	select {
	case rowCh <- row:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *TableDiffer) diffLevel(ctx context.Context, t1, t2 *tablesegment.TableSegment, level int, rowCh chan<- Row, state *diffState, cancel context.CancelFunc) error {
	c1, err := t1.Count(ctx)
	if err != nil {
		return err
	}
	c2, err := t2.Count(ctx)
	if err != nil {
		return err
	}

	if c1 < d.BisectionThreshold && c2 < d.BisectionThreshold {
		return d.diffLeaf(ctx, t1, t2, rowCh, state, cancel)
	}

	checkpoints, err := t1.ChooseCheckpoints(ctx, d.BisectionFactor-1)
	if err != nil {
		return err
	}
	if len(checkpoints) == 0 {
		return fmt.Errorf("tablediff: choose_checkpoints returned no checkpoints at level %d, unexpected given bisection preconditions", level)
	}

	found, err := t2.FindCheckpoints(ctx, checkpoints)
	if err != nil {
		return err
	}
	mutual := dedupeKeys(found)
	d.Log.WithFields(logrus.Fields{"level": level, "candidates": len(checkpoints), "mutual": len(mutual)}).Debug("tablediff: mutual checkpoints")
	if len(mutual) == 0 {
		return &DivergenceError{Level: level}
	}

	segments1 := t1.SegmentByCheckpoints(mutual)
	segments2 := t2.SegmentByCheckpoints(mutual)

	if d.Debug {
		if err := d.checkAdditivity(ctx, segments1, c1, level, "1"); err != nil {
			return err
		}
		if err := d.checkAdditivity(ctx, segments2, c2, level, "2"); err != nil {
			return err
		}
	}

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		firstErr error
	)
	for i := range segments1 {
		a, b := segments1[i], segments2[i]
		wg.Add(1)
		go func() {
			defer wg.Done()

			checksumA, err := a.Checksum(ctx)
			if err != nil {
				errOnce.Do(func() { firstErr = err; cancel() })
				return
			}
			checksumB, err := b.Checksum(ctx)
			if err != nil {
				errOnce.Do(func() { firstErr = err; cancel() })
				return
			}
			if checksumA == checksumB {
				return // subtree pruned
			}
			if err := d.diffLevel(ctx, a, b, level+1, rowCh, state, cancel); err != nil {
				errOnce.Do(func() { firstErr = err; cancel() })
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func (d *TableDiffer) checkAdditivity(ctx context.Context, segments []*tablesegment.TableSegment, parentCount int64, level int, side string) error {
	var sum int64
	for _, s := range segments {
		c, err := s.Count(ctx)
		if err != nil {
			return err
		}
		sum += c
	}
	if sum != parentCount {
		return &ConsistencyError{Level: level, ParentCount: parentCount, ChildSum: sum, Side: side}
	}
	return nil
}

func dedupeKeys(keys []tablesegment.Key) []tablesegment.Key {
	seen := make(map[string]bool, len(keys))
	out := make([]tablesegment.Key, 0, len(keys))
	for _, k := range keys {
		s := k.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, k)
	}
	return out
}

func (d *TableDiffer) diffLeaf(ctx context.Context, t1, t2 *tablesegment.TableSegment, rowCh chan<- Row, state *diffState, cancel context.CancelFunc) error {
	rows1, err := t1.GetValues(ctx)
	if err != nil {
		return err
	}
	rows2, err := t2.GetValues(ctx)
	if err != nil {
		return err
	}

	set1 := rowSet(rows1)
	set2 := rowSet(rows2)

	for key, row := range set1 {
		if _, ok := set2[key]; ok {
			continue
		}
		if !state.tryEmit(ctx, rowCh, Row{Sign: '+', Values: row}, cancel) {
			return nil
		}
	}
	for key, row := range set2 {
		if _, ok := set1[key]; ok {
			continue
		}
		if !state.tryEmit(ctx, rowCh, Row{Sign: '-', Values: row}, cancel) {
			return nil
		}
	}
	return nil
}

// rowSet builds a set of row tuples keyed by their structural
// representation, collapsing duplicates within one side per spec.md
// §4.6.
func rowSet(rows [][]any) map[string][]any {
	set := make(map[string][]any, len(rows))
	for _, row := range rows {
		set[rowKey(row)] = row
	}
	return set
}

func rowKey(row []any) string {
	return fmt.Sprintf("%#v", row)
}
