// Package sorter implements adaptive run sorting: items arrive one at a time
// and are folded into maximal sorted runs kept in an ordered map keyed by
// each run's lower boundary. Runs grow at either edge, absorb values that
// fall inside them, and merge when a value bridges two neighbours. The
// sorted output is the in-order concatenation of the runs.
package sorter

import (
	"cmp"
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/runsort/pkg/rbtree"
	"github.com/Sumatoshi-tech/runsort/pkg/run"
)

// ErrIncomparable is returned in strict mode when two values have no defined order.
var ErrIncomparable = errors.New("sorter: incomparable values")

// Sorter arranges items of type T into sorted runs keyed by K.
//
// A Sorter is not safe for concurrent use. Distinct sorters are independent.
type Sorter[T, K any] struct {
	key        func(T) K
	keyCompare func(a, b K) int
	compare    CompareFunc[T]
	order      func(a, b T) int

	runs     *rbtree.RBTree[K, *run.Run[T]]
	observer Observer[T]

	blockSize int
	strict    bool
	size      int
}

// RunSummary describes one run of a sorter.
type RunSummary[T any] struct {
	Start  T   `json:"start"  yaml:"start"`
	End    T   `json:"end"    yaml:"end"`
	Len    int `json:"len"    yaml:"len"`
	Blocks int `json:"blocks" yaml:"blocks"`
}

// New creates a sorter over an ordered type, keyed by the items themselves.
func New[T cmp.Ordered](opts ...Option[T]) *Sorter[T, T] {
	return NewWithKey(func(v T) T { return v }, opts...)
}

// NewWithKey creates a sorter over an ordered type whose runs are keyed by key.
//
// Output is sorted when key is non-decreasing in the item order. Other keys
// still yield a permutation of the input; negation, for instance, produces
// descending output.
func NewWithKey[T, K cmp.Ordered](key func(T) K, opts ...Option[T]) *Sorter[T, K] {
	s := newSorter(key, Ordered[T], cmp.Compare[K], opts)
	s.order = cmp.Compare[T]

	return s
}

// NewFunc creates a sorter for arbitrary types. compare orders items and may
// report pairs without a defined order; keyCompare orders keys and must be total.
func NewFunc[T, K any](key func(T) K, compare CompareFunc[T], keyCompare func(a, b K) int, opts ...Option[T]) *Sorter[T, K] {
	return newSorter(key, compare, keyCompare, opts)
}

func newSorter[T, K any](key func(T) K, compare CompareFunc[T], keyCompare func(a, b K) int, opts []Option[T]) *Sorter[T, K] {
	cfg := newSettings(opts)

	return &Sorter[T, K]{
		key:        key,
		keyCompare: keyCompare,
		compare:    compare,
		order:      totalOrder(compare),
		runs:       rbtree.NewRBTreeFunc(rbtree.NewAllocator[K, *run.Run[T]](), keyCompare),
		observer:   cfg.observer(),
		blockSize:  cfg.blockSize,
		strict:     cfg.strict,
	}
}

// Sort returns a sorted copy of items. NaN values are kept and end up
// in front of the values they could not be compared with.
func Sort[T cmp.Ordered](items []T) []T {
	out, _ := New[T]().Sort(items) //nolint:errcheck // permissive sorters do not return errors.

	return out
}

// SortBy returns items ordered by key, see NewWithKey.
func SortBy[T, K cmp.Ordered](items []T, key func(T) K) []T {
	out, _ := NewWithKey(key).Sort(items) //nolint:errcheck // permissive sorters do not return errors.

	return out
}

// Sort discards the current state, places every item and returns the
// flattened result. items is not modified.
//
// In strict mode the first incomparable pair aborts the sort with ErrIncomparable.
func (s *Sorter[T, K]) Sort(items []T) ([]T, error) {
	s.Reset()
	s.observer.SortStarted(len(items))

	for idx, item := range items {
		err := s.Add(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", idx, err)
		}
	}

	out := s.Result()
	s.observer.SortFinished(out)

	return out, nil
}

// Add places one item.
func (s *Sorter[T, K]) Add(item T) error {
	decision, err := s.place(item)
	if err != nil {
		return err
	}

	s.size++
	s.observer.ItemPlaced(item, decision)

	return nil
}

// Result flattens the runs in key order.
func (s *Sorter[T, K]) Result() []T {
	out := make([]T, 0, s.size)

	for _, r := range s.runs.All() {
		out = r.AppendTo(out)
	}

	return out
}

// Reset drops every run. The node arena is kept for reuse.
func (s *Sorter[T, K]) Reset() {
	s.runs.Erase()
	s.size = 0
}

// Len returns the number of items placed since the last reset.
func (s *Sorter[T, K]) Len() int {
	return s.size
}

// Runs returns the current number of runs.
func (s *Sorter[T, K]) Runs() int {
	return s.runs.Len()
}

// Summary describes the current runs in key order.
func (s *Sorter[T, K]) Summary() []RunSummary[T] {
	summary := make([]RunSummary[T], 0, s.runs.Len())

	for _, r := range s.runs.All() {
		summary = append(summary, RunSummary[T]{
			Start:  r.Start(),
			End:    r.End(),
			Len:    r.Len(),
			Blocks: r.Blocks(),
		})
	}

	return summary
}

// place runs the decision procedure for one item. Branches are tried in a
// fixed order: containment, bridging, extension to the right of the
// predecessor, extension to the left of the successor, new run.
func (s *Sorter[T, K]) place(item T) (Decision, error) {
	key := s.key(item)

	if s.runs.Len() == 0 {
		s.addRun(key, item)

		return DecisionNewRun, nil
	}

	pred := s.runs.FindLE(key)
	succ := s.runs.FindGE(key)

	for _, it := range []rbtree.Iterator[K, *run.Run[T]]{pred, succ} {
		if !it.Valid() {
			continue
		}

		entry := it.Item()

		inside, err := s.contains(entry.Value, item)
		if err != nil {
			return 0, err
		}

		if inside {
			entry.Value.InsertSorted(item, s.order)
			s.rekey(entry.Key, entry.Value)

			return DecisionContain, nil
		}
	}

	if pred.Valid() && succ.Valid() && !pred.Equal(succ) {
		left, right := pred.Item().Value, succ.Item().Value

		between, err := s.between(left.End(), item, right.Start())
		if err != nil {
			return 0, err
		}

		if between {
			left.AppendRight(item)
			left.MergeRight(right)
			s.runs.DeleteWithIterator(succ)
			s.observer.RunsMerged(left, 1)

			return DecisionBridge, nil
		}
	}

	if pred.Valid() {
		entry := pred.Item()

		after, err := s.less(entry.Value.End(), item)
		if err != nil {
			return 0, err
		}

		if after {
			entry.Value.AppendRight(item)

			return DecisionExtendRight, nil
		}
	}

	if succ.Valid() {
		entry := succ.Item()

		before, err := s.less(item, entry.Value.Start())
		if err != nil {
			return 0, err
		}

		if before {
			entry.Value.AppendLeft(item)
			s.rekey(entry.Key, entry.Value)

			return DecisionExtendLeft, nil
		}
	}

	s.addRun(key, item)

	return DecisionNewRun, nil
}

func (s *Sorter[T, K]) addRun(key K, item T) {
	r := run.Of(item, s.blockSize)
	s.observer.RunCreated(r)
	s.insertRun(key, r)
}

// insertRun binds r to key. When key already holds a run, r is folded into
// that run instead.
func (s *Sorter[T, K]) insertRun(key K, r *run.Run[T]) {
	existing, err := s.runs.Get(key)
	if err != nil {
		s.runs.Insert(key, r)

		return
	}

	s.absorb(existing, r)
	s.observer.RunsMerged(existing, 1)
	s.rekey(key, existing)
}

// rekey moves r, currently stored under oldKey, to the key of its start.
func (s *Sorter[T, K]) rekey(oldKey K, r *run.Run[T]) {
	newKey := s.key(r.Start())
	if s.keyCompare(oldKey, newKey) == 0 {
		return
	}

	_, err := s.runs.Delete(oldKey)
	if err != nil {
		panic(fmt.Sprintf("sorter: invariant violated: run %v missing from the map: %v", r, err))
	}

	s.insertRun(newKey, r)
}

// absorb moves the contents of src into dst, keeping dst sorted.
func (s *Sorter[T, K]) absorb(dst, src *run.Run[T]) {
	switch {
	case s.order(dst.End(), src.Start()) <= 0:
		dst.MergeRight(src)
	case s.order(src.End(), dst.Start()) <= 0:
		dst.MergeLeft(src)
	default:
		for v := range src.All() {
			dst.InsertSorted(v, s.order)
		}
	}
}

// contains reports whether start <= item <= end for r.
func (s *Sorter[T, K]) contains(r *run.Run[T], item T) (bool, error) {
	lower, err := s.lessOrEqual(r.Start(), item)
	if err != nil || !lower {
		return false, err
	}

	return s.lessOrEqual(item, r.End())
}

func (s *Sorter[T, K]) between(lo, item, hi T) (bool, error) {
	above, err := s.less(lo, item)
	if err != nil || !above {
		return false, err
	}

	return s.less(item, hi)
}

func (s *Sorter[T, K]) less(a, b T) (bool, error) {
	return s.test(a, b, func(result int) bool { return result < 0 })
}

func (s *Sorter[T, K]) lessOrEqual(a, b T) (bool, error) {
	return s.test(a, b, func(result int) bool { return result <= 0 })
}

func (s *Sorter[T, K]) test(a, b T, satisfied func(int) bool) (bool, error) {
	result, ok := s.compare(a, b)
	if ok {
		return satisfied(result), nil
	}

	if s.strict {
		return false, fmt.Errorf("%w: %v and %v", ErrIncomparable, a, b)
	}

	return false, nil
}
