// Package run provides Run, a chunked sequence container holding one
// contiguous sorted span of values.
//
// A Run stores its elements in blocks of bounded size. Appends at either end
// are O(1) amortized, insertion at an arbitrary position costs O(blocks +
// block size), and two runs merge by moving blocks rather than elements.
package run

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"
)

// Block sizing.
const (
	// DefaultBlockSize is the block capacity used when none is configured.
	DefaultBlockSize = 64

	// MinBlockSize is the smallest accepted block capacity. Smaller requests are raised to it.
	MinBlockSize = 8

	// splitFactor bounds a block at splitFactor*blockSize elements before it is halved.
	splitFactor = 2
)

// ErrEmpty is returned when a Run is constructed from no values.
var ErrEmpty = errors.New("run: empty values")

// ErrIndexOutOfRange is returned by InsertAt for an index outside [0, Len()].
var ErrIndexOutOfRange = errors.New("run: index out of range")

// Run is a non-empty ordered sequence stored as a list of blocks.
//
// Start and End are cached and re-derived after every structural change.
// A Run absorbed by MergeRight or MergeLeft is left empty and must not be used again.
type Run[T any] struct {
	blocks    [][]T
	size      int
	blockSize int
	start     T
	end       T
}

// New creates a Run holding a copy of values, chunked into blocks of blockSize.
func New[T any](values []T, blockSize int) (*Run[T], error) {
	if len(values) == 0 {
		return nil, ErrEmpty
	}

	r := &Run[T]{blockSize: normalizeBlockSize(blockSize)}
	r.blocks = make([][]T, 0, (len(values)+r.blockSize-1)/r.blockSize)

	for lo := 0; lo < len(values); lo += r.blockSize {
		hi := min(lo+r.blockSize, len(values))
		r.blocks = append(r.blocks, slices.Clone(values[lo:hi]))
		r.size += hi - lo
	}

	r.refresh()

	return r, nil
}

// Of creates a Run holding the single value v.
func Of[T any](v T, blockSize int) *Run[T] {
	r := &Run[T]{blockSize: normalizeBlockSize(blockSize), size: 1}

	block := make([]T, 1, r.blockSize)
	block[0] = v
	r.blocks = [][]T{block}
	r.start, r.end = v, v

	return r
}

func normalizeBlockSize(blockSize int) int {
	if blockSize <= 0 {
		return DefaultBlockSize
	}

	return max(blockSize, MinBlockSize)
}

// Start returns the first element.
func (r *Run[T]) Start() T {
	return r.start
}

// End returns the last element.
func (r *Run[T]) End() T {
	return r.end
}

// Len returns the number of elements.
func (r *Run[T]) Len() int {
	return r.size
}

// Blocks returns the number of blocks.
func (r *Run[T]) Blocks() int {
	return len(r.blocks)
}

// BlockSize returns the target block capacity.
func (r *Run[T]) BlockSize() int {
	return r.blockSize
}

func (r *Run[T]) String() string {
	if r.size == 0 {
		return "Run(absorbed)"
	}

	return fmt.Sprintf("Run(start=%v, end=%v, size=%d, blocks=%d)", r.start, r.end, r.size, len(r.blocks))
}

// AppendRight adds v after the last element.
func (r *Run[T]) AppendRight(v T) {
	r.mustBeLive()

	last := len(r.blocks) - 1
	if len(r.blocks[last]) >= r.blockSize {
		r.blocks = append(r.blocks, make([]T, 0, r.blockSize))
		last++
	}

	r.blocks[last] = append(r.blocks[last], v)
	r.size++
	r.end = v

	r.splitIfOversized(last)
}

// AppendLeft adds v before the first element.
func (r *Run[T]) AppendLeft(v T) {
	r.mustBeLive()

	if len(r.blocks[0]) >= r.blockSize {
		r.blocks = slices.Insert(r.blocks, 0, make([]T, 0, r.blockSize))
	}

	r.blocks[0] = slices.Insert(r.blocks[0], 0, v)
	r.size++
	r.start = v

	r.splitIfOversized(0)
}

// InsertAt inserts v so that it ends up at the global position index.
func (r *Run[T]) InsertAt(index int, v T) error {
	r.mustBeLive()

	if index < 0 || index > r.size {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrIndexOutOfRange, index, r.size)
	}

	switch index {
	case r.size:
		r.AppendRight(v)

		return nil
	case 0:
		r.AppendLeft(v)

		return nil
	}

	blockIdx, inner := r.locate(index)
	r.blocks[blockIdx] = slices.Insert(r.blocks[blockIdx], inner, v)
	r.size++

	r.refresh()
	r.splitIfOversized(blockIdx)

	return nil
}

// locate maps a global index in [0, size) to a block and an offset inside it.
func (r *Run[T]) locate(index int) (blockIdx, inner int) {
	offset := 0

	for idx, block := range r.blocks {
		if offset+len(block) > index {
			return idx, index - offset
		}

		offset += len(block)
	}

	panic(fmt.Sprintf("run: invariant violated: index %d beyond %d elements", index, offset))
}

// InsertSorted inserts v keeping the run ordered by cmp. The run must
// already be ordered by cmp. Elements equal to v stay in front of it.
func (r *Run[T]) InsertSorted(v T, cmp func(a, b T) int) {
	r.mustBeLive()

	if cmp(v, r.end) >= 0 {
		r.AppendRight(v)

		return
	}

	if cmp(v, r.start) <= 0 {
		r.AppendLeft(v)

		return
	}

	for blockIdx, block := range r.blocks {
		if cmp(v, block[len(block)-1]) > 0 {
			continue
		}

		pos := sort.Search(len(block), func(i int) bool {
			return cmp(block[i], v) > 0
		})

		r.blocks[blockIdx] = slices.Insert(block, pos, v)
		r.size++

		r.refresh()
		r.splitIfOversized(blockIdx)

		return
	}

	// Unreachable for ordered contents: v < end puts it inside the last block.
	r.AppendRight(v)
}

// MergeRight moves every block of other after the last block of r.
// other is left empty.
func (r *Run[T]) MergeRight(other *Run[T]) {
	r.mustBeLive()
	r.mustAbsorb(other)

	seam := len(r.blocks) - 1

	r.blocks = append(r.blocks, other.blocks...)
	r.size += other.size
	other.discard()

	r.refresh()
	r.splitIfOversized(seam + 1)
	r.splitIfOversized(seam)
}

// MergeLeft moves every block of other before the first block of r.
// other is left empty.
func (r *Run[T]) MergeLeft(other *Run[T]) {
	r.mustBeLive()
	r.mustAbsorb(other)

	seam := len(other.blocks)

	r.blocks = append(other.blocks, r.blocks...)
	r.size += other.size
	other.discard()

	r.refresh()
	r.splitIfOversized(seam)
	r.splitIfOversized(seam - 1)
}

// Values returns the elements in order as a new slice.
func (r *Run[T]) Values() []T {
	return r.AppendTo(make([]T, 0, r.size))
}

// AppendTo appends the elements in order to dst and returns the extended slice.
func (r *Run[T]) AppendTo(dst []T) []T {
	for _, block := range r.blocks {
		dst = append(dst, block...)
	}

	return dst
}

// All returns an iterator over the elements in order.
func (r *Run[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, block := range r.blocks {
			for _, v := range block {
				if !yield(v) {
					return
				}
			}
		}
	}
}

// splitIfOversized halves the block at blockIdx when it exceeds splitFactor*blockSize.
func (r *Run[T]) splitIfOversized(blockIdx int) {
	if blockIdx < 0 || blockIdx >= len(r.blocks) {
		return
	}

	block := r.blocks[blockIdx]
	if len(block) <= splitFactor*r.blockSize {
		return
	}

	mid := len(block) / 2
	right := slices.Clone(block[mid:])

	r.blocks[blockIdx] = block[:mid:mid]
	r.blocks = slices.Insert(r.blocks, blockIdx+1, right)

	// Blocks absorbed from a run with a larger block size may need several halvings.
	r.splitIfOversized(blockIdx + 1)
	r.splitIfOversized(blockIdx)
}

func (r *Run[T]) refresh() {
	if len(r.blocks) == 0 || r.size == 0 {
		panic("run: invariant violated: run became empty")
	}

	first := r.blocks[0]
	last := r.blocks[len(r.blocks)-1]

	if len(first) == 0 || len(last) == 0 {
		panic("run: invariant violated: empty edge block")
	}

	r.start = first[0]
	r.end = last[len(last)-1]
}

func (r *Run[T]) mustBeLive() {
	if len(r.blocks) == 0 || r.size == 0 {
		panic("run: invariant violated: use of an empty or absorbed run")
	}
}

func (r *Run[T]) mustAbsorb(other *Run[T]) {
	if other == r {
		panic("run: invariant violated: run cannot absorb itself")
	}

	other.mustBeLive()
}

func (r *Run[T]) discard() {
	var zero T

	r.blocks = nil
	r.size = 0
	r.start, r.end = zero, zero
}
