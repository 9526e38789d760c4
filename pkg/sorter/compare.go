package sorter

import "cmp"

// CompareFunc compares a and b. It returns a negative, zero or positive
// number like cmp.Compare, and ok=false when the pair has no defined order.
type CompareFunc[T any] func(a, b T) (result int, ok bool)

// Ordered compares values of an ordered type. NaN is the only value of a
// cmp.Ordered type that has no defined order against anything.
func Ordered[T cmp.Ordered](a, b T) (int, bool) {
	if isNaN(a) || isNaN(b) {
		return 0, false
	}

	return cmp.Compare(a, b), true
}

// Total turns a plain three-way comparison into a CompareFunc that orders every pair.
func Total[T any](compare func(a, b T) int) CompareFunc[T] {
	return func(a, b T) (int, bool) {
		return compare(a, b), true
	}
}

// Reverse inverts the order of compare.
func Reverse[T any](compare CompareFunc[T]) CompareFunc[T] {
	return func(a, b T) (int, bool) {
		return compare(b, a)
	}
}

func isNaN[T cmp.Ordered](x T) bool {
	return x != x //nolint:gocritic // NaN is the only value not equal to itself.
}

// totalOrder derives the three-way comparison used inside runs. Pairs
// without a defined order compare equal, which keeps insertion stable.
func totalOrder[T any](compare CompareFunc[T]) func(a, b T) int {
	return func(a, b T) int {
		result, ok := compare(a, b)
		if !ok {
			return 0
		}

		return result
	}
}
