package sorter

import "github.com/Sumatoshi-tech/runsort/pkg/run"

type settings[T any] struct {
	blockSize int
	strict    bool
	observers Observers[T]
}

// Option configures a Sorter over elements of type T.
type Option[T any] func(*settings[T])

// WithBlockSize sets the block capacity of every run the sorter creates.
// Values below run.MinBlockSize are raised to it; zero selects run.DefaultBlockSize.
func WithBlockSize[T any](n int) Option[T] {
	return func(s *settings[T]) {
		s.blockSize = n
	}
}

// WithStrict makes Add and Sort fail with ErrIncomparable when two values
// have no defined order, instead of treating the comparison as unsatisfied.
func WithStrict[T any](strict bool) Option[T] {
	return func(s *settings[T]) {
		s.strict = strict
	}
}

// WithObserver registers an observer. It may be given several times; observers
// are notified in registration order.
func WithObserver[T any](o Observer[T]) Option[T] {
	return func(s *settings[T]) {
		s.observers = append(s.observers, o)
	}
}

func newSettings[T any](opts []Option[T]) settings[T] {
	s := settings[T]{blockSize: run.DefaultBlockSize}

	for _, opt := range opts {
		opt(&s)
	}

	return s
}

func (s settings[T]) observer() Observer[T] {
	switch len(s.observers) {
	case 0:
		return NopObserver[T]{}
	case 1:
		return s.observers[0]
	}

	return s.observers
}
