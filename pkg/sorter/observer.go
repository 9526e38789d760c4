package sorter

import "github.com/Sumatoshi-tech/runsort/pkg/run"

// Decision identifies which branch placed an item.
type Decision int

// Placement decisions, in the order they are tried.
const (
	DecisionNewRun Decision = iota
	DecisionContain
	DecisionBridge
	DecisionExtendRight
	DecisionExtendLeft
)

// Decisions lists every Decision value.
var Decisions = []Decision{
	DecisionNewRun,
	DecisionContain,
	DecisionBridge,
	DecisionExtendRight,
	DecisionExtendLeft,
}

func (d Decision) String() string {
	switch d {
	case DecisionNewRun:
		return "new_run"
	case DecisionContain:
		return "contain"
	case DecisionBridge:
		return "bridge"
	case DecisionExtendRight:
		return "extend_right"
	case DecisionExtendLeft:
		return "extend_left"
	default:
		return "unknown"
	}
}

// Observer receives sorter lifecycle events. Callbacks run synchronously
// on the sorting goroutine and must not mutate the runs they are given.
type Observer[T any] interface {
	// SortStarted is called before the first item of a Sort call.
	SortStarted(n int)

	// ItemPlaced is called after every item, including items added with Add.
	ItemPlaced(item T, decision Decision)

	// RunCreated is called when an item opens a new singleton run.
	RunCreated(r *run.Run[T])

	// RunsMerged is called after absorbed runs were folded into into.
	// Between resets, live runs equal RunCreated calls minus absorbed totals.
	RunsMerged(into *run.Run[T], absorbed int)

	// SortFinished is called with the flattened result of a Sort call.
	SortFinished(out []T)
}

// NopObserver ignores every event.
type NopObserver[T any] struct{}

// SortStarted implements Observer.
func (NopObserver[T]) SortStarted(int) {}

// ItemPlaced implements Observer.
func (NopObserver[T]) ItemPlaced(T, Decision) {}

// RunCreated implements Observer.
func (NopObserver[T]) RunCreated(*run.Run[T]) {}

// RunsMerged implements Observer.
func (NopObserver[T]) RunsMerged(*run.Run[T], int) {}

// SortFinished implements Observer.
func (NopObserver[T]) SortFinished([]T) {}

// Observers fans every event out to each member in order.
type Observers[T any] []Observer[T]

// SortStarted implements Observer.
func (obs Observers[T]) SortStarted(n int) {
	for _, o := range obs {
		o.SortStarted(n)
	}
}

// ItemPlaced implements Observer.
func (obs Observers[T]) ItemPlaced(item T, decision Decision) {
	for _, o := range obs {
		o.ItemPlaced(item, decision)
	}
}

// RunCreated implements Observer.
func (obs Observers[T]) RunCreated(r *run.Run[T]) {
	for _, o := range obs {
		o.RunCreated(r)
	}
}

// RunsMerged implements Observer.
func (obs Observers[T]) RunsMerged(into *run.Run[T], absorbed int) {
	for _, o := range obs {
		o.RunsMerged(into, absorbed)
	}
}

// SortFinished implements Observer.
func (obs Observers[T]) SortFinished(out []T) {
	for _, o := range obs {
		o.SortFinished(out)
	}
}
