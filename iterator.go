package lazysql

import "errors"

// ErrExhausted is returned by Next when the iterator has no more elements.
// Pulling past the end is a caller-contract violation, not a condition to
// recover from.
var ErrExhausted = errors.New("lazysql: iterator exhausted")

// Iterator is a pull-based sequence that owns a releasable resource, most
// commonly a live statement cursor and the pool connection behind it.
//
// An Iterator is a single-consumer, single-goroutine handle. Once it has
// been handed to a combinator the original must not be touched again.
//
// Fully consuming an iterator closes it automatically: well-behaved
// consumption never leaks the underlying cursor or connection. Abandoning
// one before exhaustion requires an explicit Close, or With, which
// guarantees it.
type Iterator[T any] interface {
	// HasNext reports whether another element can be pulled. Observing the
	// natural end of the sequence closes the iterator and every resource it
	// wraps.
	HasNext() bool

	// Next produces the next element. It returns ErrExhausted when called
	// past the end of the sequence.
	Next() (T, error)

	// Close releases the underlying resources. It is idempotent: the first
	// call performs the release and reports its outcome, later calls return
	// nil. A failing native release is surfaced once, never retried.
	Close() error
}

// NewIterator builds an Iterator from hasNext/next functions plus an
// optional release hook invoked exactly once on close.
func NewIterator[T any](hasNext func() bool, next func() (T, error), release func() error) Iterator[T] {
	return &funcIter[T]{hasNext: hasNext, next: next, release: release}
}

type funcIter[T any] struct {
	hasNext func() bool
	next    func() (T, error)
	release func() error
	closed  bool
}

func (it *funcIter[T]) HasNext() bool {
	if it.closed {
		return false
	}
	if it.hasNext() {
		return true
	}
	_ = it.Close()
	return false
}

func (it *funcIter[T]) Next() (T, error) {
	var zero T
	if !it.HasNext() {
		return zero, ErrExhausted
	}
	return it.next()
}

func (it *funcIter[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.release == nil {
		return nil
	}
	return it.release()
}

// Empty returns an already-exhausted iterator.
func Empty[T any]() Iterator[T] { return &sliceIter[T]{} }

// FromSlice returns an iterator over s. It owns no external resource, so
// closing it is a no-op beyond marking it exhausted.
func FromSlice[T any](s []T) Iterator[T] { return &sliceIter[T]{s: s} }

type sliceIter[T any] struct {
	s      []T
	pos    int
	closed bool
}

func (it *sliceIter[T]) HasNext() bool {
	if it.closed {
		return false
	}
	if it.pos < len(it.s) {
		return true
	}
	it.closed = true
	return false
}

func (it *sliceIter[T]) Next() (T, error) {
	var zero T
	if !it.HasNext() {
		return zero, ErrExhausted
	}
	v := it.s[it.pos]
	it.pos++
	return v, nil
}

func (it *sliceIter[T]) Close() error {
	it.closed = true
	return nil
}

// With runs fn with it and guarantees Close afterwards, whether fn returns
// normally, returns an error, or panics. This is the recommended way to
// consume an iterator that may be abandoned before exhaustion.
func With[T any](it Iterator[T], fn func(Iterator[T]) error) (err error) {
	defer func() {
		if cerr := it.Close(); err == nil {
			err = cerr
		}
	}()
	err = fn(it)
	return err
}

// ToSlice drains it into a slice. The iterator is closed when ToSlice
// returns, on success or failure.
func ToSlice[T any](it Iterator[T]) ([]T, error) {
	defer it.Close()
	var out []T
	for it.HasNext() {
		v, err := it.Next()
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ForEach applies fn to every remaining element, closing it when done or on
// the first error from fn.
func ForEach[T any](it Iterator[T], fn func(T) error) error {
	defer it.Close()
	for it.HasNext() {
		v, err := it.Next()
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}
