package lazysql

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ErrInvalidRange reports a range-taking combinator called with a negative
// or inverted range.
var ErrInvalidRange = errors.New("lazysql: invalid range")

// Pair holds two zipped elements.
type Pair[A, B any] struct {
	First  A
	Second B
}

// closer is the resource face shared by every iterator regardless of its
// element type.
type closer interface{ Close() error }

func closeAll(cs ...closer) error {
	var merr *multierror.Error
	for _, c := range cs {
		if err := c.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// Map returns an iterator producing f applied to each element of src.
// The result owns src: closing it closes src.
func Map[T, U any](src Iterator[T], f func(T) U) Iterator[U] {
	return &mapIter[T, U]{src: src, f: f}
}

type mapIter[T, U any] struct {
	src    Iterator[T]
	f      func(T) U
	closed bool
}

func (it *mapIter[T, U]) HasNext() bool {
	if it.closed {
		return false
	}
	if it.src.HasNext() {
		return true
	}
	_ = it.Close()
	return false
}

func (it *mapIter[T, U]) Next() (U, error) {
	var zero U
	if !it.HasNext() {
		return zero, ErrExhausted
	}
	v, err := it.src.Next()
	if err != nil {
		return zero, err
	}
	return it.f(v), nil
}

func (it *mapIter[T, U]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.src.Close()
}

// Filter returns an iterator over the elements of src satisfying pred.
func Filter[T any](src Iterator[T], pred func(T) bool) Iterator[T] {
	return Collect(src, func(v T) (T, bool) { return v, pred(v) })
}

// Collect combines filter and map: f reports whether the element is kept
// and what it becomes.
func Collect[T, U any](src Iterator[T], f func(T) (U, bool)) Iterator[U] {
	return &collectIter[T, U]{src: src, f: f}
}

type collectIter[T, U any] struct {
	src    Iterator[T]
	f      func(T) (U, bool)
	cur    U
	ready  bool
	err    error
	closed bool
}

func (it *collectIter[T, U]) HasNext() bool {
	if it.closed {
		return false
	}
	if it.ready || it.err != nil {
		return true
	}
	for it.src.HasNext() {
		v, err := it.src.Next()
		if err != nil {
			it.err = err
			return true
		}
		if u, ok := it.f(v); ok {
			it.cur = u
			it.ready = true
			return true
		}
	}
	_ = it.Close()
	return false
}

func (it *collectIter[T, U]) Next() (U, error) {
	var zero U
	if !it.HasNext() {
		return zero, ErrExhausted
	}
	if it.err != nil {
		err := it.err
		it.err = nil
		return zero, err
	}
	v := it.cur
	it.cur = zero
	it.ready = false
	return v, nil
}

func (it *collectIter[T, U]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.src.Close()
}

// FlatMap returns an iterator over the concatenation of the iterators f
// produces for each element of src. Inner iterators are closed as they are
// exhausted; closing the result closes the current inner iterator and src.
func FlatMap[T, U any](src Iterator[T], f func(T) Iterator[U]) Iterator[U] {
	return &flatMapIter[T, U]{src: src, f: f}
}

type flatMapIter[T, U any] struct {
	src    Iterator[T]
	f      func(T) Iterator[U]
	cur    Iterator[U]
	err    error
	closed bool
}

func (it *flatMapIter[T, U]) HasNext() bool {
	if it.closed {
		return false
	}
	if it.err != nil {
		return true
	}
	for {
		if it.cur != nil {
			if it.cur.HasNext() {
				return true
			}
			_ = it.cur.Close()
			it.cur = nil
		}
		if !it.src.HasNext() {
			_ = it.Close()
			return false
		}
		v, err := it.src.Next()
		if err != nil {
			it.err = err
			return true
		}
		it.cur = it.f(v)
	}
}

func (it *flatMapIter[T, U]) Next() (U, error) {
	var zero U
	if !it.HasNext() {
		return zero, ErrExhausted
	}
	if it.err != nil {
		err := it.err
		it.err = nil
		return zero, err
	}
	return it.cur.Next()
}

func (it *flatMapIter[T, U]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.cur == nil {
		return it.src.Close()
	}
	return closeAll(it.cur, it.src)
}

// TakeWhile yields elements of src while pred holds. The first failing
// element ends the sequence and closes src, the failing element included in
// the consumption but not in the output.
func TakeWhile[T any](src Iterator[T], pred func(T) bool) Iterator[T] {
	return &takeWhileIter[T]{src: src, pred: pred}
}

type takeWhileIter[T any] struct {
	src    Iterator[T]
	pred   func(T) bool
	cur    T
	ready  bool
	err    error
	closed bool
}

func (it *takeWhileIter[T]) HasNext() bool {
	if it.closed {
		return false
	}
	if it.ready || it.err != nil {
		return true
	}
	if !it.src.HasNext() {
		_ = it.Close()
		return false
	}
	v, err := it.src.Next()
	if err != nil {
		it.err = err
		return true
	}
	if !it.pred(v) {
		_ = it.Close()
		return false
	}
	it.cur = v
	it.ready = true
	return true
}

func (it *takeWhileIter[T]) Next() (T, error) {
	var zero T
	if !it.HasNext() {
		return zero, ErrExhausted
	}
	if it.err != nil {
		err := it.err
		it.err = nil
		return zero, err
	}
	v := it.cur
	it.cur = zero
	it.ready = false
	return v, nil
}

func (it *takeWhileIter[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.src.Close()
}

// skipper is implemented by cursor-backed iterators that can discard rows
// without scanning or mapping them.
type skipper interface {
	skip(n int) (int, error)
}

// Slice skips from elements of src and yields at most to-from further
// elements. The result closes itself when the limit is reached or src runs
// out, whichever comes first. from must satisfy 0 <= from <= to.
func Slice[T any](src Iterator[T], from, to int) (Iterator[T], error) {
	if from < 0 || from > to {
		return nil, fmt.Errorf("%w: slice [%d, %d)", ErrInvalidRange, from, to)
	}
	return &sliceRangeIter[T]{src: src, skip: from, remain: to - from}, nil
}

type sliceRangeIter[T any] struct {
	src     Iterator[T]
	skip    int
	remain  int
	skipped bool
	err     error
	closed  bool
}

func (it *sliceRangeIter[T]) doSkip() {
	if it.skipped {
		return
	}
	it.skipped = true
	if it.skip <= 0 {
		return
	}
	if sk, ok := it.src.(skipper); ok {
		if _, err := sk.skip(it.skip); err != nil {
			it.err = err
		}
		return
	}
	for i := 0; i < it.skip && it.src.HasNext(); i++ {
		if _, err := it.src.Next(); err != nil {
			it.err = err
			return
		}
	}
}

func (it *sliceRangeIter[T]) HasNext() bool {
	if it.closed {
		return false
	}
	it.doSkip()
	if it.err != nil {
		return true
	}
	if it.remain > 0 && it.src.HasNext() {
		return true
	}
	_ = it.Close()
	return false
}

func (it *sliceRangeIter[T]) Next() (T, error) {
	var zero T
	if !it.HasNext() {
		return zero, ErrExhausted
	}
	if it.err != nil {
		err := it.err
		it.err = nil
		return zero, err
	}
	v, err := it.src.Next()
	if err != nil {
		return zero, err
	}
	it.remain--
	if it.remain == 0 {
		// limit reached: no further rows can be relevant
		_ = it.Close()
	}
	return v, nil
}

func (it *sliceRangeIter[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.src.Close()
}

// Zip pairs elements of a and b positionally, ending with the shorter side.
// Closing the result closes both operands.
func Zip[A, B any](a Iterator[A], b Iterator[B]) Iterator[Pair[A, B]] {
	return &zipIter[A, B]{a: a, b: b}
}

type zipIter[A, B any] struct {
	a      Iterator[A]
	b      Iterator[B]
	closed bool
}

func (it *zipIter[A, B]) HasNext() bool {
	if it.closed {
		return false
	}
	if it.a.HasNext() && it.b.HasNext() {
		return true
	}
	_ = it.Close()
	return false
}

func (it *zipIter[A, B]) Next() (Pair[A, B], error) {
	var zero Pair[A, B]
	if !it.HasNext() {
		return zero, ErrExhausted
	}
	va, err := it.a.Next()
	if err != nil {
		return zero, err
	}
	vb, err := it.b.Next()
	if err != nil {
		return zero, err
	}
	return Pair[A, B]{First: va, Second: vb}, nil
}

func (it *zipIter[A, B]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return closeAll(it.a, it.b)
}

// ZipAll pairs elements of a and b positionally, ending with the longer
// side; the shorter side is padded with its fill value. Closing the result
// closes both operands.
func ZipAll[A, B any](a Iterator[A], b Iterator[B], fillA A, fillB B) Iterator[Pair[A, B]] {
	return &zipAllIter[A, B]{a: a, b: b, fillA: fillA, fillB: fillB}
}

type zipAllIter[A, B any] struct {
	a      Iterator[A]
	b      Iterator[B]
	fillA  A
	fillB  B
	closed bool
}

func (it *zipAllIter[A, B]) HasNext() bool {
	if it.closed {
		return false
	}
	hasA := it.a.HasNext()
	hasB := it.b.HasNext()
	if hasA || hasB {
		return true
	}
	_ = it.Close()
	return false
}

func (it *zipAllIter[A, B]) Next() (Pair[A, B], error) {
	var zero Pair[A, B]
	if !it.HasNext() {
		return zero, ErrExhausted
	}
	va, vb := it.fillA, it.fillB
	if it.a.HasNext() {
		v, err := it.a.Next()
		if err != nil {
			return zero, err
		}
		va = v
	}
	if it.b.HasNext() {
		v, err := it.b.Next()
		if err != nil {
			return zero, err
		}
		vb = v
	}
	return Pair[A, B]{First: va, Second: vb}, nil
}

func (it *zipAllIter[A, B]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return closeAll(it.a, it.b)
}

// ZipWithIndex pairs each element with its zero-based position.
func ZipWithIndex[T any](src Iterator[T]) Iterator[Pair[T, int]] {
	i := -1
	return Map(src, func(v T) Pair[T, int] {
		i++
		return Pair[T, int]{First: v, Second: i}
	})
}

// Patch yields src with replaced elements starting at index from substituted
// by the contents of other. A replacement shorter than replaced resumes src
// early; a longer one emits every replacement element while consuming at
// most replaced elements of src. Closing the result closes both sources.
func Patch[T any](src Iterator[T], from int, other Iterator[T], replaced int) Iterator[T] {
	if from < 0 {
		from = 0
	}
	if replaced < 0 {
		replaced = 0
	}
	return &patchIter[T]{src: src, other: other, prefix: from, replaced: replaced}
}

type patchIter[T any] struct {
	src      Iterator[T]
	other    Iterator[T]
	prefix   int
	replaced int
	dropped  bool
	err      error
	closed   bool
}

func (it *patchIter[T]) HasNext() bool {
	if it.closed {
		return false
	}
	if it.err != nil {
		return true
	}
	if it.prefix > 0 && it.src.HasNext() {
		return true
	}
	it.prefix = 0
	if it.other.HasNext() {
		return true
	}
	if !it.dropped {
		it.dropped = true
		for i := 0; i < it.replaced && it.src.HasNext(); i++ {
			if _, err := it.src.Next(); err != nil {
				it.err = err
				return true
			}
		}
	}
	if it.src.HasNext() {
		return true
	}
	_ = it.Close()
	return false
}

func (it *patchIter[T]) Next() (T, error) {
	var zero T
	if !it.HasNext() {
		return zero, ErrExhausted
	}
	if it.err != nil {
		err := it.err
		it.err = nil
		return zero, err
	}
	if it.prefix > 0 && it.src.HasNext() {
		it.prefix--
		return it.src.Next()
	}
	it.prefix = 0
	if it.other.HasNext() {
		return it.other.Next()
	}
	return it.src.Next()
}

func (it *patchIter[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return closeAll(it.src, it.other)
}

// ScanLeft yields the running combination of src under f, starting with
// (and emitting) zero. The result is one element longer than src.
func ScanLeft[T, U any](src Iterator[T], zero U, f func(U, T) U) Iterator[U] {
	return &scanLeftIter[T, U]{src: src, acc: zero, f: f}
}

type scanLeftIter[T, U any] struct {
	src     Iterator[T]
	f       func(U, T) U
	acc     U
	started bool
	closed  bool
}

func (it *scanLeftIter[T, U]) HasNext() bool {
	if it.closed {
		return false
	}
	if !it.started {
		return true
	}
	if it.src.HasNext() {
		return true
	}
	_ = it.Close()
	return false
}

func (it *scanLeftIter[T, U]) Next() (U, error) {
	var zero U
	if !it.HasNext() {
		return zero, ErrExhausted
	}
	if !it.started {
		it.started = true
		return it.acc, nil
	}
	v, err := it.src.Next()
	if err != nil {
		return zero, err
	}
	it.acc = it.f(it.acc, v)
	return it.acc, nil
}

func (it *scanLeftIter[T, U]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.src.Close()
}

// PadTo extends src to at least n elements, appending fill as needed. A
// source already n or longer is unchanged.
func PadTo[T any](src Iterator[T], n int, fill T) Iterator[T] {
	return &padToIter[T]{src: src, n: n, fill: fill}
}

type padToIter[T any] struct {
	src     Iterator[T]
	n       int
	fill    T
	emitted int
	closed  bool
}

func (it *padToIter[T]) HasNext() bool {
	if it.closed {
		return false
	}
	if it.src.HasNext() || it.emitted < it.n {
		return true
	}
	_ = it.Close()
	return false
}

func (it *padToIter[T]) Next() (T, error) {
	var zero T
	if !it.HasNext() {
		return zero, ErrExhausted
	}
	if it.src.HasNext() {
		v, err := it.src.Next()
		if err != nil {
			return zero, err
		}
		it.emitted++
		return v, nil
	}
	it.emitted++
	return it.fill, nil
}

func (it *padToIter[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.src.Close()
}

// BufferedIterator adds single-element lookahead to an Iterator.
type BufferedIterator[T any] interface {
	Iterator[T]
	// Peek returns the next element without consuming it. It returns
	// ErrExhausted at the end of the sequence.
	Peek() (T, error)
}

// Buffered wraps src with single-element lookahead.
func Buffered[T any](src Iterator[T]) BufferedIterator[T] {
	return &bufferedIter[T]{src: src}
}

type bufferedIter[T any] struct {
	src    Iterator[T]
	cur    T
	ready  bool
	closed bool
}

func (it *bufferedIter[T]) Peek() (T, error) {
	var zero T
	if it.closed {
		return zero, ErrExhausted
	}
	if it.ready {
		return it.cur, nil
	}
	if !it.src.HasNext() {
		_ = it.Close()
		return zero, ErrExhausted
	}
	v, err := it.src.Next()
	if err != nil {
		return zero, err
	}
	it.cur = v
	it.ready = true
	return v, nil
}

func (it *bufferedIter[T]) HasNext() bool {
	if it.closed {
		return false
	}
	if it.ready || it.src.HasNext() {
		return true
	}
	_ = it.Close()
	return false
}

func (it *bufferedIter[T]) Next() (T, error) {
	v, err := it.Peek()
	if err != nil {
		return v, err
	}
	var zero T
	it.cur = zero
	it.ready = false
	return v, nil
}

func (it *bufferedIter[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.src.Close()
}

// Grouped yields consecutive chunks of size elements; the final chunk may be
// shorter. size must be positive.
func Grouped[T any](src Iterator[T], size int) (Iterator[[]T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: group size %d", ErrInvalidRange, size)
	}
	return &groupedIter[T]{src: src, size: size}, nil
}

type groupedIter[T any] struct {
	src    Iterator[T]
	size   int
	closed bool
}

func (it *groupedIter[T]) HasNext() bool {
	if it.closed {
		return false
	}
	if it.src.HasNext() {
		return true
	}
	_ = it.Close()
	return false
}

func (it *groupedIter[T]) Next() ([]T, error) {
	if !it.HasNext() {
		return nil, ErrExhausted
	}
	chunk := make([]T, 0, it.size)
	for len(chunk) < it.size && it.src.HasNext() {
		v, err := it.src.Next()
		if err != nil {
			return chunk, err
		}
		chunk = append(chunk, v)
	}
	return chunk, nil
}

func (it *groupedIter[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.src.Close()
}

// Sliding yields windows of up to size elements advancing by step. The last
// window is emitted as long as it contains at least one element not seen at
// the same position before. size and step must be positive.
func Sliding[T any](src Iterator[T], size, step int) (Iterator[[]T], error) {
	if size <= 0 || step <= 0 {
		return nil, fmt.Errorf("%w: sliding size %d step %d", ErrInvalidRange, size, step)
	}
	return &slidingIter[T]{src: src, size: size, step: step}, nil
}

type slidingIter[T any] struct {
	src    Iterator[T]
	size   int
	step   int
	win    []T
	primed bool
	done   bool
	err    error
	closed bool
}

func (it *slidingIter[T]) fill() {
	for len(it.win) < it.size && it.src.HasNext() {
		v, err := it.src.Next()
		if err != nil {
			it.err = err
			return
		}
		it.win = append(it.win, v)
	}
}

func (it *slidingIter[T]) HasNext() bool {
	if it.closed {
		return false
	}
	if it.err != nil {
		return true
	}
	if !it.primed {
		it.primed = true
		it.fill()
		if it.err != nil {
			return true
		}
	}
	if !it.done && len(it.win) > 0 {
		return true
	}
	_ = it.Close()
	return false
}

func (it *slidingIter[T]) Next() ([]T, error) {
	if !it.HasNext() {
		return nil, ErrExhausted
	}
	if it.err != nil {
		err := it.err
		it.err = nil
		return nil, err
	}
	out := make([]T, len(it.win))
	copy(out, it.win)
	it.advance()
	return out, nil
}

func (it *slidingIter[T]) advance() {
	if it.step >= len(it.win) {
		extra := it.step - len(it.win)
		it.win = it.win[:0]
		for i := 0; i < extra && it.src.HasNext(); i++ {
			if _, err := it.src.Next(); err != nil {
				it.err = err
				return
			}
		}
	} else {
		kept := make([]T, len(it.win)-it.step)
		copy(kept, it.win[it.step:])
		it.win = kept
	}
	before := len(it.win)
	it.fill()
	if len(it.win) == before {
		// no new element entered the window
		it.done = true
	}
}

func (it *slidingIter[T]) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.win = nil
	return it.src.Close()
}
