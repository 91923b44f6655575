package lazysql

import (
	"database/sql"
	"runtime"

	"github.com/hashicorp/go-multierror"
)

// rowsIter adapts a forward-only *sql.Rows cursor to an Iterator. The cursor
// is advanced once at construction so HasNext reflects whether any row
// exists at all; the mapper runs during Next, never earlier. When advancing
// reveals no further rows the iterator closes itself, releasing the cursor
// and, through the release chain, the statement and pool connection behind
// it.
type rowsIter[T any] struct {
	rows     *sql.Rows
	row      *Row
	mapper   RowMapper[T]
	release  func() error
	hasCur   bool
	closed   bool
	closeErr error
}

func newRowsIterator[T any](rows *sql.Rows, dialect Dialect, mapper RowMapper[T], release func() error) (Iterator[T], error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		if release != nil {
			_ = release()
		}
		return nil, err
	}
	it := &rowsIter[T]{rows: rows, row: newRow(cols, dialect), mapper: mapper, release: release}
	it.hasCur = rows.Next()
	if !it.hasCur {
		err := rows.Err()
		cerr := it.Close()
		if err == nil {
			err = cerr
		}
		if err != nil {
			return nil, err
		}
		return it, nil // empty result set
	}
	// Safety net for abandoned iterators. Not load-bearing: timing is
	// undefined and it may never run. Deterministic Close (or With) is the
	// contract.
	runtime.SetFinalizer(it, func(leaked *rowsIter[T]) { _ = leaked.Close() })
	return it, nil
}

func (it *rowsIter[T]) HasNext() bool { return !it.closed && it.hasCur }

func (it *rowsIter[T]) Next() (T, error) {
	var zero T
	if !it.HasNext() {
		return zero, ErrExhausted
	}
	if err := it.row.load(it.rows); err != nil {
		_ = it.Close()
		return zero, err
	}
	v, err := it.mapper(it.row)
	if err == nil {
		err = it.row.Err()
	}
	if err != nil {
		_ = it.Close()
		return zero, err
	}
	it.hasCur = it.rows.Next()
	if !it.hasCur {
		if rerr := it.rows.Err(); rerr != nil {
			_ = it.Close()
			return zero, rerr
		}
		// natural exhaustion: release now, stash any close failure so the
		// caller's next explicit Close surfaces it once
		if cerr := it.Close(); cerr != nil {
			it.closeErr = cerr
		}
	}
	return v, nil
}

// skip advances the cursor without scanning or mapping rows. Slice uses it
// in place of generic pull-and-discard so skipped rows are never
// materialized. It reports how many rows were discarded.
func (it *rowsIter[T]) skip(n int) (int, error) {
	if it.closed || !it.hasCur {
		return 0, nil
	}
	moved := 0
	for moved < n && it.hasCur {
		it.hasCur = it.rows.Next()
		moved++
	}
	if !it.hasCur {
		err := it.rows.Err()
		if cerr := it.Close(); err == nil {
			err = cerr
		}
		return moved, err
	}
	return moved, nil
}

func (it *rowsIter[T]) Close() error {
	if it.closed {
		err := it.closeErr
		it.closeErr = nil
		return err
	}
	it.closed = true
	it.hasCur = false
	runtime.SetFinalizer(it, nil)
	var merr *multierror.Error
	if err := it.rows.Close(); err != nil {
		merr = multierror.Append(merr, err)
	}
	if it.release != nil {
		if err := it.release(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}
