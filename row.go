package lazysql

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"time"
)

// RowMapper converts the cursor's current row into a value. It runs during
// Next, never at query time, so consumers pay only for rows they pull.
type RowMapper[T any] func(*Row) (T, error)

// Row is the value-extraction surface handed to row mappers: typed column
// getters over the current cursor position plus WasNull, which reports
// whether the column read by the previous getter was database NULL.
//
// A Row is only valid inside the mapper call that received it; mappers must
// copy anything they keep.
type Row struct {
	cols     []string
	idx      map[string]int
	vals     []any
	scan     []any
	dialect  Dialect
	lastNull bool
	err      error
}

func newRow(cols []string, dialect Dialect) *Row {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c] = i
	}
	vals := make([]any, len(cols))
	scan := make([]any, len(cols))
	for i := range vals {
		scan[i] = &vals[i]
	}
	return &Row{cols: cols, idx: idx, vals: vals, scan: scan, dialect: dialect}
}

func (r *Row) load(rows *sql.Rows) error {
	r.err = nil
	r.lastNull = false
	return rows.Scan(r.scan...)
}

// Columns returns the column names of the result set, in statement order.
func (r *Row) Columns() []string { return r.cols }

// WasNull reports whether the column read by the previous getter was NULL.
func (r *Row) WasNull() bool { return r.lastNull }

// Err returns the first extraction error recorded by a getter, such as a
// reference to a column the result set does not have.
func (r *Row) Err() error { return r.err }

func (r *Row) value(col string) (any, bool) {
	i, ok := r.idx[col]
	if !ok {
		if r.err == nil {
			r.err = fmt.Errorf("lazysql: result set has no column %q", col)
		}
		return nil, false
	}
	v := r.vals[i]
	r.lastNull = v == nil
	return v, true
}

// Value returns the raw driver value of col; nil when NULL.
func (r *Row) Value(col string) any {
	v, _ := r.value(col)
	return v
}

// String returns col as a string, "" when NULL.
func (r *Row) String(col string) string {
	v, ok := r.value(col)
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

// Int returns col as an int64, 0 when NULL.
func (r *Row) Int(col string) int64 {
	v, ok := r.value(col)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		return r.parseInt(string(n))
	case string:
		return r.parseInt(n)
	default:
		r.fail(col, v, "int")
		return 0
	}
}

// Float returns col as a float64. NULL yields NaN so downstream arithmetic
// keeps propagating the absence.
func (r *Row) Float(col string) float64 {
	v, ok := r.value(col)
	if !ok {
		return 0
	}
	if v == nil {
		return math.NaN()
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case []byte:
		return r.parseFloat(string(n))
	case string:
		return r.parseFloat(n)
	default:
		r.fail(col, v, "float")
		return 0
	}
}

// Bool returns col as a bool, false when NULL. Numeric columns are true
// when nonzero.
func (r *Row) Bool(col string) bool {
	v, ok := r.value(col)
	if !ok || v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case []byte:
		return len(b) > 0 && b[0] != '0'
	case string:
		return len(b) > 0 && b[0] != '0'
	default:
		r.fail(col, v, "bool")
		return false
	}
}

// Bytes returns col as a byte slice, nil when NULL. The slice is a copy and
// remains valid after the cursor advances.
func (r *Row) Bytes(col string) []byte {
	v, ok := r.value(col)
	if !ok || v == nil {
		return nil
	}
	switch b := v.(type) {
	case []byte:
		out := make([]byte, len(b))
		copy(out, b)
		return out
	case string:
		return []byte(b)
	default:
		r.fail(col, v, "bytes")
		return nil
	}
}

// Time returns col as a time.Time, the zero time when NULL. Drivers that
// scan temporal columns as text are parsed with the dialect's layout.
func (r *Row) Time(col string) time.Time {
	v, ok := r.value(col)
	if !ok || v == nil {
		return time.Time{}
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case []byte:
		return r.parseTime(string(t))
	case string:
		return r.parseTime(t)
	default:
		r.fail(col, v, "time")
		return time.Time{}
	}
}

// NullInt returns col as an int64 plus a validity flag, sql.NullInt64 style.
func (r *Row) NullInt(col string) (int64, bool) {
	v := r.Int(col)
	return v, !r.lastNull
}

// NullString returns col as a string plus a validity flag.
func (r *Row) NullString(col string) (string, bool) {
	v := r.String(col)
	return v, !r.lastNull
}

func (r *Row) parseInt(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("lazysql: column value %q is not an int", s)
	}
	return n
}

func (r *Row) parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("lazysql: column value %q is not a float", s)
	}
	return f
}

func (r *Row) parseTime(s string) time.Time {
	layout := time.RFC3339
	if r.dialect != nil {
		layout = r.dialect.TimeLayout()
	}
	t, err := time.Parse(layout, s)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("lazysql: column value %q does not match time layout %q", s, layout)
	}
	return t
}

func (r *Row) fail(col string, v any, want string) {
	if r.err == nil {
		r.err = fmt.Errorf("lazysql: column %q has type %T, not %s", col, v, want)
	}
}
