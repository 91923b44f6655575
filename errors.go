package lazysql

import (
	"errors"

	mysql "github.com/go-sql-driver/mysql"
)

var (
	// ErrNilPool is returned by operations on a nil or closed pool.
	ErrNilPool = errors.New("lazysql: nil pool")

	// ErrNilConn reports a nil connection handed back by the pool. This is
	// a configuration defect in the pool collaborator: it is logged
	// distinctly and re-raised, never retried.
	ErrNilConn = errors.New("lazysql: pool returned nil connection")

	// ErrNoGeneratedKeys is returned by insert/merge when the statement
	// generated no keys and the dialect is configured to treat that as a
	// failure rather than an empty iterator.
	ErrNoGeneratedKeys = errors.New("lazysql: statement generated no keys")

	// ErrUnsupported marks a capability the wired dialect does not have,
	// such as RETURNING on MySQL or collection parameters in a batch.
	ErrUnsupported = errors.New("lazysql: unsupported by dialect")
)

// ErrorClass buckets failures for logging and for callers that branch on
// kind. Nothing in this package retries on any class.
type ErrorClass int

const (
	ErrClassUnknown ErrorClass = iota
	ErrClassParamMismatch
	ErrClassExhausted
	ErrClassConstraint
	ErrClassConflict
	ErrClassReadonly
)

func (c ErrorClass) String() string {
	switch c {
	case ErrClassParamMismatch:
		return "param_mismatch"
	case ErrClassExhausted:
		return "exhausted"
	case ErrClassConstraint:
		return "constraint"
	case ErrClassConflict:
		return "conflict"
	case ErrClassReadonly:
		return "readonly"
	default:
		return "unknown"
	}
}

// Classify buckets err into an ErrorClass. MySQL server error numbers are
// consulted when the driver surfaced one.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrClassUnknown
	}
	if errors.Is(err, ErrExhausted) {
		return ErrClassExhausted
	}
	var pce *ParamCountError
	if errors.As(err, &pce) {
		return ErrClassParamMismatch
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1048, 1062, 1452:
			return ErrClassConstraint
		case 1205, 1213:
			return ErrClassConflict
		case 1290:
			return ErrClassReadonly
		}
	}
	return ErrClassUnknown
}
