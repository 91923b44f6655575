package lazysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tx is a transaction over one held connection, with a nested savepoint
// stack. All operations issued through it — directly or via the facade
// functions with the Tx as Source — reuse that single connection; nothing
// mid-transaction ever acquires a second one from the pool.
//
// A Tx is single-threaded: the caller serializes all use of it.
type Tx struct {
	inner      *sql.Tx
	p          *Pool
	savepoints []string
	done       bool
}

// WithinTx acquires one connection, starts a transaction on it, and runs fn
// with the transaction handle. A nil return from fn commits; an error rolls
// back, and a failing rollback is logged and suppressed so it never masks
// fn's error. The connection is released in a final step regardless of
// outcome.
func (p *Pool) WithinTx(ctx context.Context, fn func(*Tx) error) error {
	if p == nil || p.db == nil {
		return ErrNilPool
	}
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	start := time.Now()
	tx, err := conn.inner.BeginTx(ctx, nil)
	if err != nil {
		p.logTransaction(ctx, "begin", time.Since(start), err)
		return err
	}
	wrap := &Tx{inner: tx, p: p}
	err = fn(wrap)
	if wrap.done {
		// fn already rolled the whole transaction back
		p.logTransaction(ctx, "rollback", time.Since(start), nil)
		p.recordTransaction(ctx, "rollback", time.Since(start))
		return err
	}
	if err == nil {
		cerr := tx.Commit()
		p.logTransaction(ctx, "commit", time.Since(start), cerr)
		p.recordTransaction(ctx, "commit", time.Since(start))
		return cerr
	}
	if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
		// suppressed so the body's error propagates unmasked
		p.logTransaction(ctx, "rollback", time.Since(start), rerr)
	} else {
		p.logTransaction(ctx, "rollback", time.Since(start), nil)
	}
	p.recordTransaction(ctx, "rollback", time.Since(start))
	return err
}

// Save pushes a savepoint and returns its name. With no name (or an empty
// one) a unique name is generated.
func (t *Tx) Save(ctx context.Context, name ...string) (string, error) {
	if t == nil || t.inner == nil || t.done {
		return "", sql.ErrTxDone
	}
	sp := ""
	if len(name) > 0 {
		sp = name[0]
	}
	if sp == "" {
		sp = "sp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if err := validSavepointName(sp); err != nil {
		return "", err
	}
	if _, err := t.inner.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
		return "", err
	}
	t.savepoints = append(t.savepoints, sp)
	return sp, nil
}

// Rollback pops to the most recent savepoint. With no savepoint set it
// rolls the whole transaction back and marks the handle done; subsequent
// statements fail with the driver's transaction-done error.
func (t *Tx) Rollback(ctx context.Context) error {
	if t == nil || t.inner == nil || t.done {
		return sql.ErrTxDone
	}
	if n := len(t.savepoints); n > 0 {
		sp := t.savepoints[n-1]
		t.savepoints = t.savepoints[:n-1]
		_, err := t.inner.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp)
		return err
	}
	t.done = true
	return t.inner.Rollback()
}

// ReleaseSave discards the most recent savepoint without rolling back.
func (t *Tx) ReleaseSave(ctx context.Context) error {
	if t == nil || t.inner == nil || t.done {
		return sql.ErrTxDone
	}
	n := len(t.savepoints)
	if n == 0 {
		return errors.New("lazysql: no savepoint to release")
	}
	sp := t.savepoints[n-1]
	t.savepoints = t.savepoints[:n-1]
	_, err := t.inner.ExecContext(ctx, "RELEASE SAVEPOINT "+sp)
	return err
}

// Savepoints returns the names currently on the stack, oldest first.
func (t *Tx) Savepoints() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.savepoints))
	copy(out, t.savepoints)
	return out
}

// Exec executes a statement on the held connection.
func (t *Tx) Exec(ctx context.Context, query string, params ...Param) (sql.Result, error) {
	if t == nil || t.inner == nil || t.done {
		return nil, sql.ErrTxDone
	}
	start := time.Now()
	expanded, args, err := bindQuery(query, params)
	if err != nil {
		t.p.observe(ctx, "exec", query, nil, start, err)
		return nil, err
	}
	res, err := t.inner.ExecContext(ctx, expanded, args...)
	t.p.observe(ctx, "exec", expanded, args, start, err)
	return res, err
}

// savepoint names go into the statement text, so only identifier
// characters are allowed
func validSavepointName(name string) error {
	for _, r := range name {
		ok := r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9')
		if !ok {
			return fmt.Errorf("lazysql: invalid savepoint name %q", name)
		}
	}
	return nil
}
