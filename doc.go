// Package lazysql provides resource-safe lazy iteration over relational
// query results, plus a thin typed facade for everyday CRUD work.
//
// # Overview
//
// lazysql streams rows instead of materializing them:
//   - Lazy iterators with automatic resource release on exhaustion
//   - A rich combinator set (Map, Filter, Zip, Slice, Grouped, ...)
//   - Typed query functions: Select, SelectOne, Insert, Update, ExecBatch
//   - A closed parameter model with IN-list template expansion
//   - Transactions with a nested savepoint stack
//   - Connection pooling with leak detection and statement caching
//   - Observability via structured logging, metrics, and tracing
//
// # Quick Start
//
// Basic usage example:
//
//	import lz "github.com/ormkit/lazysql"
//
//	config := lz.Config{
//		Host:     "localhost",
//		Port:     3306,
//		Username: "user",
//		Password: "password",
//		Database: "mydb",
//	}
//
//	ctx := context.Background()
//	pool, err := lz.NewPool(ctx, config)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	users, err := lz.Select(ctx, pool,
//		"SELECT id, name FROM users WHERE age > ?",
//		func(r *lz.Row) (User, error) {
//			return User{ID: r.Int("id"), Name: r.String("name")}, nil
//		},
//		lz.Value(18))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer users.Close()
//	for users.HasNext() {
//		u, err := users.Next()
//		...
//	}
//
// The connection backing an iterator is held until the iterator closes.
// Iterators close themselves when fully consumed; call Close explicitly
// when abandoning one early (the With helper does this for you).
//
// # Transaction Support
//
// Scoped transactions with savepoints:
//
//	err = pool.WithinTx(ctx, func(tx *lz.Tx) error {
//		if _, err := lz.Update(ctx, tx, "UPDATE accounts SET balance = balance - ? WHERE id = ?",
//			lz.Value(100), lz.Value(fromID)); err != nil {
//			return err
//		}
//		sp, _ := tx.Save(ctx)
//		if _, err := lz.Update(ctx, tx, "UPDATE accounts SET balance = balance + ? WHERE id = ?",
//			lz.Value(100), lz.Value(toID)); err != nil {
//			return tx.Rollback(ctx) // back to sp, transaction still live
//		}
//		_ = sp
//		return nil
//	})
//
// # Configuration
//
// Pools are configured programmatically or from environment variables with
// the prefix LAZYSQL_* (e.g. LAZYSQL_HOST). SQLite pools, backed by
// modernc.org/sqlite, are available through NewSQLitePool for embedded use
// and tests.
package lazysql

// Version returns the current library version.
//
// During development it returns "v0.0.0-dev".
func Version() string { return "v0.0.0-dev" }
