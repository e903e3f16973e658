package sqlite

import (
	"context"
	"database/sql"
)

// dbtx is the query surface shared by *sql.DB, *sql.Conn and *sql.Tx.
// Row-level helpers take it so the same code serves both pooled calls on
// the Store and calls inside an explicit transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

var (
	_ dbtx = (*sql.DB)(nil)
	_ dbtx = (*sql.Conn)(nil)
	_ dbtx = (*sql.Tx)(nil)
)

// placeholders returns "?, ?, ..., ?" with n slots, for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3-2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}

// toAnySlice converts string ids to []interface{} for variadic query args.
func toAnySlice(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
