// Package store owns the relational connection the DAO layer runs on.
//
// A Store wraps a *sql.DB opened through one of two drivers:
//   - sqlite3: github.com/mattn/go-sqlite3, single connection, pragmas applied
//   - pgx:     github.com/jackc/pgx/v5/stdlib
//
// # Unit of work
//
// The ambient transaction travels in the context. WithTx begins one, stores
// it in the returned context and commits when fn returns nil; any error or
// panic rolls back. Exec(ctx) returns that transaction when present and the
// pool otherwise, so the same data-access code runs inside or outside a
// transaction. Nested WithTx calls join the outer transaction.
//
// # Database Configuration (sqlite3)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// # Native queries
//
// Queries loads SQL text from an fs.FS (usually an embed.FS) and rebinds
// placeholders for the store's dialect.
package store
