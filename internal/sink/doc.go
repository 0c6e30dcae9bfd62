// Package sink provides a SQLite-backed transactional write target for
// materialized collections.
//
// A Store owns the database; a Session binds a key function and JSON codec
// for one subscription and implements the collection.SyncSink contract:
// Begin opens a database transaction, Write stages one change inside it,
// Commit makes the staged changes durable.
//
// A transaction left open when the session is discarded (or when Begin is
// called again) is rolled back: uncommitted work is treated as never
// having happened.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// Keys are normalized to Unicode NFC before use, so byte-different but
// canonically equal keys address the same row.
package sink
