// Package postgres implements store.Store using pgx/v5 with raw SQL.
//
// Job inputs and outputs are codec-encoded into BYTEA columns and read back
// as codec.Raw. Chain items and journal entries are claimed with
// FOR UPDATE SKIP LOCKED, so several engines may share one database.
// The schema is created by Migrate from embedded SQL files.
package postgres
