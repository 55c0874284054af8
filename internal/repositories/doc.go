// Package repositories implements SQLite persistence for the sync run journal.
//
// [RunRepository] stores one row per get, refresh or stream outcome and implements
// both models.Repository[*models.SyncRun] and the engine's recorder interface.
// Rows are soft deleted via deleted_at and excluded from queries by default.
//
// Sequence numbers provide stable, human-readable ordering (run #42) independent of
// UUIDs and timestamps. [NextSequence] atomically increments the per-table counter
// kept in a dedicated sequence table.
package repositories
