// Package ledger records pipeline runs in a SQLite database.
//
// Every run is inserted when it starts and finalized when it completes or
// fails, so an interrupted process leaves a "running" row behind that
// MarkAbandoned can later close out. Completed runs also store per-sample
// statistics and the engine log of every invocation, compressed with zstd.
package ledger
