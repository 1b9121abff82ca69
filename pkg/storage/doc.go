// Package storage persists canonical records.
//
// Every backend implements Gateway and owns the add_ts and last_modify_ts
// bookkeeping fields. The postgres and memory backends upsert on the natural
// key, so storing the same id twice leaves one row with the latest values.
// The jsonl and csv backends append one line per write and do not
// de-duplicate; callers that need strict idempotence must use postgres.
package storage
