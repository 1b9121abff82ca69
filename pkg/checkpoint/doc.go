// Package checkpoint saves and resumes per-task crawl cursors.
//
// Every paginated task (a search keyword, a creator timeline) gets its own
// file keyed by TaskKey. After each finished page the crawler records the
// page number and the running item count; a resumed run starts at
// LastPage+1. Files are written atomically and removed once the task
// completes.
package checkpoint
