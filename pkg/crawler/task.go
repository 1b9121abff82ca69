package crawler

import "xqcrawler/pkg/checkpoint"

// Task is one unit of a run: a keyword, a creator or a batch of status ids.
type Task struct {
	Mode   string
	Target string
}

// Key names the task's checkpoint.
func (t Task) Key() string {
	return checkpoint.TaskKey(t.Mode, t.Target)
}

// Cursor tracks pagination within a task. Page only moves forward.
type Cursor struct {
	Page      int
	PageSize  int
	Collected int
}

// More reports whether another page may be fetched. Zero limits are
// unbounded.
func (c Cursor) More(maxPages, maxItems int) bool {
	if maxItems > 0 && c.Collected >= maxItems {
		return false
	}
	if maxPages > 0 && c.Page > maxPages {
		return false
	}
	return true
}

// Room is how many more items fit under maxItems.
func (c Cursor) Room(maxItems int) int {
	if maxItems <= 0 {
		return -1
	}
	return maxItems - c.Collected
}
