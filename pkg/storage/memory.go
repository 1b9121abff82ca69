package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"xqcrawler/pkg/models"
)

// Memory is an in-process upserting gateway. It backs tests and dry runs.
type Memory struct {
	mu       sync.RWMutex
	now      Clock
	posts    map[string]models.Post
	comments map[string]models.Comment
	creators map[string]models.Creator
}

// NewMemory creates an empty store. A nil clock means time.Now.
func NewMemory(now Clock) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		now:      now,
		posts:    make(map[string]models.Post),
		comments: make(map[string]models.Comment),
		creators: make(map[string]models.Creator),
	}
}

// touch stamps ts for a write. add_ts survives from prev, and
// last_modify_ts always moves forward even when the clock does not.
func (m *Memory) touch(ts *models.Timestamps, prev *models.Timestamps) {
	now := millis(m.now())
	if prev == nil {
		ts.AddTS = now
		ts.LastModifyTS = now
		return
	}
	ts.AddTS = prev.AddTS
	if now <= prev.LastModifyTS {
		now = prev.LastModifyTS + 1
	}
	ts.LastModifyTS = now
}

// StorePost saves a post, replacing any with the same id.
func (m *Memory) StorePost(ctx context.Context, p *models.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	scrubPost(p)

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.posts[p.ID]; ok {
		m.touch(&p.Timestamps, &prev.Timestamps)
	} else {
		m.touch(&p.Timestamps, nil)
	}
	m.posts[p.ID] = *p
	return nil
}

// StoreComment saves a comment, replacing any with the same id.
func (m *Memory) StoreComment(ctx context.Context, c *models.Comment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	scrubComment(c)

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.comments[c.ID]; ok {
		m.touch(&c.Timestamps, &prev.Timestamps)
	} else {
		m.touch(&c.Timestamps, nil)
	}
	m.comments[c.ID] = *c
	return nil
}

// StoreCreator saves a creator, replacing any with the same user id.
func (m *Memory) StoreCreator(ctx context.Context, c *models.Creator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	scrubCreator(c)

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.creators[c.UserID]; ok {
		m.touch(&c.Timestamps, &prev.Timestamps)
	} else {
		m.touch(&c.Timestamps, nil)
	}
	m.creators[c.UserID] = *c
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// Post returns a stored post by id.
func (m *Memory) Post(id string) (models.Post, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[id]
	return p, ok
}

// Posts returns all posts ordered by id.
func (m *Memory) Posts() []models.Post {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Comments returns the comments stored for postID.
func (m *Memory) Comments(postID string) []models.Comment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Comment
	for _, c := range m.comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Creator returns a stored creator by user id.
func (m *Memory) Creator(userID string) (models.Creator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creators[userID]
	return c, ok
}

// Counts returns the number of stored posts, comments and creators.
func (m *Memory) Counts() (posts, comments, creators int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.posts), len(m.comments), len(m.creators)
}
