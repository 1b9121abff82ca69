package checkpoint

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"xqcrawler/pkg/logger"
)

// Checkpoint is the saved cursor of one crawl task.
type Checkpoint struct {
	Task      string    `json:"task"`
	RunID     string    `json:"run_id"`
	LastPage  int       `json:"last_page"`
	Collected int       `json:"collected"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// NextPage is the page a resumed task starts at.
func (c *Checkpoint) NextPage() int {
	return c.LastPage + 1
}

// Manager stores one checkpoint file per task key under a directory.
type Manager struct {
	dir    string
	logger logger.Logger
	now    func() time.Time
}

// NewManager creates the checkpoint directory if needed.
func NewManager(dir string, log logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{dir: dir, logger: log, now: time.Now}, nil
}

// TaskKey names a task checkpoint, e.g. TaskKey("search", "茅台").
func TaskKey(mode, target string) string {
	return mode + ":" + target
}

// Path returns the checkpoint file for a task key. Keys are free text, so the
// file name is a sanitized prefix plus a hash of the full key.
func (m *Manager) Path(task string) string {
	var b strings.Builder
	for _, r := range task {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 48 {
			break
		}
	}
	h := fnv.New32a()
	h.Write([]byte(task))
	return filepath.Join(m.dir, fmt.Sprintf("%s-%08x.checkpoint.json", b.String(), h.Sum32()))
}

// Load returns the task's checkpoint, or nil when none exists.
func (m *Manager) Load(task string) (*Checkpoint, error) {
	data, err := os.ReadFile(m.Path(task))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Task != task {
		return nil, nil
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"task":      cp.Task,
		"last_page": cp.LastPage,
		"collected": cp.Collected,
	})
	return &cp, nil
}

// Save writes the checkpoint atomically through a temp file and rename.
func (m *Manager) Save(cp *Checkpoint) error {
	now := m.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	cp.Version = 1

	path := m.Path(cp.Task)
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"task":      cp.Task,
		"last_page": cp.LastPage,
		"collected": cp.Collected,
	})
	return nil
}

// Advance records a finished page.
func (m *Manager) Advance(cp *Checkpoint, page, collected int) error {
	cp.LastPage = page
	cp.Collected = collected
	return m.Save(cp)
}

// Delete removes the task's checkpoint file
func (m *Manager) Delete(task string) error {
	if err := os.Remove(m.Path(task)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.WithField("task", task).Debug("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists for the task
func (m *Manager) Exists(task string) bool {
	_, err := os.Stat(m.Path(task))
	return err == nil
}
