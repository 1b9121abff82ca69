package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"xqcrawler/pkg/models"
)

// Format selects the on-disk encoding of a FileStore.
type Format string

const (
	FormatJSONL Format = "json"
	FormatCSV   Format = "csv"
)

// FileStore appends records to one file per kind and day under
// <dir>/xueqiu/<format>/. It is append-only: storing the same id twice
// writes two lines.
type FileStore struct {
	dir    string
	format Format
	now    Clock
	mu     sync.Mutex
}

// NewFileStore creates the output directory and returns the store.
func NewFileStore(outputDir string, format Format, now Clock) (*FileStore, error) {
	if now == nil {
		now = time.Now
	}
	dir := filepath.Join(outputDir, "xueqiu", string(format))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileStore{dir: dir, format: format, now: now}, nil
}

// Path returns the file a record of kind written now would go to.
func (f *FileStore) Path(kind Kind) string {
	ext := "jsonl"
	if f.format == FormatCSV {
		ext = "csv"
	}
	return filepath.Join(f.dir, fmt.Sprintf("%s_%s.%s", kind, f.now().Format("2006-01-02"), ext))
}

func (f *FileStore) stamp(ts *models.Timestamps) {
	now := millis(f.now())
	if ts.AddTS == 0 {
		ts.AddTS = now
	}
	ts.LastModifyTS = now
}

// StorePost appends a post to the posts file.
func (f *FileStore) StorePost(ctx context.Context, p *models.Post) error {
	scrubPost(p)
	f.stamp(&p.Timestamps)
	return f.write(ctx, KindPost, p, models.PostCSVHeader, p.Record)
}

// StoreComment appends a comment to the comments file.
func (f *FileStore) StoreComment(ctx context.Context, c *models.Comment) error {
	scrubComment(c)
	f.stamp(&c.Timestamps)
	return f.write(ctx, KindComment, c, models.CommentCSVHeader, c.Record)
}

// StoreCreator appends a creator to the creators file.
func (f *FileStore) StoreCreator(ctx context.Context, c *models.Creator) error {
	scrubCreator(c)
	f.stamp(&c.Timestamps)
	return f.write(ctx, KindCreator, c, models.CreatorCSVHeader, c.Record)
}

// Close is a no-op; each write opens and closes its file.
func (f *FileStore) Close() error { return nil }

func (f *FileStore) write(ctx context.Context, kind Kind, v any, header []string, record func() []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.Path(kind)
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	if f.format == FormatJSONL {
		line, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s record: %w", kind, err)
		}
		if _, err := file.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		return nil
	}

	w := csv.NewWriter(file)
	if fresh {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}
	if err := w.Write(record()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	w.Flush()
	return w.Error()
}
