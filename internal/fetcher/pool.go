// Package fetcher runs comment fetches for a batch of posts on a fixed
// number of workers. The worker count is the admission gate: no more than
// that many posts have requests in flight at once.
package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"xqcrawler/pkg/extract"
	"xqcrawler/pkg/logger"
	"xqcrawler/pkg/models"
	"xqcrawler/pkg/retry"
)

// Job is one post whose comments should be fetched.
type Job struct {
	PostID string
}

// Result is the outcome of one Job. Comments counts what was stored before
// any error.
type Result struct {
	Job      Job
	Comments int
	Pages    int
	Err      error
	Duration time.Duration
}

// CommentSource fetches one page of raw comments for a post.
type CommentSource interface {
	FetchComments(ctx context.Context, postID string, page, size int) (map[string]any, error)
}

// CommentSourceFunc adapts a function to CommentSource.
type CommentSourceFunc func(ctx context.Context, postID string, page, size int) (map[string]any, error)

func (f CommentSourceFunc) FetchComments(ctx context.Context, postID string, page, size int) (map[string]any, error) {
	return f(ctx, postID, page, size)
}

// CommentSink persists one comment.
type CommentSink interface {
	StoreComment(ctx context.Context, c *models.Comment) error
}

// Options bounds the work done per post.
type Options struct {
	Workers    int
	PageSize   int
	MaxPerPost int
	PageDelay  time.Duration
}

// WorkerPool manages concurrent comment workers
type WorkerPool struct {
	opts        Options
	source      CommentSource
	sink        CommentSink
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	logger      logger.Logger
}

// NewWorkerPool creates a pool bound to ctx. Cancelling ctx stops workers
// between pages.
func NewWorkerPool(ctx context.Context, opts Options, source CommentSource, sink CommentSink, log logger.Logger) *WorkerPool {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}

	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		opts:        opts,
		source:      source,
		sink:        sink,
		jobQueue:    make(chan Job, opts.Workers*2),
		resultQueue: make(chan Result, opts.Workers),
		ctx:         ctx,
		cancel:      cancel,
		logger:      log.WithField("component", "comment_pool"),
	}
}

// Start launches the workers.
func (wp *WorkerPool) Start() {
	wp.logger.DebugWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.opts.Workers,
	})

	for i := 0; i < wp.opts.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop closes the queue, waits for the workers and closes Results.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("Worker pool stopped")
}

// Submit queues a job, blocking while the queue is full.
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the result channel. It is closed by Stop.
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

// RunBatch fetches comments for every post id and returns one Result per
// id that reached a worker, in completion order.
func RunBatch(ctx context.Context, opts Options, source CommentSource, sink CommentSink, log logger.Logger, postIDs []string) []Result {
	if len(postIDs) == 0 {
		return nil
	}

	wp := NewWorkerPool(ctx, opts, source, sink, log)
	wp.Start()

	go func() {
		defer wp.Stop()
		for _, id := range postIDs {
			if err := wp.Submit(Job{PostID: id}); err != nil {
				return
			}
		}
	}()

	results := make([]Result, 0, len(postIDs))
	for res := range wp.Results() {
		results = append(results, res)
	}
	return results
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			wp.send(Result{Job: job, Err: wp.ctx.Err()})
			continue
		}
		wp.send(wp.processJob(job, id))
	}
}

func (wp *WorkerPool) send(res Result) {
	// Results are always drained by the owner until Stop closes the channel.
	wp.resultQueue <- res
}

// processJob pages through one post's comments until an empty or short
// page, or until MaxPerPost comments are stored.
func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := time.Now()
	res := Result{Job: job}
	log := wp.logger.WithFields(map[string]interface{}{
		"worker_id": workerID,
		"post_id":   job.PostID,
	})

	for page := 1; ; page++ {
		raw, err := wp.source.FetchComments(wp.ctx, job.PostID, page, wp.opts.PageSize)
		if err != nil {
			res.Err = fmt.Errorf("comments page %d: %w", page, err)
			break
		}
		res.Pages++

		list := extract.FirstList(raw, extract.CommentListPaths)
		if len(list) == 0 {
			break
		}

		full := false
		for _, item := range list {
			if wp.opts.MaxPerPost > 0 && res.Comments >= wp.opts.MaxPerPost {
				full = true
				break
			}
			c := extract.Comment(job.PostID, item)
			if c.ID == "" {
				log.Debug("skipping comment without id")
				continue
			}
			if err := wp.sink.StoreComment(wp.ctx, &c); err != nil {
				res.Err = fmt.Errorf("store comment %s: %w", c.ID, err)
				break
			}
			res.Comments++
		}
		if res.Err != nil {
			break
		}
		if full || len(list) < wp.opts.PageSize ||
			(wp.opts.MaxPerPost > 0 && res.Comments >= wp.opts.MaxPerPost) {
			break
		}

		if err := retry.Wait(wp.ctx, wp.opts.PageDelay); err != nil {
			res.Err = err
			break
		}
	}

	res.Duration = time.Since(start)
	if res.Err != nil {
		log.WithError(res.Err).Warn("comment fetch failed")
	} else {
		log.DebugWithFields("comments fetched", map[string]interface{}{
			"comments":    res.Comments,
			"pages":       res.Pages,
			"duration_ms": res.Duration.Milliseconds(),
		})
	}
	return res
}
