package worker

import (
	"context"
	"time"

	"redvote/internal/model"
	"redvote/internal/store"

	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

// Scraper downloads a page and extracts its readable content.
type Scraper interface {
	Scrape(url string, timeout time.Duration) (*readability.Article, error)
}

// DefaultScraper fetches over the network.
type DefaultScraper struct{}

func (s *DefaultScraper) Scrape(url string, timeout time.Duration) (*readability.Article, error) {
	art, err := readability.FromURL(url, timeout)
	return &art, err
}

// Worker snapshots the links of newly posted articles.
type Worker struct {
	queue     store.Queue
	articles  store.Store
	snapshots store.Snapshots
	logger    *zap.Logger
	scraper   Scraper
	timeout   time.Duration
}

// NewWorker initializes the worker with the DefaultScraper.
func NewWorker(queue store.Queue, articles store.Store, snapshots store.Snapshots, logger *zap.Logger, timeout time.Duration) *Worker {
	return &Worker{
		queue:     queue,
		articles:  articles,
		snapshots: snapshots,
		logger:    logger,
		scraper:   &DefaultScraper{},
		timeout:   timeout,
	}
}

// Start runs the worker loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Worker started. Waiting for jobs...")

	for {
		id, err := w.queue.PopFetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("Worker shutting down")
				return
			}
			w.logger.Error("Queue error", zap.Error(err))
			select {
			case <-ctx.Done():
				w.logger.Info("Worker shutting down")
				return
			case <-time.After(time.Second):
			}
			continue
		}

		w.processJob(ctx, id)
	}
}

func (w *Worker) processJob(ctx context.Context, id uint64) {
	logger := w.logger.With(zap.Uint64("article_id", id))
	logger.Debug("Processing started")

	article, err := w.articles.Get(ctx, id)
	if err != nil {
		logger.Error("Job failed: article not found", zap.Error(err))
		return
	}

	snap := &model.Snapshot{
		ArticleID: id,
		Link:      article.Link,
		FetchedAt: time.Now().UTC(),
	}

	logger.Info("Downloading", zap.String("url", article.Link))
	parsed, err := w.scraper.Scrape(article.Link, w.timeout)
	if err != nil {
		logger.Warn("Scraping failed", zap.Error(err))
		snap.Status = model.StatusFailed
		snap.ErrorMessage = err.Error()
	} else {
		snap.Title = parsed.Title
		snap.Excerpt = parsed.Excerpt
		snap.Content = parsed.Content
		snap.Status = model.StatusArchived
	}

	if err := w.snapshots.SaveSnapshot(ctx, snap); err != nil {
		logger.Error("Failed to save snapshot", zap.Error(err))
		return
	}
	logger.Info("Snapshot saved", zap.String("status", string(snap.Status)), zap.String("title", snap.Title))
}
