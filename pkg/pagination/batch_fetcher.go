package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/posts-client/pkg/post"
	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
	// PageSize is the limit sent with every page request
	PageSize int
	// MaxPages bounds sequential paging when the source reports no total
	MaxPages int
}

// DefaultConfig returns safe default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		PageSize:       10,
		MaxPages:       1000,
	}
}

// pageResult represents the result of fetching a single page
type pageResult struct {
	page Page
	err  error
}

// BatchFetcher fetches every page of a source in parallel and merges them.
// It implements post.AllFetcher.
type BatchFetcher struct {
	fetcher post.TotalPageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher post.TotalPageFetcher, config Config) *BatchFetcher {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll fetches page 1 to learn the total, then the remaining pages with a
// worker pool. Posts are returned in page order with duplicate IDs removed.
// On a worker failure the pages fetched so far are returned with the error.
func (bf *BatchFetcher) FetchAll(ctx context.Context) ([]post.Post, error) {
	start := time.Now()
	defer func() {
		batchFetchDuration.Observe(time.Since(start).Seconds())
	}()

	firstCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	first, total, err := bf.fetcher.FetchPageWithTotal(firstCtx, 1, bf.config.PageSize)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}
	batchPagesFetchedTotal.Inc()

	pages := []Page{{Number: 1, Items: first}}
	if len(first) == 0 {
		return merge(pages), nil
	}

	if total < 0 {
		rest, err := bf.fetchSequential(ctx)
		return merge(append(pages, rest...)), err
	}

	totalPages := (total + bf.config.PageSize - 1) / bf.config.PageSize

	log.Info().
		Int("total", total).
		Int("total_pages", totalPages).
		Int("page_size", bf.config.PageSize).
		Msg("Starting parallel page fetch")

	if totalPages <= 1 {
		log.Info().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return merge(pages), nil
	}

	rest, err := bf.fetchParallel(ctx, totalPages)
	pages = append(pages, rest...)

	log.Info().
		Int("pages", len(pages)).
		Int("total_pages", totalPages).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return merge(pages), err
}

// fetchParallel fetches pages 2..totalPages with the worker pool.
func (bf *BatchFetcher) fetchParallel(ctx context.Context, totalPages int) ([]Page, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pageQueue := make(chan int, totalPages)
	for page := 2; page <= totalPages; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	results := make(chan pageResult, totalPages)

	workers := bf.config.MaxConcurrency
	if workers > totalPages-1 {
		workers = totalPages - 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, pageQueue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var pages []Page
	var firstErr error
	for result := range results {
		if result.err != nil {
			if firstErr == nil {
				firstErr = result.err
				cancel()
			}
			continue
		}
		pages = append(pages, result.page)
	}

	if firstErr != nil {
		log.Warn().
			Err(firstErr).
			Int("fetched_pages", len(pages)+1).
			Int("total_pages", totalPages).
			Msg("Worker error - returning partial results")
		return pages, fmt.Errorf("worker error (partial data: %d/%d pages): %w", len(pages)+1, totalPages, firstErr)
	}
	return pages, nil
}

// fetchSequential pages forward from page 2 until an empty page.
func (bf *BatchFetcher) fetchSequential(ctx context.Context) ([]Page, error) {
	var pages []Page
	for page := 2; page <= bf.config.MaxPages; page++ {
		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		items, err := bf.fetcher.FetchPage(pageCtx, page, bf.config.PageSize)
		cancel()
		if err != nil {
			return pages, fmt.Errorf("fetch page %d: %w", page, err)
		}
		batchPagesFetchedTotal.Inc()
		if len(items) == 0 {
			return pages, nil
		}
		pages = append(pages, Page{Number: page, Items: items})
	}
	return pages, nil
}

// worker processes pages from the queue
func (bf *BatchFetcher) worker(ctx context.Context, pageQueue <-chan int, results chan<- pageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		select {
		case <-ctx.Done():
			log.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		items, err := bf.fetcher.FetchPage(pageCtx, pageNum, bf.config.PageSize)
		cancel()

		if err != nil {
			log.Warn().
				Err(err).
				Int("worker_id", workerID).
				Int("page", pageNum).
				Msg("Page fetch failed")
			results <- pageResult{page: Page{Number: pageNum}, err: err}
			return
		}

		batchPagesFetchedTotal.Inc()
		results <- pageResult{page: Page{Number: pageNum, Items: items}}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}

// merge orders pages by number and concatenates them without duplicate IDs.
func merge(pages []Page) []post.Post {
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].Number < pages[j].Number
	})

	seen := make(map[int]struct{})
	posts := make([]post.Post, 0)
	for _, p := range pages {
		posts = appendUnique(posts, p.Items, seen)
	}
	return posts
}
