package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/pricewatch/models"
	"github.com/use-agent/pricewatch/webhook"
)

// batchTTL is how long finished and running jobs stay queryable.
const batchTTL = time.Hour

// ErrEmptyBatch is returned when a batch names no URL.
var ErrEmptyBatch = errors.New("crawler: batch has no requests")

// ProductLister enumerates stored products for all-product batches.
type ProductLister interface {
	List(ctx context.Context, skip, limit int) ([]models.Product, error)
}

type batchJob struct {
	mu        sync.Mutex
	id        string
	status    string
	completed int
	failed    int
	createdAt time.Time
	results   []*models.CrawlerResponse
}

func (j *batchJob) record(idx int, resp *models.CrawlerResponse) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results[idx] = resp
	if resp.Success {
		j.completed++
	} else {
		j.failed++
	}
}

func (j *batchJob) finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case j.failed == len(j.results):
		j.status = models.BatchFailed
	case j.failed > 0:
		j.status = models.BatchPartial
	default:
		j.status = models.BatchCompleted
	}
}

func (j *batchJob) snapshot() *models.BatchStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	return &models.BatchStatusResponse{
		ID:        j.id,
		Status:    j.status,
		Completed: j.completed,
		Failed:    j.failed,
		Total:     len(j.results),
		CreatedAt: j.createdAt.Unix(),
		Results:   append([]*models.CrawlerResponse(nil), j.results...),
	}
}

// Batches runs groups of scrapes in the background with bounded
// concurrency. It is safe for concurrent use.
type Batches struct {
	svc         *Service
	products    ProductLister
	concurrency int
	jobs        sync.Map
	done        chan struct{}
	closeOnce   sync.Once
}

// NewBatches returns a batch runner over svc. products may be nil, which
// disables all-product batches.
func NewBatches(svc *Service, products ProductLister, concurrency int) *Batches {
	if concurrency < 1 {
		concurrency = 1
	}
	b := &Batches{svc: svc, products: products, concurrency: concurrency, done: make(chan struct{})}
	go b.expireLoop()
	return b
}

// Submit starts a batch and returns its id immediately.
func (b *Batches) Submit(ctx context.Context, req *models.BatchRequest) (*models.BatchResponse, error) {
	requests := req.Requests
	if req.AllProducts {
		if b.products == nil {
			return nil, models.NewAPIError(models.ErrCodeInvalidInput, "product store not configured", nil)
		}
		all, err := b.productRequests(ctx)
		if err != nil {
			return nil, models.NewAPIError(models.ErrCodeInternal, "failed to list products", err)
		}
		requests = append(requests, all...)
	}
	if len(requests) == 0 {
		return nil, models.NewAPIError(models.ErrCodeInvalidInput, ErrEmptyBatch.Error(), ErrEmptyBatch)
	}

	job := &batchJob{
		id:        "batch-" + uuid.NewString(),
		status:    models.BatchProcessing,
		createdAt: time.Now(),
		results:   make([]*models.CrawlerResponse, len(requests)),
	}
	b.jobs.Store(job.id, job)

	go b.run(job, requests)

	return &models.BatchResponse{ID: job.id, Status: job.status, Total: len(requests)}, nil
}

// Get returns the current state of a batch.
func (b *Batches) Get(id string) (*models.BatchStatusResponse, bool) {
	v, ok := b.jobs.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*batchJob).snapshot(), true
}

// Wait blocks until the batch finishes or ctx ends, then returns its state.
func (b *Batches) Wait(ctx context.Context, id string) (*models.BatchStatusResponse, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		s, ok := b.Get(id)
		if !ok {
			return nil, models.NewAPIError(models.ErrCodeNotFound, "batch job not found", nil)
		}
		if s.Status != models.BatchProcessing {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops the expiry goroutine.
func (b *Batches) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *Batches) productRequests(ctx context.Context) ([]models.CrawlerRequest, error) {
	var out []models.CrawlerRequest
	const page = 1000
	for skip := 0; ; skip += page {
		products, err := b.products.List(ctx, skip, page)
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			sku := p.SKU
			out = append(out, models.CrawlerRequest{URL: p.URL, SKU: &sku})
		}
		if len(products) < page {
			return out, nil
		}
	}
}

// run scrapes every request, at most b.concurrency at a time.
func (b *Batches) run(job *batchJob, requests []models.CrawlerRequest) {
	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for i := range requests {
		wg.Add(1)
		go func(idx int, req models.CrawlerRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			job.record(idx, b.runOne(&req))
		}(i, requests[i])
	}
	wg.Wait()
	job.finish()

	s := job.snapshot()
	slog.Info("batch job finished",
		"id", s.ID,
		"status", s.Status,
		"completed", s.Completed,
		"failed", s.Failed,
		"total", s.Total,
	)
	b.svc.Notifier.Notify(&webhook.Event{Type: webhook.EventBatchCompleted, RunID: s.ID, Data: s})
}

func (b *Batches) runOne(req *models.CrawlerRequest) *models.CrawlerResponse {
	resp, err := b.svc.Run(context.Background(), req)
	if err == nil {
		return resp
	}
	apiErr := classify(context.Background(), err)
	return &models.CrawlerResponse{
		Success:   false,
		Supported: true,
		Message:   apiErr.Message,
		Error:     apiErr.ToDetail(),
	}
}

func (b *Batches) expireLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-b.done:
			return
		case now := <-ticker.C:
			cutoff := now.Add(-batchTTL)
			b.jobs.Range(func(key, value any) bool {
				if value.(*batchJob).createdAt.Before(cutoff) {
					b.jobs.Delete(key)
				}
				return true
			})
		}
	}
}
