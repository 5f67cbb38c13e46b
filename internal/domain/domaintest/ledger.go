// Package domaintest provides an in-memory ledger implementation for tests.
package domaintest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"imagebatch/internal/domain"
)

// Ledger is an in-memory stand-in for the PostgreSQL ledger with the same
// transition validation. Jobs and Items expose the two repository facades
// over the shared state.
type Ledger struct {
	Jobs  *JobLedger
	Items *ItemLedger

	state *state
}

type state struct {
	mu    sync.Mutex
	jobs  map[string]*domain.Job
	items map[string]*domain.Item
}

// JobLedger implements domain.JobRepository in memory.
type JobLedger struct{ s *state }

// ItemLedger implements domain.ItemRepository in memory.
type ItemLedger struct{ s *state }

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	s := &state{
		jobs:  make(map[string]*domain.Job),
		items: make(map[string]*domain.Item),
	}
	return &Ledger{Jobs: &JobLedger{s: s}, Items: &ItemLedger{s: s}, state: s}
}

// SeedJob inserts a job and its items directly, bypassing validation.
func (l *Ledger) SeedJob(job *domain.Job, items ...*domain.Item) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	copied := *job
	l.state.jobs[job.ID] = &copied
	for _, item := range items {
		c := *item
		l.state.items[item.ID] = &c
	}
}

// SeedItem inserts a single item directly, bypassing validation.
func (l *Ledger) SeedItem(item *domain.Item) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	c := *item
	l.state.items[item.ID] = &c
}

// Job returns a snapshot of the stored job, or nil.
func (l *Ledger) Job(id string) *domain.Job {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	job, ok := l.state.jobs[id]
	if !ok {
		return nil
	}
	c := *job
	return &c
}

// Item returns a snapshot of the stored item, or nil.
func (l *Ledger) Item(id string) *domain.Item {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()
	item, ok := l.state.items[id]
	if !ok {
		return nil
	}
	c := *item
	return &c
}

// Create persists the job together with its items.
func (r *JobLedger) Create(ctx context.Context, job *domain.Job, items []*domain.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	copied := *job
	r.s.jobs[job.ID] = &copied
	for _, item := range items {
		c := *item
		r.s.items[item.ID] = &c
	}
	return nil
}

// GetByID fetches a job by ledger id.
func (r *JobLedger) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *job
	return &c, nil
}

// GetByName fetches a job by provider job name.
func (r *JobLedger) GetByName(ctx context.Context, jobName string) (*domain.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, job := range r.s.jobs {
		if job.JobName == jobName {
			c := *job
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ListByStatus returns jobs in any of the given statuses, oldest first.
func (r *JobLedger) ListByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]*domain.Job, error) {
	wanted := make(map[domain.JobStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	return r.selectJobs(func(job *domain.Job) bool { return wanted[job.Status] }), nil
}

// ListAll returns every job, oldest first.
func (r *JobLedger) ListAll(ctx context.Context) ([]*domain.Job, error) {
	return r.selectJobs(func(*domain.Job) bool { return true }), nil
}

// UpdateStatus validates and applies a job status write.
func (r *JobLedger) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg string, completedAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job, ok := r.s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if err := domain.ValidateJobTransition(job.Status, status); err != nil {
		return fmt.Errorf("job %s: %s -> %s: %w", jobID, job.Status, status, err)
	}
	job.Status = status
	job.ErrorMessage = errMsg
	if completedAt != nil {
		job.CompletedAt = completedAt
	}
	return nil
}

func (r *JobLedger) selectJobs(keep func(*domain.Job) bool) []*domain.Job {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var jobs []*domain.Job
	for _, job := range r.s.jobs {
		if keep(job) {
			c := *job
			jobs = append(jobs, &c)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs
}

// GetByRequestKey fetches the item correlated with a manifest request key.
func (r *ItemLedger) GetByRequestKey(ctx context.Context, requestKey string) (*domain.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, item := range r.s.items {
		if item.RequestKey == requestKey {
			c := *item
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ListByJobID returns the items of one job ordered by position.
func (r *ItemLedger) ListByJobID(ctx context.Context, jobID string) ([]*domain.Item, error) {
	return r.selectItems(func(item *domain.Item) bool { return item.JobID == jobID }), nil
}

// ListAll returns every item.
func (r *ItemLedger) ListAll(ctx context.Context) ([]*domain.Item, error) {
	return r.selectItems(func(*domain.Item) bool { return true }), nil
}

// MarkSucceeded records a staged result and moves the item to SUCCEEDED.
func (r *ItemLedger) MarkSucceeded(ctx context.Context, itemID, resultFile string) error {
	return r.transition(itemID, domain.ItemStatusSucceeded, func(item *domain.Item) {
		item.ResultFile = resultFile
		item.ErrorMessage = ""
	})
}

// MarkFailed records a failure message and moves the item to FAILED.
func (r *ItemLedger) MarkFailed(ctx context.Context, itemID, errMsg string) error {
	return r.transition(itemID, domain.ItemStatusFailed, func(item *domain.Item) {
		item.ErrorMessage = errMsg
	})
}

// MarkDeleted retires an item whose staged asset disappeared.
func (r *ItemLedger) MarkDeleted(ctx context.Context, itemID string) error {
	return r.transition(itemID, domain.ItemStatusDeleted, func(*domain.Item) {})
}

// SetCaptions stores the generated caption set.
func (r *ItemLedger) SetCaptions(ctx context.Context, itemID, alt, title, description string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.items[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	item.Alt = alt
	item.Title = title
	item.Description = description
	return nil
}

// SetCMSImageID records the downstream image id after a successful upload.
func (r *ItemLedger) SetCMSImageID(ctx context.Context, itemID, cmsImageID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.items[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	item.CMSImageID = cmsImageID
	return nil
}

// MarkPublished flips the published flag and records the CMS image id.
func (r *ItemLedger) MarkPublished(ctx context.Context, itemID, cmsImageID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.items[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	item.Published = true
	item.CMSImageID = cmsImageID
	return nil
}

// ListReadyForCaption returns staged, unpublished items.
func (r *ItemLedger) ListReadyForCaption(ctx context.Context) ([]*domain.Item, error) {
	return r.selectItems(func(item *domain.Item) bool { return item.ReadyForCaption() }), nil
}

// ListReadyForPublish returns staged, captioned, unpublished items.
func (r *ItemLedger) ListReadyForPublish(ctx context.Context) ([]*domain.Item, error) {
	return r.selectItems(func(item *domain.Item) bool { return item.ReadyForPublish() }), nil
}

func (r *ItemLedger) transition(itemID string, to domain.ItemStatus, apply func(*domain.Item)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.items[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	if err := domain.ValidateItemTransition(item.Status, to); err != nil {
		return fmt.Errorf("item %s: %s -> %s: %w", itemID, item.Status, to, err)
	}
	apply(item)
	item.Status = to
	return nil
}

func (r *ItemLedger) selectItems(keep func(*domain.Item) bool) []*domain.Item {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var items []*domain.Item
	for _, item := range r.s.items {
		if keep(item) {
			c := *item
			items = append(items, &c)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].ProductName != items[j].ProductName {
			return items[i].ProductName < items[j].ProductName
		}
		if items[i].Position != items[j].Position {
			return items[i].Position < items[j].Position
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

var (
	_ domain.JobRepository  = (*JobLedger)(nil)
	_ domain.ItemRepository = (*ItemLedger)(nil)
)
