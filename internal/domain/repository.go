package domain

import (
	"context"
	"time"
)

// JobRepository defines ledger persistence for batch jobs. Create persists
// the job together with its items as one atomic write.
type JobRepository interface {
	Create(ctx context.Context, job *Job, items []*Item) error
	GetByID(ctx context.Context, id string) (*Job, error)
	GetByName(ctx context.Context, jobName string) (*Job, error)
	ListByStatus(ctx context.Context, statuses ...JobStatus) ([]*Job, error)
	ListAll(ctx context.Context) ([]*Job, error)
	// UpdateStatus validates the transition against the stored status and
	// writes status, error message and completion timestamp as one unit.
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, errMsg string, completedAt *time.Time) error
}

// ItemRepository defines ledger persistence for generation items. Every
// mutation validates the status transition and commits independently of
// sibling items.
type ItemRepository interface {
	GetByRequestKey(ctx context.Context, requestKey string) (*Item, error)
	ListByJobID(ctx context.Context, jobID string) ([]*Item, error)
	ListAll(ctx context.Context) ([]*Item, error)
	MarkSucceeded(ctx context.Context, itemID, resultFile string) error
	MarkFailed(ctx context.Context, itemID, errMsg string) error
	MarkDeleted(ctx context.Context, itemID string) error
	SetCaptions(ctx context.Context, itemID, alt, title, description string) error
	// SetCMSImageID records the downstream id as soon as the upload
	// succeeds, before the gallery add, so a retried publish reuses the
	// uploaded image instead of duplicating it.
	SetCMSImageID(ctx context.Context, itemID, cmsImageID string) error
	MarkPublished(ctx context.Context, itemID, cmsImageID string) error
	ListReadyForCaption(ctx context.Context) ([]*Item, error)
	ListReadyForPublish(ctx context.Context) ([]*Item, error)
}
