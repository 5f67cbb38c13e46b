package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"imagebatch/internal/domain"
	"imagebatch/internal/infra"
	"imagebatch/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	pool *pgxpool.Pool
	db   infra.SQLExecutor
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool, logger zerolog.Logger) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool, db: infra.NewSQLRunner(pool, logger)}
}

// Create inserts the job and all of its items in one transaction, so a
// half-registered batch can never appear in the ledger.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job, items []*domain.Item) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.JobName,
		job.SourceAssetNames,
		job.ManifestAssetName,
		job.OriginalPaths,
		job.Model,
		job.Status,
		job.ErrorMessage,
		job.CreatedAt,
		job.CompletedAt,
	); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	for _, item := range items {
		if _, err := tx.Exec(ctx, sqlinline.QInsertItem,
			item.ID,
			item.JobID,
			item.RequestKey,
			item.SourceAssetName,
			item.OriginalPath,
			item.SourceURL,
			item.ProductName,
			item.OrderNumber,
			item.Position,
			item.PageURL,
			item.Status,
			item.ResultFile,
			item.ErrorMessage,
			item.Alt,
			item.Title,
			item.Description,
			item.CMSImageID,
			item.Published,
			item.Prompt,
			item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert item %s: %w", item.RequestKey, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID fetches a job by its ledger identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	return r.scanJob(r.db.QueryRow(ctx, sqlinline.QSelectJobByID, id))
}

// GetByName fetches a job by its provider-side job name.
func (r *JobRepositoryPG) GetByName(ctx context.Context, jobName string) (*domain.Job, error) {
	return r.scanJob(r.db.QueryRow(ctx, sqlinline.QSelectJobByName, jobName))
}

// ListByStatus returns jobs in any of the given statuses, oldest first.
func (r *JobRepositoryPG) ListByStatus(ctx context.Context, statuses ...domain.JobStatus) ([]*domain.Job, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	rows, err := r.db.Query(ctx, sqlinline.QSelectJobsByStatus, values)
	if err != nil {
		return nil, err
	}
	return r.collectJobs(rows)
}

// ListAll returns every job in the ledger, oldest first.
func (r *JobRepositoryPG) ListAll(ctx context.Context) ([]*domain.Job, error) {
	rows, err := r.db.Query(ctx, sqlinline.QSelectAllJobs)
	if err != nil {
		return nil, err
	}
	return r.collectJobs(rows)
}

// UpdateStatus validates the transition against the stored status and writes
// the new status, error message and completion time as one conditional
// update. A concurrent status change surfaces as domain.ErrInvalidTransition.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, status domain.JobStatus, errMsg string, completedAt *time.Time) error {
	var current domain.JobStatus
	if err := r.db.QueryRow(ctx, sqlinline.QSelectJobStatus, jobID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	if err := domain.ValidateJobTransition(current, status); err != nil {
		return fmt.Errorf("job %s: %s -> %s: %w", jobID, current, status, err)
	}

	tag, err := r.db.Exec(ctx, sqlinline.QUpdateJobStatus, jobID, status, errMsg, completedAt, current)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: status changed concurrently: %w", jobID, domain.ErrInvalidTransition)
	}
	return nil
}

func (r *JobRepositoryPG) scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.JobName,
		&job.SourceAssetNames,
		&job.ManifestAssetName,
		&job.OriginalPaths,
		&job.Model,
		&job.Status,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *JobRepositoryPG) collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	defer rows.Close()
	var jobs []*domain.Job
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
