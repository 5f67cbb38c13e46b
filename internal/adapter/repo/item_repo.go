package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"imagebatch/internal/domain"
	"imagebatch/internal/infra"
	"imagebatch/internal/sqlinline"
)

// ItemRepositoryPG implements domain.ItemRepository on PostgreSQL.
type ItemRepositoryPG struct {
	db infra.SQLExecutor
}

// NewItemRepository creates an item repository backed by PostgreSQL.
func NewItemRepository(pool *pgxpool.Pool, logger zerolog.Logger) *ItemRepositoryPG {
	return &ItemRepositoryPG{db: infra.NewSQLRunner(pool, logger)}
}

// GetByRequestKey fetches the item correlated with a manifest request key.
func (r *ItemRepositoryPG) GetByRequestKey(ctx context.Context, requestKey string) (*domain.Item, error) {
	return r.scanItem(r.db.QueryRow(ctx, sqlinline.QSelectItemByRequestKey, requestKey))
}

// ListByJobID returns the items of one job ordered by position.
func (r *ItemRepositoryPG) ListByJobID(ctx context.Context, jobID string) ([]*domain.Item, error) {
	rows, err := r.db.Query(ctx, sqlinline.QSelectItemsByJob, jobID)
	if err != nil {
		return nil, err
	}
	return r.collectItems(rows)
}

// ListAll returns every item in the ledger, oldest first.
func (r *ItemRepositoryPG) ListAll(ctx context.Context) ([]*domain.Item, error) {
	rows, err := r.db.Query(ctx, sqlinline.QSelectAllItems)
	if err != nil {
		return nil, err
	}
	return r.collectItems(rows)
}

// MarkSucceeded records a staged result file and moves the item to SUCCEEDED,
// clearing any error left by an earlier failed pass.
func (r *ItemRepositoryPG) MarkSucceeded(ctx context.Context, itemID, resultFile string) error {
	return r.transition(ctx, itemID, domain.ItemStatusSucceeded, func(current domain.ItemStatus) (string, []any) {
		return sqlinline.QMarkItemSucceeded, []any{itemID, resultFile, current}
	})
}

// MarkFailed records a per-item failure message and moves the item to FAILED.
func (r *ItemRepositoryPG) MarkFailed(ctx context.Context, itemID, errMsg string) error {
	return r.transition(ctx, itemID, domain.ItemStatusFailed, func(current domain.ItemStatus) (string, []any) {
		return sqlinline.QMarkItemFailed, []any{itemID, errMsg, current}
	})
}

// MarkDeleted retires an item whose staged asset disappeared before publish.
func (r *ItemRepositoryPG) MarkDeleted(ctx context.Context, itemID string) error {
	return r.transition(ctx, itemID, domain.ItemStatusDeleted, func(current domain.ItemStatus) (string, []any) {
		return sqlinline.QMarkItemDeleted, []any{itemID, current}
	})
}

// SetCaptions stores the generated alt/title/description set.
func (r *ItemRepositoryPG) SetCaptions(ctx context.Context, itemID, alt, title, description string) error {
	return r.exec(ctx, itemID, sqlinline.QSetItemCaptions, itemID, alt, title, description)
}

// SetCMSImageID records the downstream image id after a successful upload.
func (r *ItemRepositoryPG) SetCMSImageID(ctx context.Context, itemID, cmsImageID string) error {
	return r.exec(ctx, itemID, sqlinline.QSetItemCMSImageID, itemID, cmsImageID)
}

// MarkPublished flips the published flag and records the CMS image id in
// one write.
func (r *ItemRepositoryPG) MarkPublished(ctx context.Context, itemID, cmsImageID string) error {
	return r.exec(ctx, itemID, sqlinline.QMarkItemPublished, itemID, cmsImageID)
}

// ListReadyForCaption returns staged, unpublished items grouped by product.
func (r *ItemRepositoryPG) ListReadyForCaption(ctx context.Context) ([]*domain.Item, error) {
	rows, err := r.db.Query(ctx, sqlinline.QSelectItemsReadyForCaption)
	if err != nil {
		return nil, err
	}
	return r.collectItems(rows)
}

// ListReadyForPublish returns staged, captioned, unpublished items.
func (r *ItemRepositoryPG) ListReadyForPublish(ctx context.Context) ([]*domain.Item, error) {
	rows, err := r.db.Query(ctx, sqlinline.QSelectItemsReadyForPublish)
	if err != nil {
		return nil, err
	}
	return r.collectItems(rows)
}

// transition reads the stored status, validates the move and applies the
// conditional update. Losing the race to a concurrent writer surfaces as
// domain.ErrInvalidTransition.
func (r *ItemRepositoryPG) transition(ctx context.Context, itemID string, to domain.ItemStatus, build func(current domain.ItemStatus) (string, []any)) error {
	var current domain.ItemStatus
	if err := r.db.QueryRow(ctx, sqlinline.QSelectItemStatus, itemID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	if err := domain.ValidateItemTransition(current, to); err != nil {
		return fmt.Errorf("item %s: %s -> %s: %w", itemID, current, to, err)
	}

	query, args := build(current)
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %s: status changed concurrently: %w", itemID, domain.ErrInvalidTransition)
	}
	return nil
}

func (r *ItemRepositoryPG) exec(ctx context.Context, itemID, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %s: %w", itemID, domain.ErrNotFound)
	}
	return nil
}

func (r *ItemRepositoryPG) scanItem(row pgx.Row) (*domain.Item, error) {
	var item domain.Item
	if err := row.Scan(
		&item.ID,
		&item.JobID,
		&item.RequestKey,
		&item.SourceAssetName,
		&item.OriginalPath,
		&item.SourceURL,
		&item.ProductName,
		&item.OrderNumber,
		&item.Position,
		&item.PageURL,
		&item.Status,
		&item.ResultFile,
		&item.ErrorMessage,
		&item.Alt,
		&item.Title,
		&item.Description,
		&item.CMSImageID,
		&item.Published,
		&item.Prompt,
		&item.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *ItemRepositoryPG) collectItems(rows pgx.Rows) ([]*domain.Item, error) {
	defer rows.Close()
	var items []*domain.Item
	for rows.Next() {
		item, err := r.scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

var _ domain.ItemRepository = (*ItemRepositoryPG)(nil)
