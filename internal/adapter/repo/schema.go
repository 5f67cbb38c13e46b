package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`create table if not exists batch_jobs (
		id                  text primary key,
		job_name            text not null default '',
		source_asset_names  text[] not null default '{}',
		manifest_asset_name text not null default '',
		original_paths      text[] not null default '{}',
		model               text not null default '',
		status              text not null default 'PENDING',
		error_message       text not null default '',
		created_at          timestamptz not null default now(),
		completed_at        timestamptz
	)`,
	`create unique index if not exists batch_jobs_job_name_idx on batch_jobs (job_name) where job_name <> ''`,
	`create index if not exists batch_jobs_status_idx on batch_jobs (status)`,
	`create table if not exists batch_items (
		id                text primary key,
		job_id            text not null references batch_jobs (id),
		request_key       text not null,
		source_asset_name text not null default '',
		original_path     text not null default '',
		source_url        text not null default '',
		product_name      text not null default '',
		order_number      text not null default '',
		position          integer not null default 0,
		page_url          text not null default '',
		status            text not null default 'PENDING',
		result_file       text not null default '',
		error_message     text not null default '',
		alt               text not null default '',
		title             text not null default '',
		description       text not null default '',
		cms_image_id      text not null default '',
		published         boolean not null default false,
		prompt            text not null default '',
		created_at        timestamptz not null default now()
	)`,
	`create unique index if not exists batch_items_request_key_idx on batch_items (request_key)`,
	`create index if not exists batch_items_job_id_idx on batch_items (job_id)`,
	`create index if not exists batch_items_status_idx on batch_items (status)`,
}

// EnsureSchema creates the ledger tables and indexes when missing. It is
// safe to run on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
