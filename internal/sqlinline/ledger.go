package sqlinline

// Ledger queries. Every constant starts with an `--sql <uuid>` marker line
// that the SQL runner strips and uses as a stable log correlation id.

const QInsertJob = `--sql 3f1c6a92-8d14-4b5e-9c27-5b0de1a4f7c3
insert into batch_jobs (id, job_name, source_asset_names, manifest_asset_name, original_paths, model, status, error_message, created_at, completed_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`

const QInsertItem = `--sql 7a92d3e1-4c08-49fb-8b65-2e91c0d4aa18
insert into batch_items (id, job_id, request_key, source_asset_name, original_path, source_url,
                         product_name, order_number, position, page_url,
                         status, result_file, error_message, alt, title, description,
                         cms_image_id, published, prompt, created_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20);
`

const jobColumns = `id, job_name, source_asset_names, manifest_asset_name, original_paths, model, status, error_message, created_at, completed_at`

const QSelectJobByID = `--sql b4e7f021-6a3d-4f88-9d12-c85a1e6b3904
select ` + jobColumns + `
from batch_jobs
where id = $1
limit 1;
`

const QSelectJobByName = `--sql 9c05d8b6-2e71-4ac3-b4f9-07d613e8a254
select ` + jobColumns + `
from batch_jobs
where job_name = $1
limit 1;
`

const QSelectJobsByStatus = `--sql e281ab47-95cf-40d6-8e03-6f42b9d07c15
select ` + jobColumns + `
from batch_jobs
where status = any($1)
order by created_at;
`

const QSelectAllJobs = `--sql 5d36c9f8-01ba-4e27-a6d8-94e507f2c1b6
select ` + jobColumns + `
from batch_jobs
order by created_at;
`

const QSelectJobStatus = `--sql a7f04c25-b8e6-4193-90da-31c862f5e487
select status
from batch_jobs
where id = $1
limit 1;
`

const QUpdateJobStatus = `--sql 0e93b1d4-76a8-45c2-bf31-d509e84a6738
update batch_jobs
set status = $2,
    error_message = $3,
    completed_at = coalesce($4, completed_at)
where id = $1 and status = $5;
`

const itemColumns = `id, job_id, request_key, source_asset_name, original_path, source_url,
       product_name, order_number, position, page_url,
       status, result_file, error_message, alt, title, description,
       cms_image_id, published, prompt, created_at`

const QSelectItemByRequestKey = `--sql c6d12e89-3fa7-4b04-a951-8e270c4d6bf3
select ` + itemColumns + `
from batch_items
where request_key = $1
limit 1;
`

const QSelectItemsByJob = `--sql 84b5f7a0-d92c-4618-bc45-13e6a08d9572
select ` + itemColumns + `
from batch_items
where job_id = $1
order by position, created_at;
`

const QSelectAllItems = `--sql f09a84d3-51be-47c6-8a20-6cd31e97b548
select ` + itemColumns + `
from batch_items
order by created_at;
`

const QSelectItemStatus = `--sql 28c7e6b1-94da-40f5-b3a8-e1650d2f97c4
select status
from batch_items
where id = $1
limit 1;
`

const QMarkItemSucceeded = `--sql 61d0a9f5-c23e-48b7-95d4-7fa8412e06c9
update batch_items
set status = 'SUCCEEDED',
    result_file = $2,
    error_message = ''
where id = $1 and status = $3;
`

const QMarkItemFailed = `--sql d4821c7e-09fb-4a63-8e95-b360fd5a12e8
update batch_items
set status = 'FAILED',
    error_message = $2
where id = $1 and status = $3;
`

const QMarkItemDeleted = `--sql 3b96e0d2-7c45-41af-90b8-52c1d38e674a
update batch_items
set status = 'DELETED'
where id = $1 and status = $2;
`

const QSetItemCaptions = `--sql 96f3b2a8-e50d-47c1-8d36-04ae79c5d1b2
update batch_items
set alt = $2,
    title = $3,
    description = $4
where id = $1;
`

const QSetItemCMSImageID = `--sql 4c17f8a2-6e90-4d5b-8327-b95a01d6ce48
update batch_items
set cms_image_id = $2
where id = $1;
`

const QMarkItemPublished = `--sql 52a8d1c6-34ef-49b0-a7d2-8901fb6e4c35
update batch_items
set published = true,
    cms_image_id = $2
where id = $1;
`

const QSelectItemsReadyForCaption = `--sql 1e64c8f2-ab07-4d39-b615-c97d204a83f6
select ` + itemColumns + `
from batch_items
where status = 'SUCCEEDED'
  and result_file <> ''
  and not published
order by product_name, position, created_at;
`

const QSelectItemsReadyForPublish = `--sql 7d05a3b9-48c1-4e26-9f80-36b2e915dc74
select ` + itemColumns + `
from batch_items
where status = 'SUCCEEDED'
  and result_file <> ''
  and not published
  and title <> ''
  and description <> ''
order by product_name, position, created_at;
`
