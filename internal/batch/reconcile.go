package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"imagebatch/internal/domain"
	"imagebatch/internal/providers/genai"
)

// Fixed ledger messages for terminal outcomes.
const (
	msgJobFailed    = "batch job failed"
	msgJobCancelled = "batch job was cancelled"
	msgNoImage      = "no image produced"
)

// CheckResult aggregates one reconciliation pass.
type CheckResult struct {
	TotalJobs     int
	JobsPending   int
	JobsRunning   int
	JobsSucceeded int
	JobsFailed    int
	JobsCancelled int

	TotalItems     int
	ItemsSucceeded int
	ItemsFailed    int
	ItemsPending   int

	ErrorsGrouped map[string]int
	ProcessedJobs []string
}

func (r *CheckResult) recordError(msg string) {
	if r.ErrorsGrouped == nil {
		r.ErrorsGrouped = make(map[string]int)
	}
	r.ErrorsGrouped[msg]++
}

// resultEntry is one per-item outcome, normalized from either result
// encoding before it reaches the shared apply step.
type resultEntry struct {
	key     string
	image   *genai.Blob
	errText string
}

// entryFromLine builds a resultEntry from one JSONL line of a file-encoded
// result.
func entryFromLine(line []byte) (resultEntry, error) {
	var keyed genai.KeyedResponse
	if err := json.Unmarshal(line, &keyed); err != nil {
		return resultEntry{}, fmt.Errorf("parse result line: %w", err)
	}
	return entryFromKeyed(keyed), nil
}

// entryFromKeyed builds a resultEntry from one inlined response object.
func entryFromKeyed(keyed genai.KeyedResponse) resultEntry {
	entry := resultEntry{key: keyed.Key}
	if keyed.Error != nil {
		entry.errText = keyed.Error.Error()
	}
	if keyed.Response != nil {
		for _, cand := range keyed.Response.Candidates {
			for _, part := range cand.Content.Parts {
				if blob := part.Inline(); blob != nil {
					entry.image = blob
					return entry
				}
			}
		}
	}
	return entry
}

// CheckResults polls every job in the given statuses (default PENDING and
// RUNNING), reconciles finished ones and stages generated images to the
// asset store. One misbehaving job never aborts the pass; its error lands in
// the aggregate counts.
func (s *Service) CheckResults(ctx context.Context, statuses ...domain.JobStatus) (*CheckResult, error) {
	if len(statuses) == 0 {
		statuses = []domain.JobStatus{domain.JobStatusPending, domain.JobStatusRunning}
	}

	jobs, err := s.jobs.ListByStatus(ctx, statuses...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	result := &CheckResult{TotalJobs: len(jobs)}
	for _, job := range jobs {
		result.ProcessedJobs = append(result.ProcessedJobs, job.JobName)
		state, jobErrors, err := s.reconcileJob(ctx, job)
		if err != nil {
			s.logger.Error().Err(err).Str("job_name", job.JobName).Msg("batch: reconciliation failed")
			result.JobsFailed++
			result.recordError(err.Error())
			continue
		}
		switch state {
		case genai.StatePending:
			result.JobsPending++
		case genai.StateRunning, genai.StatePaused, genai.StateUnspecified:
			result.JobsRunning++
		case genai.StateSucceeded:
			result.JobsSucceeded++
		case genai.StateFailed:
			result.JobsFailed++
		case genai.StateCancelled:
			result.JobsCancelled++
		}
		for _, msg := range jobErrors {
			result.recordError(msg)
		}
	}

	items, err := s.items.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	result.TotalItems = len(items)
	for _, item := range items {
		switch item.Status {
		case domain.ItemStatusSucceeded:
			result.ItemsSucceeded++
		case domain.ItemStatusFailed:
			result.ItemsFailed++
		default:
			result.ItemsPending++
		}
	}
	return result, nil
}

// reconcileJob polls one job and processes its results. The job status is
// written before any item so a crash mid-pass never loses status progress.
func (s *Service) reconcileJob(ctx context.Context, job *domain.Job) (string, []string, error) {
	remote, err := s.client.GetBatch(ctx, job.JobName)
	if err != nil {
		return "", nil, fmt.Errorf("poll job %s: %w", job.JobName, err)
	}

	s.logger.Info().Str("job_name", job.JobName).Str("state", remote.State).Msg("batch: polled job")

	now := time.Now().UTC()
	switch remote.State {
	case genai.StatePending:
		if err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusPending, "", nil); err != nil {
			return remote.State, nil, err
		}
		return remote.State, nil, nil
	case genai.StateRunning:
		if err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusRunning, "", nil); err != nil {
			return remote.State, nil, err
		}
		return remote.State, nil, nil
	case genai.StatePaused, genai.StateUnspecified:
		// Non-terminal and not worth a status write; poll again later.
		return remote.State, nil, nil
	case genai.StateFailed:
		if err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, msgJobFailed, &now); err != nil {
			return remote.State, nil, err
		}
		return remote.State, []string{msgJobFailed}, nil
	case genai.StateCancelled:
		if err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusCancelled, msgJobCancelled, &now); err != nil {
			return remote.State, nil, err
		}
		return remote.State, []string{msgJobCancelled}, nil
	case genai.StateSucceeded:
		if err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusSucceeded, "", &now); err != nil {
			return remote.State, nil, err
		}
		jobErrors := s.processResults(ctx, job, remote)
		return remote.State, jobErrors, nil
	default:
		return remote.State, nil, fmt.Errorf("job %s: unknown provider state %q", job.JobName, remote.State)
	}
}

// processResults decodes a succeeded job's result payload in whichever
// encoding the provider chose and applies every per-item outcome.
func (s *Service) processResults(ctx context.Context, job *domain.Job, remote *genai.BatchJob) []string {
	items, err := s.items.ListByJobID(ctx, job.ID)
	if err != nil {
		return []string{fmt.Sprintf("list items for %s: %v", job.JobName, err)}
	}
	byKey := make(map[string]*domain.Item, len(items))
	for _, item := range items {
		byKey[item.RequestKey] = item
	}

	var jobErrors []string
	switch {
	case remote.Dest != nil && remote.Dest.FileName != "":
		data, err := s.client.DownloadFile(ctx, remote.Dest.FileName)
		if err != nil {
			return []string{classifyDownloadError(err, remote.Dest.FileName)}
		}
		for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			if line == "" {
				continue
			}
			entry, err := entryFromLine([]byte(line))
			if err != nil {
				jobErrors = append(jobErrors, err.Error())
				continue
			}
			if msg := s.applyEntry(ctx, entry, byKey); msg != "" {
				jobErrors = append(jobErrors, msg)
			}
		}
	case remote.Dest != nil && len(remote.Dest.InlinedResponses) > 0:
		for _, keyed := range remote.Dest.InlinedResponses {
			if msg := s.applyEntry(ctx, entryFromKeyed(keyed), byKey); msg != "" {
				jobErrors = append(jobErrors, msg)
			}
		}
	default:
		msg := "unrecognized result encoding"
		s.logger.Error().Str("job_name", job.JobName).Msg("batch: " + msg)
		// Same-status rewrite attaches the error to the job record.
		if err := s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusSucceeded, msg, nil); err != nil {
			s.logger.Error().Err(err).Str("job_name", job.JobName).Msg("batch: record job error")
		}
		jobErrors = append(jobErrors, msg)
	}
	return jobErrors
}

// applyEntry records one item outcome. Returns the error message recorded,
// or empty on success. Every write commits independently; a failed item
// never blocks its siblings.
func (s *Service) applyEntry(ctx context.Context, entry resultEntry, byKey map[string]*domain.Item) string {
	if entry.key == "" {
		return ""
	}
	item, ok := byKey[entry.key]
	if !ok {
		s.logger.Warn().Str("request_key", entry.key).Msg("batch: response for unknown request key, skipping")
		return ""
	}

	if entry.image != nil {
		data, err := entry.image.Decode()
		if err != nil {
			return s.failItem(ctx, item, fmt.Sprintf("decode image: %v", err))
		}
		handle, err := s.store.Upload(ctx, data, item.OutputFilename())
		if err != nil || handle == "" {
			msg := "push to asset store failed"
			if err != nil {
				msg = fmt.Sprintf("push to asset store: %v", err)
			}
			return s.failItem(ctx, item, msg)
		}
		if err := s.items.MarkSucceeded(ctx, item.ID, handle); err != nil {
			return s.failRecord(item, err)
		}
		s.logger.Info().Str("request_key", entry.key).Str("result_file", handle).Msg("batch: image staged")
		return ""
	}

	if entry.errText != "" {
		return s.failItem(ctx, item, entry.errText)
	}
	return s.failItem(ctx, item, msgNoImage)
}

func (s *Service) failItem(ctx context.Context, item *domain.Item, msg string) string {
	s.logger.Error().Str("request_key", item.RequestKey).Str("error", msg).Msg("batch: item failed")
	if err := s.items.MarkFailed(ctx, item.ID, msg); err != nil {
		return s.failRecord(item, err)
	}
	return msg
}

func (s *Service) failRecord(item *domain.Item, err error) string {
	msg := fmt.Sprintf("record item %s: %v", item.RequestKey, err)
	s.logger.Error().Str("request_key", item.RequestKey).Err(err).Msg("batch: ledger write failed")
	return msg
}

// classifyDownloadError maps a result-file download failure onto the known
// provider defect where the generated result file identifier exceeds the
// file API's 40-character name limit. The substring match mirrors the
// provider's current wording and will need updating if that wording changes.
func classifyDownloadError(err error, fileName string) string {
	msg := err.Error()
	if strings.Contains(msg, "40 characters") || strings.Contains(msg, "INVALID_ARGUMENT") {
		return fmt.Sprintf("provider defect: result file id too long for the file API (file %s); known upstream issue", fileName)
	}
	return fmt.Sprintf("download results: %v", msg)
}
