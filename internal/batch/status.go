package batch

import (
	"context"
	"fmt"
	"sort"

	"imagebatch/internal/domain"
)

// ErrorCount is one distinct recorded error message with its frequency.
type ErrorCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// StatusReport is the operator-facing rollup over the whole ledger.
type StatusReport struct {
	TotalJobs    int                      `json:"total_jobs"`
	JobsByStatus map[domain.JobStatus]int `json:"jobs_by_status"`

	TotalItems    int                       `json:"total_items"`
	ItemsByStatus map[domain.ItemStatus]int `json:"items_by_status"`

	TopErrors []ErrorCount `json:"top_errors"`
}

// Report scans the ledger and produces counts by status bucket plus a
// frequency-sorted grouping of distinct item error messages capped to
// errorLimit. An empty ledger yields empty aggregates, not an error.
func (s *Service) Report(ctx context.Context, errorLimit int) (*StatusReport, error) {
	jobs, err := s.jobs.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	items, err := s.items.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	report := &StatusReport{
		TotalJobs:     len(jobs),
		JobsByStatus:  make(map[domain.JobStatus]int),
		TotalItems:    len(items),
		ItemsByStatus: make(map[domain.ItemStatus]int),
	}
	for _, job := range jobs {
		report.JobsByStatus[job.Status]++
	}

	grouped := make(map[string]int)
	for _, item := range items {
		report.ItemsByStatus[item.Status]++
		if item.Status == domain.ItemStatusFailed && item.ErrorMessage != "" {
			grouped[item.ErrorMessage]++
		}
	}

	report.TopErrors = make([]ErrorCount, 0, len(grouped))
	for msg, count := range grouped {
		report.TopErrors = append(report.TopErrors, ErrorCount{Message: msg, Count: count})
	}
	sort.Slice(report.TopErrors, func(i, j int) bool {
		if report.TopErrors[i].Count != report.TopErrors[j].Count {
			return report.TopErrors[i].Count > report.TopErrors[j].Count
		}
		return report.TopErrors[i].Message < report.TopErrors[j].Message
	})
	if errorLimit > 0 && len(report.TopErrors) > errorLimit {
		report.TopErrors = report.TopErrors[:errorLimit]
	}
	return report, nil
}
