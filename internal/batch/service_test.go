package batch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagebatch/internal/domain"
	"imagebatch/internal/domain/domaintest"
	"imagebatch/internal/providers/genai"
	"imagebatch/internal/storage"
)

type fixture struct {
	service *Service
	ledger  *domaintest.Ledger
	store   *storage.FileStore
}

func newFixture(t *testing.T, handler http.Handler) *fixture {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	client, err := genai.NewClient(genai.Options{APIKey: "k", BaseURL: ts.URL})
	require.NoError(t, err)

	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	ledger := domaintest.NewLedger()
	return &fixture{
		service: NewService(client, ledger.Jobs, ledger.Items, store, "gemini-3-pro-image-preview", zerolog.New(io.Discard)),
		ledger:  ledger,
		store:   store,
	}
}

func writeSources(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, "source"+string(rune('a'+i))+".jpg")
		require.NoError(t, os.WriteFile(paths[i], []byte("jpeg-bytes"), 0o644))
	}
	return paths
}

// submitHandler emulates the provider endpoints submission touches.
func submitHandler(t *testing.T, uploads *[]string) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /files", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		name := "files/upload-" + string(rune('a'+len(*uploads)))
		*uploads = append(*uploads, string(body))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"file": map[string]string{"name": name, "uri": "https://" + name, "mimeType": "image/jpeg"},
		})
	})
	mux.HandleFunc("POST /models/gemini-3-pro-image-preview:batchGenerateContent", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "batches/test-job", "state": "JOB_STATE_PENDING"})
	})
	return mux
}

func TestSubmitCreatesJobWithItems(t *testing.T) {
	var uploads []string
	f := newFixture(t, submitHandler(t, &uploads))
	paths := writeSources(t, 2)

	job, err := f.service.Submit(context.Background(), []GenerationRequest{
		{SourcePath: paths[0], ProductName: "Стол Лидер", OrderNumber: "A-12", Position: 1, PageURL: "/catalog/tables/lider", Prompt: "front view"},
		{SourcePath: paths[1], ProductName: "Стол Лидер", OrderNumber: "A-12", Position: 2, PageURL: "/catalog/tables/lider", Prompt: "side view"},
	})
	require.NoError(t, err)
	require.Equal(t, "batches/test-job", job.JobName)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Len(t, job.SourceAssetNames, 2)
	assert.NotEmpty(t, job.ManifestAssetName)

	items, err := f.ledger.Items.ListByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	keys := map[string]bool{}
	for _, item := range items {
		assert.Equal(t, job.ID, item.JobID)
		assert.Equal(t, domain.ItemStatusPending, item.Status)
		assert.False(t, keys[item.RequestKey], "request keys must be unique")
		keys[item.RequestKey] = true
		assert.True(t, strings.HasSuffix(item.Prompt, basePrompt))
	}

	// Last upload is the manifest: one JSONL line per item with key,
	// prompt, file reference and fixed generation parameters.
	require.Len(t, uploads, 3)
	manifest := uploads[2]
	assert.Contains(t, manifest, `"aspect_ratio":"3:2"`)
	assert.Contains(t, manifest, `"image_size":"2K"`)
	assert.Contains(t, manifest, `"file_uri":"https://files/upload-a"`)
	assert.Contains(t, manifest, items[0].RequestKey)
}

func TestSubmitMissingSourceLeavesLedgerEmpty(t *testing.T) {
	f := newFixture(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no provider call expected: %s %s", r.Method, r.URL.Path)
	}))

	_, err := f.service.Submit(context.Background(), []GenerationRequest{
		{SourcePath: "/nonexistent/source.jpg", ProductName: "x", Prompt: "p"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source file missing")

	jobs, err := f.ledger.Jobs.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func seedPendingJob(f *fixture, items ...*domain.Item) *domain.Job {
	job := &domain.Job{
		ID:                "job-1",
		JobName:           "batches/test-job",
		SourceAssetNames:  []string{"files/src-a", "files/src-b"},
		ManifestAssetName: "files/manifest",
		Model:             "gemini-3-pro-image-preview",
		Status:            domain.JobStatusPending,
		CreatedAt:         time.Now().UTC(),
	}
	f.ledger.SeedJob(job, items...)
	return job
}

func pendingItem(id, key string) *domain.Item {
	return &domain.Item{
		ID:          id,
		JobID:       "job-1",
		RequestKey:  key,
		ProductName: "Стол Лидер",
		OrderNumber: "A-12",
		Position:    1,
		Status:      domain.ItemStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

func batchStateHandler(state string, dest map[string]any, extra func(mux *http.ServeMux)) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /batches/test-job", func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{"name": "batches/test-job", "state": state}
		if dest != nil {
			payload["dest"] = dest
		}
		_ = json.NewEncoder(w).Encode(payload)
	})
	if extra != nil {
		extra(mux)
	}
	return mux
}

func TestCheckResultsPendingJobIsIdempotent(t *testing.T) {
	f := newFixture(t, batchStateHandler("JOB_STATE_PENDING", nil, nil))
	seedPendingJob(f, pendingItem("item-1", "key-0"))

	result, err := f.service.CheckResults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.JobsPending)
	assert.Equal(t, 1, result.ItemsPending)

	assert.Equal(t, domain.JobStatusPending, f.ledger.Job("job-1").Status)
	assert.Equal(t, domain.ItemStatusPending, f.ledger.Item("item-1").Status)
	assert.Empty(t, result.ErrorsGrouped)
}

func TestCheckResultsFailedJobLeavesItemsUntouched(t *testing.T) {
	f := newFixture(t, batchStateHandler("JOB_STATE_FAILED", nil, nil))
	seedPendingJob(f, pendingItem("item-1", "key-0"))

	result, err := f.service.CheckResults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.JobsFailed)

	job := f.ledger.Job("job-1")
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, "batch job failed", job.ErrorMessage)
	require.NotNil(t, job.CompletedAt)
	assert.Equal(t, domain.ItemStatusPending, f.ledger.Item("item-1").Status)
}

func resultLine(key string, imageData []byte, errMsg string) string {
	keyed := map[string]any{"key": key}
	if imageData != nil {
		keyed["response"] = map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{
						"inlineData": map[string]string{
							"mimeType": "image/jpeg",
							"data":     base64.StdEncoding.EncodeToString(imageData),
						},
					}},
				},
			}},
		}
	}
	if errMsg != "" {
		keyed["error"] = map[string]any{"code": 13, "message": errMsg, "status": "INTERNAL"}
	}
	line, _ := json.Marshal(keyed)
	return string(line)
}

func TestCheckResultsFileEncodedMixedOutcome(t *testing.T) {
	lines := resultLine("key-0", []byte("generated-image"), "") + "\n" + resultLine("key-1", nil, "model overloaded")
	f := newFixture(t, batchStateHandler("JOB_STATE_SUCCEEDED",
		map[string]any{"file_name": "files/results"},
		func(mux *http.ServeMux) {
			mux.HandleFunc("GET /files/results:download", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(lines))
			})
		}))
	seedPendingJob(f, pendingItem("item-1", "key-0"), pendingItem("item-2", "key-1"))

	result, err := f.service.CheckResults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.JobsSucceeded)
	assert.Equal(t, 1, result.ItemsSucceeded)
	assert.Equal(t, 1, result.ItemsFailed)

	succeeded := f.ledger.Item("item-1")
	assert.Equal(t, domain.ItemStatusSucceeded, succeeded.Status)
	require.NotEmpty(t, succeeded.ResultFile)
	staged, err := f.store.Download(context.Background(), succeeded.ResultFile)
	require.NoError(t, err)
	assert.Equal(t, []byte("generated-image"), staged)

	failed := f.ledger.Item("item-2")
	assert.Equal(t, domain.ItemStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "model overloaded")

	assert.Equal(t, domain.JobStatusSucceeded, f.ledger.Job("job-1").Status)
}

func TestCheckResultsInlineEncoded(t *testing.T) {
	image := base64.StdEncoding.EncodeToString([]byte("inline-image"))
	f := newFixture(t, batchStateHandler("JOB_STATE_SUCCEEDED",
		map[string]any{
			"inlined_responses": []any{map[string]any{
				"key": "key-0",
				"response": map[string]any{
					"candidates": []any{map[string]any{
						"content": map[string]any{
							"parts": []any{map[string]any{
								"inline_data": map[string]string{"mime_type": "image/jpeg", "data": image},
							}},
						},
					}},
				},
			}},
		}, nil))
	seedPendingJob(f, pendingItem("item-1", "key-0"))

	result, err := f.service.CheckResults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ItemsSucceeded)
	assert.Equal(t, domain.ItemStatusSucceeded, f.ledger.Item("item-1").Status)
}

func TestCheckResultsNoImageProduced(t *testing.T) {
	lines := resultLine("key-0", nil, "")
	f := newFixture(t, batchStateHandler("JOB_STATE_SUCCEEDED",
		map[string]any{"file_name": "files/results"},
		func(mux *http.ServeMux) {
			mux.HandleFunc("GET /files/results:download", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(lines))
			})
		}))
	seedPendingJob(f, pendingItem("item-1", "key-0"))

	_, err := f.service.CheckResults(context.Background())
	require.NoError(t, err)

	item := f.ledger.Item("item-1")
	assert.Equal(t, domain.ItemStatusFailed, item.Status)
	assert.Equal(t, "no image produced", item.ErrorMessage)
}

func TestCheckResultsUnknownRequestKeySkipped(t *testing.T) {
	lines := resultLine("key-unknown", []byte("img"), "")
	f := newFixture(t, batchStateHandler("JOB_STATE_SUCCEEDED",
		map[string]any{"file_name": "files/results"},
		func(mux *http.ServeMux) {
			mux.HandleFunc("GET /files/results:download", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(lines))
			})
		}))
	seedPendingJob(f, pendingItem("item-1", "key-0"))

	result, err := f.service.CheckResults(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.ErrorsGrouped)
	assert.Equal(t, domain.ItemStatusPending, f.ledger.Item("item-1").Status)
}

func TestCheckResultsClassifiesOversizedIdentifierDefect(t *testing.T) {
	f := newFixture(t, batchStateHandler("JOB_STATE_SUCCEEDED",
		map[string]any{"file_name": "files/very-long-result-name"},
		func(mux *http.ServeMux) {
			mux.HandleFunc("GET /files/very-long-result-name:download", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"code": 400, "message": "File name must be at most 40 characters", "status": "INVALID_ARGUMENT"},
				})
			})
		}))
	seedPendingJob(f, pendingItem("item-1", "key-0"))

	result, err := f.service.CheckResults(context.Background())
	require.NoError(t, err)

	var found bool
	for msg := range result.ErrorsGrouped {
		if strings.Contains(msg, "provider defect") {
			found = true
		}
	}
	assert.True(t, found, "expected defect diagnostic in %v", result.ErrorsGrouped)
	// Items stay untouched; the download failed before any per-item work.
	assert.Equal(t, domain.ItemStatusPending, f.ledger.Item("item-1").Status)
}

func TestCheckResultsUnrecognizedEncodingIsJobLevel(t *testing.T) {
	f := newFixture(t, batchStateHandler("JOB_STATE_SUCCEEDED", nil, nil))
	seedPendingJob(f, pendingItem("item-1", "key-0"))

	result, err := f.service.CheckResults(context.Background())
	require.NoError(t, err)
	assert.Contains(t, result.ErrorsGrouped, "unrecognized result encoding")
	assert.Equal(t, domain.ItemStatusPending, f.ledger.Item("item-1").Status)
	assert.Equal(t, "unrecognized result encoding", f.ledger.Job("job-1").ErrorMessage)
}

func TestCheckResultsPollFailureDoesNotAbortPass(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /batches/test-job", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /batches/other-job", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "batches/other-job", "state": "JOB_STATE_RUNNING"})
	})
	f := newFixture(t, mux)
	seedPendingJob(f)
	f.ledger.SeedJob(&domain.Job{
		ID:        "job-2",
		JobName:   "batches/other-job",
		Status:    domain.JobStatusPending,
		CreatedAt: time.Now().UTC().Add(time.Second),
	})

	result, err := f.service.CheckResults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalJobs)
	assert.Equal(t, 1, result.JobsFailed)
	assert.Equal(t, 1, result.JobsRunning)
	assert.Equal(t, domain.JobStatusRunning, f.ledger.Job("job-2").Status)
}

func TestReportEmptyLedger(t *testing.T) {
	f := newFixture(t, http.NewServeMux())

	report, err := f.service.Report(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, report.TotalJobs)
	assert.Zero(t, report.TotalItems)
	assert.Empty(t, report.TopErrors)
}

func TestReportGroupsErrors(t *testing.T) {
	f := newFixture(t, http.NewServeMux())
	job := seedPendingJob(f)
	for i, msg := range []string{"timeout", "timeout", "timeout", "quota exceeded"} {
		item := pendingItem("item-"+string(rune('a'+i)), "key-"+string(rune('a'+i)))
		item.JobID = job.ID
		item.Status = domain.ItemStatusFailed
		item.ErrorMessage = msg
		f.ledger.SeedItem(item)
	}

	report, err := f.service.Report(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, report.ItemsByStatus[domain.ItemStatusFailed])
	require.Len(t, report.TopErrors, 1)
	assert.Equal(t, ErrorCount{Message: "timeout", Count: 3}, report.TopErrors[0])
}

func TestCleanupDeletesProviderAssets(t *testing.T) {
	var deleted []string
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /", func(w http.ResponseWriter, r *http.Request) {
		deleted = append(deleted, r.URL.Path)
	})
	f := newFixture(t, mux)
	seedPendingJob(f)

	require.NoError(t, f.service.Cleanup(context.Background(), "batches/test-job"))
	assert.ElementsMatch(t, []string{"/files/src-a", "/files/src-b", "/files/manifest"}, deleted)
}

func TestCleanupSwallowsDeleteFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	f := newFixture(t, mux)
	seedPendingJob(f)

	assert.NoError(t, f.service.Cleanup(context.Background(), "batches/test-job"))
}

func TestLease(t *testing.T) {
	lease := NewLease("submit")
	require.True(t, lease.TryAcquire())
	assert.False(t, lease.TryAcquire(), "second acquire must fail while held")
	lease.Release()
	assert.True(t, lease.TryAcquire())
	lease.Release()
}

func TestBestEffortSwallowsErrors(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)
	BestEffort(logger, "delete asset", func() error { return assert.AnError })
	assert.Contains(t, buf.String(), "delete asset")

	buf.Reset()
	BestEffort(logger, "noop", func() error { return nil })
	assert.Empty(t, buf.String())
}
