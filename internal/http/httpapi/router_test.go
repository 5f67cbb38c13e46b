package httpapi_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagebatch/internal/batch"
	"imagebatch/internal/domain"
	"imagebatch/internal/domain/domaintest"
	"imagebatch/internal/http/handlers"
	"imagebatch/internal/http/httpapi"
	"imagebatch/internal/providers/genai"
	"imagebatch/internal/storage"
)

func newTestRouter(t *testing.T) (http.Handler, *domaintest.Ledger) {
	t.Helper()

	ledger := domaintest.NewLedger()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	provider := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(provider.Close)

	logger := zerolog.New(io.Discard)
	client, err := genai.NewClient(genai.Options{APIKey: "test-key", BaseURL: provider.URL, Logger: &logger})
	require.NoError(t, err)

	service := batch.NewService(client, ledger.Jobs, ledger.Items, store, "gemini-3-pro-image-preview", logger)
	app := handlers.NewApp(service, 10, logger)
	return httpapi.NewRouter(app, logger), ledger
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusReportsLedgerRollup(t *testing.T) {
	router, ledger := newTestRouter(t)

	now := time.Now().UTC()
	ledger.SeedJob(&domain.Job{ID: "job-1", Status: domain.JobStatusRunning, CreatedAt: now},
		&domain.Item{ID: "item-1", JobID: "job-1", RequestKey: "k-1", Status: domain.ItemStatusSucceeded, CreatedAt: now},
		&domain.Item{ID: "item-2", JobID: "job-1", RequestKey: "k-2", Status: domain.ItemStatusFailed, ErrorMessage: "no image produced", CreatedAt: now},
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var report batch.StatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.TotalJobs)
	assert.Equal(t, 2, report.TotalItems)
	assert.Equal(t, 1, report.JobsByStatus["RUNNING"])
	assert.Equal(t, 1, report.ItemsByStatus["SUCCEEDED"])
	require.Len(t, report.TopErrors, 1)
	assert.Equal(t, "no image produced", report.TopErrors[0].Message)
	assert.Equal(t, 1, report.TopErrors[0].Count)
}
