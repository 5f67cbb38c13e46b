package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"imagebatch/internal/domain"
	"imagebatch/internal/infra"
	"imagebatch/internal/providers/genai"
	"imagebatch/internal/storage"
)

// basePrompt is appended to every per-item prompt.
const basePrompt = "The photos must look like they were shot by a professional photographer " +
	"with quality lighting on professional equipment. The photo shows a real object; " +
	"its geometry must not be distorted. The image will be used in the product catalog " +
	"of a custom office furniture manufacturer."

// Service drives the batch pipeline: submission, result reconciliation,
// status aggregation and provider-side cleanup.
type Service struct {
	client *genai.Client
	jobs   domain.JobRepository
	items  domain.ItemRepository
	store  storage.Store
	model  string
	logger infra.Logger
}

// NewService wires the batch service.
func NewService(client *genai.Client, jobs domain.JobRepository, items domain.ItemRepository, store storage.Store, model string, logger infra.Logger) *Service {
	return &Service{
		client: client,
		jobs:   jobs,
		items:  items,
		store:  store,
		model:  model,
		logger: logger,
	}
}

// Submit turns the ordered request list into one remote batch job and
// persists the Job with all of its Items in one write. Any missing source
// file, empty provider handle or empty job name aborts the whole submission
// before the ledger is touched.
func (s *Service) Submit(ctx context.Context, requests []GenerationRequest) (*domain.Job, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("no generation requests")
	}

	// Fail fast before any upload happens.
	for _, req := range requests {
		if _, err := os.Stat(req.SourcePath); err != nil {
			return nil, fmt.Errorf("source file missing: %s", req.SourcePath)
		}
	}

	batchKey := uuid.NewString()

	type upload struct {
		handle  *genai.FileHandle
		request GenerationRequest
	}
	uploads := make([]upload, 0, len(requests))
	for i, req := range requests {
		data, err := os.ReadFile(req.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("read source %s: %w", req.SourcePath, err)
		}
		handle, err := s.client.UploadFile(ctx, data, fmt.Sprintf("batch-image-%s-%d", batchKey, i), http.DetectContentType(data))
		if err != nil {
			return nil, fmt.Errorf("upload source %s: %w", req.SourcePath, err)
		}
		if handle.Name == "" {
			return nil, fmt.Errorf("provider returned empty handle for %s", req.SourcePath)
		}
		uploads = append(uploads, upload{handle: handle, request: req})
	}

	manifestPath := filepath.Join(os.TempDir(), fmt.Sprintf("batch_request_%s.jsonl", batchKey))
	defer BestEffort(s.logger, "remove temp manifest", func() error { return os.Remove(manifestPath) })

	var manifest bytes.Buffer
	requestKeys := make([]string, len(uploads))
	for i, up := range uploads {
		requestKeys[i] = fmt.Sprintf("%s-%d", batchKey, i)
		line, err := manifestLine(requestKeys[i], up.request.Prompt, up.handle)
		if err != nil {
			return nil, err
		}
		manifest.Write(line)
		manifest.WriteByte('\n')
	}
	if err := os.WriteFile(manifestPath, manifest.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	manifestHandle, err := s.client.UploadFile(ctx, manifest.Bytes(), "batch-requests-"+batchKey, "application/jsonl")
	if err != nil {
		return nil, fmt.Errorf("upload manifest: %w", err)
	}
	if manifestHandle.Name == "" {
		return nil, fmt.Errorf("provider returned empty manifest handle")
	}

	remote, err := s.client.CreateBatch(ctx, s.model, manifestHandle.Name, "furniture-batch-"+batchKey)
	if err != nil {
		return nil, fmt.Errorf("create batch job: %w", err)
	}
	if remote.Name == "" {
		return nil, fmt.Errorf("provider returned empty batch job name")
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:                uuid.NewString(),
		JobName:           remote.Name,
		ManifestAssetName: manifestHandle.Name,
		Model:             s.model,
		Status:            domain.JobStatusPending,
		CreatedAt:         now,
	}
	items := make([]*domain.Item, len(uploads))
	for i, up := range uploads {
		absPath, err := filepath.Abs(up.request.SourcePath)
		if err != nil {
			absPath = up.request.SourcePath
		}
		job.SourceAssetNames = append(job.SourceAssetNames, up.handle.Name)
		job.OriginalPaths = append(job.OriginalPaths, absPath)
		items[i] = &domain.Item{
			ID:              uuid.NewString(),
			JobID:           job.ID,
			RequestKey:      requestKeys[i],
			SourceAssetName: up.handle.Name,
			OriginalPath:    absPath,
			SourceURL:       up.request.SourceURL,
			ProductName:     up.request.ProductName,
			OrderNumber:     up.request.OrderNumber,
			Position:        up.request.Position,
			PageURL:         up.request.PageURL,
			Status:          domain.ItemStatusPending,
			Prompt:          up.request.Prompt + ". " + basePrompt,
			CreatedAt:       now,
		}
	}

	if err := s.jobs.Create(ctx, job, items); err != nil {
		return nil, fmt.Errorf("persist batch job: %w", err)
	}

	s.logger.Info().
		Str("job_name", job.JobName).
		Int("items", len(items)).
		Str("model", s.model).
		Msg("batch: job submitted")
	return job, nil
}

func manifestLine(key, prompt string, source *genai.FileHandle) ([]byte, error) {
	line := genai.BatchRequestLine{
		Key: key,
		Request: genai.GenerateRequest{
			Contents: []genai.Content{{
				Role: "user",
				Parts: []genai.Part{
					{Text: prompt + ". " + basePrompt},
					{FileData: &genai.FileData{FileURI: source.URI, MimeType: source.MimeType}},
				},
			}},
			GenerationConfig: &genai.GenerationConfig{
				ResponseModalities: []string{"TEXT", "IMAGE"},
				ImageConfig:        &genai.ImageConfig{AspectRatio: "3:2", ImageSize: "2K"},
			},
		},
	}
	data, err := json.Marshal(line)
	if err != nil {
		return nil, fmt.Errorf("encode manifest line %s: %w", key, err)
	}
	return data, nil
}

// Cleanup deletes the uploaded source and manifest assets of a finished job
// from the provider. Every deletion is best-effort.
func (s *Service) Cleanup(ctx context.Context, jobName string) error {
	job, err := s.jobs.GetByName(ctx, jobName)
	if err != nil {
		return err
	}
	for _, name := range job.SourceAssetNames {
		asset := name
		BestEffort(s.logger, "delete source asset", func() error {
			return s.client.DeleteFile(ctx, asset)
		})
	}
	if job.ManifestAssetName != "" {
		BestEffort(s.logger, "delete manifest asset", func() error {
			return s.client.DeleteFile(ctx, job.ManifestAssetName)
		})
	}
	return nil
}
