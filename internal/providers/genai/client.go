package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imagebatch/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a lightweight facade over the Gemini file, batch and generation
// endpoints, covering exactly the surface the pipeline consumes: upload a
// file, create and poll a batch job, download and delete result assets, and
// run a single captioning generation.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: client,
		logger:     logger,
	}, nil
}

// UploadFile uploads raw bytes as a provider file and returns its handle.
func (c *Client) UploadFile(ctx context.Context, data []byte, displayName, mimeType string) (*FileHandle, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return nil, fmt.Errorf("create metadata part: %w", err)
	}
	meta := map[string]any{"file": map[string]string{"display_name": displayName}}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", mimeType)
	mediaPart, err := writer.CreatePart(mediaHeader)
	if err != nil {
		return nil, fmt.Errorf("create media part: %w", err)
	}
	if _, err := mediaPart.Write(data); err != nil {
		return nil, fmt.Errorf("write media: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	endpoint := c.baseURL + "/files?uploadType=multipart"
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	var response struct {
		File FileHandle `json:"file"`
	}
	if err := c.do(req, &response); err != nil {
		return nil, err
	}

	c.logger.Debug().Str("file", response.File.Name).Str("display_name", displayName).Msg("genai: uploaded file")
	return &response.File, nil
}

// CreateBatch submits a batch generation job reading requests from the
// uploaded manifest file and returns the remote job name.
func (c *Client) CreateBatch(ctx context.Context, model, manifestFileName, displayName string) (*BatchJob, error) {
	payload := map[string]any{
		"batch": map[string]any{
			"display_name": displayName,
			"input_config": map[string]string{"file_name": manifestFileName},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:batchGenerateContent", c.baseURL, url.PathEscape(model))
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var job BatchJob
	if err := c.do(req, &job); err != nil {
		return nil, err
	}

	c.logger.Info().Str("job_name", job.Name).Str("model", model).Msg("genai: created batch job")
	return &job, nil
}

// GetBatch fetches the current state of a batch job.
func (c *Client) GetBatch(ctx context.Context, name string) (*BatchJob, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(name, "/")
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var job BatchJob
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// DownloadFile fetches the raw contents of a provider file.
func (c *Client) DownloadFile(ctx context.Context, name string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/%s:download?alt=media", c.baseURL, strings.TrimLeft(name, "/"))
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, c.statusError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// DeleteFile removes an uploaded provider file.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	endpoint := c.baseURL + "/" + strings.TrimLeft(name, "/")
	req, err := c.newRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.statusError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// GenerateContent runs a single synchronous generation against the model.
func (c *Client) GenerateContent(ctx context.Context, model string, request GenerateRequest) (*GenerateResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var response GenerateResponse
	if err := c.do(req, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		q := req.URL.Query()
		q.Set("key", c.apiKey)
		req.URL.RawQuery = q.Encode()
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func (c *Client) statusError(resp *http.Response) error {
	var apiErr struct {
		Error StatusError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("gemini status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	return fmt.Errorf("gemini status %d", resp.StatusCode)
}
