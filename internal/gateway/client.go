package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imagebatch/internal/infra"
)

// Options controls how the gateway client is configured.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client talks to the content gateway that fronts the CMS: image upload,
// gallery management and product page reads.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

// ImageUploadResponse is the gateway's answer to an image upload.
type ImageUploadResponse struct {
	ImageID        int    `json:"image_id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Caption        string `json:"caption,omitempty"`
	ImageURL       string `json:"image_url"`
	CollectionPath string `json:"collection_path"`
}

// GalleryAddResponse is the gateway's answer to a gallery add.
type GalleryAddResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Model        string `json:"model"`
		ImageID      int    `json:"image_id"`
		GalleryCount int    `json:"gallery_count"`
	} `json:"data"`
}

// NewClient constructs a gateway client.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("gateway base url is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
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
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		httpClient: client,
		logger:     logger,
	}, nil
}

// UploadImage pushes image bytes into the CMS and returns the assigned id.
func (c *Client) UploadImage(ctx context.Context, imageData []byte, filename, title, description, caption, collectionPath string) (*ImageUploadResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	filePart, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := filePart.Write(imageData); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}

	fields := map[string]string{"title": title}
	if description != "" {
		fields["description"] = description
	}
	if caption != "" {
		fields["caption"] = caption
	}
	if collectionPath != "" {
		fields["collection_path"] = collectionPath
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result ImageUploadResponse
	if err := c.do(req, &result); err != nil {
		return nil, err
	}

	c.logger.Info().Int("image_id", result.ImageID).Str("filename", filename).Msg("gateway: image uploaded")
	return &result, nil
}

// AddToGallery attaches an uploaded image to the product page's gallery.
func (c *Client) AddToGallery(ctx context.Context, pageURL string, imageID int) (*GalleryAddResponse, error) {
	payload, err := json.Marshal(map[string]int{"image_id": imageID})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + pageURL + "/gallery/add"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result GalleryAddResponse
	if err := c.do(req, &result); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("model", result.Data.Model).
		Int("gallery_count", result.Data.GalleryCount).
		Msg("gateway: image added to gallery")
	return &result, nil
}

// FetchProduct retrieves the raw product page document for a page URL.
func (c *Client) FetchProduct(ctx context.Context, pageURL string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var result map[string]any
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("gateway status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
