package genai

import (
	"encoding/base64"
	"fmt"
)

// Content is one conversation turn in a generate request or response.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

// Part is a single content fragment. The API emits inline payloads under
// both snake_case and camelCase keys depending on the delivery path, so both
// spellings are decoded and Inline() resolves whichever is present.
type Part struct {
	Text            string    `json:"text,omitempty"`
	InlineData      *Blob     `json:"inline_data,omitempty"`
	InlineDataCamel *Blob     `json:"inlineData,omitempty"`
	FileData        *FileData `json:"file_data,omitempty"`
}

// Inline returns the inline payload regardless of key spelling.
func (p Part) Inline() *Blob {
	if p.InlineData != nil {
		return p.InlineData
	}
	return p.InlineDataCamel
}

// Blob carries base64-encoded media bytes.
type Blob struct {
	MimeType      string `json:"mime_type,omitempty"`
	MimeTypeCamel string `json:"mimeType,omitempty"`
	Data          string `json:"data,omitempty"`
}

// Mime returns the MIME type regardless of key spelling.
func (b *Blob) Mime() string {
	if b.MimeType != "" {
		return b.MimeType
	}
	return b.MimeTypeCamel
}

// Decode returns the decoded media bytes.
func (b *Blob) Decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(b.Data)
}

// FileData references a previously uploaded file.
type FileData struct {
	MimeType string `json:"mime_type,omitempty"`
	FileURI  string `json:"file_uri,omitempty"`
}

// ImageConfig holds fixed image generation parameters.
type ImageConfig struct {
	AspectRatio string `json:"aspect_ratio,omitempty"`
	ImageSize   string `json:"image_size,omitempty"`
}

// GenerationConfig mirrors the generation_config request block.
type GenerationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *ImageConfig `json:"image_config,omitempty"`
	Temperature        float64      `json:"temperature,omitempty"`
	MaxOutputTokens    int          `json:"maxOutputTokens,omitempty"`
}

// GenerateRequest is the request body of a single generation.
type GenerateRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generation_config,omitempty"`
}

// Candidate is one generated alternative.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// GenerateResponse is the response body of a single generation.
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// FirstText returns the first text part across candidates, or empty.
func (r *GenerateResponse) FirstText() string {
	if r == nil {
		return ""
	}
	for _, cand := range r.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

// StatusError is the per-request error object embedded in batch results.
type StatusError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s (%d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("code %d: %s", e.Code, e.Message)
}

// BatchRequestLine is one JSONL manifest line submitted to the batch API.
type BatchRequestLine struct {
	Key     string          `json:"key"`
	Request GenerateRequest `json:"request"`
}

// KeyedResponse is one per-request result, either as a JSONL line of the
// result file or as an element of the inlined responses.
type KeyedResponse struct {
	Key      string            `json:"key"`
	Response *GenerateResponse `json:"response,omitempty"`
	Error    *StatusError      `json:"error,omitempty"`
}

// BatchDest describes where a finished batch delivered its results: a
// downloadable result file or responses inlined into the job resource.
type BatchDest struct {
	FileName         string          `json:"file_name,omitempty"`
	InlinedResponses []KeyedResponse `json:"inlined_responses,omitempty"`
}

// BatchJob is the remote batch job resource.
type BatchJob struct {
	Name  string     `json:"name"`
	State string     `json:"state,omitempty"`
	Dest  *BatchDest `json:"dest,omitempty"`
}

// FileHandle is the uploaded file resource.
type FileHandle struct {
	Name     string `json:"name"`
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// Remote batch job states as reported by the provider.
const (
	StateUnspecified = "JOB_STATE_UNSPECIFIED"
	StatePending     = "JOB_STATE_PENDING"
	StateRunning     = "JOB_STATE_RUNNING"
	StateSucceeded   = "JOB_STATE_SUCCEEDED"
	StateFailed      = "JOB_STATE_FAILED"
	StateCancelled   = "JOB_STATE_CANCELLED"
	StatePaused      = "JOB_STATE_PAUSED"
)
