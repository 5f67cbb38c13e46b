package caption

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"regexp"
	"strings"

	"imagebatch/internal/infra"
	"imagebatch/internal/providers/genai"
)

const describePrompt = `Create SEO-optimized descriptions for product images of a furniture item.

PRODUCT DATA (markdown):
%s

Total images: %d

REQUIREMENTS:

1. **TITLE** (image heading, 25-40 characters):
   - Structure: [product type] [model] - [angle/feature]

2. **ALT** (alt text, 60-100 characters):
   - Structure: [product type] [model] [material/color] [feature]
   - Describe exactly what is visible in the image

3. **CAPTION** (detailed description, 120-200 characters):
   - What exactly is shown (detail, angle, function)
   - Materials and features
   - Benefit for the user

PRINCIPLES:
- Every description is unique
- Matches what the photo shows
- Reads naturally

RESPONSE FORMAT (strict JSON, no markdown markup):
{
    "images": [
        {
            "title": "heading",
            "alt": "alt text",
            "caption": "detailed description"
        }
    ]
}

The images array must contain exactly %d objects, one per image in order.

IMPORTANT: return ONLY the JSON object. No markdown markup, no extra text.`

const (
	maxImageBytes = 800_000
)

// Description is one generated caption set for a single image.
type Description struct {
	Title   string `json:"title"`
	Alt     string `json:"alt"`
	Caption string `json:"caption"`
}

// Describer generates alt/title/caption sets for staged product images
// through a vision-capable Gemini model.
type Describer struct {
	client *genai.Client
	model  string
	logger infra.Logger
}

// NewDescriber constructs a Describer using the given model.
func NewDescriber(client *genai.Client, model string, logger infra.Logger) *Describer {
	return &Describer{client: client, model: model, logger: logger}
}

// GenerateDescriptions produces one Description per input image, in input
// order. photos, filenames and the returned slice share index positions.
func (d *Describer) GenerateDescriptions(ctx context.Context, photos [][]byte, productMarkdown string, filenames []string) ([]Description, error) {
	if len(photos) == 0 {
		return nil, nil
	}

	parts := make([]genai.Part, 0, len(photos)+1)
	for i, photo := range photos {
		name := fmt.Sprintf("image_%d", i)
		if i < len(filenames) {
			name = filenames[i]
		}
		prepared := compressForAPI(photo, name, d.logger)
		parts = append(parts, genai.Part{
			InlineData: &genai.Blob{
				MimeType: "image/jpeg",
				Data:     base64.StdEncoding.EncodeToString(prepared),
			},
		})
	}
	parts = append(parts, genai.Part{
		Text: fmt.Sprintf(describePrompt, productMarkdown, len(photos), len(photos)),
	})

	d.logger.Info().Int("images", len(photos)).Str("model", d.model).Msg("caption: generating descriptions")

	response, err := d.client.GenerateContent(ctx, d.model, genai.GenerateRequest{
		Contents: []genai.Content{{Role: "user", Parts: parts}},
		GenerationConfig: &genai.GenerationConfig{
			Temperature:     0.7,
			MaxOutputTokens: 4096,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate descriptions: %w", err)
	}

	descriptions, err := parseDescriptions(response.FirstText())
	if err != nil {
		return nil, err
	}
	if len(descriptions) != len(photos) {
		d.logger.Warn().
			Int("want", len(photos)).
			Int("got", len(descriptions)).
			Msg("caption: response count mismatch")
	}
	return descriptions, nil
}

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// parseDescriptions extracts the images array from a model response, which
// may wrap the JSON in markdown fences or carry trailing commas.
func parseDescriptions(text string) ([]Description, error) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		if strings.HasPrefix(lines[0], "```") {
			lines = lines[1:]
		}
		if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
			lines = lines[:len(lines)-1]
		}
		cleaned = strings.Join(lines, "\n")
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in caption response")
	}
	jsonStr := cleaned[start : end+1]

	var payload struct {
		Images []Description `json:"images"`
	}
	if err := unmarshalJSON(jsonStr, &payload); err != nil {
		// Retry once with trailing commas stripped.
		if err := unmarshalJSON(trailingComma.ReplaceAllString(jsonStr, "$1"), &payload); err != nil {
			return nil, fmt.Errorf("parse caption response: %w", err)
		}
	}
	return payload.Images, nil
}

func unmarshalJSON(s string, out any) error {
	return json.Unmarshal([]byte(s), out)
}

// compressForAPI re-encodes oversized images as progressively lower quality
// JPEG so a single request stays within the provider's payload limits.
// Undecodable inputs are passed through untouched.
func compressForAPI(data []byte, filename string, logger infra.Logger) []byte {
	if len(data) <= maxImageBytes {
		return data
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		logger.Warn().Err(err).Str("file", filename).Msg("caption: cannot decode image for compression")
		return data
	}

	var last []byte
	for _, quality := range []int{85, 70, 55, 40, 30} {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			logger.Warn().Err(err).Str("file", filename).Msg("caption: jpeg encode failed")
			return data
		}
		last = buf.Bytes()
		if len(last) <= maxImageBytes {
			return last
		}
	}

	logger.Warn().
		Str("file", filename).
		Int("bytes", len(last)).
		Msg("caption: image still above payload limit after compression")
	return last
}
