package gateway

import (
	"fmt"
	"strings"
)

// ProductMarkdown flattens a product page document into a markdown summary
// of its characteristics, description and gallery captions. The result feeds
// the caption model as product context.
func ProductMarkdown(data map[string]any) string {
	var lines []string

	content, _ := data["content"].(map[string]any)
	tabs, _ := content["tabs"].(map[string]any)

	if sections, _ := tabs["characteristics"].([]any); len(sections) > 0 {
		lines = append(lines, "## Характеристики")
		for _, raw := range sections {
			section, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if title, _ := section["title"].(string); title != "" {
				lines = append(lines, "### "+title)
			}
			if chars, _ := section["characteristics"].([]any); len(chars) > 0 {
				for _, rawChar := range chars {
					char, ok := rawChar.(map[string]any)
					if !ok {
						continue
					}
					label, _ := char["label"].(string)
					value, _ := char["value"].(string)
					if label != "" && value != "" {
						lines = append(lines, fmt.Sprintf("- **%s**: %s", label, value))
					}
				}
			}
			lines = append(lines, "")
		}
	}

	if description, _ := tabs["description"].(string); description != "" {
		lines = append(lines, "## Описание", description, "")
	}

	if images, _ := content["gallery_images"].([]any); len(images) > 0 {
		lines = append(lines, "## Используемые изображения")
		for i, raw := range images {
			img, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			alt, _ := img["alt"].(string)
			title, _ := img["title"].(string)
			if alt == "" && title == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("### Изображение %d", i+1))
			if title != "" {
				lines = append(lines, "- **title**: "+title)
			}
			if alt != "" {
				lines = append(lines, "- **alt**: "+alt)
			}
			lines = append(lines, "")
		}
	}

	return strings.Join(lines, "\n")
}
