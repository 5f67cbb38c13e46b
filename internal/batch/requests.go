package batch

import (
	"encoding/json"
	"fmt"
	"os"
)

// GenerationRequest is one catalog image to generate: the local source
// photo, its grouping metadata and the fully resolved prompt. The scraper
// and spreadsheet tooling produce these externally; the CLI reads them from
// a JSON file.
type GenerationRequest struct {
	SourcePath  string `json:"source_path"`
	ProductName string `json:"product_name"`
	OrderNumber string `json:"order_number"`
	Position    int    `json:"position"`
	PageURL     string `json:"page_url"`
	SourceURL   string `json:"source_url"`
	Prompt      string `json:"prompt"`
}

// LoadRequests reads a JSON array of generation requests from path.
func LoadRequests(path string) ([]GenerationRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read requests file: %w", err)
	}
	var requests []GenerationRequest
	if err := json.Unmarshal(data, &requests); err != nil {
		return nil, fmt.Errorf("parse requests file: %w", err)
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("requests file %s is empty", path)
	}
	return requests, nil
}
