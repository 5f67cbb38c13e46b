package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItemStatus enumerates generation item lifecycle states.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "PENDING"
	ItemStatusSucceeded ItemStatus = "SUCCEEDED"
	ItemStatusFailed    ItemStatus = "FAILED"
	// ItemStatusDeleted marks a previously staged result that disappeared
	// from the asset store before it was published.
	ItemStatusDeleted ItemStatus = "DELETED"
)

// CanTransitionTo reports whether a write moving the item from s to next is
// legal. A failed item may still succeed on a later reconciliation pass;
// DELETED is only reachable from SUCCEEDED.
func (s ItemStatus) CanTransitionTo(next ItemStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case ItemStatusPending:
		return next == ItemStatusSucceeded || next == ItemStatusFailed
	case ItemStatusFailed:
		return next == ItemStatusSucceeded
	case ItemStatusSucceeded:
		return next == ItemStatusDeleted
	}
	return false
}

// ValidateItemTransition rejects illegal item status writes.
func ValidateItemTransition(from, to ItemStatus) error {
	if !from.CanTransitionTo(to) {
		return ErrInvalidTransition
	}
	return nil
}

// Item is one generation request/result pair within a Job. RequestKey
// correlates the manifest request line with its response line and is unique
// across jobs (uuid-prefixed). Empty strings stand in for absent optional
// fields; CompletedAt-style nullability is not needed here.
type Item struct {
	ID              string
	JobID           string
	RequestKey      string
	SourceAssetName string
	OriginalPath    string
	SourceURL       string

	// Grouping metadata consumed only by the downstream publish stage.
	ProductName string
	OrderNumber string
	Position    int
	PageURL     string

	Status       ItemStatus
	ResultFile   string
	ErrorMessage string

	// Caption fields filled by the description stage.
	Alt         string
	Title       string
	Description string

	CMSImageID string
	Published  bool
	Prompt     string
	CreatedAt  time.Time
}

// ReadyForCaption is the weak readiness predicate: a staged, unpublished
// result. Captioning runs on this set.
func (i *Item) ReadyForCaption() bool {
	return i.Status == ItemStatusSucceeded && i.ResultFile != "" && !i.Published
}

// HasCaptions reports whether the description stage already filled the
// publish-required caption fields.
func (i *Item) HasCaptions() bool {
	return i.Title != "" && i.Description != ""
}

// ReadyForPublish is the strict readiness predicate gating the actual
// upload to the content store.
func (i *Item) ReadyForPublish() bool {
	return i.ReadyForCaption() && i.HasCaptions()
}

// OutputFilename derives the staging filename for a generated result:
// {slug}_{order}_{position}_{disambiguator}.jpg. The random disambiguator
// keeps concurrently produced items from colliding even when the grouping
// fields repeat.
func (i *Item) OutputFilename() string {
	return fmt.Sprintf("%s_%s_%d_%s.jpg", Slug(i.ProductName), i.OrderNumber, i.Position, shortID())
}

// PublishFilename derives the content-store filename: {slug}-{disambiguator}.jpg.
// Order and position are deliberately dropped so publish-facing names are
// decoupled from generation-batch naming.
func (i *Item) PublishFilename() string {
	return fmt.Sprintf("%s-%s.jpg", Slug(i.ProductName), shortID())
}

// CollectionPath returns the target page URL without its last segment, or
// empty when no page URL is set.
func (i *Item) CollectionPath() string {
	if i.PageURL == "" {
		return ""
	}
	path := strings.TrimRight(i.PageURL, "/")
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}

func shortID() string {
	return uuid.NewString()[:8]
}
