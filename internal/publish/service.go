// Package publish implements the downstream pipeline stage: verifying staged
// assets, captioning them with product context and pushing them to the
// content gateway.
package publish

import (
	"context"
	"fmt"
	"strconv"

	"imagebatch/internal/batch"
	"imagebatch/internal/domain"
	"imagebatch/internal/gateway"
	"imagebatch/internal/infra"
	"imagebatch/internal/providers/caption"
	"imagebatch/internal/storage"
)

// Captioner generates caption sets for staged images. Satisfied by
// caption.Describer.
type Captioner interface {
	GenerateDescriptions(ctx context.Context, photos [][]byte, productMarkdown string, filenames []string) ([]caption.Description, error)
}

// ContentGateway is the downstream CMS surface. Satisfied by gateway.Client.
type ContentGateway interface {
	FetchProduct(ctx context.Context, pageURL string) (map[string]any, error)
	UploadImage(ctx context.Context, imageData []byte, filename, title, description, caption, collectionPath string) (*gateway.ImageUploadResponse, error)
	AddToGallery(ctx context.Context, pageURL string, imageID int) (*gateway.GalleryAddResponse, error)
}

// Service runs the publish-side stages over ready ledger rows.
type Service struct {
	items     domain.ItemRepository
	store     storage.Store
	gateway   ContentGateway
	captioner Captioner
	logger    infra.Logger
}

// NewService wires the publish service.
func NewService(items domain.ItemRepository, store storage.Store, gw ContentGateway, captioner Captioner, logger infra.Logger) *Service {
	return &Service{
		items:     items,
		store:     store,
		gateway:   gw,
		captioner: captioner,
		logger:    logger,
	}
}

// SweepDeleted retires staged-but-unpublished items whose asset disappeared
// from the store. Existence-check failures are best-effort skips, never
// DELETED verdicts.
func (s *Service) SweepDeleted(ctx context.Context) (int, error) {
	items, err := s.items.ListReadyForCaption(ctx)
	if err != nil {
		return 0, fmt.Errorf("list staged items: %w", err)
	}

	deleted := 0
	for _, item := range items {
		exists, err := s.store.Exists(ctx, item.ResultFile)
		if err != nil {
			s.logger.Warn().Err(err).Str("result_file", item.ResultFile).Msg("publish: existence check failed, skipping")
			continue
		}
		if exists {
			continue
		}
		s.logger.Warn().
			Str("result_file", item.ResultFile).
			Str("product", item.ProductName).
			Msg("publish: staged asset vanished")
		if err := s.items.MarkDeleted(ctx, item.ID); err != nil {
			s.logger.Error().Err(err).Str("item_id", item.ID).Msg("publish: mark deleted failed")
			continue
		}
		deleted++
	}
	return deleted, nil
}

// CaptionResult summarizes one captioning pass.
type CaptionResult struct {
	Generated int
	Errors    []string
}

// CaptionPending captions every staged, unpublished item that still lacks
// title or description, one gateway product fetch and one model call per
// product group. A failing group never blocks the others.
func (s *Service) CaptionPending(ctx context.Context) (*CaptionResult, error) {
	items, err := s.items.ListReadyForCaption(ctx)
	if err != nil {
		return nil, fmt.Errorf("list staged items: %w", err)
	}

	groups := make(map[string][]*domain.Item)
	var order []string
	for _, item := range items {
		if item.HasCaptions() {
			continue
		}
		slug := domain.Slug(item.ProductName)
		if _, seen := groups[slug]; !seen {
			order = append(order, slug)
		}
		groups[slug] = append(groups[slug], item)
	}

	result := &CaptionResult{}
	for _, slug := range order {
		group := groups[slug]
		if err := s.captionGroup(ctx, slug, group, result); err != nil {
			s.logger.Error().Err(err).Str("product_slug", slug).Msg("publish: captioning group failed")
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", slug, err))
		}
	}
	return result, nil
}

func (s *Service) captionGroup(ctx context.Context, slug string, group []*domain.Item, result *CaptionResult) error {
	pageURL := ""
	for _, item := range group {
		if item.PageURL != "" {
			pageURL = item.PageURL
			break
		}
	}
	if pageURL == "" {
		return fmt.Errorf("no page url for product group")
	}

	product, err := s.gateway.FetchProduct(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("fetch product: %w", err)
	}
	markdown := gateway.ProductMarkdown(product)

	var photos [][]byte
	var selected []*domain.Item
	var filenames []string
	for _, item := range group {
		data, err := s.store.Download(ctx, item.ResultFile)
		if err != nil {
			s.logger.Warn().Err(err).Str("result_file", item.ResultFile).Msg("publish: staged asset unreadable, skipping")
			continue
		}
		photos = append(photos, data)
		selected = append(selected, item)
		filenames = append(filenames, item.ResultFile)
	}
	if len(photos) == 0 {
		return nil
	}

	descriptions, err := s.captioner.GenerateDescriptions(ctx, photos, markdown, filenames)
	if err != nil {
		return fmt.Errorf("generate descriptions: %w", err)
	}

	for i, desc := range descriptions {
		if i >= len(selected) {
			break
		}
		item := selected[i]
		if err := s.items.SetCaptions(ctx, item.ID, desc.Alt, desc.Title, desc.Caption); err != nil {
			s.logger.Error().Err(err).Str("item_id", item.ID).Msg("publish: save captions failed")
			continue
		}
		result.Generated++
	}
	s.logger.Info().Str("product_slug", slug).Int("captions", len(descriptions)).Msg("publish: captions generated")
	return nil
}

// PublishResult summarizes one publish pass.
type PublishResult struct {
	Published int
	Failed    int
	Errors    []string
}

// PublishReady uploads every captioned, staged, unpublished item to the
// content gateway, adds it to its product gallery and marks it published.
// The upload is at-least-once: a previously recorded CMS id is reused, never
// re-uploaded.
func (s *Service) PublishReady(ctx context.Context) (*PublishResult, error) {
	items, err := s.items.ListReadyForPublish(ctx)
	if err != nil {
		return nil, fmt.Errorf("list publishable items: %w", err)
	}

	result := &PublishResult{}
	for _, item := range items {
		if err := s.publishItem(ctx, item); err != nil {
			s.logger.Error().Err(err).Str("item_id", item.ID).Str("product", item.ProductName).Msg("publish: item failed")
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Published++
	}
	return result, nil
}

func (s *Service) publishItem(ctx context.Context, item *domain.Item) error {
	var imageID int
	if item.CMSImageID != "" {
		id, err := strconv.Atoi(item.CMSImageID)
		if err != nil {
			return fmt.Errorf("invalid recorded cms id %q: %w", item.CMSImageID, err)
		}
		imageID = id
		s.logger.Info().Str("item_id", item.ID).Int("cms_id", imageID).Msg("publish: reusing uploaded image")
	} else {
		data, err := s.store.Download(ctx, item.ResultFile)
		if err != nil {
			return fmt.Errorf("download staged asset: %w", err)
		}
		uploaded, err := s.gateway.UploadImage(ctx, data, item.PublishFilename(), item.Title, item.Description, item.Alt, item.CollectionPath())
		if err != nil {
			return fmt.Errorf("upload image: %w", err)
		}
		imageID = uploaded.ImageID
		if err := s.items.SetCMSImageID(ctx, item.ID, strconv.Itoa(imageID)); err != nil {
			return fmt.Errorf("record cms id: %w", err)
		}
	}

	if item.PageURL == "" {
		return fmt.Errorf("no page url for item")
	}
	gallery, err := s.gateway.AddToGallery(ctx, item.PageURL, imageID)
	if err != nil {
		return fmt.Errorf("add to gallery: %w", err)
	}
	if !gallery.Success {
		return fmt.Errorf("gallery add rejected: %s", gallery.Message)
	}

	if err := s.items.MarkPublished(ctx, item.ID, strconv.Itoa(imageID)); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}

	// The staged copy has served its purpose.
	batch.BestEffort(s.logger, "delete staged asset", func() error {
		return s.store.Delete(ctx, item.ResultFile)
	})

	s.logger.Info().
		Str("item_id", item.ID).
		Int("cms_id", imageID).
		Str("gallery", gallery.Data.Model).
		Msg("publish: item published")
	return nil
}
