package publish

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagebatch/internal/domain"
	"imagebatch/internal/domain/domaintest"
	"imagebatch/internal/gateway"
	"imagebatch/internal/providers/caption"
	"imagebatch/internal/storage"
)

type fakeGateway struct {
	products map[string]map[string]any
	uploads  []string
	gallery  []int

	nextImageID int
	galleryErr  error
}

func (f *fakeGateway) FetchProduct(ctx context.Context, pageURL string) (map[string]any, error) {
	product, ok := f.products[pageURL]
	if !ok {
		return nil, fmt.Errorf("product not found: %s", pageURL)
	}
	return product, nil
}

func (f *fakeGateway) UploadImage(ctx context.Context, imageData []byte, filename, title, description, captionText, collectionPath string) (*gateway.ImageUploadResponse, error) {
	f.uploads = append(f.uploads, filename)
	f.nextImageID++
	return &gateway.ImageUploadResponse{ImageID: f.nextImageID, Title: title}, nil
}

func (f *fakeGateway) AddToGallery(ctx context.Context, pageURL string, imageID int) (*gateway.GalleryAddResponse, error) {
	if f.galleryErr != nil {
		return nil, f.galleryErr
	}
	f.gallery = append(f.gallery, imageID)
	resp := &gateway.GalleryAddResponse{Success: true}
	resp.Data.ImageID = imageID
	resp.Data.Model = "lider"
	return resp, nil
}

type fakeCaptioner struct {
	calls int
	err   error
}

func (f *fakeCaptioner) GenerateDescriptions(ctx context.Context, photos [][]byte, productMarkdown string, filenames []string) ([]caption.Description, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	descriptions := make([]caption.Description, len(photos))
	for i := range descriptions {
		descriptions[i] = caption.Description{
			Title:   fmt.Sprintf("title-%d", i),
			Alt:     fmt.Sprintf("alt-%d", i),
			Caption: fmt.Sprintf("caption-%d", i),
		}
	}
	return descriptions, nil
}

type fixture struct {
	service   *Service
	ledger    *domaintest.Ledger
	store     *storage.FileStore
	gateway   *fakeGateway
	captioner *fakeCaptioner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	ledger := domaintest.NewLedger()
	gw := &fakeGateway{products: map[string]map[string]any{}}
	captioner := &fakeCaptioner{}
	return &fixture{
		service:   NewService(ledger.Items, store, gw, captioner, zerolog.New(io.Discard)),
		ledger:    ledger,
		store:     store,
		gateway:   gw,
		captioner: captioner,
	}
}

func (f *fixture) stageItem(t *testing.T, id, product, pageURL string, captioned bool) *domain.Item {
	t.Helper()
	handle, err := f.store.Upload(context.Background(), []byte("staged-"+id), id+".jpg")
	require.NoError(t, err)

	item := &domain.Item{
		ID:          id,
		JobID:       "job-1",
		RequestKey:  "key-" + id,
		ProductName: product,
		OrderNumber: "A-1",
		Position:    1,
		PageURL:     pageURL,
		Status:      domain.ItemStatusSucceeded,
		ResultFile:  handle,
		CreatedAt:   time.Now().UTC(),
	}
	if captioned {
		item.Alt = "alt"
		item.Title = "title"
		item.Description = "description"
	}
	f.ledger.SeedItem(item)
	return item
}

func TestSweepDeleted(t *testing.T) {
	f := newFixture(t)
	kept := f.stageItem(t, "item-1", "Стол Лидер", "/catalog/tables/lider", false)
	gone := f.stageItem(t, "item-2", "Стол Лидер", "/catalog/tables/lider", false)
	require.NoError(t, f.store.Delete(context.Background(), gone.ResultFile))

	deleted, err := f.service.SweepDeleted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Equal(t, domain.ItemStatusDeleted, f.ledger.Item(gone.ID).Status)
	assert.Equal(t, domain.ItemStatusSucceeded, f.ledger.Item(kept.ID).Status)
}

func TestCaptionPending(t *testing.T) {
	f := newFixture(t)
	f.gateway.products["/catalog/tables/lider"] = map[string]any{
		"content": map[string]any{"tabs": map[string]any{"description": "Переговорный стол."}},
	}
	uncaptioned := f.stageItem(t, "item-1", "Стол Лидер", "/catalog/tables/lider", false)
	captioned := f.stageItem(t, "item-2", "Стол Лидер", "/catalog/tables/lider", true)

	result, err := f.service.CaptionPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Generated)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, f.captioner.calls)

	got := f.ledger.Item(uncaptioned.ID)
	assert.Equal(t, "title-0", got.Title)
	assert.Equal(t, "alt-0", got.Alt)
	assert.Equal(t, "caption-0", got.Description)

	// Already-captioned item untouched.
	assert.Equal(t, "title", f.ledger.Item(captioned.ID).Title)
}

func TestCaptionPendingGroupFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.gateway.products["/catalog/tables/lider"] = map[string]any{}
	// The chair product page is missing from the gateway.
	f.stageItem(t, "item-1", "Кресло Альфа", "/catalog/chairs/alpha", false)
	f.stageItem(t, "item-2", "Стол Лидер", "/catalog/tables/lider", false)

	result, err := f.service.CaptionPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Generated)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "kreslo-alfa")
}

func TestPublishReady(t *testing.T) {
	f := newFixture(t)
	item := f.stageItem(t, "item-1", "Стол Лидер", "/catalog/tables/lider", true)
	f.stageItem(t, "item-2", "Стол Лидер", "/catalog/tables/lider", false)

	result, err := f.service.PublishReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Published)
	assert.Zero(t, result.Failed)

	got := f.ledger.Item(item.ID)
	assert.True(t, got.Published)
	assert.Equal(t, "1", got.CMSImageID)
	assert.Equal(t, []int{1}, f.gateway.gallery)

	// The staged copy is removed after publish.
	exists, err := f.store.Exists(context.Background(), item.ResultFile)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPublishReadyReusesRecordedCMSID(t *testing.T) {
	f := newFixture(t)
	item := f.stageItem(t, "item-1", "Стол Лидер", "/catalog/tables/lider", true)
	require.NoError(t, f.ledger.Items.SetCMSImageID(context.Background(), item.ID, "42"))

	result, err := f.service.PublishReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Published)
	assert.Empty(t, f.gateway.uploads, "no re-upload for a recorded cms id")
	assert.Equal(t, []int{42}, f.gateway.gallery)
	assert.Equal(t, "42", f.ledger.Item(item.ID).CMSImageID)
}

func TestPublishReadyGalleryFailureKeepsCMSID(t *testing.T) {
	f := newFixture(t)
	item := f.stageItem(t, "item-1", "Стол Лидер", "/catalog/tables/lider", true)
	f.gateway.galleryErr = fmt.Errorf("gateway status 502")

	result, err := f.service.PublishReady(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Published)
	assert.Equal(t, 1, result.Failed)

	got := f.ledger.Item(item.ID)
	assert.False(t, got.Published)
	// The upload already happened; the recorded id prevents a duplicate
	// upload on the next pass.
	assert.Equal(t, "1", got.CMSImageID)
}
