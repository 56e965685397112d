package gallery

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/InventoLabs/dealergate/apierr"
	"github.com/InventoLabs/dealergate/client"
	"github.com/InventoLabs/dealergate/models"
	"github.com/InventoLabs/dealergate/staging"
)

// API is the slice of the gateway the pipeline needs. *client.Client
// satisfies it; tests substitute a fake.
type API interface {
	VehicleImages(ctx context.Context, vehicleID string, opts ...client.RequestOption) ([]models.VehicleImage, error)
	ReplaceVehicleImages(ctx context.Context, vehicleID string, images []models.VehicleImage, opts ...client.RequestOption) error
	UploadVehicleImage(ctx context.Context, vehicleID, path string, opts ...client.RequestOption) (*models.UploadedImage, error)
	UploadVehicleImageBytes(ctx context.Context, vehicleID, filename, contentType string, data []byte, opts ...client.RequestOption) (*models.UploadedImage, error)
}

// Pipeline ingests a batch of image descriptors for one vehicle. Items are
// processed sequentially in input order; one item's failure never aborts the
// rest, and partial success is a valid terminal state.
type Pipeline struct {
	api     API
	assets  *staging.Store
	fetcher *http.Client
	logger  *slog.Logger
}

// Option tweaks pipeline construction.
type Option func(*Pipeline)

// WithFetchClient overrides the HTTP client used to download UrlRef images.
func WithFetchClient(c *http.Client) Option {
	return func(p *Pipeline) { p.fetcher = c }
}

func New(logger *slog.Logger, api API, assets *staging.Store, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		api:     api,
		assets:  assets,
		fetcher: &http.Client{Timeout: 60 * time.Second},
		logger:  logger.WithGroup("gallery_pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Upload processes every descriptor and aggregates outcomes.
//
// The batch shape is validated before any network activity: an empty batch or
// an out-of-range main index is a Validation error. After that, per-item
// failures are recorded in the result, never returned.
func (p *Pipeline) Upload(ctx context.Context, vehicleID string, descriptors []Descriptor, mainIndex int) (*models.BatchResult, error) {
	errCtx := apierr.Context{Op: "upload_images", VehicleID: vehicleID}
	if vehicleID == "" {
		return nil, apierr.Validation("vehicle id cannot be empty", errCtx)
	}
	if len(descriptors) == 0 {
		return nil, apierr.Validation("image batch is empty", errCtx)
	}
	if mainIndex < 0 || mainIndex >= len(descriptors) {
		return nil, apierr.Validation("main image index is out of range", errCtx)
	}

	// Informational only: a failure to peek at the current gallery never
	// blocks an upload.
	if existing, err := p.api.VehicleImages(ctx, vehicleID); err == nil {
		p.logger.Info("Starting image batch",
			"vehicle_id", vehicleID, "descriptors", len(descriptors), "existing_images", len(existing))
	} else {
		p.logger.Debug("Could not read current gallery, proceeding anyway",
			"vehicle_id", vehicleID, "error", err)
	}

	result := &models.BatchResult{
		VehicleID: vehicleID,
		Uploaded:  []models.UploadOutcome{},
		Errors:    []models.BatchError{},
	}

	for i, d := range descriptors {
		uploaded, strategyName, err := p.runStrategies(ctx, p.strategiesFor(vehicleID, d))
		if err != nil {
			p.logger.Warn("Image upload failed", "vehicle_id", vehicleID, "index", i, "error", err)
			result.Errors = append(result.Errors, batchError(i, d, err))
			continue
		}

		outcome := models.UploadOutcome{
			Index:    i,
			ImageID:  uploaded.ImageID,
			Main:     i == mainIndex,
			Strategy: strategyName,
		}
		result.Uploaded = append(result.Uploaded, outcome)
		result.UploadedCount++

		if i == mainIndex {
			if err := p.SetMainImage(ctx, vehicleID, uploaded.ImageID); err != nil {
				// The upload itself succeeded; losing the designation call is
				// logged, not fatal to the item.
				p.logger.Warn("Could not designate main image",
					"vehicle_id", vehicleID, "image_id", uploaded.ImageID, "error", err)
			}
		}
	}

	result.Success = len(result.Errors) == 0
	p.logger.Info("Image batch finished",
		"vehicle_id", vehicleID, "uploaded", result.UploadedCount, "failed", len(result.Errors))
	return result, nil
}

// UploadAny decodes raw descriptor values first, then runs Upload. Shape
// problems in any item reject the whole batch up front.
func (p *Pipeline) UploadAny(ctx context.Context, vehicleID string, raw []any, mainIndex int) (*models.BatchResult, error) {
	descriptors, err := DecodeDescriptors(raw)
	if err != nil {
		return nil, err
	}
	return p.Upload(ctx, vehicleID, descriptors, mainIndex)
}

// SetMainImage flips the main flag onto imageID and off everything else.
//
// The remote API has no partial update for gallery entries, so this is an
// optimistic read-then-full-write: read the gallery, rewrite the flags, PUT
// the whole collection back. Two concurrent callers mutating the same
// vehicle's gallery can race; the last write wins and the loser's change is
// silently gone.
func (p *Pipeline) SetMainImage(ctx context.Context, vehicleID, imageID string) error {
	errCtx := apierr.Context{Op: "set_main_image", Resource: "vehicle gallery", VehicleID: vehicleID}
	if imageID == "" {
		return apierr.Validation("image id cannot be empty", errCtx)
	}

	images, err := p.api.VehicleImages(ctx, vehicleID)
	if err != nil {
		return err
	}

	found := false
	for i := range images {
		if images[i].ID == imageID {
			images[i].Main = true
			found = true
		} else {
			images[i].Main = false
		}
	}
	if !found {
		return apierr.NotFound(apierr.Context{
			Op: errCtx.Op, Resource: "gallery image " + imageID, VehicleID: vehicleID,
		})
	}

	return p.api.ReplaceVehicleImages(ctx, vehicleID, images)
}

func batchError(index int, d Descriptor, err error) models.BatchError {
	be := models.BatchError{Index: index, Error: err.Error()}
	if f, ok := d.(FileRef); ok {
		be.Path = f.Path
	}
	return be
}
