package gallery

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/InventoLabs/dealergate/apierr"
	"github.com/InventoLabs/dealergate/models"
)

// Transfer strategy names, recorded on each successful outcome so the chain
// that actually ran stays inspectable.
const (
	strategyFetchTransfer  = "fetch_transfer"
	strategyInlineTransfer = "inline_transfer"
	strategyFileTransfer   = "file_transfer"
	strategyStagedTransfer = "staged_file_transfer"
)

// Sanity bounds on inline payloads. The floor rejects truncated pastes, the
// ceiling keeps a single gallery shot from ballooning request bodies.
const (
	minInlineImageBytes = 128
	maxInlineImageBytes = 2 << 20 // 2 MiB
)

var base64CharsetRe = regexp.MustCompile(`^[A-Za-z0-9+/\r\n]*={0,2}\s*$`)

type strategy struct {
	name string
	run  func(ctx context.Context) (*models.UploadedImage, error)
}

// runStrategies attempts each strategy in order and reports which one
// succeeded. The last failure wins when the whole chain is exhausted.
func (p *Pipeline) runStrategies(ctx context.Context, strategies []strategy) (*models.UploadedImage, string, error) {
	var lastErr error
	for i, s := range strategies {
		img, err := s.run(ctx)
		if err == nil {
			return img, s.name, nil
		}
		lastErr = err
		if i < len(strategies)-1 {
			p.logger.Warn("Transfer strategy failed, falling back",
				"strategy", s.name, "next", strategies[i+1].name, "error", err)
		}
	}
	return nil, "", lastErr
}

// strategiesFor maps a descriptor to its ordered transfer chain.
func (p *Pipeline) strategiesFor(vehicleID string, d Descriptor) []strategy {
	switch desc := d.(type) {
	case UrlRef:
		return []strategy{{
			name: strategyFetchTransfer,
			run: func(ctx context.Context) (*models.UploadedImage, error) {
				return p.fetchAndTransfer(ctx, vehicleID, desc.URL)
			},
		}}

	case DataURI:
		return []strategy{{
			name: strategyInlineTransfer,
			run: func(ctx context.Context) (*models.UploadedImage, error) {
				raw, err := base64.StdEncoding.DecodeString(desc.Data)
				if err != nil {
					return nil, apierr.Validation("data URI payload is not valid base64",
						apierr.Context{Op: "inline_transfer", VehicleID: vehicleID})
				}
				return p.api.UploadVehicleImageBytes(ctx, vehicleID, "inline"+extForMIME(desc.MimeType), desc.MimeType, raw)
			},
		}}

	case FileRef:
		return []strategy{{
			name: strategyFileTransfer,
			run: func(ctx context.Context) (*models.UploadedImage, error) {
				if _, err := os.Stat(desc.Path); os.IsNotExist(err) {
					return nil, apierr.Validation("file does not exist: "+desc.Path,
						apierr.Context{Op: "file_transfer", VehicleID: vehicleID})
				}
				return p.api.UploadVehicleImage(ctx, vehicleID, desc.Path)
			},
		}}

	case RawBase64:
		return []strategy{{
			name: strategyInlineTransfer,
			run: func(ctx context.Context) (*models.UploadedImage, error) {
				raw, err := validateRawBase64(desc, vehicleID)
				if err != nil {
					return nil, err
				}
				filename := desc.Filename
				if filename == "" {
					filename = "image" + extForMIME(desc.MimeType)
				}
				return p.api.UploadVehicleImageBytes(ctx, vehicleID, filename, desc.MimeType, raw)
			},
		}}

	case UIPastedImage:
		// The staged path reuses the faster file transfer; inline transfer is
		// the fallback when staging or the transfer itself fails.
		return []strategy{
			{
				name: strategyStagedTransfer,
				run: func(ctx context.Context) (*models.UploadedImage, error) {
					asset, err := p.assets.Stage(desc.Data, desc.MediaType, "pasted")
					if err != nil {
						return nil, err
					}
					// Released on every exit: success, transfer failure, or
					// fallback to the inline strategy.
					defer p.assets.Release(asset)
					return p.api.UploadVehicleImage(ctx, vehicleID, asset.Path)
				},
			},
			{
				name: strategyInlineTransfer,
				run: func(ctx context.Context) (*models.UploadedImage, error) {
					raw, err := base64.StdEncoding.DecodeString(stripDataPrefix(desc.Data))
					if err != nil {
						return nil, apierr.Validation("pasted image payload is not valid base64",
							apierr.Context{Op: "inline_transfer", VehicleID: vehicleID})
					}
					return p.api.UploadVehicleImageBytes(ctx, vehicleID, "pasted"+extForMIME(desc.MediaType), desc.MediaType, raw)
				},
			},
		}

	default:
		return []strategy{{
			name: "unsupported",
			run: func(context.Context) (*models.UploadedImage, error) {
				return nil, apierr.Validation(fmt.Sprintf("unsupported descriptor %T", d),
					apierr.Context{Op: "upload_images", VehicleID: vehicleID})
			},
		}}
	}
}

// fetchAndTransfer downloads the remote image and re-uploads it as multipart.
func (p *Pipeline) fetchAndTransfer(ctx context.Context, vehicleID, imageURL string) (*models.UploadedImage, error) {
	errCtx := apierr.Context{Op: "fetch_image", Resource: imageURL, VehicleID: vehicleID}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, apierr.Validation("image URL is not valid: "+err.Error(), errCtx)
	}
	resp, err := p.fetcher.Do(req)
	if err != nil {
		return nil, apierr.Classify(err, errCtx)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.FromStatus(resp.StatusCode, "image fetch failed", errCtx)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, apierr.Classify(err, errCtx)
	}
	if len(raw) == 0 {
		return nil, apierr.InvalidResponse("image fetch returned an empty body", nil, errCtx)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filename := path.Base(req.URL.Path)
	if filename == "" || filename == "/" || filename == "." {
		filename = "image"
	}
	return p.api.UploadVehicleImageBytes(ctx, vehicleID, filename, contentType, raw)
}

// validateRawBase64 enforces the declared-MIME payload contract before any
// bytes leave the process. Violations are per-item Validation failures.
func validateRawBase64(d RawBase64, vehicleID string) ([]byte, error) {
	errCtx := apierr.Context{Op: "validate_image", VehicleID: vehicleID}

	if strings.TrimSpace(d.Data) == "" {
		return nil, apierr.Validation("image data is empty", errCtx)
	}
	if !strings.HasPrefix(strings.ToLower(d.MimeType), "image/") {
		return nil, apierr.Validation(fmt.Sprintf("mime type %q is not an image type", d.MimeType), errCtx)
	}
	if !base64CharsetRe.MatchString(d.Data) {
		return nil, apierr.Validation("image data contains non-base64 characters", errCtx)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(d.Data))
	if err != nil {
		return nil, apierr.Validation("image data is not valid base64", errCtx)
	}
	if len(raw) < minInlineImageBytes {
		return nil, apierr.Validation(fmt.Sprintf("decoded image is too small (%d bytes)", len(raw)), errCtx)
	}
	if len(raw) > maxInlineImageBytes {
		return nil, apierr.Validation(fmt.Sprintf("decoded image exceeds the %d byte limit", maxInlineImageBytes), errCtx)
	}
	return raw, nil
}

func stripDataPrefix(payload string) string {
	if strings.HasPrefix(payload, "data:") {
		if i := strings.Index(payload, "base64,"); i >= 0 {
			return payload[i+len("base64,"):]
		}
	}
	return payload
}

func extForMIME(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".img"
	}
}
