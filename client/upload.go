package client

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/InventoLabs/dealergate/apierr"
	"github.com/InventoLabs/dealergate/models"
)

// The gallery endpoint accepts multipart form data with a single "file"
// field; everything else about the image is derived server-side.
const uploadFieldName = "file"

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// UploadVehicleImage streams a local file to the vehicle's gallery endpoint.
func (c *Client) UploadVehicleImage(ctx context.Context, vehicleID, path string, opts ...RequestOption) (*models.UploadedImage, error) {
	errCtx := apierr.Context{Op: "upload_vehicle_image", Resource: "vehicle gallery", VehicleID: vehicleID}
	if vehicleID == "" {
		return nil, apierr.Validation("vehicle id cannot be empty", errCtx)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierr.Validation("file does not exist: "+path, errCtx)
		}
		return nil, apierr.Unknown("could not read file "+path, err, errCtx)
	}

	contentType := mimeTypeForFile(path)
	return c.UploadVehicleImageBytes(ctx, vehicleID, filepath.Base(path), contentType, data, opts...)
}

// UploadVehicleImageBytes uploads in-memory image bytes as a multipart form.
// The body is rebuilt per retry attempt by the gateway, so transient upstream
// faults do not lose the payload.
func (c *Client) UploadVehicleImageBytes(ctx context.Context, vehicleID, filename, contentType string, data []byte, opts ...RequestOption) (*models.UploadedImage, error) {
	errCtx := apierr.Context{Op: "upload_vehicle_image", Resource: "vehicle gallery", VehicleID: vehicleID}
	if vehicleID == "" {
		return nil, apierr.Validation("vehicle id cannot be empty", errCtx)
	}
	if len(data) == 0 {
		return nil, apierr.Validation("image payload is empty", errCtx)
	}
	if filename == "" {
		filename = "image"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body, formContentType, err := buildMultipart(filename, contentType, data)
	if err != nil {
		return nil, apierr.Unknown("could not build multipart body", err, errCtx)
	}

	opts = append(opts, withContentType(formContentType))
	respBody, err := c.Do(ctx, http.MethodPost, "/vehicle/"+vehicleID+"/images", body, opts...)
	if err != nil {
		return nil, withVehicle(err, vehicleID, "vehicle gallery")
	}

	var uploaded models.UploadedImage
	if err := json.Unmarshal(respBody, &uploaded); err != nil {
		return nil, apierr.InvalidResponse("gallery upload response is not valid JSON", err, errCtx)
	}
	return &uploaded, nil
}

func buildMultipart(filename, contentType string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		`form-data; name="`+uploadFieldName+`"; filename="`+quoteEscaper.Replace(filename)+`"`)
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// mimeTypeForFile guesses a content type from the file extension. The remote
// API keys on the multipart part's content type, so unknown extensions fall
// back to the generic binary type rather than failing the upload.
func mimeTypeForFile(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".avif":
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}
