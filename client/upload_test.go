package client_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/InventoLabs/dealergate/apierr"
	"github.com/InventoLabs/dealergate/models"
)

func TestUploadVehicleImageBytesSendsMultipartFileField(t *testing.T) {
	payload := []byte("fake jpeg bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/it/vehicle/V1/images", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(32<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		require.Equal(t, "front.jpg", header.Filename)
		require.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))

		got, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, payload, got)

		w.Write([]byte(`{"imageId":"img-1","url":"https://cdn.test/img-1.jpg"}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, nil)
	uploaded, err := c.UploadVehicleImageBytes(context.Background(), "V1", "front.jpg", "image/jpeg", payload)
	require.NoError(t, err)
	require.Equal(t, &models.UploadedImage{ImageID: "img-1", URL: "https://cdn.test/img-1.jpg"}, uploaded)
}

func TestUploadVehicleImageFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "side.png")
	content := []byte("png-ish content for the test")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		require.Equal(t, "side.png", header.Filename)
		require.Equal(t, "image/png", header.Header.Get("Content-Type"))

		got, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, content, got)

		w.Write([]byte(`{"imageId":"img-2"}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, nil)
	uploaded, err := c.UploadVehicleImage(context.Background(), "V1", path)
	require.NoError(t, err)
	require.Equal(t, "img-2", uploaded.ImageID)
}

func TestUploadMissingFileIsValidation(t *testing.T) {
	c := newTestClient(t, "https://api.invalid", nil)
	_, err := c.UploadVehicleImage(context.Background(), "V1", "nonexistent/file.jpg")
	require.Error(t, err)

	classified := apierr.Classify(err, apierr.Context{})
	require.Equal(t, apierr.KindValidation, classified.Kind)
	require.Contains(t, classified.Message, "nonexistent/file.jpg")
}

func TestUploadEmptyPayloadRejected(t *testing.T) {
	c := newTestClient(t, "https://api.invalid", nil)
	_, err := c.UploadVehicleImageBytes(context.Background(), "V1", "x.jpg", "image/jpeg", nil)
	require.Error(t, err)
	require.Equal(t, apierr.KindValidation, apierr.Classify(err, apierr.Context{}).Kind)
}

func TestUploadRetriedOnServerFault(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "blip", http.StatusBadGateway)
			return
		}
		// The multipart body must survive the retry intact.
		require.NoError(t, r.ParseMultipartForm(32<<20))
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		got, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, []byte("payload"), got)
		w.Write([]byte(`{"imageId":"img-3"}`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, nil)
	uploaded, err := c.UploadVehicleImageBytes(context.Background(), "V1", "a.jpg", "image/jpeg", []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, "img-3", uploaded.ImageID)
	require.Equal(t, 2, attempts)
}

func TestGalleryReadModifyWriteRoundTrip(t *testing.T) {
	gallery := []models.VehicleImage{
		{ID: "a", Main: true},
		{ID: "b"},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			require.Equal(t, "/it/vehicle/V1/images", r.URL.Path)
			w.Write([]byte(`[{"imageId":"a","main":true},{"imageId":"b","main":false}]`))
		case r.Method == http.MethodPut:
			require.Equal(t, "/it/vehicle/V1/images", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			require.JSONEq(t, `[{"imageId":"a","main":false},{"imageId":"b","main":true}]`, string(body))
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL, nil)
	ctx := context.Background()

	got, err := c.VehicleImages(ctx, "V1")
	require.NoError(t, err)
	require.Equal(t, gallery[0].ID, got[0].ID)
	require.True(t, got[0].Main)

	// Flip main from a to b and write the whole collection back.
	got[0].Main = false
	got[1].Main = true
	require.NoError(t, c.ReplaceVehicleImages(ctx, "V1", got))
}
