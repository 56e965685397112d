package client_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/InventoLabs/dealergate/apierr"
	"github.com/InventoLabs/dealergate/client"
	"github.com/InventoLabs/dealergate/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func identityServer(t *testing.T, exchanges *atomic.Int64, expiresIn int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "password", r.PostFormValue("grant_type"))
		require.Equal(t, "dealer-client", r.PostFormValue("client_id"))
		require.Equal(t, "operator", r.PostFormValue("username"))
		require.Equal(t, "hunter2", r.PostFormValue("password"))

		n := exchanges.Add(1)
		json.NewEncoder(w).Encode(models.TokenResponse{
			AccessToken: "tok-" + string(rune('a'+n-1)),
			ExpiresIn:   expiresIn,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newProvider(t *testing.T, tokenURL string) client.TokenProvider {
	t.Helper()
	p, err := client.NewPasswordGrantProvider(client.PasswordGrantConfig{
		TokenURL: tokenURL,
		ClientID: "dealer-client",
		Username: "operator",
		Password: "hunter2",
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	return p
}

func TestTokenIsCachedWithinValidity(t *testing.T) {
	var exchanges atomic.Int64
	srv := identityServer(t, &exchanges, 3600)
	p := newProvider(t, srv.URL)

	ctx := context.Background()
	first, err := p.Token(ctx)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		tok, err := p.Token(ctx)
		require.NoError(t, err)
		require.Equal(t, first, tok)
	}
	require.Equal(t, int64(1), exchanges.Load(), "N calls within validity must perform exactly one exchange")
}

func TestClearForcesExactlyOneNewExchange(t *testing.T) {
	var exchanges atomic.Int64
	srv := identityServer(t, &exchanges, 3600)
	p := newProvider(t, srv.URL)

	ctx := context.Background()
	first, err := p.Token(ctx)
	require.NoError(t, err)

	p.Clear()

	second, err := p.Token(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Equal(t, int64(2), exchanges.Load())

	// And the fresh credential is cached again.
	_, err = p.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), exchanges.Load())
}

func TestRejectedExchangeIsTerminalAuthentication(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p := newProvider(t, srv.URL)
	_, err := p.Token(context.Background())
	require.Error(t, err)

	classified := apierr.Classify(err, apierr.Context{})
	require.Equal(t, apierr.KindAuthentication, classified.Kind)
	require.Equal(t, http.StatusUnauthorized, classified.HTTPStatus)
	require.False(t, apierr.Retryable(classified), "credential failures are never retried")
}

func TestExchangeFailureIsNotCached(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "nope", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(models.TokenResponse{AccessToken: "recovered", ExpiresIn: 3600})
	}))
	t.Cleanup(srv.Close)

	p := newProvider(t, srv.URL)
	ctx := context.Background()

	_, err := p.Token(ctx)
	require.Error(t, err)

	tok, err := p.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "recovered", tok)
}

func TestExpiryShorterThanMarginStillUsable(t *testing.T) {
	var exchanges atomic.Int64
	srv := identityServer(t, &exchanges, 5) // shorter than the 30s margin
	p := newProvider(t, srv.URL)

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, tok)
}

func TestMalformedIdentityResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	t.Cleanup(srv.Close)

	p := newProvider(t, srv.URL)
	_, err := p.Token(context.Background())
	require.Error(t, err)

	classified := apierr.Classify(err, apierr.Context{})
	require.Equal(t, apierr.KindInvalidResponse, classified.Kind)
}

func TestProviderConfigValidation(t *testing.T) {
	_, err := client.NewPasswordGrantProvider(client.PasswordGrantConfig{})
	require.Error(t, err)

	_, err = client.NewPasswordGrantProvider(client.PasswordGrantConfig{
		TokenURL: "https://id.test/token",
		ClientID: "c",
	})
	require.Error(t, err)
}
