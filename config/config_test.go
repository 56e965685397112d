package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/InventoLabs/dealergate/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dealergate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `
api:
  baseUrl: https://api.example.test
auth:
  tokenUrl: https://id.example.test/token
  clientId: dealer-client
  username: operator
  password: hunter2
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	require.Equal(t, "https://api.example.test", cfg.API.BaseURL)
	require.Equal(t, config.DefaultCountry, cfg.API.Country)
	require.Equal(t, config.DefaultTimeout, cfg.API.Timeout)
	require.Equal(t, config.DefaultRetryAttempts, cfg.API.Retry.Attempts)
	require.Equal(t, config.DefaultRetryBaseDelay, cfg.API.Retry.BaseDelay)
	require.Equal(t, config.DefaultSweepAfter, cfg.Staging.SweepAfter)
	require.Equal(t, config.DefaultLeadTimeout, cfg.Leads.Timeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, config.ErrConfigFileUnreadable)
}

func TestLoadGarbageFile(t *testing.T) {
	_, err := config.Load(writeConfig(t, "api: [not: valid"))
	require.ErrorIs(t, err, config.ErrConfigFileUnmarshallable)
}

func TestValidationSentinels(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    error
	}{
		{
			"missing base url",
			`auth: {tokenUrl: "https://id.test/token", clientId: c, username: u, password: p}`,
			config.ErrBaseURLMissing,
		},
		{
			"missing token url",
			`api: {baseUrl: "https://api.test"}
auth: {clientId: c, username: u, password: p}`,
			config.ErrTokenURLMissing,
		},
		{
			"missing client id",
			`api: {baseUrl: "https://api.test"}
auth: {tokenUrl: "https://id.test/token", username: u, password: p}`,
			config.ErrClientIDMissing,
		},
		{
			"missing username",
			`api: {baseUrl: "https://api.test"}
auth: {tokenUrl: "https://id.test/token", clientId: c, password: p}`,
			config.ErrUsernameMissing,
		},
		{
			"missing password",
			`api: {baseUrl: "https://api.test"}
auth: {tokenUrl: "https://id.test/token", clientId: c, username: u}`,
			config.ErrPasswordMissing,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tc.content))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("DEALERGATE_PASSWORD", "from-env")
	t.Setenv("DEALERGATE_COUNTRY", "de")

	cfg, err := config.Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Auth.Password)
	require.Equal(t, "de", cfg.API.Country)
}

func TestEnvironmentSuppliesMissingSecret(t *testing.T) {
	withoutPassword := `
api:
  baseUrl: https://api.example.test
auth:
  tokenUrl: https://id.example.test/token
  clientId: dealer-client
  username: operator
`
	t.Setenv("DEALERGATE_PASSWORD", "supplied")

	cfg, err := config.Load(writeConfig(t, withoutPassword))
	require.NoError(t, err)
	require.Equal(t, "supplied", cfg.Auth.Password)
}
