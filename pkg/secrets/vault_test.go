package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vaultServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		assert.Equal(t, "/v1/secret/data/bedflow", r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(addr string) VaultConfig {
	return VaultConfig{
		Enabled:   true,
		Addr:      addr,
		Token:     "root",
		Mount:     "secret",
		Path:      "bedflow",
		KVVersion: 2,
		Timeout:   time.Second,
	}
}

func TestApplyVaultSecrets_ExportsKVv2Values(t *testing.T) {
	srv := vaultServer(t, http.StatusOK, `{"data":{"data":{"BEDFLOW_TEST_DB_PASSWORD":"s3cret","BEDFLOW_TEST_REDIS_DB":2,"BEDFLOW_TEST_KEEP":"vault"},"metadata":{}}}`)
	t.Setenv("BEDFLOW_TEST_DB_PASSWORD", "")
	t.Setenv("BEDFLOW_TEST_REDIS_DB", "")
	t.Setenv("BEDFLOW_TEST_KEEP", "local")

	result, err := ApplyVaultSecrets(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Loaded)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "s3cret", os.Getenv("BEDFLOW_TEST_DB_PASSWORD"))
	assert.Equal(t, "2", os.Getenv("BEDFLOW_TEST_REDIS_DB"))
	assert.Equal(t, "local", os.Getenv("BEDFLOW_TEST_KEEP"))
}

func TestApplyVaultSecrets_Disabled(t *testing.T) {
	result, err := ApplyVaultSecrets(context.Background(), VaultConfig{})
	require.NoError(t, err)
	assert.False(t, result.Enabled)
}

func TestFetchVaultSecrets_Errors(t *testing.T) {
	t.Run("incomplete config", func(t *testing.T) {
		_, err := FetchVaultSecrets(context.Background(), VaultConfig{Enabled: true})
		assert.Error(t, err)
	})

	t.Run("server error", func(t *testing.T) {
		srv := vaultServer(t, http.StatusInternalServerError, "boom")
		_, err := FetchVaultSecrets(context.Background(), testConfig(srv.URL))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "vault: max retry attempts (3) exceeded")
	})

	t.Run("missing data", func(t *testing.T) {
		srv := vaultServer(t, http.StatusOK, `{"data":{}}`)
		_, err := FetchVaultSecrets(context.Background(), testConfig(srv.URL))
		assert.Error(t, err)
	})
}

func TestBuildVaultURL(t *testing.T) {
	url, err := buildVaultURL("http://vault:8200/", "/kv/", "/apps/bedflow", 1)
	require.NoError(t, err)
	assert.Equal(t, "http://vault:8200/v1/kv/apps/bedflow", url)

	_, err = buildVaultURL("", "kv", "x", 2)
	assert.Error(t, err)
}
