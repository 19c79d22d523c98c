package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/propertyhub/internal/config"
)

func testConfig() config.StorageConfig {
	return config.StorageConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "listing-images",
		Region:    "us-east-1",
		PublicURL: "https://img.example.com/",
	}
}

func TestNewObjectStore_EndpointWithScheme(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoint = "https://s3.example.com"

	store, err := NewObjectStore(cfg)
	require.NoError(t, err)
	assert.Equal(t, "s3.example.com", store.client.EndpointURL().Host)
	assert.Equal(t, "https", store.client.EndpointURL().Scheme)
}

func TestPublicURL(t *testing.T) {
	store, err := NewObjectStore(testConfig())
	require.NoError(t, err)

	assert.Equal(t, "https://img.example.com/listing-images/listings/4/abc.jpg", store.PublicURL("listings/4/abc.jpg"))
}

// Presigning is computed locally; no server round trip is needed when the
// region is configured.
func TestPresignUpload(t *testing.T) {
	store, err := NewObjectStore(testConfig())
	require.NoError(t, err)

	raw, err := store.PresignUpload(context.Background(), "listings/4/abc.jpg", 10*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u.Path, "/listing-images/listings/4/abc.jpg"))
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
