package pinning

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidence-registry/evreg/pkg/config"
	"github.com/evidence-registry/evreg/pkg/log"
)

const testCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

func testConfig(endpoint string) config.PinningConfig {
	return config.PinningConfig{
		Endpoint:     endpoint,
		APIKey:       "key",
		SecretAPIKey: "secret",
		GatewayURL:   "https://gateway.example/ipfs",
	}
}

func TestUploadPlaceholderCredentialsMakeNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	testCases := []struct {
		name   string
		key    string
		secret string
	}{
		{"empty key", "", "secret"},
		{"empty secret", "key", ""},
		{"placeholder key", "PASTE_YOUR_PINATA_API_KEY_HERE", "secret"},
		{"placeholder secret", "key", "PASTE_YOUR_PINATA_SECRET_API_KEY_HERE"},
		{"whitespace", "  ", "secret"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(srv.URL)
			cfg.APIKey, cfg.SecretAPIKey = tc.key, tc.secret
			c := NewClient(cfg, log.NewTestLogger(t))

			_, err := c.Upload(context.Background(), "a.txt", strings.NewReader("data"))
			assert.ErrorIs(t, err, ErrMissingCredentials)
		})
	}
	assert.Zero(t, hits.Load())
}

func TestUploadSendsMultipartWithHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "key", r.Header.Get("pinata_api_key"))
		assert.Equal(t, "secret", r.Header.Get("pinata_secret_api_key"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		content, _ := io.ReadAll(f)
		assert.Equal(t, "photo.jpg", hdr.Filename)
		assert.Equal(t, "jpeg bytes", string(content))
		assert.JSONEq(t, `{"name":"photo.jpg"}`, r.FormValue("pinataMetadata"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"IpfsHash":  testCID,
			"PinSize":   10,
			"Timestamp": "2024-05-01T10:00:00Z",
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), log.NewTestLogger(t))
	res, err := c.Upload(context.Background(), "photo.jpg", strings.NewReader("jpeg bytes"))
	require.NoError(t, err)
	assert.Equal(t, testCID, res.IpfsHash)
	assert.EqualValues(t, 10, res.PinSize)
	assert.Equal(t, "https://gateway.example/ipfs/"+testCID, c.GatewayURL(res.IpfsHash))
}

func TestUploadFailureReason(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error reason", http.StatusUnauthorized, `{"error":{"reason":"INVALID_API_KEYS","details":"Invalid API key provided"}}`, "Pinata upload failed: INVALID_API_KEYS"},
		{"error string", http.StatusBadRequest, `{"error":"Invalid request format."}`, "Pinata upload failed: Invalid request format."},
		{"status text", http.StatusInternalServerError, `not json`, "Pinata upload failed: Internal Server Error"},
		{"invalid cid", http.StatusOK, `{"IpfsHash":"not-a-cid"}`, `Pinata upload failed: invalid content identifier "not-a-cid"`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			c := NewClient(testConfig(srv.URL), log.NewTestLogger(t))
			_, err := c.Upload(context.Background(), "x", strings.NewReader("x"))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUploadFailed)
			assert.EqualError(t, err, tc.want)

			var upErr *UploadError
			require.True(t, errors.As(err, &upErr))
			assert.Equal(t, tc.status, upErr.StatusCode)
		})
	}
}

func TestUploadSingleAttempt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), log.NewTestLogger(t))
	_, err := c.Upload(context.Background(), "x", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUploadFailed)
	assert.EqualValues(t, 1, hits.Load())
}

func TestUploadHonorsContextWhilePaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"IpfsHash":"`+testCID+`"}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RequestsPerMinute = 1
	c := NewClient(cfg, log.NewTestLogger(t))

	_, err := c.Upload(context.Background(), "x", strings.NewReader("x"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Upload(ctx, "x", strings.NewReader("x"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUploadFailed)
}

func TestDefaultGateway(t *testing.T) {
	c := NewClient(config.PinningConfig{}, log.NewNopLogger())
	assert.Equal(t, "https://gateway.pinata.cloud/ipfs/"+testCID, c.GatewayURL(testCID))
	assert.False(t, c.HasCredentials())
}
