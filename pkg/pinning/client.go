// Package pinning uploads files to a Pinata-compatible pinning service.
package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"golang.org/x/time/rate"

	"github.com/evidence-registry/evreg/pkg/config"
	"github.com/evidence-registry/evreg/pkg/log"
)

var (
	// ErrMissingCredentials is returned before any request when the API keys
	// are empty or still hold placeholder text.
	ErrMissingCredentials = errors.New("pinning API keys are missing or invalid")
	// ErrUploadFailed is returned when the service rejects an upload.
	ErrUploadFailed = errors.New("pinning upload failed")
)

const (
	headerAPIKey       = "pinata_api_key"
	headerSecretAPIKey = "pinata_secret_api_key" // #nosec G101
	placeholderMarker  = "PASTE"
)

// Result is the service answer to a successful upload.
type Result struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// UploadError carries the reason reported by the service.
type UploadError struct {
	StatusCode int
	Reason     string
}

func (e *UploadError) Error() string {
	return "Pinata upload failed: " + e.Reason
}

func (e *UploadError) Is(target error) bool { return target == ErrUploadFailed }

// Client pins files. It performs a single attempt per upload.
type Client struct {
	endpoint   string
	apiKey     string
	secretKey  string
	gateway    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// NewClient builds a client from the pinning configuration.
func NewClient(cfg config.PinningConfig, logger log.Logger, opts ...Option) *Client {
	gateway := cfg.GatewayURL
	if gateway == "" {
		gateway = config.DefaultGatewayURL
	}
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = config.DefaultPinningEndpoint
	}

	c := &Client{
		endpoint:   endpoint,
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretAPIKey,
		gateway:    gateway,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		logger:     logger,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasCredentials reports whether both keys are present and not placeholders.
func (c *Client) HasCredentials() bool {
	return validKey(c.apiKey) && validKey(c.secretKey)
}

func validKey(k string) bool {
	k = strings.TrimSpace(k)
	return k != "" && !strings.Contains(k, placeholderMarker)
}

// GatewayURL returns the retrieval link for a content identifier.
func (c *Client) GatewayURL(contentID string) string {
	return c.gateway + contentID
}

// Upload pins the content read from r under name and returns the content
// identifier reported by the service.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (Result, error) {
	if !c.HasCredentials() {
		return Result{}, ErrMissingCredentials
	}
	if name == "" {
		name = "evidence"
	}

	body, contentType, err := encodeMultipart(name, r)
	if err != nil {
		return Result{}, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("waiting for upload slot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return Result{}, fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set(headerSecretAPIKey, c.secretKey)

	size := body.Len()
	c.logger.Debug("uploading file", "name", name, "bytes", size)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, &UploadError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &UploadError{StatusCode: resp.StatusCode, Reason: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &UploadError{StatusCode: resp.StatusCode, Reason: failureReason(resp, payload)}
	}

	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return Result{}, &UploadError{StatusCode: resp.StatusCode, Reason: "malformed response: " + err.Error()}
	}
	if _, err := cid.Decode(res.IpfsHash); err != nil {
		return Result{}, &UploadError{StatusCode: resp.StatusCode, Reason: fmt.Sprintf("invalid content identifier %q", res.IpfsHash)}
	}

	c.logger.Info("file pinned", "name", name, "cid", res.IpfsHash, "size", res.PinSize)
	return res, nil
}

func encodeMultipart(name string, r io.Reader) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("reading file: %w", err)
	}

	meta, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("pinataMetadata", string(meta)); err != nil {
		return nil, "", fmt.Errorf("writing metadata: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

// failureReason extracts error.reason, or a plain error string, falling back
// to the HTTP status text.
func failureReason(resp *http.Response, payload []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && len(envelope.Error) > 0 {
		var detailed struct {
			Reason  string `json:"reason"`
			Details string `json:"details"`
		}
		if err := json.Unmarshal(envelope.Error, &detailed); err == nil && detailed.Reason != "" {
			return detailed.Reason
		}
		var plain string
		if err := json.Unmarshal(envelope.Error, &plain); err == nil && plain != "" {
			return plain
		}
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}
