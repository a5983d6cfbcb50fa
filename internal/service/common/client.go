//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/oshokin/expo-updates-server/internal/api/http/updates"
	"github.com/oshokin/expo-updates-server/internal/config"
	"github.com/oshokin/expo-updates-server/internal/domain/update"
	"github.com/oshokin/expo-updates-server/internal/version"
)

// Client speaks the update protocol to a running server.
type Client struct {
	// baseURL is the server root, without trailing slash.
	baseURL string
	// httpClient performs the requests.
	httpClient *http.Client

	// callTimeout is the default timeout for individual calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errUnknownStorageType is returned for storage types OpenRepository cannot build.
	errUnknownStorageType = errors.New("unknown storage type")
	// ErrServerResponse wraps non-200 answers of the updates server.
	ErrServerResponse = errors.New("unexpected server response")
)

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errAddressRequired
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	client := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  http.DefaultClient,
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Part is one section of a multipart update response.
type Part struct {
	// Name is the form field name: manifest, directive or extensions.
	Name string
	// Signature is the expo-signature header of the part, if any.
	Signature string
	// Body is the raw JSON.
	Body []byte
}

// CheckResponse is a decoded update response.
type CheckResponse struct {
	// ProtocolVersion is the echoed expo-protocol-version header.
	ProtocolVersion string
	// Parts are the multipart sections in order.
	Parts []Part
}

// Part returns the section named name.
func (r *CheckResponse) Part(name string) (Part, bool) {
	for _, part := range r.Parts {
		if part.Name == name {
			return part, true
		}
	}

	return Part{}, false
}

// CheckForUpdate performs one update check.
func (c *Client) CheckForUpdate(ctx context.Context, req *update.Request, expectSignature bool) (*CheckResponse, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	query := url.Values{
		api.QueryProject:        []string{req.Project},
		api.QueryChannel:        []string{string(req.Channel)},
		api.QueryPlatform:       []string{string(req.Platform)},
		api.QueryRuntimeVersion: []string{req.RuntimeVersion},
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodGet,
		c.baseURL+api.ManifestPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("User-Agent", version.UserAgent())
	httpReq.Header.Set("Accept", "multipart/mixed")
	httpReq.Header.Set(api.HeaderProtocolVersion, strconv.Itoa(int(req.ProtocolVersion)))

	if req.CurrentUpdateID != "" {
		httpReq.Header.Set(api.HeaderCurrentUpdateID, req.CurrentUpdateID)
	}

	if req.EmbeddedUpdateID != "" {
		httpReq.Header.Set(api.HeaderEmbeddedUpdateID, req.EmbeddedUpdateID)
	}

	if expectSignature {
		httpReq.Header.Set(api.HeaderExpectSignature, `sig, keyid="main", alg="rsa-v1_5-sha256"`)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("check for update: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp.StatusCode, body)
	}

	parts, err := readMultipart(resp.Header.Get(api.HeaderContentType), body)
	if err != nil {
		return nil, err
	}

	return &CheckResponse{
		ProtocolVersion: resp.Header.Get(api.HeaderProtocolVersion),
		Parts:           parts,
	}, nil
}

// Asset is a downloaded asset.
type Asset struct {
	Data        []byte
	ContentType string
}

// FetchAsset downloads an asset URL taken from a manifest.
func (c *Client) FetchAsset(ctx context.Context, assetURL string, headers map[string]string) (*Asset, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("User-Agent", version.UserAgent())

	for name, value := range headers {
		httpReq.Header.Set(name, value)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp.StatusCode, data)
	}

	return &Asset{
		Data:        data,
		ContentType: resp.Header.Get(api.HeaderContentType),
	}, nil
}

// CheckHealth asks the gRPC health service at address for the status of service.
// Note: this uses insecure transport credentials, like the health listener itself.
func CheckHealth(
	ctx context.Context,
	address string,
	service string,
	timeout time.Duration,
) (healthpb.HealthCheckResponse_ServingStatus, error) {
	if address == "" {
		return healthpb.HealthCheckResponse_UNKNOWN, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dial health service: %w", err)
	}

	defer func() {
		_ = conn.Close()
	}()

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("check health: %w", err)
	}

	return resp.GetStatus(), nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

// responseError turns an error response into ErrServerResponse with the server message.
func responseError(status int, body []byte) error {
	var envelope struct {
		Error string `json:"error"`
	}

	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != "" {
		message = envelope.Error
	}

	return fmt.Errorf("%w: %d %s: %s", ErrServerResponse, status, http.StatusText(status), message)
}

// readMultipart splits a multipart/mixed body into its parts.
func readMultipart(contentType string, body []byte) ([]Part, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("parse content type: %w", err)
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("%w: content type %s", ErrServerResponse, mediaType)
	}

	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])

	var parts []Part

	for {
		part, nextErr := reader.NextPart()
		if errors.Is(nextErr, io.EOF) {
			return parts, nil
		}

		if nextErr != nil {
			return nil, fmt.Errorf("read multipart: %w", nextErr)
		}

		data, readErr := io.ReadAll(part)
		if readErr != nil {
			return nil, fmt.Errorf("read part %s: %w", part.FormName(), readErr)
		}

		parts = append(parts, Part{
			Name:      part.FormName(),
			Signature: part.Header.Get(api.HeaderSignature),
			Body:      data,
		})
	}
}
