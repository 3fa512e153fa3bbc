package commerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/gje4/vercel-bigcommerce/pkg/errors"
	"github.com/gje4/vercel-bigcommerce/pkg/httpclient"
)

// DefaultTokenHeader carries the admin API access token.
const DefaultTokenHeader = "X-Shopify-Access-Token"

// DefaultAPIVersion is the admin API version used when none is configured.
const DefaultAPIVersion = "2024-01"

const serviceName = "commerce"

// Credentials identify the store and authorize admin API calls.
type Credentials struct {
	StoreDomain string
	AccessToken string
	APIVersion  string
	// BaseURL overrides https://<StoreDomain>/admin/api/<APIVersion>.
	BaseURL     string
	TokenHeader string
}

// Validate reports a configuration error when the store domain or the
// access token is missing.
func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.StoreDomain) == "" {
		missing = append(missing, "store domain")
	}
	if strings.TrimSpace(c.AccessToken) == "" {
		missing = append(missing, "access token")
	}
	if len(missing) > 0 {
		return apperrors.Configuration("commerce credentials are missing: " + strings.Join(missing, ", "))
	}
	return nil
}

func (c Credentials) endpoint(path string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		version := c.APIVersion
		if version == "" {
			version = DefaultAPIVersion
		}
		domain := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(c.StoreDomain, "https://"), "http://"), "/")
		base = fmt.Sprintf("https://%s/admin/api/%s", domain, version)
	}
	return base + path
}

func (c Credentials) tokenHeader() string {
	if c.TokenHeader == "" {
		return DefaultTokenHeader
	}
	return c.TokenHeader
}

// Client calls the commerce admin API. It never retries: a failed create is
// skipped by the caller, and retrying a timed-out create could duplicate the
// product.
type Client struct {
	creds  Credentials
	http   httpclient.Doer
	logger *slog.Logger
}

// NewClient creates an admin API client on top of doer. Pass a
// *httpclient.CircuitBreakerClient built with MaxRetries 0 in production.
func NewClient(creds Credentials, doer httpclient.Doer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{creds: creds, http: doer, logger: logger}
}

// Credentials returns the credentials the client was built with.
func (c *Client) Credentials() Credentials {
	return c.creds
}

// CreateProduct posts payload to /products.json and returns the assigned id.
func (c *Client) CreateProduct(ctx context.Context, payload ProductRequest) (string, error) {
	var out productResponse
	if err := c.post(ctx, "/products.json", payload, &out); err != nil {
		return "", err
	}
	if out.Product.ID == "" {
		return "", ErrMissingID
	}
	return string(out.Product.ID), nil
}

// AttachImage posts a base64 attachment to /products/{id}/images.json.
func (c *Client) AttachImage(ctx context.Context, productID, attachment, filename string) error {
	body := imageRequest{Image: imageBody{Attachment: attachment, Filename: filename}}
	return c.post(ctx, "/products/"+productID+"/images.json", body, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, c.creds.endpoint(path), body)
	if err != nil {
		return err
	}
	req.Header.Set(c.creds.tokenHeader(), c.creds.AccessToken)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.DebugContext(ctx, "commerce request rejected",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return classify(httpclient.ParseResponseError(resp, serviceName))
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
