// Package registry implements the Artifact Registry client used on both
// sides of the snapshot pipeline: the snapshot builder publishes archives
// through it and bootstrap agents discover and fetch them. The registry
// speaks the container-registry /v2 HTTP API (tags, manifests, blobs).
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethfleet/snapboot/snapboot/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout       = 5 * time.Minute
	manifestCacheEntries = 64
)

type Client struct {
	baseURL   string
	client    http.Client
	logger    zerolog.Logger
	manifests *lru.Cache[string, *Manifest]
	retrier   *common.RetryRunner
}

type config struct {
	timeout time.Duration
	retry   *common.RetryConfig
}

type Option func(*config)

func WithTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = timeout
	}
}

func WithRetryConfig(rcfg *common.RetryConfig) Option {
	return func(cfg *config) {
		cfg.retry = rcfg
	}
}

func NewClient(baseURL string, logger zerolog.Logger, options ...Option) (*Client, error) {
	cfg := &config{timeout: defaultTimeout}
	for _, option := range options {
		option(cfg)
	}

	manifests, err := lru.New[string, *Manifest](manifestCacheEntries)
	if err != nil {
		return nil, err
	}

	client := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		client:    http.Client{Timeout: cfg.timeout},
		logger:    logger,
		manifests: manifests,
	}
	if cfg.retry != nil {
		retrier := common.NewRetryRunner(*cfg.retry, logger)
		client.retrier = &retrier
	}
	return client, nil
}

// withRetry routes idempotent reads through the retrier when one is
// configured. Writes and blob streams are issued exactly once.
func (c *Client) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	if c.retrier == nil {
		return op(ctx)
	}
	return c.retrier.Do(ctx, op)
}

type tagList struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// ListTags returns all tags of the repository. A repository nothing has
// been pushed to yet yields an empty slice, not an error.
func (c *Client) ListTags(ctx context.Context, repository string) ([]string, error) {
	var tags []string
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		tags, err = c.listTags(ctx, repository)
		return err
	})
	return tags, err
}

func (c *Client) listTags(ctx context.Context, repository string) ([]string, error) {
	url := fmt.Sprintf("%s/v2/%s/tags/list", c.baseURL, repository)

	resp, err := c.do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, unexpectedStatus(resp)
	}

	var list tagList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return list.Tags, nil
}

// FetchManifest resolves a tag or digest to a manifest. Manifests are
// immutable once published, so resolved ones are cached.
func (c *Client) FetchManifest(ctx context.Context, repository, reference string) (*Manifest, error) {
	cacheKey := repository + ":" + reference
	if manifest, ok := c.manifests.Get(cacheKey); ok {
		return manifest, nil
	}

	var manifest *Manifest
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		manifest, err = c.fetchManifest(ctx, repository, reference)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.manifests.Add(cacheKey, manifest)
	return manifest, nil
}

func (c *Client) fetchManifest(ctx context.Context, repository, reference string) (*Manifest, error) {
	url := fmt.Sprintf("%s/v2/%s/manifests/%s", c.baseURL, repository, reference)

	headers := map[string]string{"Accept": ManifestMediaType}
	resp, err := c.do(ctx, http.MethodGet, url, nil, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: manifest %s/%s", ErrNotFound, repository, reference)
	default:
		return nil, unexpectedStatus(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	return decodeManifest(body)
}

// FetchBlob opens the raw content stream of a blob. The caller owns the
// returned reader and should verify the digest while consuming it.
func (c *Client) FetchBlob(ctx context.Context, repository, digest string) (io.ReadCloser, int64, error) {
	url := fmt.Sprintf("%s/v2/%s/blobs/%s", c.baseURL, repository, digest)

	resp, err := c.do(ctx, http.MethodGet, url, nil, nil)
	if err != nil {
		return nil, 0, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: blob %s/%s", ErrNotFound, repository, digest)
	default:
		defer resp.Body.Close()
		return nil, 0, unexpectedStatus(resp)
	}

	return resp.Body, resp.ContentLength, nil
}

// PushBlob uploads a blob using the monolithic two-step upload flow.
func (c *Client) PushBlob(ctx context.Context, repository, digest string, size int64, content io.Reader) error {
	startURL := fmt.Sprintf("%s/v2/%s/blobs/uploads/", c.baseURL, repository)

	resp, err := c.do(ctx, http.MethodPost, startURL, nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return unexpectedStatus(resp)
	}

	location := resp.Header.Get("Location")
	if location == "" {
		return fmt.Errorf("%w: upload session without location", ErrMalformed)
	}
	location = c.resolveLocation(location)
	if strings.Contains(location, "?") {
		location += "&digest=" + digest
	} else {
		location += "?digest=" + digest
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, location, content)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	uploadResp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer uploadResp.Body.Close()

	if uploadResp.StatusCode != http.StatusCreated {
		return unexpectedStatus(uploadResp)
	}
	return nil
}

// PutManifest publishes the manifest under the given tag and returns the
// manifest digest. The tag becomes visible to consumers only after this
// call succeeds, which is what makes publishing atomic for them.
func (c *Client) PutManifest(ctx context.Context, repository, tag string, manifest *Manifest) (string, error) {
	body, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	url := fmt.Sprintf("%s/v2/%s/manifests/%s", c.baseURL, repository, tag)

	headers := map[string]string{"Content-Type": ManifestMediaType}
	resp, err := c.do(ctx, http.MethodPut, url, bytes.NewReader(body), headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", unexpectedStatus(resp)
	}
	return DigestOf(body), nil
}

// DeleteManifest removes a manifest by digest (the registry's prune
// primitive; blobs are reclaimed by registry-side garbage collection).
func (c *Client) DeleteManifest(ctx context.Context, repository, digest string) error {
	url := fmt.Sprintf("%s/v2/%s/manifests/%s", c.baseURL, repository, digest)

	resp, err := c.do(ctx, http.MethodDelete, url, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: manifest %s/%s", ErrNotFound, repository, digest)
	default:
		return unexpectedStatus(resp)
	}
}

func (c *Client) do(
	ctx context.Context,
	method, url string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	c.logger.Trace().Str("method", method).Str("url", url).Msg("registry request")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return resp, nil
}

// resolveLocation makes relative upload locations absolute.
func (c *Client) resolveLocation(location string) string {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return location
	}
	return c.baseURL + location
}

func unexpectedStatus(resp *http.Response) error {
	return fmt.Errorf("%w: unexpected status %s", ErrUnreachable, strconv.Quote(resp.Status))
}
