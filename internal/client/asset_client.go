package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidAssetURL is returned for URLs that are not absolute http(s) URLs.
var ErrInvalidAssetURL = errors.New("invalid asset url")

// Asset is an open upstream model file. Callers must close Body.
type Asset struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// DefaultAssetHosts are the hosts generated models are served from: the
// Meshy CDN and the sample models of the simulated provider.
var DefaultAssetHosts = []string{"meshy.ai", "modelviewer.dev"}

const maxAssetRedirects = 5

// AssetFetcher downloads generated model files from the provider CDN.
// Only hosts on its allow-list (or their subdomains) are fetched.
type AssetFetcher struct {
	httpClient *http.Client
	hosts      []string
}

// NewAssetFetcher builds a fetcher for the given hosts, DefaultAssetHosts when none.
func NewAssetFetcher(timeout time.Duration, allowedHosts ...string) *AssetFetcher {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if len(allowedHosts) == 0 {
		allowedHosts = DefaultAssetHosts
	}

	f := &AssetFetcher{}
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.Trim(strings.TrimSpace(h), ".")); h != "" {
			f.hosts = append(f.hosts, h)
		}
	}
	f.httpClient = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxAssetRedirects {
				return fmt.Errorf("%w: too many redirects", ErrInvalidAssetURL)
			}
			_, err := f.Validate(req.URL.String())
			return err
		},
	}
	return f
}

// Validate checks rawURL is an http(s) URL on an allowed host
func (f *AssetFetcher) Validate(rawURL string) (*url.URL, error) {
	u, err := ValidateAssetURL(rawURL)
	if err != nil {
		return nil, err
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range f.hosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: host %q not allowed", ErrInvalidAssetURL, host)
}

// ValidateAssetURL accepts absolute http and https URLs only
func ValidateAssetURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssetURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAssetURL, raw)
	}
	return u, nil
}

// Open starts downloading rawURL
func (f *AssetFetcher) Open(ctx context.Context, rawURL string) (*Asset, error) {
	u, err := f.Validate(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &APIError{Service: "asset", StatusCode: resp.StatusCode, Body: string(body)}
	}

	return &Asset{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}
