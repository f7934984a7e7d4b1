// Package fetch resolves and downloads the service package from the
// distribution endpoint.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"updagent/internal/logging"
)

// Locator resolves the download URL for the package.
type Locator interface {
	Resolve(ctx context.Context) (string, error)
}

// TokenSource supplies a bearer token for endpoint requests. NoToken is used
// when the endpoint is unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// NoToken is a TokenSource for endpoints that require no credentials.
type NoToken struct{}

func (NoToken) Token(context.Context) (string, error) { return "", nil }

// HTTPLocator probes the distribution endpoint for the package. A site can
// carry its own build, so the site-qualified location is tried first and the
// tenant-wide location is the fallback.
type HTTPLocator struct {
	Client      *http.Client
	Tokens      TokenSource
	BaseURL     string
	TenantID    string
	SiteID      string
	PackageName string
	Log         logging.Logger
}

func NewHTTPLocator(baseURL, tenantID, siteID, packageName string) *HTTPLocator {
	return &HTTPLocator{
		Client:      &http.Client{Timeout: 30 * time.Second},
		Tokens:      NoToken{},
		BaseURL:     baseURL,
		TenantID:    tenantID,
		SiteID:      siteID,
		PackageName: packageName,
		Log:         logging.New("fetch"),
	}
}

func (l *HTTPLocator) siteURL() string {
	return joinURL(l.BaseURL, l.TenantID, l.SiteID, l.PackageName)
}

func (l *HTTPLocator) tenantURL() string {
	return joinURL(l.BaseURL, l.TenantID, l.PackageName)
}

// Resolve returns the first candidate URL the endpoint answers with 200. When
// no candidate resolves there is nothing to download and the pass is skipped.
func (l *HTTPLocator) Resolve(ctx context.Context) (string, error) {
	if l.BaseURL == "" {
		return "", fmt.Errorf("FETCH_LOCATE: no base URL configured")
	}
	candidates := []string{l.tenantURL()}
	if l.SiteID != "" {
		candidates = []string{l.siteURL(), l.tenantURL()}
	}
	for _, url := range candidates {
		ok, err := l.probe(ctx, url)
		if err != nil {
			return "", err
		}
		if ok {
			return url, nil
		}
		l.Log.WithField("url", url).Debug("package not published at candidate location")
	}
	return "", fmt.Errorf("FETCH_LOCATE_NONE: %s not published for tenant %s", l.PackageName, l.TenantID)
}

func (l *HTTPLocator) probe(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("FETCH_PROBE_REQ: %w", err)
	}
	if err := authorize(ctx, req, l.Tokens); err != nil {
		return false, err
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		l.Log.WithError(err).WithField("url", url).Debug("probe failed")
		return false, nil
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func authorize(ctx context.Context, req *http.Request, ts TokenSource) error {
	if ts == nil {
		return nil
	}
	tok, err := ts.Token(ctx)
	if err != nil {
		return fmt.Errorf("FETCH_TOKEN: %w", err)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return nil
}

func joinURL(parts ...string) string {
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			trimmed = append(trimmed, p)
		}
	}
	return strings.Join(trimmed, "/")
}
