// Package registry fetches package indexes, version manifests and archives
// from an npm-compatible registry. Every fetch is memoized for the life of
// the client and concurrent requests for the same resource share one round
// trip.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/willibrandon/gonpm/cache"
	"github.com/willibrandon/gonpm/core"
	gonpmhttp "github.com/willibrandon/gonpm/http"
	"github.com/willibrandon/gonpm/observability"
)

// DefaultRegistry is the public npm registry.
const DefaultRegistry = "https://registry.npmjs.org"

// acceptJSON requests full documents; the abbreviated install format omits
// the time object.
const acceptJSON = "application/json"

// Client talks to one registry.
type Client struct {
	base   string
	http   *gonpmhttp.Client
	logger observability.Logger
	disk   *cache.DiskCache

	indexes   *cache.Store[*PackageIndex]
	manifests *cache.Store[*ResolvedPackage]
	archives  *cache.Store[[]byte]
}

// Option configures a Client.
type Option func(*Client)

// WithRegistry sets the registry base URL.
func WithRegistry(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.base = strings.TrimRight(base, "/")
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDiskCache consults dc for archives before the network.
func WithDiskCache(dc *cache.DiskCache) Option {
	return func(c *Client) {
		c.disk = dc
	}
}

// NewClient creates a registry client. A nil httpClient uses the defaults.
func NewClient(httpClient *gonpmhttp.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = gonpmhttp.NewClient(nil)
	}
	c := &Client{
		base:      DefaultRegistry,
		http:      httpClient,
		logger:    observability.NewNullLogger(),
		indexes:   cache.NewStore[*PackageIndex]("index"),
		manifests: cache.NewStore[*ResolvedPackage]("manifest"),
		archives:  cache.NewStore[[]byte]("archive"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the base URL.
func (c *Client) Registry() string {
	return c.base
}

// IndexURL returns the index document URL for name.
func (c *Client) IndexURL(name string) string {
	return c.base + "/" + url.PathEscape(name)
}

// ManifestURL returns the manifest URL for name at ver.
func (c *Client) ManifestURL(name, ver string) string {
	return c.IndexURL(name) + "/" + url.PathEscape(ver)
}

// FetchPackageIndex returns the version listing of name.
func (c *Client) FetchPackageIndex(ctx context.Context, name string) (*PackageIndex, error) {
	u := c.IndexURL(name)
	return c.indexes.Get(ctx, u, func(ctx context.Context) (*PackageIndex, error) {
		ctx, span := observability.StartFetchSpan(ctx, "index", u)
		idx, err := c.fetchIndex(ctx, name, u)
		observability.EndSpanWithError(span, err)
		return idx, err
	})
}

func (c *Client) fetchIndex(ctx context.Context, name, u string) (*PackageIndex, error) {
	body, status, err := c.get(ctx, u, acceptJSON)
	if err != nil {
		return nil, err
	}
	if !success(status) {
		return nil, core.NetworkError(u, fmt.Sprintf("unexpected status %d", status), nil)
	}

	idx, err := ParseIndex(name, body)
	if err != nil {
		return nil, core.ParseError(u, "malformed package index", err)
	}
	c.logger.DebugContext(ctx, "Fetched index {Package} ({Count} versions)", name, len(idx.PublishedVersions))
	return idx, nil
}

// ParseIndex reads a package index document, keeping the key order of its
// "time" object (or "versions" when "time" is absent).
func ParseIndex(name string, body []byte) (*PackageIndex, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, fmt.Errorf("document is not an object")
	}

	listing := doc.Get("time")
	if !listing.IsObject() {
		listing = doc.Get("versions")
	}
	if !listing.IsObject() {
		return nil, fmt.Errorf("no time or versions object")
	}

	idx := &PackageIndex{Name: name, DistTags: map[string]string{}}
	if n := doc.Get("name"); n.Type == gjson.String && n.Str != "" {
		idx.Name = n.Str
	}
	listing.ForEach(func(key, _ gjson.Result) bool {
		if k := key.String(); strings.Contains(k, ".") {
			idx.PublishedVersions = append(idx.PublishedVersions, k)
		}
		return true
	})
	doc.Get("dist-tags").ForEach(func(tag, ver gjson.Result) bool {
		if ver.Type == gjson.String {
			idx.DistTags[tag.String()] = ver.Str
		}
		return true
	})
	return idx, nil
}

// FetchResolvedPackage returns the manifest of name at ver. A non-success
// status is retried once against the registry's latest alias for name.
func (c *Client) FetchResolvedPackage(ctx context.Context, name, ver string) (*ResolvedPackage, error) {
	u := c.ManifestURL(name, ver)
	return c.manifests.Get(ctx, u, func(ctx context.Context) (*ResolvedPackage, error) {
		ctx, span := observability.StartFetchSpan(ctx, "manifest", u)
		pkg, err := c.fetchManifest(ctx, name, ver, u)
		observability.EndSpanWithError(span, err)
		return pkg, err
	})
}

func (c *Client) fetchManifest(ctx context.Context, name, ver, u string) (*ResolvedPackage, error) {
	body, status, err := c.get(ctx, u, acceptJSON)
	if err != nil {
		return nil, err
	}

	if !success(status) {
		fallback := c.ManifestURL(name, "latest")
		c.logger.WarnContext(ctx, "Manifest {Package}@{Version} returned {Status}, retrying {URL}",
			name, ver, status, fallback)

		body, status, err = c.get(ctx, fallback, acceptJSON)
		if err != nil {
			return nil, err
		}
		if !success(status) {
			return nil, core.NetworkError(fallback, fmt.Sprintf("unexpected status %d", status), nil)
		}
		u = fallback
	}

	var pkg ResolvedPackage
	if err := json.Unmarshal(body, &pkg); err != nil {
		return nil, core.ParseError(u, "malformed manifest", err)
	}
	if pkg.Name == "" {
		pkg.Name = name
	}
	return &pkg, nil
}

// FetchArchiveBytes returns the archive dist points at, verified against
// dist.Integrity or dist.Shasum. The disk cache, when configured and not
// disabled by the session, is consulted first. Only verified bytes are
// written to it, and a cached entry that no longer verifies is evicted and
// fetched again. Archives are memoized by tarball URL.
func (c *Client) FetchArchiveBytes(ctx context.Context, dist Dist) ([]byte, error) {
	return c.archives.Get(ctx, dist.Tarball, func(ctx context.Context) ([]byte, error) {
		useDisk := c.disk != nil
		if s := cache.SessionFromContext(ctx); s != nil && s.NoCache {
			useDisk = false
		}

		if useDisk {
			data, ok := c.diskArchive(ctx, dist)
			observability.RecordCacheHit(ctx, ok)
			if ok {
				observability.CacheHitsTotal.WithLabelValues("disk").Inc()
				return data, nil
			}
			observability.CacheMissesTotal.WithLabelValues("disk").Inc()
		}

		ctx, span := observability.StartFetchSpan(ctx, "archive", dist.Tarball)
		data, err := c.fetchArchive(ctx, dist.Tarball)
		if err == nil {
			err = verifyArchive(data, dist)
		}
		observability.EndSpanWithError(span, err)
		if err != nil {
			return nil, err
		}

		if useDisk {
			if err := c.disk.Put(dist.Tarball, data); err != nil {
				c.logger.WarnContext(ctx, "Could not cache {URL}: {Error}", dist.Tarball, err)
			}
		}
		return data, nil
	})
}

// diskArchive returns the cached archive for dist when it still verifies.
func (c *Client) diskArchive(ctx context.Context, dist Dist) ([]byte, bool) {
	data, ok, err := c.disk.Get(dist.Tarball)
	if err != nil {
		c.logger.WarnContext(ctx, "Could not read cached {URL}: {Error}", dist.Tarball, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	if err := VerifyIntegrity(data, dist); err != nil {
		c.logger.WarnContext(ctx, "Evicting cached {URL}: {Error}", dist.Tarball, err)
		if err := c.disk.Delete(dist.Tarball); err != nil {
			c.logger.WarnContext(ctx, "Could not evict cached {URL}: {Error}", dist.Tarball, err)
		}
		return nil, false
	}
	return data, true
}

func verifyArchive(data []byte, dist Dist) error {
	if err := VerifyIntegrity(data, dist); err != nil {
		return &core.Error{
			Kind:    core.KindExtraction,
			Message: "archive failed verification",
			URL:     dist.Tarball,
			Err:     err,
		}
	}
	return nil
}

func (c *Client) fetchArchive(ctx context.Context, u string) ([]byte, error) {
	body, status, err := c.get(ctx, u, "*/*")
	if err != nil {
		return nil, err
	}
	if !success(status) {
		return nil, core.NetworkError(u, fmt.Sprintf("unexpected status %d", status), nil)
	}
	observability.ArchiveBytesTotal.Add(float64(len(body)))
	return body, nil
}

// get performs a GET and reads the whole body.
func (c *Client) get(ctx context.Context, u, accept string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, core.NetworkError(u, "invalid request", err)
	}
	req.Header.Set("Accept", accept)

	resp, err := c.http.DoWithRetry(ctx, req)
	if err != nil {
		return nil, 0, core.NetworkError(u, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, core.NetworkError(u, "read body", err)
	}
	return body, resp.StatusCode, nil
}

func success(status int) bool {
	return status >= 200 && status < 300
}
