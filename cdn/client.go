// Package cdn fetches CASC content from a remote content-delivery
// origin, optionally caching every fetched blob in a content-addressed
// local directory.
package cdn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/meigma/casc"
	"github.com/meigma/casc/internal/partition"
)

// Fetcher fetches the complete bytes of one remote path.
type Fetcher interface {
	Bytes(ctx context.Context, path string) ([]byte, error)
}

// Client talks to one CDN origin. The remote endpoint and cache
// directory are explicit configuration; nothing here is process-global.
//
// Client implements casc.CDN.
type Client struct {
	remote     string
	httpClient *http.Client
	logger     *slog.Logger
	cacheDir   string
	fetch      Fetcher
}

var _ casc.CDN = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests. Timeout and
// retry policy belong to this client; none is applied internally.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithCacheDir enables the Keg cache: every blob fetched through Bytes
// (including index blobs) is also written, atomically, under dir.
func WithCacheDir(dir string) Option {
	return func(c *Client) {
		c.cacheDir = dir
	}
}

// NewClient creates a Client for the given remote endpoint, e.g.
// "http://level3.blizzard.com/tpr/wow".
func NewClient(remote string, opts ...Option) (*Client, error) {
	if remote == "" {
		return nil, fmt.Errorf("cdn: remote is empty")
	}
	c := &Client{
		remote:     strings.TrimSuffix(remote, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}

	c.fetch = remoteFetcher{c}
	if c.cacheDir != "" {
		keg, err := NewKeg(c.fetch, c.cacheDir, WithKegLogger(c.logger))
		if err != nil {
			return nil, err
		}
		c.fetch = keg
	}
	return c, nil
}

// Bytes fetches the complete blob at path, relative to the remote
// endpoint. With a cache directory configured, the bytes are also
// written to the cache as a side effect; the return value is always the
// freshly fetched bytes.
func (c *Client) Bytes(ctx context.Context, path string) ([]byte, error) {
	return c.fetch.Bytes(ctx, path)
}

// OpenData opens a random-access source for an archive blob. The source
// issues HTTP range requests; the archive is never downloaded whole.
func (c *Client) OpenData(ctx context.Context, archiveKey string) (casc.ByteSource, error) {
	return newSource(ctx, c.url(dataPath(archiveKey)), c.httpClient)
}

// DataIndex fetches and parses the companion index blob for an archive.
//
// The verify flag is carried for callers that thread it through from
// group configuration; the index checksum fields are surfaced by
// casc.IndexFooter but not verified here.
func (c *Client) DataIndex(ctx context.Context, archiveKey string, verify bool) (*casc.ArchiveIndex, error) {
	data, err := c.Bytes(ctx, dataPath(archiveKey)+".index")
	if err != nil {
		return nil, err
	}
	return casc.ParseIndex(archiveKey, data)
}

func (c *Client) url(path string) string {
	return c.remote + path
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// dataPath maps an archive key to its CDN path. Blobs live under a
// two-level fan-out of the key's leading hex characters.
func dataPath(key string) string {
	return "/" + path.Join("data", partition.Hash(key))
}

// remoteFetcher is the uncached fetch path: one GET per call.
type remoteFetcher struct {
	c *Client
}

func (f remoteFetcher) Bytes(ctx context.Context, p string) ([]byte, error) {
	url := f.c.url(p)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	f.c.log().Debug("fetching", "url", url)
	resp, err := f.c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// ok
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	default:
		return nil, fmt.Errorf("%w: unexpected status %s for %s", ErrTransport, resp.Status, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return data, nil
}
