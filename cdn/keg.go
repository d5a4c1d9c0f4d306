package cdn

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/casc/internal/partition"
)

const defaultDirPerm = 0o700

// Keg wraps a Fetcher with a content-addressed, atomically written disk
// cache.
//
// Every fetched blob is written under
// dir/<path>/<partitioned content digest>, so the leaf name is derived
// from the bytes themselves. A cache entry, once written, is immutable
// and survives across process runs until externally evicted. Caching is
// a side effect: Bytes always returns the freshly fetched data, and a
// failed cache write is logged rather than surfaced.
//
// Concurrent writers racing on one entry need no locking: the path is
// content-derived, so they are by construction writing identical bytes,
// and the temp-file-plus-rename protocol guarantees readers only ever
// observe complete files.
type Keg struct {
	fetch   Fetcher
	dir     string
	dirPerm os.FileMode
	logger  *slog.Logger
	group   singleflight.Group
}

var _ Fetcher = (*Keg)(nil)

// KegOption configures a Keg.
type KegOption func(*Keg)

// WithKegLogger sets the logger used for cache diagnostics.
func WithKegLogger(logger *slog.Logger) KegOption {
	return func(k *Keg) {
		k.logger = logger
	}
}

// WithKegDirPerm sets the permissions for created cache directories.
func WithKegDirPerm(mode os.FileMode) KegOption {
	return func(k *Keg) {
		k.dirPerm = mode
	}
}

// NewKeg creates a cache rooted at dir, layered over fetch.
func NewKeg(fetch Fetcher, dir string, opts ...KegOption) (*Keg, error) {
	if dir == "" {
		return nil, fmt.Errorf("cdn: cache dir is empty")
	}
	k := &Keg{
		fetch:   fetch,
		dir:     dir,
		dirPerm: defaultDirPerm,
	}
	for _, opt := range opts {
		opt(k)
	}
	if err := os.MkdirAll(dir, k.dirPerm); err != nil {
		return nil, err
	}
	return k, nil
}

// Bytes fetches path via the wrapped fetcher and writes the result to
// the cache if it is not already present. Concurrent calls for the same
// path share one underlying fetch.
func (k *Keg) Bytes(ctx context.Context, path string) ([]byte, error) {
	v, err, _ := k.group.Do(path, func() (any, error) {
		return k.fetch.Bytes(ctx, path)
	})
	if err != nil {
		return nil, err
	}
	data := v.([]byte)

	if err := k.store(path, data); err != nil {
		k.log().Warn("cache write failed", "path", path, "error", err)
	}
	return data, nil
}

// store writes data to its content-derived cache path unless the entry
// already exists. The write goes to a uniquely named temp file in the
// target directory followed by a rename, so no reader ever sees a
// partial file.
func (k *Keg) store(path string, data []byte) error {
	leaf := k.cachePath(path, data)
	if _, err := os.Stat(leaf); err == nil {
		k.log().Debug("cache hit", "path", path)
		return nil
	}

	dir := filepath.Dir(leaf)
	if err := os.MkdirAll(dir, k.dirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".keg-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, leaf); err != nil {
		// A concurrent writer may have renamed its identical copy first.
		if _, statErr := os.Stat(leaf); statErr == nil {
			_ = os.Remove(tmpPath)
			return nil
		}
		_ = os.Remove(tmpPath)
		return err
	}

	k.log().Debug("cached", "path", path, "file", leaf)
	return nil
}

// cachePath derives the on-disk leaf for a fetched blob from its remote
// path and the digest of its content.
func (k *Keg) cachePath(path string, data []byte) string {
	d := digest.FromBytes(data)
	return filepath.Join(
		k.dir,
		filepath.FromSlash(strings.TrimPrefix(path, "/")),
		filepath.FromSlash(partition.Hash(d.Encoded())),
	)
}

func (k *Keg) log() *slog.Logger {
	if k.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return k.logger
}
