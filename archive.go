package casc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/casc/blte"
)

// ByteSource provides random access to an archive blob's raw bytes.
//
// Implementations exist for local files (*os.File) and HTTP range
// requests (cdn.Source). Sources that also implement io.Closer are
// closed when the owning Archive is closed.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// CDN fetches archive content from a remote origin.
//
// Implementations must return distinguishable not-found and transport
// errors; no retrying is performed here.
type CDN interface {
	// OpenData opens a random-access source for an archive blob.
	OpenData(ctx context.Context, archiveKey string) (ByteSource, error)

	// DataIndex fetches and parses the companion index blob for an archive.
	DataIndex(ctx context.Context, archiveKey string, verify bool) (*ArchiveIndex, error)
}

// Archive is one remote archive blob: many small files concatenated
// together, addressed by byte range.
//
// The backing source is opened lazily on first read and reused for the
// archive's lifetime. An Archive is not safe for concurrent use.
type Archive struct {
	key string
	cdn CDN
	src ByteSource
}

// NewArchive creates an Archive for the given archive key. No network
// activity happens until the first read.
func NewArchive(key string, cdn CDN) *Archive {
	return &Archive{key: key, cdn: cdn}
}

// Key returns the archive key.
func (a *Archive) Key() string {
	return a.key
}

// ReadRange reads exactly size bytes at offset from the archive's raw
// bytes, opening the backing source on first call.
//
// ErrShortRead is returned when the source holds fewer than size bytes
// past offset.
func (a *Archive) ReadRange(ctx context.Context, offset, size uint32) ([]byte, error) {
	if a.src == nil {
		src, err := a.cdn.OpenData(ctx, a.key)
		if err != nil {
			return nil, err
		}
		a.src = src
	}

	buf := make([]byte, size)
	n, err := a.src.ReadAt(buf, int64(offset))
	if n < int(size) {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %d of %d bytes at offset %d in %s", ErrShortRead, n, size, offset, a.key)
		}
		return nil, err
	}
	return buf, nil
}

// File extracts and decodes one file from the archive. The byte range is
// read with ReadRange and handed to the BLTE decoder together with the
// content key; with verify set, decoded content is checked against the
// key and chunk checksums.
func (a *Archive) File(ctx context.Context, key Key, size, offset uint32, verify bool) ([]byte, error) {
	data, err := a.ReadRange(ctx, offset, size)
	if err != nil {
		return nil, err
	}
	return blte.Decode(data, key, verify)
}

// Close releases the backing source, if one was opened. Closing an
// archive more than once is a no-op.
func (a *Archive) Close() error {
	src := a.src
	a.src = nil
	if c, ok := src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
