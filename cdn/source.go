package cdn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Source implements random access reads against one remote blob via HTTP
// range requests. It satisfies casc.ByteSource.
//
// The blob's size is probed once when the source is opened; subsequent
// reads translate directly into Range requests without buffering the
// whole blob.
type Source struct {
	url    string
	client *http.Client
	size   int64
}

// newSource probes the remote blob and returns a range-request source.
func newSource(ctx context.Context, url string, client *http.Client) (*Source, error) {
	s := &Source{url: url, client: client}
	size, err := s.probe(ctx)
	if err != nil {
		return nil, err
	}
	s.size = size
	return s, nil
}

// Size returns the total size of the remote blob.
func (s *Source) Size() int64 {
	return s.size
}

// ReadAt reads from the remote blob at the given offset using an HTTP
// range request.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}

	end := off + int64(len(p)) - 1
	expected := len(p)
	if end >= s.size {
		end = s.size - 1
		expected = int(end - off + 1)
	}

	req, err := http.NewRequest(http.MethodGet, s.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, end))
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		// ok
	case http.StatusRequestedRangeNotSatisfiable:
		return 0, io.EOF
	case http.StatusNotFound:
		return 0, fmt.Errorf("%w: %s", ErrNotFound, s.url)
	case http.StatusOK:
		return 0, errors.New("cdn: range requests not supported")
	default:
		return 0, fmt.Errorf("%w: range request failed: %s", ErrTransport, resp.Status)
	}

	n, err := io.ReadFull(resp.Body, p[:expected])
	if err != nil {
		return n, err
	}
	if expected < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// probe determines the blob size with a one-byte range request, falling
// back to the Content-Range total it reports. A plain 200 response means
// the remote ignores Range headers, which makes random access impossible.
func (s *Source) probe(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", "bytes=0-0")
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		// ok
	case http.StatusNotFound:
		return 0, fmt.Errorf("%w: %s", ErrNotFound, s.url)
	case http.StatusOK:
		return 0, errors.New("cdn: range requests not supported")
	default:
		return 0, fmt.Errorf("%w: range probe failed: %s", ErrTransport, resp.Status)
	}

	crange := resp.Header.Get("Content-Range")
	if crange == "" {
		return 0, fmt.Errorf("%w: range probe missing Content-Range", ErrTransport)
	}
	return parseContentRange(crange)
}

func parseContentRange(value string) (int64, error) {
	value = strings.TrimSpace(value)
	rest, ok := strings.CutPrefix(value, "bytes ")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[1] == "*" {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return size, nil
}
