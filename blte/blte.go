// Package blte decodes BLTE containers, the block-compressed encoding
// wrapping every file stored in a CASC archive.
//
// A container starts with the magic "BLTE" and a big-endian header size.
// A non-zero header size introduces a chunk table (flags byte, 24-bit
// chunk count, then per chunk the compressed size, decompressed size and
// an MD5 checksum of the compressed bytes); a zero header size means the
// whole remainder is one chunk. Each chunk's first byte selects its
// encoding: 'N' for raw bytes, 'Z' for zlib.
package blte

import (
	"bytes"
	"crypto/md5" //nolint:gosec // CASC content keys are MD5 by format definition
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/klauspost/compress/zlib"
)

// Sentinel errors.
var (
	// ErrDecode is returned when a container or chunk is malformed or uses
	// an unsupported encoding mode.
	ErrDecode = errors.New("blte: decode failed")

	// ErrVerify is returned when verification is requested and a checksum
	// does not match the encoded content.
	ErrVerify = errors.New("blte: verification failed")
)

var magic = []byte("BLTE")

const (
	headerLen     = 8  // magic + header size
	chunkTableLen = 4  // flags byte + uint24 chunk count
	chunkInfoLen  = 24 // compressed size + decompressed size + md5
)

type chunkInfo struct {
	compressedSize   uint32
	decompressedSize uint32
	checksum         [md5.Size]byte
}

type frame struct {
	chunks []chunkInfo // nil when the body is a single untabled chunk
	body   []byte
}

func parseFrame(data []byte) (*frame, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("%w: container is %d bytes, header needs %d", ErrDecode, len(data), headerLen)
	}
	if !bytes.Equal(data[:4], magic) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrDecode, data[:4])
	}
	headerSize := binary.BigEndian.Uint32(data[4:8])
	if headerSize == 0 {
		return &frame{body: data[headerLen:]}, nil
	}

	if int64(headerSize) > int64(len(data)) {
		return nil, fmt.Errorf("%w: header size %d exceeds container size %d", ErrDecode, headerSize, len(data))
	}
	if headerSize < headerLen+chunkTableLen {
		return nil, fmt.Errorf("%w: header size %d too small for chunk table", ErrDecode, headerSize)
	}

	count := int(data[9])<<16 | int(data[10])<<8 | int(data[11])
	if count == 0 {
		return nil, fmt.Errorf("%w: empty chunk table", ErrDecode)
	}
	if int(headerSize) < headerLen+chunkTableLen+count*chunkInfoLen {
		return nil, fmt.Errorf("%w: header size %d too small for %d chunks", ErrDecode, headerSize, count)
	}

	chunks := make([]chunkInfo, count)
	table := data[headerLen+chunkTableLen:]
	for i := range chunks {
		entry := table[i*chunkInfoLen:]
		chunks[i].compressedSize = binary.BigEndian.Uint32(entry[0:4])
		chunks[i].decompressedSize = binary.BigEndian.Uint32(entry[4:8])
		copy(chunks[i].checksum[:], entry[8:chunkInfoLen])
	}

	return &frame{chunks: chunks, body: data[headerSize:]}, nil
}

// Blocks returns an iterator over the decoded blocks of a BLTE container
// in order. Concatenating the blocks yields the complete file content.
//
// With verify set, each tabled chunk's compressed bytes are checked
// against the table checksum, each decoded block against the tabled
// decompressed size, and an untabled single-chunk body against key (the
// MD5 of the whole encoded container). Mismatches yield ErrVerify.
//
// The iterator is restartable; decoding is re-done from the container
// start on each call.
func Blocks(data []byte, key [16]byte, verify bool) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		f, err := parseFrame(data)
		if err != nil {
			yield(nil, err)
			return
		}

		if f.chunks == nil {
			if verify {
				if sum := md5.Sum(data); sum != key { //nolint:gosec // format-mandated MD5
					yield(nil, fmt.Errorf("%w: content is %x, want %x", ErrVerify, sum, key))
					return
				}
			}
			yield(decodeBlock(f.body))
			return
		}

		body := f.body
		for i, c := range f.chunks {
			if int64(c.compressedSize) > int64(len(body)) {
				yield(nil, fmt.Errorf("%w: chunk %d needs %d bytes, %d left", ErrDecode, i, c.compressedSize, len(body)))
				return
			}
			encoded := body[:c.compressedSize]
			body = body[c.compressedSize:]

			if verify {
				if sum := md5.Sum(encoded); sum != c.checksum { //nolint:gosec // format-mandated MD5
					yield(nil, fmt.Errorf("%w: chunk %d is %x, want %x", ErrVerify, i, sum, c.checksum))
					return
				}
			}

			block, err := decodeBlock(encoded)
			if err != nil {
				yield(nil, fmt.Errorf("chunk %d: %w", i, err))
				return
			}
			if verify && uint32(len(block)) != c.decompressedSize {
				yield(nil, fmt.Errorf("%w: chunk %d decoded to %d bytes, want %d", ErrVerify, i, len(block), c.decompressedSize))
				return
			}
			if !yield(block, nil) {
				return
			}
		}
	}
}

// Decode decodes a complete BLTE container to its file content. It is
// Blocks with the result concatenated.
func Decode(data []byte, key [16]byte, verify bool) ([]byte, error) {
	var out []byte
	for block, err := range Blocks(data, key, verify) {
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	return out, nil
}

func decodeBlock(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty block", ErrDecode)
	}
	switch b[0] {
	case 'N':
		return b[1:], nil
	case 'Z':
		zr, err := zlib.NewReader(bytes.NewReader(b[1:]))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return out, nil
	case 'E':
		return nil, fmt.Errorf("%w: encrypted block not supported", ErrDecode)
	default:
		return nil, fmt.Errorf("%w: unknown block mode %q", ErrDecode, b[0])
	}
}
