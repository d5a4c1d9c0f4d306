package casc

import (
	"encoding/binary"
	"fmt"
	"iter"
)

// footerSize is the fixed length of the index footer trailing every
// archive index blob.
const footerSize = 28

// recordSize is the fixed width of one index record on the wire:
// a 16-byte content key followed by big-endian size and offset.
//
// The footer carries KeySize/SizeSize/OffsetSize fields, but real index
// blobs always use 16/4/4 and readers in the wild hardcode the width.
// Honoring the footer fields would silently misalign against such data,
// so the fixed width is kept.
const recordSize = KeySize + 4 + 4

// IndexFooter is the 28-byte little-endian trailer of an archive index
// blob. It describes how to parse the preceding table of contents.
type IndexFooter struct {
	TOCHash        [8]byte
	Version        uint8
	BlockSizeKB    uint8
	OffsetSize     uint8
	SizeSize       uint8
	KeySize        uint8
	ChecksumSize   uint8
	NumItems       uint32
	FooterChecksum [8]byte
}

// IndexRecord is one entry of an archive index: a content key and the
// byte range holding that content inside the archive.
type IndexRecord struct {
	Key    Key
	Size   uint32
	Offset uint32
}

// ArchiveIndex is one archive's parsed index blob.
//
// The raw blob is retained; Records re-reads it from the start on every
// call, so the record stream is restartable.
type ArchiveIndex struct {
	key    string
	data   []byte
	footer IndexFooter
}

// ParseIndex reads the footer of an archive index blob. The record table
// is decoded lazily by Records.
//
// The provided data is retained by the index; callers must not modify it
// after calling ParseIndex.
func ParseIndex(key string, data []byte) (*ArchiveIndex, error) {
	if len(data) < footerSize {
		return nil, fmt.Errorf("%w: blob is %d bytes, footer needs %d", ErrMalformedIndex, len(data), footerSize)
	}
	f := data[len(data)-footerSize:]

	var footer IndexFooter
	copy(footer.TOCHash[:], f[0:8])
	footer.Version = f[8]
	// f[9] and f[10] are unused padding bytes.
	footer.BlockSizeKB = f[11]
	footer.OffsetSize = f[12]
	footer.SizeSize = f[13]
	footer.KeySize = f[14]
	footer.ChecksumSize = f[15]
	footer.NumItems = binary.LittleEndian.Uint32(f[16:20])
	copy(footer.FooterChecksum[:], f[20:28])

	if footer.BlockSizeKB == 0 {
		return nil, fmt.Errorf("%w: zero block size", ErrMalformedIndex)
	}

	return &ArchiveIndex{
		key:    key,
		data:   data,
		footer: footer,
	}, nil
}

// Key returns the archive key this index belongs to.
func (idx *ArchiveIndex) Key() string {
	return idx.key
}

// Footer returns the parsed index footer.
func (idx *ArchiveIndex) Footer() IndexFooter {
	return idx.footer
}

// Len returns the number of records in the index.
func (idx *ArchiveIndex) Len() int {
	return int(idx.footer.NumItems)
}

// Records returns an iterator over the index's records in on-disk order.
//
// Records are 24 bytes wide and grouped into blocks of BlockSizeKB*1024
// bytes; a record never spans a block boundary, so when fewer than 24
// bytes remain in the current block the reader skips to the next block
// before continuing. Exactly NumItems records are yielded.
//
// A read past the end of the blob yields ErrMalformedIndex and stops; no
// partial record is ever yielded. The iterator is restartable: each call
// to Records begins again at offset 0.
func (idx *ArchiveIndex) Records() iter.Seq2[IndexRecord, error] {
	return func(yield func(IndexRecord, error) bool) {
		blockSize := int(idx.footer.BlockSizeKB) * 1024
		left := blockSize
		pos := 0

		for i := uint32(0); i < idx.footer.NumItems; i++ {
			if recordSize > left {
				pos += left
				left = blockSize
			}
			left -= recordSize

			if pos+recordSize > len(idx.data) {
				yield(IndexRecord{}, fmt.Errorf("%w: record %d truncated at offset %d", ErrMalformedIndex, i, pos))
				return
			}

			var rec IndexRecord
			copy(rec.Key[:], idx.data[pos:pos+KeySize])
			rec.Size = binary.BigEndian.Uint32(idx.data[pos+KeySize : pos+KeySize+4])
			rec.Offset = binary.BigEndian.Uint32(idx.data[pos+KeySize+4 : pos+recordSize])
			pos += recordSize

			if !yield(rec, nil) {
				return
			}
		}
	}
}
