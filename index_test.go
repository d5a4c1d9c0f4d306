package casc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildIndexBlob assembles a synthetic index blob: records packed into
// blockSizeKB*1024-byte blocks with zero padding, followed by the
// 28-byte footer.
func buildIndexBlob(tb testing.TB, records []IndexRecord, blockSizeKB uint8) []byte {
	tb.Helper()

	var buf bytes.Buffer
	blockSize := int(blockSizeKB) * 1024
	left := blockSize
	for _, rec := range records {
		if recordSize > left {
			buf.Write(make([]byte, left))
			left = blockSize
		}
		left -= recordSize

		buf.Write(rec.Key[:])
		var u32 [4]byte
		binary.BigEndian.PutUint32(u32[:], rec.Size)
		buf.Write(u32[:])
		binary.BigEndian.PutUint32(u32[:], rec.Offset)
		buf.Write(u32[:])
	}

	buf.Write(buildFooter(uint32(len(records)), blockSizeKB))
	return buf.Bytes()
}

func buildFooter(numItems uint32, blockSizeKB uint8) []byte {
	footer := make([]byte, footerSize)
	// toc hash left zero
	footer[8] = 1 // version
	footer[11] = blockSizeKB
	footer[12] = 4  // offset size
	footer[13] = 4  // size size
	footer[14] = 16 // key size
	footer[15] = 8  // checksum size
	binary.LittleEndian.PutUint32(footer[16:20], numItems)
	// footer checksum left zero
	return footer
}

func testRecords(n int) []IndexRecord {
	records := make([]IndexRecord, n)
	for i := range records {
		records[i] = IndexRecord{
			Size:   uint32(100 + i),
			Offset: uint32(i * 1000),
		}
		records[i].Key[0] = byte(i)
		records[i].Key[15] = byte(i * 3)
	}
	return records
}

func collectRecords(tb testing.TB, idx *ArchiveIndex) []IndexRecord {
	tb.Helper()
	var out []IndexRecord
	for rec, err := range idx.Records() {
		require.NoError(tb, err)
		out = append(out, rec)
	}
	return out
}

func TestParseIndex(t *testing.T) {
	t.Parallel()

	t.Run("short blob", func(t *testing.T) {
		t.Parallel()
		_, err := ParseIndex("a", make([]byte, footerSize-1))
		assert.ErrorIs(t, err, ErrMalformedIndex)
	})

	t.Run("empty blob", func(t *testing.T) {
		t.Parallel()
		_, err := ParseIndex("a", nil)
		assert.ErrorIs(t, err, ErrMalformedIndex)
	})

	t.Run("zero block size", func(t *testing.T) {
		t.Parallel()
		_, err := ParseIndex("a", buildFooter(0, 0))
		assert.ErrorIs(t, err, ErrMalformedIndex)
	})

	t.Run("footer fields", func(t *testing.T) {
		t.Parallel()
		idx, err := ParseIndex("deadbeef", buildIndexBlob(t, testRecords(3), 4))
		require.NoError(t, err)

		f := idx.Footer()
		assert.Equal(t, uint8(1), f.Version)
		assert.Equal(t, uint8(4), f.BlockSizeKB)
		assert.Equal(t, uint8(4), f.OffsetSize)
		assert.Equal(t, uint8(4), f.SizeSize)
		assert.Equal(t, uint8(16), f.KeySize)
		assert.Equal(t, uint8(8), f.ChecksumSize)
		assert.Equal(t, uint32(3), f.NumItems)
		assert.Equal(t, "deadbeef", idx.Key())
		assert.Equal(t, 3, idx.Len())
	})
}

func TestRecordsRoundTrip(t *testing.T) {
	t.Parallel()

	want := testRecords(10)
	idx, err := ParseIndex("a", buildIndexBlob(t, want, 4))
	require.NoError(t, err)

	got := collectRecords(t, idx)
	assert.Equal(t, want, got)
}

func TestRecordsBlockSkip(t *testing.T) {
	t.Parallel()

	// With 1KB blocks and 24-byte records, 42 records fit per block
	// (42*24 = 1008). Record 43 must start at offset 1024, not 1008.
	want := testRecords(50)
	blob := buildIndexBlob(t, want, 1)

	idx, err := ParseIndex("a", blob)
	require.NoError(t, err)

	got := collectRecords(t, idx)
	require.Len(t, got, 50)
	assert.Equal(t, want, got)

	// The 43rd record's key bytes sit at the block boundary.
	var atBoundary IndexRecord
	copy(atBoundary.Key[:], blob[1024:1024+KeySize])
	assert.Equal(t, want[42].Key, atBoundary.Key)
}

func TestRecordsNoBlockCrossing(t *testing.T) {
	t.Parallel()

	// Derived property of the skip logic: every record's byte range lies
	// within one 1024-byte block.
	records := testRecords(100)
	idx, err := ParseIndex("a", buildIndexBlob(t, records, 1))
	require.NoError(t, err)

	blockSize := 1024
	left := blockSize
	pos := 0
	for range idx.Records() {
		if recordSize > left {
			pos += left
			left = blockSize
		}
		left -= recordSize
		assert.Equal(t, pos/blockSize, (pos+recordSize-1)/blockSize, "record at %d crosses block boundary", pos)
		pos += recordSize
	}
}

func TestRecordsTruncated(t *testing.T) {
	t.Parallel()

	// Footer claims more records than the blob holds.
	blob := buildIndexBlob(t, testRecords(2), 4)
	binary.LittleEndian.PutUint32(blob[len(blob)-12:len(blob)-8], 1000)

	idx, err := ParseIndex("a", blob)
	require.NoError(t, err)

	var got []IndexRecord
	var gotErr error
	for rec, err := range idx.Records() {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, rec)
	}
	assert.ErrorIs(t, gotErr, ErrMalformedIndex)
	// No partial record: everything yielded before the error is complete.
	for _, rec := range got {
		assert.NotEqual(t, IndexRecord{}, rec)
	}
}

func TestRecordsRestartable(t *testing.T) {
	t.Parallel()

	idx, err := ParseIndex("a", buildIndexBlob(t, testRecords(5), 4))
	require.NoError(t, err)

	first := collectRecords(t, idx)
	second := collectRecords(t, idx)
	assert.Equal(t, first, second)
}
