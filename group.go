package casc

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
)

// GroupRecord is an index record annotated with the zero-based position
// of its originating archive in the group's archive list.
type GroupRecord struct {
	Key       Key
	Size      uint32
	ArchiveID int
	Offset    uint32
}

// GroupIndex merges the indices of many archives into one globally
// sorted sequence plus a set of all content keys present.
//
// Items is sorted ascending by (key, size, archive id, offset). Duplicate
// keys contributed by different archives are retained in Items; only the
// key set deduplicates.
type GroupIndex struct {
	key   string
	Items []GroupRecord
	keys  map[Key]struct{}
}

// MergeIndices builds a GroupIndex from per-archive indices, in archive
// order. Individual archive indices are not assumed to be pre-sorted, so
// this is a sort over the concatenation rather than a k-way merge; memory
// cost is proportional to the total record count.
//
// Any record-stream error aborts the merge with no partial result.
func MergeIndices(key string, indices []*ArchiveIndex) (*GroupIndex, error) {
	gi := &GroupIndex{
		key:  key,
		keys: make(map[Key]struct{}),
	}
	for id, idx := range indices {
		for rec, err := range idx.Records() {
			if err != nil {
				return nil, fmt.Errorf("archive %s: %w", idx.Key(), err)
			}
			gi.Items = append(gi.Items, GroupRecord{
				Key:       rec.Key,
				Size:      rec.Size,
				ArchiveID: id,
				Offset:    rec.Offset,
			})
			gi.keys[rec.Key] = struct{}{}
		}
	}
	slices.SortFunc(gi.Items, compareGroupRecords)
	return gi, nil
}

func compareGroupRecords(a, b GroupRecord) int {
	if c := bytes.Compare(a.Key[:], b.Key[:]); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Size, b.Size); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ArchiveID, b.ArchiveID); c != 0 {
		return c
	}
	return cmp.Compare(a.Offset, b.Offset)
}

// Key returns the group key this index was built for.
func (gi *GroupIndex) Key() string {
	return gi.key
}

// Len returns the number of merged records, duplicates included.
func (gi *GroupIndex) Len() int {
	return len(gi.Items)
}

// Contains reports whether any archive in the group holds content for
// the given key. Lookup is O(1) regardless of archive count.
func (gi *GroupIndex) Contains(k Key) bool {
	_, ok := gi.keys[k]
	return ok
}

// Keys returns an iterator over the distinct content keys, in no
// particular order.
func (gi *GroupIndex) Keys() iter.Seq[Key] {
	return func(yield func(Key) bool) {
		for k := range gi.keys {
			if !yield(k) {
				return
			}
		}
	}
}

// ArchiveGroup owns a fixed, ordered list of archives and resolves
// content keys to files across all of them.
type ArchiveGroup struct {
	key         string
	archiveKeys []string
	cdn         CDN
	verify      bool
	archives    []*Archive
}

// GroupOption configures an ArchiveGroup.
type GroupOption func(*ArchiveGroup)

// WithVerify enables checksum verification when fetching index blobs and
// when decoding files during enumeration.
func WithVerify(verify bool) GroupOption {
	return func(g *ArchiveGroup) {
		g.verify = verify
	}
}

// NewArchiveGroup creates a group over the given archive keys, in order.
// Archive ids used by GroupRecord and File are positions in that list.
func NewArchiveGroup(key string, archiveKeys []string, cdn CDN, opts ...GroupOption) *ArchiveGroup {
	g := &ArchiveGroup{
		key:         key,
		archiveKeys: archiveKeys,
		cdn:         cdn,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.archives = make([]*Archive, len(archiveKeys))
	for i, archiveKey := range archiveKeys {
		g.archives[i] = NewArchive(archiveKey, cdn)
	}
	return g
}

// Key returns the group key.
func (g *ArchiveGroup) Key() string {
	return g.key
}

// Len returns the number of archives in the group.
func (g *ArchiveGroup) Len() int {
	return len(g.archives)
}

// MergedIndex fetches every archive's index blob, parses it, and merges
// the results. The index is recomputed on every call; callers needing a
// stable view should hold on to the returned GroupIndex.
func (g *ArchiveGroup) MergedIndex(ctx context.Context) (*GroupIndex, error) {
	indices := make([]*ArchiveIndex, 0, len(g.archiveKeys))
	for _, archiveKey := range g.archiveKeys {
		idx, err := g.cdn.DataIndex(ctx, archiveKey, g.verify)
		if err != nil {
			return nil, fmt.Errorf("index for archive %s: %w", archiveKey, err)
		}
		indices = append(indices, idx)
	}
	return MergeIndices(g.key, indices)
}

// File extracts and decodes one file from the archive identified by
// archiveID. ErrArchiveOutOfRange is returned when the id does not index
// the group's archive list.
func (g *ArchiveGroup) File(ctx context.Context, key Key, size uint32, archiveID int, offset uint32, verify bool) ([]byte, error) {
	if archiveID < 0 || archiveID >= len(g.archives) {
		return nil, fmt.Errorf("%w: %d of %d archives", ErrArchiveOutOfRange, archiveID, len(g.archives))
	}
	return g.archives[archiveID].File(ctx, key, size, offset, verify)
}

// Files returns an iterator over every decoded file in the group, in
// merged-index order. The merged index is recomputed per invocation, so
// the sequence is restartable from the start.
func (g *ArchiveGroup) Files(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		merged, err := g.MergedIndex(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, rec := range merged.Items {
			data, err := g.File(ctx, rec.Key, rec.Size, rec.ArchiveID, rec.Offset, g.verify)
			if !yield(data, err) {
				return
			}
		}
	}
}

// Close releases every archive's backing source.
func (g *ArchiveGroup) Close() error {
	var errs []error
	for _, a := range g.archives {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
