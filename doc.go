// Package casc reads Blizzard CASC archive indices and extracts files
// from the archives they describe.
//
// A CDN serves two kinds of blobs per archive: the archive itself (many
// small files concatenated together) and a companion index blob mapping
// each file's content key to a (size, offset) pair inside the archive.
// This package parses those indices, merges any number of them into one
// globally sorted lookup structure, and extracts decoded files by byte
// range.
//
// Parse a single index and walk its records:
//
//	idx, err := casc.ParseIndex(archiveKey, indexBytes)
//	if err != nil {
//	    return err
//	}
//	for rec, err := range idx.Records() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(rec.Key, rec.Size, rec.Offset)
//	}
//
// Work with a whole archive group:
//
//	group := casc.NewArchiveGroup(groupKey, archiveKeys, cdnClient)
//	defer group.Close()
//
//	merged, err := group.MergedIndex(ctx)
//	if err != nil {
//	    return err
//	}
//	if merged.Contains(key) {
//	    data, err := group.File(ctx, key, size, archiveID, offset, false)
//	    ...
//	}
//
// The [github.com/meigma/casc/cdn] subpackage provides the HTTP transport
// and a content-addressed disk cache; [github.com/meigma/casc/blte]
// decodes the BLTE containers the extracted ranges are wrapped in.
package casc
