// Package partition derives bounded-fan-out sub-paths from hex digests.
package partition

import "path"

// Hash maps a hex digest to a nested sub-path: the first two characters,
// then the next two, then the full digest. This bounds directory fan-out
// the same way the CDN lays out its own blob tree.
//
// Digests shorter than four characters are returned unchanged.
func Hash(digest string) string {
	if len(digest) < 4 {
		return digest
	}
	return path.Join(digest[0:2], digest[2:4], digest)
}
