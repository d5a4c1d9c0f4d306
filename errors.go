package casc

import "errors"

// Sentinel errors for index parsing and archive access.
var (
	// ErrMalformedIndex is returned when an index blob's footer or record
	// table cannot be parsed.
	ErrMalformedIndex = errors.New("casc: malformed index")

	// ErrShortRead is returned when an archive's backing source holds fewer
	// bytes than a requested range.
	ErrShortRead = errors.New("casc: short read")

	// ErrArchiveOutOfRange is returned when an archive id does not index the
	// group's archive list. It indicates an inconsistency between a merged
	// index and the group it was built from.
	ErrArchiveOutOfRange = errors.New("casc: archive id out of range")

	// ErrBadKey is returned when a content key string is not 32 hex characters.
	ErrBadKey = errors.New("casc: bad content key")
)
