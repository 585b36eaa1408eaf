package page

// PageInFlags is the flag set a caller passes into PageIn (spec.md §4.2).
type PageInFlags uint8

const (
	// CacheOnly fails with NotFound rather than issuing I/O or waiting.
	CacheOnly PageInFlags = 1 << iota
	// NoWait fails with NotFound rather than backing off on READING/LOCKED.
	NoWait
	// NoGen suppresses the read-generation bump on a successful page-in.
	NoGen
	// NoEvict disables C3's forced-eviction check for this call.
	NoEvict
	// WontNeed hints that the caller does not expect to revisit this page,
	// steering it toward early eviction once its generation is unset.
	WontNeed
)
