package epubreplace

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package that stems from
// bad input wraps exactly one of these, so callers can branch with
// errors.Is without knowing the specific cause.
var (
	// ErrConfiguration indicates the replacement plan is unusable. It is
	// always reported before any archive I/O takes place.
	ErrConfiguration = errors.New("epubreplace: configuration error")

	// ErrArchive indicates the source package could not be read or the
	// output package could not be assembled.
	ErrArchive = errors.New("epubreplace: archive error")
)

// Sentinel errors returned by the epubreplace package.
var (
	// ErrUnsupportedReplacementShape indicates the search and replacement
	// lists cannot be aligned: lengths differ and the search list is not a
	// single token to broadcast.
	ErrUnsupportedReplacementShape = fmt.Errorf("epubreplace: unsupported replacement shape: %w", ErrConfiguration)

	// ErrEmptySearchToken indicates a search token is the empty string.
	ErrEmptySearchToken = fmt.Errorf("epubreplace: empty search token: %w", ErrConfiguration)

	// ErrEmptyPlan indicates no replacement pairs were supplied.
	ErrEmptyPlan = fmt.Errorf("epubreplace: empty replacement plan: %w", ErrConfiguration)

	// ErrInvalidMode indicates an unknown matching mode name.
	ErrInvalidMode = fmt.Errorf("epubreplace: invalid matching mode: %w", ErrConfiguration)

	// ErrArchiveNotFound indicates the source package does not exist.
	ErrArchiveNotFound = fmt.Errorf("epubreplace: archive not found: %w", ErrArchive)

	// ErrArchiveCorrupt indicates the source is not a readable zip container
	// or contains entries that cannot be extracted safely.
	ErrArchiveCorrupt = fmt.Errorf("epubreplace: archive corrupt: %w", ErrArchive)

	// ErrMissingMimetype indicates the package has no "mimetype" entry, so
	// no valid ePub can be written.
	ErrMissingMimetype = fmt.Errorf("epubreplace: missing mimetype entry: %w", ErrArchive)

	// ErrDRMProtected indicates the ePub file is protected by DRM
	// (e.g., Adobe ADEPT, Apple FairPlay, Readium LCP). Encrypted content
	// cannot be rewritten.
	ErrDRMProtected = errors.New("epubreplace: file is DRM protected")

	// ErrInvalidEPub indicates the package structure could not be resolved
	// (e.g., container.xml lists no rootfile).
	ErrInvalidEPub = errors.New("epubreplace: invalid ePub file")
)
