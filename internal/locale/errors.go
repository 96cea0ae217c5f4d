package locale

import "errors"

// Domain errors for the locale package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, locale.ErrCacheMissing) {
//	    // no cache file yet
//	}
var (
	// ErrCacheMissing is returned when the persisted cache does not exist.
	ErrCacheMissing = errors.New("locale: cache not found")

	// ErrCacheMalformed is returned when the persisted cache cannot be parsed
	// or does not contain a locale_list.
	ErrCacheMalformed = errors.New("locale: cache malformed")

	// ErrAlreadyLoaded is returned when Load is called on a store that has
	// already been seeded.
	ErrAlreadyLoaded = errors.New("locale: store already loaded")

	// ErrNotLoaded is returned when persisting a store that was never loaded.
	ErrNotLoaded = errors.New("locale: store not loaded")

	// ErrNoStorage is returned when the store has no storage collaborator.
	ErrNoStorage = errors.New("locale: no storage configured")

	// ErrInvalidName is returned when a history query has an empty name.
	ErrInvalidName = errors.New("locale: invalid name")
)
