package hearth

import (
	"errors"

	"goflare.io/hearth/internal/fetch"
	"goflare.io/hearth/internal/store"
)

// StoreError is a persistent-store I/O failure. Fatal to the operation that
// hit it and never retried by this layer.
type StoreError = store.Error

// FetchError is an upstream failure that exhausted its retry budget. It is
// recoverable through the stale fallback when a usable value exists.
type FetchError = fetch.Error

// IsFetchError reports whether err is an exhausted upstream fetch.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsStoreError reports whether err is a persistent-store failure.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
