package controlplane

import "errors"

var (
	// ErrProviderUnavailable indicates the provider could not be reached or used.
	ErrProviderUnavailable = errors.New("callscope: config provider unavailable")
	// ErrInvalidConfig indicates a snapshot failed validation or normalization.
	// The store keeps serving the previous snapshot.
	ErrInvalidConfig = errors.New("callscope: invalid config")
)
