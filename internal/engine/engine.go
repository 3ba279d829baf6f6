// Package engine defines the storage engine contract and a reference
// in-memory implementation used as a test oracle.
package engine

// Engine is the minimal key-value storage contract. Implementations must be
// safe for concurrent use.
type Engine interface {
	// Put stores a value for key, overwriting any previous value.
	Put(key, value []byte) error

	// Get returns the value for key. Absent or deleted keys yield the
	// implementation's not-found error.
	Get(key []byte) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// Close releases all resources held by the engine.
	Close() error
}
