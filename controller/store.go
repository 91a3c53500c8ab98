package controller

// Store is the persistence backend contract. A namespace is a bucket; a
// key is a record id within that namespace. Two access styles are
// offered: JSON-convenience CRUD with store-allocated ids, and raw byte
// access under caller-chosen keys. Every subsystem in this repository
// uses the raw byte access, storing its records (calibration,
// schedules, Wi-Fi credentials, reservoirs, and the dosing log's
// compact "h<offset>_<head>" keys) as JSON it encodes itself.
type Store interface {
	// CreateBucket ensures a namespace exists. Idempotent.
	CreateBucket(namespace string) error

	// Create invokes fn with a freshly allocated id and persists the
	// returned value as JSON under that id.
	Create(namespace string, fn func(id string) interface{}) error

	// Update replaces the JSON value stored at id. Returns an error if
	// the key does not already exist — callers that want
	// create-or-update call Create on failure.
	Update(namespace, id string, v interface{}) error

	// Get unmarshals the JSON value stored at id into v.
	Get(namespace, id string, v interface{}) error

	// List invokes fn for every (id, rawJSON) pair in the namespace.
	List(namespace string, fn func(id string, raw []byte) error) error

	// Delete removes a key. Not an error if the key is absent.
	Delete(namespace, id string) error

	// PutBytes writes a raw blob under key, namespace-scoped.
	PutBytes(namespace, key string, blob []byte) error

	// GetBytes reads a raw blob. ok is false if the key is absent.
	GetBytes(namespace, key string) (blob []byte, ok bool, err error)

	// Clear removes every key in a namespace.
	Clear(namespace string) error

	// ListKeys returns every key currently present in a namespace.
	ListKeys(namespace string) ([]string, error)
}
