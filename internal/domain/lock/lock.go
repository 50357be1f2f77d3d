package lock

// Keyed hands out exclusive locks scoped to an entity id. The in-memory
// implementation keeps one mutex per live key; a storage-native
// implementation would map this to row locks. Callers that take multiple keys
// must acquire them in ascending key order.
type Keyed interface {
	// Lock blocks until the key's lock is held and returns its release func.
	Lock(key string) (release func())
}
