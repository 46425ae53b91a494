// Package throttle implements login-attempt throttling with exponential
// cool-down over independently tracked keys.
//
// Callers pass one key per dimension (submitted identifier, client origin).
// Check blocks when any key is cooling down; RecordFailure counts against
// all keys; RecordSuccess clears the keys it is given.
//
// # Backends
//
// RedisBackend performs the increment and cool-down computation in a single
// Lua script so concurrent failures are never lost. MemoryBackend serves
// tests and single-process deployments.
package throttle
