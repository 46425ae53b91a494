// Package identity holds the user/credential model and the Store service
// that hashes and persists credentials through a Repository.
//
// A User owns any number of Identities. Each Identity is keyed by its Type
// and a public Secret (an email, a token selector) and carries a hashed
// Secret2. MemoryRepository backs tests and development; pgstore provides
// the PostgreSQL implementation.
package identity
