// Package password implements secret hashing and verification.
//
// # Output format
//
// Passwords are hashed with argon2id and encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsRehash] reports hashes produced under weaker parameters, and
// legacy bcrypt hashes, so the caller can re-hash on the next successful
// login. [TokenHasher] covers high-entropy token validators where a slow
// hash would only add latency.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets; callers supply plaintext and receive hashes.
//   - Return errors from Verify that separate "bad format" from "wrong secret".
//   - Import any other goShield package.
package password
