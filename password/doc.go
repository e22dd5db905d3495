// Package password hashes and verifies principal passwords.
//
// New hashes are Argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Hashes imported from older deployments in bcrypt format ($2a$, $2b$, $2y$)
// still verify, and [Hasher.NeedsUpgrade] reports them so the caller can
// rehash after the next successful login.
//
// This package owns hashing only. It never stores passwords and never logs
// plaintext or hash material.
package password
