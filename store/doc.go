// Package store defines the persistence capability authcore needs: principals,
// their single pending MFA challenge and the append-only revocation log, all
// accessed inside a caller-controlled transaction.
//
// Implementations live in sub-packages: [github.com/MrEthical07/authcore/store/postgres]
// for production and [github.com/MrEthical07/authcore/store/memory] for tests and
// local runs.
package store
