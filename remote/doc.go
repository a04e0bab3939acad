// Package remote implements the signed REST client for the remote blob
// store.
//
// The client covers exactly the surface the directory core needs: blob
// get/put/head/delete, container create and listing, lease sub-operations,
// and metadata updates. Every request carries a shared-key signature over
// the canonicalized method, content length, headers, and resource
// (see signing.go); a client configured with EmulatorKey sends unsigned
// requests to a local emulator.
//
// Calls are blocking round-trips and are never retried here. Retry policy,
// where it exists at all, lives with the caller (lease acquisition).
package remote
