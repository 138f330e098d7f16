// Package identity manages the durable device identity of the VM agent:
// the (device ID, API key) pair that survives re-registration and
// certificate rotation.
//
// Both values are generated lazily on first use and persisted through a
// secret backend. Once present they are reused verbatim on every restart
// and never silently regenerated; only an explicit uninstall removes them.
//
// Generation is guarded by a process-wide lock so concurrent first-use
// cannot race two different values onto disk. API key verification uses a
// constant-time comparison and never returns an error: a missing key simply
// fails verification.
package identity
