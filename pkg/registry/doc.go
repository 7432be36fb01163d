// Package registry is the authoritative table of paired devices.
//
// Each device is identified by its 16-byte UUID and owns a dynamic address in
// [2, 253] that never changes once granted. The registry also keeps the
// device public key, the derived shared secret and the IV bookkeeping used by
// the assembler to pick a cipher IV for self-contained messages.
//
// Records are held in a fixed arena indexed by address plus a UUID index.
// Every mutation is persisted through a Storage before it becomes visible, so
// a failed write leaves the in-memory table unchanged. Callers always receive
// clones.
//
// Shared secrets are never persisted. They are recomputed from the stored
// public key with a SecretDeriver when the table is loaded.
package registry
