// Package handshake implements the credential handshake that bootstraps
// browser-backed client sessions.
//
// Passwords never travel in the clear and never rest anywhere: a handshake
// issues a fresh RSA-2048 public key and a nonce, the caller encrypts
// {password, nonce} against that key, and the service decrypts it just long
// enough to drive a headless login. The decrypted password lives only on
// the owning instance's stack during the login.
//
// # Handshake Lifecycle
//
// CREATED -> CONSUMED (terminal) or CREATED -> EXPIRED (terminal, by TTL).
//
// A handshake is single use. StartSession deletes the record before
// judging the attempt, so a failed attempt burns the token too and a
// replayed ciphertext finds nothing to replay against.
//
// The nonce binds the ciphertext to one handshake: a payload encrypted for
// handshake A presented with handshake B's token fails the nonce check
// even if the RSA decryption itself succeeds.
//
// # Cross-Instance Starts
//
// The private key exists only in the creating instance's memory. When a
// start attempt lands elsewhere, that instance parks the attempt in Redis,
// wakes the owner over the owner's pub/sub channel, and polls a result
// key. Wakes are re-published on every poll, so a lost message costs one
// poll interval rather than the whole wait, which stays hard-bounded by
// RemoteWaitTimeout.
//
// # Sessions
//
// A successful start records a session owning one browser handle. Sessions
// end through EndSession (owner's api key only, idempotent), the idle
// reaper, or service shutdown.
package handshake
