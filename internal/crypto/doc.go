// Package crypto provides the cryptographic primitives behind a vaultkey
// database.
//
// Key derivation is pluggable through the Kdf interface:
//   - Argon2Kdf: Argon2id with tunable rounds, memory (KiB) and parallelism
//   - AesKdf: repeated AES-256 encryption of the composite key, then SHA-256
//
// Both implementations clamp out-of-range parameters in their setters and
// report whether the requested value was accepted unchanged. Benchmark
// calibrates the round count against a wall-clock budget and is CPU bound,
// so callers should run it away from anything interactive.
//
// Payload encryption uses an AEAD selected by cipher UUID:
//   - AES-256-GCM
//   - ChaCha20-Poly1305
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Encryptor.Destroy() when done with encryption operations
package crypto
