// Package storage provides the BBolt database file for vaultkey.
//
// Database structure uses two buckets:
//   - config: the public header (format version, timestamps, cipher and
//     KDF parameters, master seed, key component list, vault id)
//   - private: the key check value and the encrypted body
//
// The public header lets vaultkey status work without the master key.
// Everything sealed with the master key is written together with the
// header it depends on in a single transaction, so a failed write never
// leaves a header that does not match the stored ciphertext.
//
// BBolt provides ACID transactions, file locking, and corruption detection.
package storage
