// Package core provides the vaultkey database operations.
//
// A Database is opened from a BBolt file whose public header describes the
// cipher, the KDF and which key components make up the master key. The
// master key is derived as
//
//	raw   = composite key (password, key file, challenge-response)
//	final = SHA-256(master seed || KDF(raw))
//
// Core operations include:
//   - Create: write a new database for a composite key and KDF
//   - Open/Unlock: read the header, then verify the key and decrypt the body
//   - SetKey: re-seal everything under a new composite key
//   - ChangeKdf: re-seal everything under a new KDF configuration
//   - SetCipher/SetMetadata: change the body cipher or general settings
//   - Status: describe the database without the master key
//
// Every re-seal writes the new header and ciphertext in one transaction;
// on failure the previous key, KDF and cipher stay in effect.
package core
