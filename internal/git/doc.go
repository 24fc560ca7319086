// Package git provides git integration status checks for vaultkey.
//
// Checks performed:
//   - Whether the database file is tracked by git (may be, it is encrypted)
//   - Whether key files are tracked by git (should not be)
//   - Whether key files are in .gitignore (should be)
//
// A key file committed next to the database it unlocks turns a two-factor
// key into a single factor for anyone with repository access.
package git
