package cmd

import (
	"fmt"
)

// Compact rewrites the database file to drop pages freed by key and KDF
// changes. The master key is not needed.
func Compact(path string) {
	db := OpenDatabase(path)
	defer db.Close()

	before, err := db.Status()
	if err != nil {
		HandleError(err)
	}

	if err := db.Compact(); err != nil {
		HandleError(err)
	}

	after, err := db.Status()
	if err != nil {
		HandleError(err)
	}

	logger.Debug("compact finished", "path", path, "before", before.Size, "after", after.Size)
	fmt.Printf("Compacted %s: %s -> %s\n", path, formatSize(before.Size), formatSize(after.Size))
}
