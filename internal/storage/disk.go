// Package storage reports disk usage of the knowledge base store.
package storage

import "os"

// DirUsageBytes returns the total size in bytes of the files directly inside
// dir. The store directory is flat, so there is nothing to recurse into. A
// missing directory contributes zero bytes.
func DirUsageBytes(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}
