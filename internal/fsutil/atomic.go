package fsutil

import (
	"fmt"
	"os"
)

// AtomicWrite writes data to path via tmp+rename so readers never observe a
// partially written file. The tmp file is removed if the rename fails.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("FS_WRITE_TMP: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
