//go:build unix

package tailer

import (
	"os"
	"syscall"
)

func fileID(path string, fi os.FileInfo, sigBytes int) (FileID, error) {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return FileID{Dev: uint64(st.Dev), Ino: uint64(st.Ino)}, nil
	}
	return signatureID(path, fi, sigBytes)
}

// creationTime is only consulted when Stat_t is unavailable.
func creationTime(fi os.FileInfo) int64 { return 0 }
