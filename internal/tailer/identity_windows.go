//go:build windows

package tailer

import (
	"os"
	"syscall"
)

func fileID(path string, fi os.FileInfo, sigBytes int) (FileID, error) {
	return signatureID(path, fi, sigBytes)
}

func creationTime(fi os.FileInfo) int64 {
	if d, ok := fi.Sys().(*syscall.Win32FileAttributeData); ok {
		return d.CreationTime.Nanoseconds()
	}
	return 0
}
