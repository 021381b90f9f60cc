//go:build !unix && !windows

package tailer

import "os"

func fileID(path string, fi os.FileInfo, sigBytes int) (FileID, error) {
	return signatureID(path, fi, sigBytes)
}

func creationTime(fi os.FileInfo) int64 { return 0 }
