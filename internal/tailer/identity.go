// internal/tailer/identity.go
package tailer

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// DefaultSignatureBytes is how much of a file's head feeds its signature.
const DefaultSignatureBytes = 32

// ErrFileTooSmall is returned when identity needs a signature the file is
// not yet large enough to provide.
var ErrFileTooSmall = errors.New("file too small to compute signature")

// FileID identifies the physical file behind a path. On unix Dev and Ino are
// set; elsewhere CTime and Signature stand in for them.
type FileID struct {
	Dev       uint64
	Ino       uint64
	CTime     int64
	Signature string
}

func (id FileID) String() string {
	if id.Ino != 0 {
		return fmt.Sprintf("%xg%x", id.Dev, id.Ino)
	}
	return fmt.Sprintf("%d_%s", id.CTime, id.Signature)
}

// Signature returns the CRC-32 of the first n bytes of path, and whether the
// file held at least n bytes.
func Signature(path string, n int) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", false, fmt.Errorf("reading signature: %w", err)
	}
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(buf[:read])), read == n, nil
}

// signatureID identifies a file by creation time and head signature, for
// platforms without stable inode numbers.
func signatureID(path string, fi os.FileInfo, sigBytes int) (FileID, error) {
	if fi.Size() < int64(sigBytes) {
		return FileID{}, ErrFileTooSmall
	}
	sig, _, err := Signature(path, sigBytes)
	if err != nil {
		return FileID{}, err
	}
	return FileID{CTime: creationTime(fi), Signature: sig}, nil
}
