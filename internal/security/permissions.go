// internal/security/permissions.go
package security

import (
	"fmt"
	"os"
)

// ValidateDirectoryPermissions checks that a data directory has safe
// permissions. Returns an error if the directory is world-writable or has
// other unsafe permissions.
func ValidateDirectoryPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking directory permissions: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	mode := info.Mode().Perm()
	if mode&0002 != 0 {
		return fmt.Errorf("directory %s is world-writable (mode %04o), expected 0700 or 0750", path, mode)
	}
	if mode&0077 > 0050 {
		return fmt.Errorf("directory %s has overly permissive mode %04o, expected 0700 or 0750", path, mode)
	}

	return nil
}

// ValidateSecretFile checks a file that may hold webhook credentials. It
// must not be writable or readable by others.
func ValidateSecretFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("checking file permissions: %w", err)
	}

	mode := info.Mode().Perm()
	if mode&0002 != 0 {
		return fmt.Errorf("file %s is world-writable (mode %04o)", path, mode)
	}
	if mode&0004 != 0 {
		return fmt.Errorf("file %s is world-readable (mode %04o) and may contain webhook credentials", path, mode)
	}

	return nil
}
