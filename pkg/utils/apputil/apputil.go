// Package apputil has a few helpers for files and directories used during
// application startup.
package apputil

import (
	"os"
	"path/filepath"

	"nwclink.dev/pkg/utils/chk"
)

// FileExists reports whether the path exists and is a regular file.
func FileExists(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}

// EnsureDir creates the parent directory of a file path if it does not exist.
func EnsureDir(path string) (err error) {
	dir := filepath.Dir(path)
	if _, err = os.Stat(dir); err == nil {
		return nil
	}
	if err = os.MkdirAll(dir, 0o700); chk.E(err) {
		return
	}
	return
}
