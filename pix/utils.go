package pix

import (
	"errors"
	"os"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
)

// FileExists returns true if something, file or directory, exists at path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsNotExist reports whether err means a path does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
