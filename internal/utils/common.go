package utils

import (
	"os"
	"strings"
)

// RemoveControlCharacters drops control characters but keeps tab, newline and carriage return.
func RemoveControlCharacters(text string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, text)
}

// FileSize returns the size of path, or -1 when it cannot be stat'ed or is a directory.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return -1
	}
	return info.Size()
}
