package pipeline

import (
	"strings"
	"unicode"
)

const (
	DefaultNameMaxLength = 20
	untitledStem         = "untitled"
)

// Stem keeps the ASCII letters and digits of prompt, cut to maxLen runes.
// Distinct prompts may share a stem; their files overwrite each other.
func Stem(prompt string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultNameMaxLength
	}
	var b strings.Builder
	n := 0
	for _, r := range prompt {
		if n >= maxLen {
			break
		}
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		b.WriteRune(r)
		n++
	}
	if b.Len() == 0 {
		return untitledStem
	}
	return b.String()
}

// FileName prefixes the stem with the artifact kind.
func FileName(kind ArtifactKind, stem, ext string) string {
	return string(kind) + "_" + stem + ext
}
