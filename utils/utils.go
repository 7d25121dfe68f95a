// Package utils provides utility functions.
package utils

import (
	"os"
	"strings"
	"unicode"

	"github.com/mitchellh/go-homedir"
)

// ExpandPath expands tilde and all environment variables from the given path.
func ExpandPath(path string) string {
	s, err := homedir.Expand(path)
	if err == nil {
		return os.ExpandEnv(s)
	}
	return os.ExpandEnv(path)
}

// Words splits a line of dialogue into the words a learner can look up.
// Inner apostrophes and hyphens stay part of the word.
func Words(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\'' && r != '’' && r != '-'
	})

	words := fields[:0]
	for _, f := range fields {
		if w := strings.Trim(f, "'’-"); w != "" {
			words = append(words, w)
		}
	}
	return words
}
