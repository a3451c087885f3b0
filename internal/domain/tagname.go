package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeTagName trims, lower-cases and collapses inner whitespace.
// It returns ErrInvalidTag for empty names and names longer than MaxTagLength.
func NormalizeTagName(name string) (string, error) {
	normalized := strings.ToLower(strings.Join(strings.Fields(name), " "))
	normalized = strings.TrimFunc(normalized, func(r rune) bool {
		return unicode.IsPunct(r) && r != '-' && r != '_'
	})
	if normalized == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidTag)
	}
	if utf8.RuneCountInString(normalized) > MaxTagLength {
		return "", fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidTag, normalized, MaxTagLength)
	}
	return normalized, nil
}

// ParseTagList splits user input on spaces and commas into unique, normalized names.
// Invalid entries are dropped.
func ParseTagList(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	return UniqueTagNames(fields)
}

// UniqueTagNames normalizes names and removes duplicates, keeping first occurrence order.
func UniqueTagNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		normalized, err := NormalizeTagName(n)
		if err != nil {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
