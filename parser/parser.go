// Package parser holds the pure string codecs shared by the record model,
// the snapshot reader and the storage layer.
package parser

import (
	"strings"
)

const chapterMarker = "chapter"

// CommaSubstitute replaces ASCII commas in persisted text fields.
const CommaSubstitute = "、"

// TagSeparator joins tags into a single column value.
const TagSeparator = "; "

// NoChapter is the chapter value of a URL without a chapter marker.
const NoChapter = "0"

// NormalizeURL splits a bookmark URL into the series base URL and the chapter
// number it points at. The marker search is case-insensitive and has no word
// boundary check, so any URL containing "chapter" is split at its first
// occurrence. URLs without the marker come back unchanged with chapter "0".
//
//	https://x.tld/t-chapter-10/  -> https://x.tld/t/, 10
//	https://x.tld/t-chapter-10-1 -> https://x.tld/t,  10.1
func NormalizeURL(url string) (base string, chapter string) {
	// idx must index url itself, not a lowercased copy.
	idx := indexFold(url, chapterMarker)
	if idx < 0 {
		return url, NoChapter
	}

	chapter = strings.ToLower(url[idx+len(chapterMarker):])
	chapter = strings.TrimPrefix(chapter, "-")
	chapter = strings.TrimSuffix(chapter, "/")
	chapter = strings.ReplaceAll(chapter, "-", ".")
	if chapter == "" {
		chapter = NoChapter
	}

	base = url[:idx]
	base = strings.TrimSuffix(base, "-")
	if strings.HasSuffix(url, "/") {
		base += "/"
	}
	return base, chapter
}

// indexFold returns the byte index of the first ASCII case-insensitive match
// of the lowercase needle in s, or -1.
func indexFold(s, needle string) int {
	n := len(needle)
	for i := 0; i+n <= len(s); i++ {
		match := true
		for j := 0; j < n; j++ {
			c := s[i+j]
			if 'A' <= c && c <= 'Z' {
				c += 'a' - 'A'
			}
			if c != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Sanitize trims surrounding whitespace and replaces every ASCII comma with
// CommaSubstitute. The substitution is one way.
func Sanitize(text string) string {
	return strings.ReplaceAll(strings.TrimSpace(text), ",", CommaSubstitute)
}

// SplitTags decodes a tag column. Empty tokens are dropped.
func SplitTags(column string) []string {
	if strings.TrimSpace(column) == "" {
		return nil
	}
	parts := strings.Split(column, ";")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		tag := Sanitize(part)
		if tag == "" {
			continue
		}
		tags = append(tags, tag)
	}
	return tags
}

// JoinTags encodes tags into a single column value.
func JoinTags(tags []string) string {
	return strings.Join(tags, TagSeparator)
}
