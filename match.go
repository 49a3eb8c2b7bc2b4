package epubreplace

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// isWordRune reports whether r belongs to a word: letters, numbers,
// combining marks and the underscore.
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.M, r)
}

// boundedAt reports whether s[start:end] is flanked on both sides by a
// non-word rune or the edge of the string.
func boundedAt(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

// nextWordMatch returns the byte offset of the first whole-word occurrence
// of search in s at or after from, or -1.
func nextWordMatch(s, search string, from int) int {
	for from <= len(s)-len(search) {
		j := strings.Index(s[from:], search)
		if j < 0 {
			return -1
		}
		start := from + j
		if boundedAt(s, start, start+len(search)) {
			return start
		}
		// Step one rune so a candidate overlapping this one is still tried.
		_, size := utf8.DecodeRuneInString(s[start:])
		from = start + size
	}
	return -1
}

// replaceWord replaces every whole-word occurrence of search in s with
// repl, scanning left to right without rescanning inserted text.
func replaceWord(s, search, repl string) (string, int) {
	if search == "" {
		return s, 0
	}
	start := nextWordMatch(s, search, 0)
	if start < 0 {
		return s, 0
	}

	var b strings.Builder
	b.Grow(len(s))
	last, n := 0, 0
	for start >= 0 {
		b.WriteString(s[last:start])
		b.WriteString(repl)
		last = start + len(search)
		n++
		start = nextWordMatch(s, search, last)
	}
	b.WriteString(s[last:])
	return b.String(), n
}

// replaceSimultaneous rewrites s in one pass: at each step the earliest
// whole-word match of any pair wins, ties going to the earlier pair.
func replaceSimultaneous(s string, pairs []Pair) (string, int) {
	next := make([]int, len(pairs))
	for i, p := range pairs {
		next[i] = nextWordMatch(s, p.Search, 0)
	}

	var b strings.Builder
	last, n := 0, 0
	for {
		best := -1
		for i, pos := range next {
			if pos < 0 {
				continue
			}
			if best < 0 || pos < next[best] {
				best = i
			}
		}
		if best < 0 {
			break
		}
		if n == 0 {
			b.Grow(len(s))
		}
		start := next[best]
		b.WriteString(s[last:start])
		b.WriteString(pairs[best].Replace)
		last = start + len(pairs[best].Search)
		n++

		for i, pos := range next {
			if pos >= 0 && pos < last {
				next[i] = nextWordMatch(s, pairs[i].Search, last)
			}
		}
	}
	if n == 0 {
		return s, 0
	}
	b.WriteString(s[last:])
	return b.String(), n
}
