// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package boundary implements Edge TTS's word-boundary timing compensation
// and the forward-only character-position resolution described in
// spec.md §4.6: raw tick offsets are padding-compensated, and the reported
// word is located in the original text from a monotone cursor so that
// boundaries never retroactively re-order.
package boundary

import "unicode"

// paddingTicks is the ~875ms of padding Edge TTS inserts before audio
// playback begins; offsets are reported relative to it.
const paddingTicks = 8_750_000

const ticksPerMillisecond = 10_000

// Compensate subtracts the service's padding offset from a raw tick
// offset, clamped at zero.
func Compensate(rawOffsetTicks int64) int64 {
	c := rawOffsetTicks - paddingTicks
	if c < 0 {
		return 0
	}
	return c
}

// TicksToMs converts a tick count (100-ns units) to milliseconds.
func TicksToMs(ticks int64) int64 {
	return ticks / ticksPerMillisecond
}

// Resolver maps server-reported word boundaries back onto character spans
// in the original user text, one Resolver per Session.
type Resolver struct {
	original []rune
	cursor   int
}

// NewResolver creates a Resolver over the original synthesis text, with the
// cursor starting at position 0.
func NewResolver(original string) *Resolver {
	return &Resolver{original: []rune(original)}
}

// Resolve locates word (the server's reported pronounced text) in the
// original text starting from the current cursor, advances the cursor past
// the match, and returns the resulting {charIndex, charLength}. It never
// fails: if no match is found by either search strategy, it falls back to
// the current cursor position.
func (r *Resolver) Resolve(word string, reportedLength int) (charIndex, charLength int) {
	needle := []rune(word)
	n := len(r.original)

	start := r.cursor
	if start > n {
		start = n
	}

	if idx := indexCaseInsensitive(r.original[start:], needle); idx >= 0 {
		charIndex = start + idx
	} else if idx := indexPunctuationInsensitive(r.original[start:], needle); idx >= 0 {
		charIndex = start + idx
	} else {
		charIndex = r.cursor
	}

	charLength = reportedLength
	if charIndex+charLength > n {
		charLength = n - charIndex
	}
	if charLength < 0 {
		charLength = 0
	}

	r.cursor = charIndex + charLength
	return charIndex, charLength
}

func indexCaseInsensitive(haystack, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
	if len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i <= len(haystack)-len(needle); i++ {
		match := true
		for j := range needle {
			if unicode.ToLower(haystack[i+j]) != unicode.ToLower(needle[j]) {
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

func indexPunctuationInsensitive(haystack, needle []rune) int {
	strippedNeedle := stripNonAlnum(needle)
	if len(strippedNeedle) == 0 {
		return -1
	}
	if len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i <= len(haystack)-len(needle); i++ {
		window := stripNonAlnum(haystack[i : i+len(needle)])
		if runesEqual(window, strippedNeedle) {
			return i
		}
	}
	return -1
}

func stripNonAlnum(rs []rune) []rune {
	out := make([]rune, 0, len(rs))
	for _, r := range rs {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			out = append(out, unicode.ToLower(r))
		}
	}
	return out
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
