// Package transcript turns raw transcript text into sentences and chunks.
package transcript

import (
	"iter"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// MinSentenceLength is the shortest body, in characters, a fragment needs to count as a sentence.
const MinSentenceLength = 11

// reFragment matches a run of non-terminators followed by an optional run of terminators.
var reFragment = regexp.MustCompile(`[^.!?]+[.!?]*`)

// Segment yields the sentences of text in order. The sequence is lazy and can be
// ranged over any number of times; each pass restarts from the beginning.
func Segment(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		rest := text
		for len(rest) > 0 {
			loc := reFragment.FindStringIndex(rest)
			if loc == nil {
				return
			}
			fragment := rest[loc[0]:loc[1]]
			rest = rest[loc[1]:]

			sentence, ok := normalizeFragment(fragment)
			if !ok {
				continue
			}
			if !yield(sentence) {
				return
			}
		}
	}
}

// Sentences collects Segment(text) into a slice.
func Sentences(text string) []string {
	return slices.Collect(Segment(text))
}

func normalizeFragment(fragment string) (string, bool) {
	trimmed := strings.TrimSpace(fragment)
	body := strings.TrimSpace(strings.TrimRight(trimmed, ".!?"))
	if utf8.RuneCountInString(body) < MinSentenceLength {
		return "", false
	}
	if !strings.ContainsAny(trimmed[len(trimmed)-1:], ".!?") {
		trimmed += "."
	}
	return trimmed, true
}
