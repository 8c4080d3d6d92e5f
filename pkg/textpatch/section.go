package textpatch

import (
	"regexp"
	"strings"
)

// Matcher finds the first occurrence of something in doc at or after from.
type Matcher func(doc string, from int) (start, end int, ok bool)

// Literal matches an exact substring.
func Literal(s string) Matcher {
	return func(doc string, from int) (int, int, bool) {
		if from > len(doc) {
			return 0, 0, false
		}
		idx := strings.Index(doc[from:], s)
		if idx < 0 {
			return 0, 0, false
		}
		return from + idx, from + idx + len(s), true
	}
}

// Pattern matches a regular expression.
func Pattern(re *regexp.Regexp) Matcher {
	return func(doc string, from int) (int, int, bool) {
		if from > len(doc) {
			return 0, 0, false
		}
		loc := re.FindStringIndex(doc[from:])
		if loc == nil {
			return 0, 0, false
		}
		return from + loc[0], from + loc[1], true
	}
}

// Literals builds one Literal matcher per string, preserving order.
func Literals(ss ...string) []Matcher {
	ms := make([]Matcher, len(ss))
	for i, s := range ss {
		ms[i] = Literal(s)
	}
	return ms
}

// Section is the span from the start of a start marker up to, but excluding,
// the end marker.
type Section struct {
	Start int
	End   int
	// Strategy is the index of the start matcher that located the section.
	Strategy int
}

// FindSection tries each start matcher in order and returns the first one
// that is followed by end.
func FindSection(doc string, starts []Matcher, end Matcher) (Section, bool) {
	for i, start := range starts {
		s, afterStart, ok := start(doc, 0)
		if !ok {
			continue
		}
		e, _, ok := end(doc, afterStart)
		if !ok {
			continue
		}
		return Section{Start: s, End: e, Strategy: i}, true
	}
	return Section{}, false
}

// ReplaceSection replaces the section's span with text.
func ReplaceSection(doc string, sec Section, text string) string {
	return doc[:sec.Start] + text + doc[sec.End:]
}
