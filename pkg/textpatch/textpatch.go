// Package textpatch implements idempotent, anchor-relative edits of build
// script text.
//
// Every operation returns the document unchanged when its anchor is missing or
// when the edit is already present; callers decide whether a miss is worth a
// warning. Nothing here returns an error.
package textpatch

import (
	"regexp"
	"strings"
)

// Outcome describes what an insertion did to a document.
type Outcome int

const (
	// Applied means the text was inserted.
	Applied Outcome = iota
	// Present means the idempotency marker was already in the document.
	Present
	// Missing means the anchor was not found.
	Missing
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Present:
		return "already present"
	case Missing:
		return "anchor missing"
	}
	return "unknown"
}

// InsertAfter splices text immediately after the first occurrence of anchor.
// If marker (or text itself when marker is empty) already occurs in doc the
// document is returned unchanged.
func InsertAfter(doc, anchor, text, marker string) (string, Outcome) {
	if isPresent(doc, text, marker) {
		return doc, Present
	}
	idx := strings.Index(doc, anchor)
	if idx < 0 {
		return doc, Missing
	}
	end := idx + len(anchor)
	return doc[:end] + text + doc[end:], Applied
}

// InsertBefore splices text immediately before the first occurrence of anchor.
func InsertBefore(doc, anchor, text, marker string) (string, Outcome) {
	if isPresent(doc, text, marker) {
		return doc, Present
	}
	idx := strings.Index(doc, anchor)
	if idx < 0 {
		return doc, Missing
	}
	return doc[:idx] + text + doc[idx:], Applied
}

func isPresent(doc, text, marker string) bool {
	if marker == "" {
		marker = text
	}
	return marker != "" && strings.Contains(doc, marker)
}

// Count returns the number of non-overlapping occurrences of s in doc.
func Count(doc, s string) int {
	return strings.Count(doc, s)
}

// Rewrite pairs a pattern for one call shape with a template that builds the
// replacement from the pattern's submatches (groups[0] is the whole match).
type Rewrite struct {
	Pattern *regexp.Regexp
	Replace func(groups []string) string
}

// RewriteInvocation applies each rewrite to every span its pattern matches and
// returns the resulting document and the total number of substitutions.
// Rewrites run in order, so a later pattern sees the output of earlier ones.
func RewriteInvocation(doc string, rewrites ...Rewrite) (string, int) {
	total := 0
	for _, rw := range rewrites {
		var n int
		doc, n = replaceAllSubmatch(doc, rw.Pattern, rw.Replace)
		total += n
	}
	return doc, total
}

func replaceAllSubmatch(doc string, re *regexp.Regexp, fn func([]string) string) (string, int) {
	matches := re.FindAllStringSubmatchIndex(doc, -1)
	if len(matches) == 0 {
		return doc, 0
	}

	var b strings.Builder
	last := 0
	for _, loc := range matches {
		b.WriteString(doc[last:loc[0]])
		b.WriteString(fn(submatches(doc, loc)))
		last = loc[1]
	}
	b.WriteString(doc[last:])
	return b.String(), len(matches)
}

func submatches(doc string, loc []int) []string {
	groups := make([]string, len(loc)/2)
	for i := range groups {
		if loc[2*i] >= 0 {
			groups[i] = doc[loc[2*i]:loc[2*i+1]]
		}
	}
	return groups
}
