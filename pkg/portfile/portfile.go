// Package portfile migrates busyq portfile.cmake scripts from objcopy symbol
// prefixing to compile-time prefix headers, and repairs the object collection
// step of ports that lost it.
package portfile

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/aar10n/portpatch/pkg/config"
	"github.com/aar10n/portpatch/pkg/textpatch"
)

// Report records what a transformation did to one portfile.
type Report struct {
	Applied  []string
	Warnings []string
	Notes    []string
	// Skipped is set when the whole transformation was not attempted.
	Skipped bool
}

func (r *Report) apply(format string, args ...interface{}) {
	r.Applied = append(r.Applied, fmt.Sprintf(format, args...))
}

func (r *Report) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Report) note(format string, args ...interface{}) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

func (r *Report) insertion(what string, outcome textpatch.Outcome, anchor string) {
	switch outcome {
	case textpatch.Applied:
		r.apply("inserted %s", what)
	case textpatch.Present:
		r.note("%s already present", what)
	case textpatch.Missing:
		r.warn("could not find '%s' to insert %s", anchor, what)
	}
}

var (
	reBuildMakeNoArgs = regexp.MustCompile(`vcpkg_build_make\(\)`)
	reBuildMakeTarget = regexp.MustCompile(`vcpkg_build_make\(BUILD_TARGET\s+(\w+)\)`)
	reCombinedOutput  = regexp.MustCompile(`ar\s+rcs\s+'([^']+\.a)'\s+combined\.o`)
)

// buildRewrites returns the vcpkg_build_make rewrites passing cppflags.
func buildRewrites(cppflags string) []textpatch.Rewrite {
	options := fmt.Sprintf(`OPTIONS "CPPFLAGS=%s"`, cppflags)
	return []textpatch.Rewrite{
		{
			Pattern: reBuildMakeNoArgs,
			Replace: func([]string) string {
				return "vcpkg_build_make(" + options + ")"
			},
		},
		{
			Pattern: reBuildMakeTarget,
			Replace: func(g []string) string {
				return "vcpkg_build_make(BUILD_TARGET " + g[1] + " " + options + ")"
			},
		},
	}
}

// CPPFlags returns the preprocessor flags injected into the build of t.
func CPPFlags(t *config.Target) string {
	flags := "-include ${_prefix_h}"
	if t.Kind == config.KindSingle {
		flags += " -Dmain=" + t.Entry
	}
	return flags
}

// Convert rewrites a portfile to use the compile-time prefix header. Kinds
// that are not automated are returned unchanged with a note.
func Convert(doc string, t *config.Target, m *config.Markers) (string, *Report) {
	r := &Report{}
	if !t.Kind.Automated() {
		r.Skipped = true
		r.note("%s port requires manual conversion", t.Kind)
		return doc, r
	}

	var outcome textpatch.Outcome
	doc, outcome = textpatch.InsertAfter(doc, m.AlpineInclude, "\n"+m.SymbolInclude, m.SymbolInclude)
	r.insertion("symbol helpers include", outcome, m.AlpineInclude)

	doc, outcome = textpatch.InsertAfter(doc, m.CMakeVars, PrefixHeaderBlock(t.Prefix), PrefixHeaderMarker(t.Prefix))
	r.insertion("prefix header generation", outcome, m.CMakeVars)

	flags := CPPFlags(t)
	var n int
	doc, n = textpatch.RewriteInvocation(doc, buildRewrites(flags)...)
	switch {
	case n > 0:
		r.apply("added %q to %d vcpkg_build_make call(s)", flags, n)
	case strings.Contains(doc, "CPPFLAGS="+flags):
		r.note("vcpkg_build_make already passes the prefix header")
	default:
		r.warn("no vcpkg_build_make() call to rewrite")
	}

	if t.Kind == config.KindMulti {
		r.note("symbol isolation section left for per-port handling")
		return doc, r
	}

	render := func(b textpatch.IsolationBlock) string {
		return CombineBlock(m, m.RawArchive, b)
	}
	doc, block, matched := textpatch.ReplaceIsolationBlock(doc, textpatch.DefaultIsolation(t.Prefix), render)
	switch {
	case matched:
		r.apply("replaced symbol isolation block (archive %s)", block.Archive)
	case strings.Contains(doc, m.CombineSection) && !strings.Contains(doc, "--prefix-symbols"):
		r.note("symbol isolation block already replaced")
	default:
		r.warn("could not auto-replace symbol isolation section")
	}

	return doc, r
}

// hasObjectCollection reports whether doc already globs objects and creates
// both the raw and the final archive.
func hasObjectCollection(doc string) bool {
	return strings.Contains(doc, "GLOB") && textpatch.Count(doc, "ar rcs") >= 2
}

// Reinsert restores the object collection step in front of the combine
// section and points the combine step at the port's own raw archive.
func Reinsert(doc string, c *config.Collection, m *config.Markers) (string, *Report) {
	r := &Report{}
	if hasObjectCollection(doc) {
		r.Skipped = true
		r.note("already has object collection")
		return doc, r
	}
	if !strings.Contains(doc, m.CombineSection) {
		r.Skipped = true
		r.warn("could not find '%s' insertion point", m.CombineSection)
		return doc, r
	}

	if n := textpatch.Count(doc, m.RawArchive); n > 0 {
		doc = strings.ReplaceAll(doc, m.RawArchive, c.RawArchive)
		r.apply("renamed %d reference(s) to %s as %s", n, m.RawArchive, c.RawArchive)
	}

	var outcome textpatch.Outcome
	doc, outcome = textpatch.InsertBefore(doc, m.CombineSection, CollectionBlock(c), "")
	r.insertion("object collection", outcome, m.CombineSection)

	if lib, ok := combinedOutput(doc, m.CombineSection); ok && path.Base(lib) != c.LibName {
		r.warn("combine step writes %s, expected %s", lib, c.LibName)
	}
	return doc, r
}

// combinedOutput returns the archive the combine step after anchor writes.
func combinedOutput(doc, anchor string) (string, bool) {
	idx := strings.Index(doc, anchor)
	if idx < 0 {
		return "", false
	}
	m := reCombinedOutput.FindStringSubmatch(doc[idx:])
	if m == nil {
		return "", false
	}
	return m[1], true
}

// RewriteSection replaces the symbol isolation section of a multi-main port
// with the hand-authored block for rw.
func RewriteSection(doc string, rw *config.Rewrite, m *config.Markers) (string, *Report) {
	r := &Report{}
	if hasObjectCollection(doc) {
		r.Skipped = true
		r.note("already has object collection")
		return doc, r
	}

	sec, ok := textpatch.FindSection(doc, textpatch.Literals(rw.StartMarkers...), textpatch.Literal(rw.EndMarker))
	if !ok {
		r.Skipped = true
		r.warn("could not find section markers")
		return doc, r
	}

	doc = textpatch.ReplaceSection(doc, sec, RewriteBlock(rw, m))
	r.apply("rewrote symbol isolation section (found by '%s')", rw.StartMarkers[sec.Strategy])
	return doc, r
}
