package textpatch

import (
	"regexp"
	"strings"
)

// destructiveOp is the instruction that marks a symbol isolation block.
// Other objcopy uses, such as renaming a single symbol, leave bitcode intact.
const destructiveOp = "--prefix-symbols"

// reIsolation matches a vcpkg_execute_required_process call running an
// `sh -c "..."` script, with an optional run of step comments directly above
// it. The quoted script may contain escaped quotes and line continuations.
var reIsolation = regexp.MustCompile(`(?ms)` +
	`(?:^[ \t]*# (?:Steps? \d|Combine, prefix)[^\n]*\n(?:[ \t]*(?:#[^\n]*)?\n)*)?` +
	`[ \t]*vcpkg_execute_required_process\(\s*` +
	`COMMAND\s+sh\s+-c\s+"((?:[^"\\]|\\.)*)"` +
	`((?:\s*(?:WORKING_DIRECTORY|LOGNAME)\s+"[^"]*")*)` +
	`\s*\)`)

var (
	reWorkingDir = regexp.MustCompile(`WORKING_DIRECTORY\s+"([^"]*)"`)
	reLogName    = regexp.MustCompile(`LOGNAME\s+"([^"]*)"`)
	reArchive    = regexp.MustCompile(`ar\s+rcs\s+'([^']+\.a)'`)
)

// IsolationBlock is a matched symbol isolation block and the values carried
// over into its replacement.
type IsolationBlock struct {
	Start      int
	End        int
	WorkingDir string
	LogName    string
	Archive    string
}

// IsolationDefaults are used for values the matched block does not carry.
type IsolationDefaults struct {
	WorkingDir string
	LogName    string
	Archive    string
}

// DefaultIsolation returns the fallback values for a port with the given
// symbol prefix.
func DefaultIsolation(prefix string) IsolationDefaults {
	return IsolationDefaults{
		WorkingDir: "${BUILD_REL}",
		LogName:    "combine-${TARGET_TRIPLET}",
		Archive:    "${CURRENT_PACKAGES_DIR}/lib/lib" + prefix + ".a",
	}
}

// FindIsolationBlock locates the first shell invocation whose script prefixes
// every symbol with objcopy --prefix-symbols.
func FindIsolationBlock(doc string, defaults IsolationDefaults) (IsolationBlock, bool) {
	for _, loc := range reIsolation.FindAllStringSubmatchIndex(doc, -1) {
		groups := submatches(doc, loc)
		script, attrs := groups[1], groups[2]
		if !strings.Contains(script, destructiveOp) {
			continue
		}

		block := IsolationBlock{
			Start:      loc[0],
			End:        loc[1],
			WorkingDir: defaults.WorkingDir,
			LogName:    defaults.LogName,
			Archive:    defaults.Archive,
		}
		if m := reWorkingDir.FindStringSubmatch(attrs); m != nil {
			block.WorkingDir = m[1]
		}
		if m := reLogName.FindStringSubmatch(attrs); m != nil {
			block.LogName = m[1]
		}
		if all := reArchive.FindAllStringSubmatch(script, -1); len(all) > 0 {
			block.Archive = all[len(all)-1][1]
		}
		return block, true
	}
	return IsolationBlock{}, false
}

// ReplaceIsolationBlock substitutes the first isolation block with the text
// produced by render. When no block matches, doc is returned unchanged and
// matched is false; the caller is expected to leave the port for manual
// follow-up.
func ReplaceIsolationBlock(doc string, defaults IsolationDefaults, render func(IsolationBlock) string) (string, IsolationBlock, bool) {
	block, ok := FindIsolationBlock(doc, defaults)
	if !ok {
		return doc, IsolationBlock{}, false
	}
	return doc[:block.Start] + render(block) + doc[block.End:], block, true
}
