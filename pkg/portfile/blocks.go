package portfile

import (
	"fmt"
	"strings"

	"github.com/aar10n/portpatch/pkg/config"
	"github.com/aar10n/portpatch/pkg/textpatch"
)

// Placeholders are @NAME@ tokens expanded with strings.Replacer so that the
// CMake ${...} references in the templates stay literal.

const prefixHeaderBlock = `
# --- Generate compile-time symbol prefix header (LTO-safe) ---
set(_prefix_h "${SOURCE_PATH}/@PREFIX@_prefix.h")
busyq_gen_prefix_header(@PREFIX@ "${_prefix_h}")
`

const combineBlock = `@COMBINE@ (no objcopy: compile-time prefix preserves bitcode)
vcpkg_execute_required_process(
    COMMAND sh -c "
        set -e
        ld -r --whole-archive @RAW@ -o combined.o \
            -z muldefs 2>/dev/null \
        || ld -r --whole-archive @RAW@ -o combined.o
        ar rcs '@LIB@' combined.o
    "
    WORKING_DIRECTORY "@WORKDIR@"
    LOGNAME "@LOGNAME@"
)`

const emptyGuardBlock = `
if(NOT @OBJ@)
    message(FATAL_ERROR "@MESSAGE@ ${@BUILD@}")
endif()
`

const rawArchiveBlock = `
# Pack into temporary archive@WHY@
vcpkg_execute_required_process(
    COMMAND ar rcs "${@BUILD@}/@RAW@" ${@OBJ@}
    WORKING_DIRECTORY "${@BUILD@}"
    LOGNAME "ar-raw-${@TRIPLET@}"
)
`

const renameMainsBlock = `
# Rename main in each tool's object file before combining
vcpkg_execute_required_process(
    COMMAND sh -c "
        set -e
        for tool in @TOOLS@; do
            obj='${@BUILD@}/@TOOLDIR@/'\"\$tool\".o
            if [ -f \"\$obj\" ]; then
                objcopy --redefine-sym main=\"\${tool}_main\" \"\$obj\"
            fi
        done
    "
    WORKING_DIRECTORY "${@BUILD@}"
    LOGNAME "rename-mains-${TARGET_TRIPLET}"
)
`

func expand(tmpl string, kv ...string) string {
	return strings.NewReplacer(kv...).Replace(tmpl)
}

// PrefixHeaderBlock returns the CMake lines generating <prefix>_prefix.h.
func PrefixHeaderBlock(prefix string) string {
	return expand(prefixHeaderBlock, "@PREFIX@", prefix)
}

// PrefixHeaderMarker is the idempotency marker for PrefixHeaderBlock.
func PrefixHeaderMarker(prefix string) string {
	return prefix + "_prefix.h"
}

// CombineBlock returns the ld -r merge and final ar step that replaces an
// objcopy based isolation block.
func CombineBlock(m *config.Markers, rawArchive string, b textpatch.IsolationBlock) string {
	return expand(combineBlock,
		"@COMBINE@", m.CombineSection,
		"@RAW@", rawArchive,
		"@LIB@", b.Archive,
		"@WORKDIR@", b.WorkingDir,
		"@LOGNAME@", b.LogName,
	)
}

// objectGlob returns the file(GLOB...) step plus the optional filter.
func objectGlob(mode, objVar string, paths []string, exclusions string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "file(%s %s\n    %s\n)", mode, objVar, strings.Join(paths, "\n    "))
	if exclusions != "" {
		fmt.Fprintf(&sb, "\nlist(FILTER %s EXCLUDE REGEX %s)", objVar, exclusions)
	}
	return sb.String()
}

// EmptyGuardBlock aborts the port build when the object list is empty.
func EmptyGuardBlock(objVar, buildVar, message string) string {
	return expand(emptyGuardBlock,
		"@OBJ@", objVar,
		"@BUILD@", buildVar,
		"@MESSAGE@", message,
	)
}

func rawArchiveStep(buildVar, objVar, rawArchive, triplet, why string) string {
	return expand(rawArchiveBlock,
		"@WHY@", why,
		"@BUILD@", buildVar,
		"@OBJ@", objVar,
		"@RAW@", rawArchive,
		"@TRIPLET@", triplet,
	)
}

// CollectionBlock returns the object collection section inserted in front of
// the combine step of a single-main port.
func CollectionBlock(c *config.Collection) string {
	var sb strings.Builder
	sb.WriteString("\n# Collect all object files from the build\n")
	sb.WriteString(objectGlob(c.GlobMode, c.ObjVar, c.GlobPaths, c.Exclusions))
	if c.ExtraGlob != "" {
		sb.WriteString("\n" + c.ExtraGlob)
	}
	sb.WriteString("\n")
	sb.WriteString(EmptyGuardBlock(c.ObjVar, c.BuildVar, "No object files found in"))
	sb.WriteString(rawArchiveStep(c.BuildVar, c.ObjVar, c.RawArchive, c.Triplet(),
		" (needed for ld -r --whole-archive)"))
	return sb.String()
}

// RewriteBlock returns the hand-authored isolation section of a port with
// several program entry points.
func RewriteBlock(rw *config.Rewrite, m *config.Markers) string {
	short := strings.TrimPrefix(rw.Name, "busyq-")

	var sb strings.Builder
	sb.WriteString(rw.StartMarkers[0] + "\n")
	fmt.Fprintf(&sb, "# %s has %d separate commands (%s), each with\n", short, len(rw.Tools), strings.Join(rw.Tools, ", "))
	sb.WriteString("# its own main(). Compile-time prefix header handles gnulib collisions.\n")
	sb.WriteString("# Individual main renames use objcopy --redefine-sym (safe for single symbols).\n")
	sb.WriteString("\n# Collect all object files from the build\n")
	sb.WriteString(objectGlob("GLOB_RECURSE", rw.ObjVar, rw.GlobPaths, rw.Exclusions))
	sb.WriteString("\n")
	sb.WriteString(EmptyGuardBlock(rw.ObjVar, rw.BuildVar, "No "+short+" object files found in"))
	sb.WriteString(expand(renameMainsBlock,
		"@TOOLS@", strings.Join(rw.Tools, " "),
		"@BUILD@", rw.BuildVar,
		"@TOOLDIR@", rw.ToolDir,
	))
	sb.WriteString(rawArchiveStep(rw.BuildVar, rw.ObjVar, rw.RawArchive, "TARGET_TRIPLET", ""))
	sb.WriteString("\n")
	sb.WriteString(CombineBlock(m, rw.RawArchive, textpatch.IsolationBlock{
		WorkingDir: "${" + rw.BuildVar + "}",
		LogName:    "combine-${TARGET_TRIPLET}",
		Archive:    "${CURRENT_PACKAGES_DIR}/lib/" + rw.LibName,
	}))
	sb.WriteString("\n\n")
	return sb.String()
}
