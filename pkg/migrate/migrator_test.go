package migrate

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aar10n/portpatch/pkg/backup"
	"github.com/aar10n/portpatch/pkg/config"
	"github.com/aar10n/portpatch/pkg/manifest"
)

const sedManifest = `{
  "name": "busyq-sed",
  "version": "4.9",
  "dependencies": [
    "busyq-gnulib"
  ]
}
`

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "portfile", "testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return string(data)
}

func writePort(t *testing.T, portsDir, name, file, content string) string {
	t.Helper()
	path := filepath.Join(portsDir, name, file)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func newTestMigrator(t *testing.T, cfg MigratorConfig, portsDir string) (*Migrator, *bytes.Buffer) {
	t.Helper()
	c, err := config.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	m, err := NewMigrator(cfg, c, portsDir)
	if err != nil {
		t.Fatalf("NewMigrator failed: %v", err)
	}
	var out bytes.Buffer
	m.SetOutput(&out)
	return m, &out
}

func statuses(results []Result) map[Job]Status {
	got := make(map[Job]Status)
	for _, r := range results {
		got[r.Job] = r.Status
	}
	return got
}

func TestMigrator_RunSingleTarget(t *testing.T) {
	portsDir := t.TempDir()
	portfilePath := writePort(t, portsDir, "busyq-sed", "portfile.cmake", readFixture(t, "sed.portfile.cmake"))
	manifestPath := writePort(t, portsDir, "busyq-sed", "vcpkg.json", sedManifest)

	m, _ := newTestMigrator(t, MigratorConfig{}, portsDir)
	if err := m.Run(context.Background(), []string{"busyq-sed"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := map[Job]Status{JobManifest: StatusChanged, JobConvert: StatusChanged, JobFix: StatusChanged}
	if diff := cmp.Diff(want, statuses(m.Results())); diff != "" {
		t.Errorf("Unexpected statuses (-want +got):\n%s", diff)
	}

	names, err := manifest.Dependencies([]byte(readFile(t, manifestPath)))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"busyq-bash", "busyq-gnulib"}, names); diff != "" {
		t.Errorf("Unexpected dependencies (-want +got):\n%s", diff)
	}

	doc := readFile(t, portfilePath)
	for _, want := range []string{
		"busyq_symbol_helpers.cmake",
		"sed_prefix.h",
		`"CPPFLAGS=-include ${_prefix_h} -Dmain=sed_main"`,
		"# Collect all object files from the build",
		"libsed_raw.a",
		"'${CURRENT_PACKAGES_DIR}/lib/libsed.a'",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("Expected portfile to contain %q", want)
		}
	}
	if strings.Contains(doc, "--prefix-symbols") {
		t.Error("Expected objcopy prefixing to be removed")
	}
	if strings.Contains(doc, "lib_raw.a") {
		t.Error("Expected generic raw archive name to be replaced")
	}

	matches, _ := filepath.Glob(filepath.Join(portsDir, "busyq-sed", ".*.tmp-*"))
	if len(matches) != 0 {
		t.Errorf("Expected no temporary files left, got %v", matches)
	}
}

func TestMigrator_RunIsIdempotent(t *testing.T) {
	portsDir := t.TempDir()
	portfilePath := writePort(t, portsDir, "busyq-sed", "portfile.cmake", readFixture(t, "sed.portfile.cmake"))
	manifestPath := writePort(t, portsDir, "busyq-sed", "vcpkg.json", sedManifest)

	first, _ := newTestMigrator(t, MigratorConfig{}, portsDir)
	if err := first.Run(context.Background(), []string{"busyq-sed"}); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	portfileAfter := readFile(t, portfilePath)
	manifestAfter := readFile(t, manifestPath)

	second, _ := newTestMigrator(t, MigratorConfig{}, portsDir)
	if err := second.Run(context.Background(), []string{"busyq-sed"}); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	want := map[Job]Status{JobManifest: StatusUnchanged, JobConvert: StatusUnchanged, JobFix: StatusSkipped}
	if diff := cmp.Diff(want, statuses(second.Results())); diff != "" {
		t.Errorf("Unexpected statuses (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(portfileAfter, readFile(t, portfilePath)); diff != "" {
		t.Errorf("Portfile changed on second run (-first +second):\n%s", diff)
	}
	if manifestAfter != readFile(t, manifestPath) {
		t.Error("Manifest changed on second run")
	}
}

func TestMigrator_DryRunWritesNothing(t *testing.T) {
	portsDir := t.TempDir()
	original := readFixture(t, "sed.portfile.cmake")
	portfilePath := writePort(t, portsDir, "busyq-sed", "portfile.cmake", original)
	manifestPath := writePort(t, portsDir, "busyq-sed", "vcpkg.json", sedManifest)
	backupPath := filepath.Join(t.TempDir(), "backup.tar.zst")

	m, out := newTestMigrator(t, MigratorConfig{DryRun: true, BackupPath: backupPath}, portsDir)
	if err := m.Run(context.Background(), []string{"busyq-sed"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if readFile(t, portfilePath) != original {
		t.Error("Expected portfile to be untouched in dry-run mode")
	}
	if readFile(t, manifestPath) != sedManifest {
		t.Error("Expected manifest to be untouched in dry-run mode")
	}
	if _, err := os.Stat(backupPath); !os.IsNotExist(err) {
		t.Error("Expected no backup to be written in dry-run mode")
	}
	if !strings.Contains(out.String(), "[DRY RUN] busyq-sed: would update busyq-sed/vcpkg.json") {
		t.Errorf("Expected dry-run log line, got:\n%s", out.String())
	}
	if got := statuses(m.Results())[JobManifest]; got != StatusChanged {
		t.Errorf("Expected manifest status %s, got %s", StatusChanged, got)
	}
}

func TestMigrator_MissingFilesAreSkipped(t *testing.T) {
	portsDir := t.TempDir()

	m, out := newTestMigrator(t, MigratorConfig{}, portsDir)
	if err := m.Run(context.Background(), []string{"busyq-grep"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, r := range m.Results() {
		if r.Status != StatusSkipped {
			t.Errorf("Expected %s job to be skipped, got %s", r.Job, r.Status)
		}
		if len(r.Warnings) == 0 {
			t.Errorf("Expected %s job to carry a warning", r.Job)
		}
	}
	if len(m.Results()) != 3 {
		t.Errorf("Expected 3 results, got %d", len(m.Results()))
	}
	if !strings.Contains(out.String(), "busyq-grep/vcpkg.json not found, skipping") {
		t.Errorf("Expected missing manifest warning, got:\n%s", out.String())
	}
	if m.Failed() != 0 {
		t.Errorf("Expected no failures, got %d", m.Failed())
	}
}

func TestMigrator_ManifestParseErrorAborts(t *testing.T) {
	portsDir := t.TempDir()
	original := readFixture(t, "sed.portfile.cmake")
	portfilePath := writePort(t, portsDir, "busyq-sed", "portfile.cmake", original)
	writePort(t, portsDir, "busyq-sed", "vcpkg.json", "{ not json")

	m, _ := newTestMigrator(t, MigratorConfig{}, portsDir)
	err := m.Run(context.Background(), []string{"busyq-sed"})
	if !errors.Is(err, manifest.ErrParse) {
		t.Fatalf("Expected ErrParse, got %v", err)
	}
	if readFile(t, portfilePath) != original {
		t.Error("Expected later jobs not to run after a manifest parse error")
	}
	if m.Failed() != 1 {
		t.Errorf("Expected 1 failure, got %d", m.Failed())
	}
}

func TestMigrator_TargetFailureIsNotFatal(t *testing.T) {
	portsDir := t.TempDir()
	// A directory in place of the portfile cannot be read.
	if err := os.MkdirAll(filepath.Join(portsDir, "busyq-grep", "portfile.cmake"), 0755); err != nil {
		t.Fatal(err)
	}
	sedPortfile := writePort(t, portsDir, "busyq-sed", "portfile.cmake", readFixture(t, "sed.portfile.cmake"))

	m, _ := newTestMigrator(t, MigratorConfig{Jobs: []Job{JobConvert}}, portsDir)
	if err := m.Run(context.Background(), []string{"busyq-grep", "busyq-sed"}); err != nil {
		t.Fatalf("Expected a per-target failure not to abort the run, got %v", err)
	}

	if m.Failed() != 1 {
		t.Errorf("Expected 1 failure, got %d", m.Failed())
	}
	byTarget := make(map[string]Result)
	for _, r := range m.Results() {
		byTarget[r.Target] = r
	}
	if len(byTarget) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(byTarget))
	}
	if r := byTarget["busyq-grep"]; r.Status != StatusFailed || r.Error == nil {
		t.Errorf("Expected busyq-grep to fail with an error, got %+v", r)
	}
	if r := byTarget["busyq-sed"]; r.Status != StatusChanged {
		t.Errorf("Expected busyq-sed to be converted, got %+v", r)
	}
	if !strings.Contains(readFile(t, sedPortfile), "sed_prefix.h") {
		t.Error("Expected busyq-sed portfile to be migrated")
	}
}

func TestMigrator_ManualKindSkipsConvert(t *testing.T) {
	portsDir := t.TempDir()
	writePort(t, portsDir, "busyq-ed", "portfile.cmake", "vcpkg_build_make()\n")
	writePort(t, portsDir, "busyq-ed", "vcpkg.json", `{"dependencies": []}`)

	m, _ := newTestMigrator(t, MigratorConfig{Jobs: []Job{JobManifest, JobConvert}}, portsDir)
	if err := m.Run(context.Background(), []string{"busyq-ed"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := map[Job]Status{JobManifest: StatusChanged, JobConvert: StatusSkipped}
	if diff := cmp.Diff(want, statuses(m.Results())); diff != "" {
		t.Errorf("Unexpected statuses (-want +got):\n%s", diff)
	}
	if got := readFile(t, filepath.Join(portsDir, "busyq-ed", "portfile.cmake")); got != "vcpkg_build_make()\n" {
		t.Errorf("Expected portfile to be untouched, got %q", got)
	}
}

func TestMigrator_UnknownTarget(t *testing.T) {
	m, _ := newTestMigrator(t, MigratorConfig{}, t.TempDir())
	if err := m.Run(context.Background(), []string{"busyq-nope"}); err == nil {
		t.Error("Expected error for unknown target")
	}
	if len(m.Results()) != 0 {
		t.Errorf("Expected no results, got %d", len(m.Results()))
	}
}

func TestMigrator_Interrupted(t *testing.T) {
	portsDir := t.TempDir()
	writePort(t, portsDir, "busyq-sed", "vcpkg.json", sedManifest)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, _ := newTestMigrator(t, MigratorConfig{}, portsDir)
	err := m.Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(m.Results()) != 0 {
		t.Errorf("Expected no results, got %d", len(m.Results()))
	}
}

func TestMigrator_BackupRestoresOriginals(t *testing.T) {
	portsDir := t.TempDir()
	original := readFixture(t, "sed.portfile.cmake")
	portfilePath := writePort(t, portsDir, "busyq-sed", "portfile.cmake", original)
	manifestPath := writePort(t, portsDir, "busyq-sed", "vcpkg.json", sedManifest)
	backupPath := filepath.Join(t.TempDir(), "ports-backup.tar.gz")

	m, _ := newTestMigrator(t, MigratorConfig{BackupPath: backupPath}, portsDir)
	if err := m.Run(context.Background(), []string{"busyq-sed"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if readFile(t, portfilePath) == original {
		t.Fatal("Expected portfile to be migrated")
	}

	restored, err := backup.Restore(backupPath, portsDir)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	want := []string{"busyq-sed/portfile.cmake", "busyq-sed/vcpkg.json"}
	if diff := cmp.Diff(want, restored); diff != "" {
		t.Errorf("Unexpected restored paths (-want +got):\n%s", diff)
	}
	if readFile(t, portfilePath) != original {
		t.Error("Expected portfile to match the pre-migration original")
	}
	if readFile(t, manifestPath) != sedManifest {
		t.Error("Expected manifest to match the pre-migration original")
	}
}

func TestMigrator_PrintSummary(t *testing.T) {
	portsDir := t.TempDir()
	writePort(t, portsDir, "busyq-sed", "vcpkg.json", sedManifest)

	m, out := newTestMigrator(t, MigratorConfig{Jobs: []Job{JobManifest}}, portsDir)
	if err := m.Run(context.Background(), []string{"busyq-sed"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	m.PrintSummary()

	summary := out.String()
	for _, want := range []string{"Migration Summary", "[manifest]", "busyq-sed", "Changed: 1"} {
		if !strings.Contains(summary, want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, summary)
		}
	}
}

func TestNewMigrator_Errors(t *testing.T) {
	c, err := config.LoadDefault()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewMigrator(MigratorConfig{}, c, filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected error for missing ports directory")
	}
	if _, err := NewMigrator(MigratorConfig{BackupPath: "backup.rar"}, c, t.TempDir()); err == nil {
		t.Error("Expected error for unsupported backup extension")
	}
}
