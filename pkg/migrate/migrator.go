// Package migrate runs the manifest, convert and fix jobs over a busyq port
// tree and keeps track of what happened to every target.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/heroku/color"

	"github.com/aar10n/portpatch/pkg/backup"
	"github.com/aar10n/portpatch/pkg/config"
	"github.com/aar10n/portpatch/pkg/logger"
	"github.com/aar10n/portpatch/pkg/manifest"
	"github.com/aar10n/portpatch/pkg/portfile"
)

const (
	portfileName = "portfile.cmake"
	manifestName = "vcpkg.json"
)

// Status is the outcome of one job on one target.
type Status string

const (
	StatusChanged   Status = "changed"
	StatusUnchanged Status = "unchanged"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Result represents the result of running a job on a target.
type Result struct {
	Target   string
	Job      Job
	Status   Status
	Warnings []string
	Error    error
}

// MigratorConfig holds configuration options for the migrator.
type MigratorConfig struct {
	DryRun bool
	Jobs   []Job
	// BackupPath, when set, receives a tar archive of every original file
	// replaced during the run.
	BackupPath string
}

// Migrator applies the configured jobs to the ports directory.
type Migrator struct {
	*logger.Logger
	cfg      MigratorConfig
	config   *config.Config
	portsDir string
	backup   *backup.Archive

	results      []Result
	resultsMutex sync.Mutex
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(cfg MigratorConfig, c *config.Config, portsDir string) (*Migrator, error) {
	info, err := os.Stat(portsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to access ports directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ports directory %s is not a directory", portsDir)
	}
	if len(cfg.Jobs) == 0 {
		cfg.Jobs = AllJobs
	}

	var archive *backup.Archive
	if cfg.BackupPath != "" {
		if _, err := backup.CompressionFor(cfg.BackupPath); err != nil {
			return nil, err
		}
		if !cfg.DryRun {
			archive = backup.New(portsDir)
		}
	}

	migratorLogger := logger.Default().Clone()
	if cfg.DryRun {
		migratorLogger.SetPrefix("[DRY RUN] ")
	}

	return &Migrator{
		Logger:   migratorLogger,
		cfg:      cfg,
		config:   c,
		portsDir: portsDir,
		backup:   archive,
	}, nil
}

// Run executes the selected jobs in order. If filter is non-empty only the
// named targets are processed. The returned error is non-nil only for
// conditions that abort the whole run.
func (m *Migrator) Run(ctx context.Context, filter []string) error {
	filterSet := make(map[string]bool)
	for _, name := range filter {
		if !m.config.Known(name) {
			return fmt.Errorf("target '%s' not found in configuration", name)
		}
		filterSet[name] = true
	}

	runErr := m.runJobs(ctx, filterSet)
	if err := m.writeBackup(); err != nil {
		if runErr != nil {
			m.Error("%v", err)
			return runErr
		}
		return err
	}
	return runErr
}

func (m *Migrator) runJobs(ctx context.Context, filterSet map[string]bool) error {
	for _, job := range m.cfg.Jobs {
		var err error
		switch job {
		case JobManifest:
			err = m.runManifests(ctx, filterSet)
		case JobConvert:
			err = m.runConvert(ctx, filterSet)
		case JobFix:
			err = m.runFix(ctx, filterSet)
		default:
			err = fmt.Errorf("unknown job '%s'", job)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) runManifests(ctx context.Context, filterSet map[string]bool) error {
	m.Info("Adding %s to port manifests...", m.config.Dependency)
	for i := range m.config.Targets {
		t := &m.config.Targets[i]
		if !selected(filterSet, t.Name) {
			continue
		}
		if err := interrupted(ctx); err != nil {
			return err
		}

		log := m.WithPrefix(t.Name + ": ")
		path := m.portPath(t.Name, manifestName)
		changed, err := m.rewriteFile(path, func(data []byte) ([]byte, bool, error) {
			return manifest.InjectDependency(data, m.config.Dependency)
		})
		if errors.Is(err, manifest.ErrParse) {
			log.Error("%v", err)
			m.recordResult(t.Name, JobManifest, StatusFailed, nil, err)
			return fmt.Errorf("%s: %w", m.relPath(path), err)
		}
		m.finish(log, t.Name, JobManifest, path, changed, nil, err)
	}
	return nil
}

func (m *Migrator) runConvert(ctx context.Context, filterSet map[string]bool) error {
	m.Info("Converting portfiles to compile-time symbol prefixing...")
	for i := range m.config.Targets {
		t := &m.config.Targets[i]
		if !selected(filterSet, t.Name) {
			continue
		}
		if err := interrupted(ctx); err != nil {
			return err
		}

		log := m.WithPrefix(t.Name + ": ")
		if !t.Kind.Automated() {
			log.Info("%s port requires manual conversion, skipping", t.Kind)
			m.recordResult(t.Name, JobConvert, StatusSkipped, nil, nil)
			continue
		}

		path := m.portPath(t.Name, portfileName)
		var report *portfile.Report
		changed, err := m.rewriteFile(path, func(data []byte) ([]byte, bool, error) {
			out, r := portfile.Convert(string(data), t, &m.config.Markers)
			report = r
			return []byte(out), out != string(data), nil
		})
		m.finish(log, t.Name, JobConvert, path, changed, report, err)
	}
	return nil
}

func (m *Migrator) runFix(ctx context.Context, filterSet map[string]bool) error {
	m.Info("Restoring object collection steps...")
	for i := range m.config.Collections {
		c := &m.config.Collections[i]
		if !selected(filterSet, c.Name) {
			continue
		}
		if err := interrupted(ctx); err != nil {
			return err
		}

		log := m.WithPrefix(c.Name + ": ")
		path := m.portPath(c.Name, portfileName)
		var report *portfile.Report
		changed, err := m.rewriteFile(path, func(data []byte) ([]byte, bool, error) {
			out, r := portfile.Reinsert(string(data), c, &m.config.Markers)
			report = r
			return []byte(out), out != string(data), nil
		})
		m.finish(log, c.Name, JobFix, path, changed, report, err)
	}

	for i := range m.config.Rewrites {
		rw := &m.config.Rewrites[i]
		if !selected(filterSet, rw.Name) {
			continue
		}
		if err := interrupted(ctx); err != nil {
			return err
		}

		log := m.WithPrefix(rw.Name + ": ")
		path := m.portPath(rw.Name, portfileName)
		var report *portfile.Report
		changed, err := m.rewriteFile(path, func(data []byte) ([]byte, bool, error) {
			out, r := portfile.RewriteSection(string(data), rw, &m.config.Markers)
			report = r
			return []byte(out), out != string(data), nil
		})
		m.finish(log, rw.Name, JobFix, path, changed, report, err)
	}
	return nil
}

// finish logs the outcome of a job on one target and records its result.
func (m *Migrator) finish(log *logger.Logger, name string, job Job, path string, changed bool, report *portfile.Report, err error) {
	var warnings []string
	if report != nil {
		for _, line := range report.Applied {
			log.Info("%s", line)
		}
		for _, line := range report.Warnings {
			log.Warn("%s", line)
		}
		for _, line := range report.Notes {
			if report.Skipped {
				log.Info("%s", line)
			} else {
				log.Debug("%s", line)
			}
		}
		warnings = append(warnings, report.Warnings...)
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		msg := fmt.Sprintf("%s not found, skipping", m.relPath(path))
		log.Warn("%s", msg)
		m.recordResult(name, job, StatusSkipped, append(warnings, msg), nil)
	case err != nil:
		log.Error("%v", err)
		m.recordResult(name, job, StatusFailed, warnings, err)
	case report != nil && report.Skipped:
		m.recordResult(name, job, StatusSkipped, warnings, nil)
	case changed:
		if m.cfg.DryRun {
			log.Info("would update %s", m.relPath(path))
		} else {
			log.Info("updated %s", m.relPath(path))
		}
		m.recordResult(name, job, StatusChanged, warnings, nil)
	default:
		log.Debug("%s is up to date", m.relPath(path))
		m.recordResult(name, job, StatusUnchanged, warnings, nil)
	}
}

func (m *Migrator) writeBackup() error {
	if m.backup == nil {
		return nil
	}
	if m.backup.Len() == 0 {
		m.Debug("No files changed, not writing backup %s", m.cfg.BackupPath)
		return nil
	}
	if err := m.backup.Write(m.cfg.BackupPath); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	m.Info("Saved %d original file(s) to %s", m.backup.Len(), m.cfg.BackupPath)
	return nil
}

// Results returns a copy of the recorded results.
func (m *Migrator) Results() []Result {
	m.resultsMutex.Lock()
	defer m.resultsMutex.Unlock()
	results := make([]Result, len(m.results))
	copy(results, m.results)
	return results
}

// Failed returns the number of failed results.
func (m *Migrator) Failed() int {
	m.resultsMutex.Lock()
	defer m.resultsMutex.Unlock()
	n := 0
	for _, r := range m.results {
		if r.Status == StatusFailed {
			n++
		}
	}
	return n
}

// PrintSummary prints a summary of the migration results.
func (m *Migrator) PrintSummary() {
	separator := strings.Repeat("=", 60)
	m.Info("")
	m.Info("%s", separator)
	m.Info("Migration Summary")
	m.Info("%s", separator)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	counts := make(map[Status]int)
	results := m.Results()
	for _, job := range m.cfg.Jobs {
		first := true
		for _, result := range results {
			if result.Job != job {
				continue
			}
			if first {
				m.Info("[%s]", job)
				first = false
			}
			counts[result.Status]++

			switch result.Status {
			case StatusChanged:
				m.Info("%s %s", green.Sprint("✓"), result.Target)
			case StatusUnchanged:
				m.Info("= %s (unchanged)", result.Target)
			case StatusSkipped:
				m.Info("%s %s (skipped)", yellow.Sprint("-"), result.Target)
			case StatusFailed:
				m.Info("%s %s: %v", red.Sprint("✗"), result.Target, result.Error)
			}
		}
	}

	m.Info("%s", separator)
	m.Info("Total: %d | Changed: %d | Unchanged: %d | Skipped: %d | Failed: %d | Warnings: %d",
		len(results), counts[StatusChanged], counts[StatusUnchanged], counts[StatusSkipped],
		counts[StatusFailed], m.WarnCount())
	m.Info("%s", separator)
}

func (m *Migrator) recordResult(name string, job Job, status Status, warnings []string, err error) {
	m.resultsMutex.Lock()
	defer m.resultsMutex.Unlock()

	m.results = append(m.results, Result{
		Target:   name,
		Job:      job,
		Status:   status,
		Warnings: warnings,
		Error:    err,
	})
}

func (m *Migrator) portPath(name, file string) string {
	return filepath.Join(m.portsDir, name, file)
}

func (m *Migrator) relPath(path string) string {
	if rel, err := filepath.Rel(m.portsDir, path); err == nil {
		return rel
	}
	return path
}

func selected(filterSet map[string]bool, name string) bool {
	return len(filterSet) == 0 || filterSet[name]
}

func interrupted(ctx context.Context) error {
	if err := context.Cause(ctx); err != nil {
		return fmt.Errorf("migration interrupted: %w", err)
	}
	return nil
}
