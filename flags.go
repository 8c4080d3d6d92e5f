package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const portsDirEnv = "PORTPATCH_PORTS_DIR"

// flags holds all command-line flag values
type flags struct {
	configFile  string
	portsDir    string
	jobs        []string
	dryRun      bool
	verbose     bool
	backup      string
	restore     string
	list        bool
	noColor     bool
	showVersion bool
}

func defaultPortsDir() string {
	if dir := os.Getenv(portsDirEnv); dir != "" {
		return dir
	}
	return "ports"
}

func parseFlags() *flags {
	f := &flags{}

	pflag.StringVarP(&f.configFile, "file", "f", "", "Read `FILE` as the migration table (YAML or TOML)")
	pflag.StringVarP(&f.portsDir, "ports-dir", "p", defaultPortsDir(), "The `PATH` to the vcpkg ports directory (env "+portsDirEnv+")")
	pflag.StringSliceVarP(&f.jobs, "job", "j", nil, "Run only `JOB` (manifest, convert, fix); may be repeated")
	pflag.BoolVarP(&f.dryRun, "dry-run", "n", false, "Print what would be changed without writing any file")
	pflag.BoolVarP(&f.verbose, "verbose", "v", false, "Enable verbose debug logging")
	pflag.StringVar(&f.backup, "backup", "", "Save the original of every changed file to the tar `FILE` (.tar, .tar.gz, .tar.xz, .tar.zst)")
	pflag.StringVar(&f.restore, "restore", "", "Restore the files saved in the backup `FILE` and exit")
	pflag.BoolVar(&f.list, "list", false, "List all targets from the migration table")
	pflag.BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	pflag.BoolVarP(&f.showVersion, "version", "V", false, "Show version information")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [target...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Migrates busyq vcpkg ports from objcopy symbol prefixing to compile-time prefix headers.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nArguments:\n")
		fmt.Fprintf(os.Stderr, "  target...  One or more ports to migrate (default: all targets)\n")
	}

	pflag.Parse()

	return f
}
