// cds boots the VM with class data sharing: it dumps archives of the boot
// library's static state and maps them on later runs.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/chazu/cds/archive/image"
	"github.com/chazu/cds/config"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("cds")

// majorVersion is the archive-compatible major version. Set with -ldflags.
var majorVersion = "1"

func main() {
	configDir := flag.String("config", ".", "Directory to search for cds.toml")
	verbose := flag.Bool("v", false, "Verbose (debug) logging")
	mode := flag.String("mode", "", "Override archive.mode (off, use, auto, dump-static, dump-dynamic)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cds [options] <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  status          Print the archive status of this process\n")
		fmt.Fprintf(os.Stderr, "  run             Boot the library and report restored classes\n")
		fmt.Fprintf(os.Stderr, "  dump            Boot the library and write the configured archive\n")
		fmt.Fprintf(os.Stderr, "  inspect [path]  Print the contents of an archive file\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  cds -mode dump-static dump   # Write build/classes.cds\n")
		fmt.Fprintf(os.Stderr, "  cds -mode use run            # Boot from the archive\n")
	}
	flag.Parse()

	cfg, err := config.FindAndLoad(*configDir)
	if err != nil {
		fatal(err)
	}
	if *mode != "" {
		cfg.Archive.Mode = config.Mode(*mode)
		if err := cfg.Validate(); err != nil {
			fatal(err)
		}
	}
	if err := configureLogging(cfg, *verbose); err != nil {
		fatal(err)
	}

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "run"
	}
	switch cmd {
	case "status":
		err = cmdStatus(cfg)
	case "run":
		err = cmdRun(cfg)
	case "dump":
		err = cmdDump(cfg)
	case "inspect":
		err = cmdInspect(cfg, flag.Arg(1))
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func configureLogging(cfg *config.Config, verbose bool) error {
	verbosity, err := cfg.Verbosity()
	if err != nil {
		return err
	}
	if verbose {
		verbosity = 4
	}
	var path *string
	if p := cfg.LogFilePath(); p != "" {
		path = &p
	}
	commonlog.Configure(verbosity, path)
	return nil
}

// buildIdentity returns the identity recorded in and checked against
// archives.
func buildIdentity(cfg *config.Config) image.Build {
	major, err := strconv.Atoi(majorVersion)
	if err != nil {
		major = 0
	}
	return image.Build{
		Release:    cfg.Build.Release,
		DebugLevel: cfg.Build.DebugLevel,
		VMInfo:     vmInfo(cfg),
		Major:      major,
	}
}

func vmInfo(cfg *config.Config) string {
	if cfg.Build.VMInfo != "" {
		return cfg.Build.VMInfo
	}
	return strings.Join([]string{runtime.Version(), runtime.GOOS, runtime.GOARCH}, "/")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "cds: %v\n", err)
	os.Exit(1)
}
