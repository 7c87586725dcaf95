// Command guestrun runs guest programs against a host directory.
//
// Usage:
//
//	guestrun run [flags] program [args...]
//	guestrun programs
//	guestrun config [flags]
//
// The run command starts program in a fresh kernel rooted at --root and
// exits with its status. A program name without a slash is looked up in
// /bin. The config command prints the effective configuration, the
// defaults overlaid with --config and the flags, as YAML.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kmrgirish/guestsys/internal/config"
)

// rootFlags receives flag values. loadConfig copies the ones that were set.
var (
	rootConfigFile string
	rootFlags      = config.Default()
)

var rootCmd = &cobra.Command{
	Use:           "guestrun",
	Short:         "Run guest programs on an emulated system call surface",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootConfigFile, "config", "c", "", "load the configuration from a YAML file")
	pf.StringVar(&rootFlags.Root, "root", rootFlags.Root, "host directory serving the guest's /")
	pf.StringVar(&rootFlags.Cwd, "cwd", rootFlags.Cwd, "working directory of the first guest process")
	pf.StringVar(&rootFlags.Hostname, "hostname", "", "hostname reported to guests (default the host's)")
	pf.BoolVar(&rootFlags.Trace, "trace", false, "log every system call")
	pf.StringVar(&rootFlags.LogLevel, "log-level", rootFlags.LogLevel, "host log level: debug|info|warn|error")
	pf.StringVar(&rootFlags.LogFormat, "log-format", rootFlags.LogFormat, "host log format: raw|indented|pretty")
	pf.StringVar(&rootFlags.ExecCache, "exec-cache", "", "sqlite database remembering script interpreters")
	pf.StringVar(&rootFlags.Resolver.DNSServer, "dns-server", "", "DNS server (host:port) for guest name lookups")
}

// loadConfig reads --config, if given, and overlays the flags that were
// set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if rootConfigFile != "" {
		var err error
		if cfg, err = config.Load(rootConfigFile); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	for name, apply := range map[string]func(){
		"root":       func() { cfg.Root = rootFlags.Root },
		"cwd":        func() { cfg.Cwd = rootFlags.Cwd },
		"hostname":   func() { cfg.Hostname = rootFlags.Hostname },
		"trace":      func() { cfg.Trace = rootFlags.Trace },
		"log-level":  func() { cfg.LogLevel = rootFlags.LogLevel },
		"log-format": func() { cfg.LogFormat = rootFlags.LogFormat },
		"exec-cache": func() { cfg.ExecCache = rootFlags.ExecCache },
		"dns-server": func() { cfg.Resolver.DNSServer = rootFlags.Resolver.DNSServer },
	} {
		if flags.Changed(name) {
			apply()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// exitStatus carries a guest's nonzero exit status out of Execute.
type exitStatus int

func (e exitStatus) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

func run() int {
	if err := rootCmd.Execute(); err != nil {
		var status exitStatus
		if errors.As(err, &status) {
			return int(status)
		}
		fmt.Fprintf(os.Stderr, "guestrun: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run())
}
