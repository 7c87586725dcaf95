// Package config describes a guest runtime: where the guest's root lives,
// how names resolve, and how the host logs. It is read from YAML and
// overlaid with command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kmrgirish/guestsys/internal/kernel"
	"github.com/kmrgirish/guestsys/internal/logging"
	"github.com/kmrgirish/guestsys/internal/pwd"
)

type Resolver struct {
	// Hosts maps names to addresses, like /etc/hosts.
	Hosts     map[string][]string `yaml:"hosts,omitempty"`
	DNSServer string              `yaml:"dns_server,omitempty"`
	Timeout   time.Duration       `yaml:"timeout,omitempty"`
	UseSystem bool                `yaml:"use_system,omitempty"`
}

type Config struct {
	Root       string   `yaml:"root"`
	Cwd        string   `yaml:"cwd"`
	Hostname   string   `yaml:"hostname,omitempty"`
	MaxProcs   int      `yaml:"max_procs"`
	PasswdFile string   `yaml:"passwd_file"`
	GroupFile  string   `yaml:"group_file"`
	Env        []string `yaml:"env,omitempty"`
	Resolver   Resolver `yaml:"resolver"`
	ExecCache  string   `yaml:"exec_cache,omitempty"`
	Trace      bool     `yaml:"trace,omitempty"`
	LogLevel   string   `yaml:"log_level"`
	LogFormat  string   `yaml:"log_format"`
}

var ErrInvalid = errors.New("invalid config")

func Default() *Config {
	return &Config{
		Root:       ".",
		Cwd:        "/",
		MaxProcs:   255,
		PasswdFile: pwd.Default.PasswdFile,
		GroupFile:  pwd.Default.GroupFile,
		Resolver: Resolver{
			Timeout: 5 * time.Second,
		},
		LogLevel:  "info",
		LogFormat: string(logging.FormatPretty),
	}
}

// Load reads the YAML file at name over the defaults.
func Load(name string) (*Config, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", name, err)
	}
	return c, nil
}

// Decode reads YAML over the defaults. Unknown keys are errors.
func Decode(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return c, nil
}

func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate reports the first bad value.
func (c *Config) Validate() error {
	if c.Root == "" {
		return invalid("root is empty")
	}
	for name, p := range map[string]string{"cwd": c.Cwd, "passwd_file": c.PasswdFile, "group_file": c.GroupFile} {
		if !path.IsAbs(p) {
			return invalid("%s %q is not an absolute guest path", name, p)
		}
	}
	if c.MaxProcs <= 0 {
		return invalid("max_procs %d must be positive", c.MaxProcs)
	}
	for _, kv := range c.Env {
		if name, _, ok := strings.Cut(kv, "="); !ok || name == "" {
			return invalid("env entry %q is not NAME=value", kv)
		}
	}
	if _, err := c.staticHosts(); err != nil {
		return err
	}
	if c.Resolver.Timeout <= 0 {
		return invalid("resolver timeout %v must be positive", c.Resolver.Timeout)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func (c *Config) staticHosts() (map[string][]netip.Addr, error) {
	hosts := make(map[string][]netip.Addr, len(c.Resolver.Hosts))
	names := make([]string, 0, len(c.Resolver.Hosts))
	for name := range c.Resolver.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, s := range c.Resolver.Hosts[name] {
			a, err := netip.ParseAddr(s)
			if err != nil {
				return nil, invalid("resolver host %s: %v", name, err)
			}
			hosts[name] = append(hosts[name], a)
		}
	}
	return hosts, nil
}

// NewResolver builds the lookup chain: the hosts table, then the DNS
// server, then the host's own resolver.
func (c *Config) NewResolver() (kernel.Resolver, error) {
	hosts, err := c.staticHosts()
	if err != nil {
		return nil, err
	}
	static := kernel.NewStaticResolver(hosts)
	chain := kernel.ChainResolver{static}
	if c.Resolver.DNSServer != "" {
		chain = append(chain, kernel.NewDNSResolver(c.Resolver.DNSServer, c.Resolver.Timeout))
	}
	if c.Resolver.UseSystem {
		chain = append(chain, kernel.NewSystemResolver())
	}
	if len(chain) == 1 {
		return static, nil
	}
	return chain, nil
}

// Database returns the passwd and group files guest programs read.
func (c *Config) Database() pwd.Database {
	return pwd.Database{PasswdFile: c.PasswdFile, GroupFile: c.GroupFile}
}
