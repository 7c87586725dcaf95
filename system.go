package guestsys

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.uber.org/zap"

	"github.com/kmrgirish/guestsys/internal/config"
	"github.com/kmrgirish/guestsys/internal/execcache"
	"github.com/kmrgirish/guestsys/internal/kernel"
	"github.com/kmrgirish/guestsys/internal/logging"
	"github.com/kmrgirish/guestsys/internal/programs"
)

// Stdio holds the host streams behind a guest's descriptors 0, 1 and 2.
// Log, if set, receives host-side log records.
type Stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Log    io.Writer
}

// A System is a kernel with the bundled programs registered. Programs run
// one after another share its process table, caches and resolver.
type System struct {
	kernel *kernel.Kernel
	logger *slog.Logger
	tracer *zap.Logger
	cache  *execcache.DB
	env    []string
}

// New validates cfg and builds a System from it.
func New(cfg *config.Config, stdio Stdio) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	format, _ := logging.ParseFormat(cfg.LogFormat)
	logOut := stdio.Log
	if logOut == nil {
		logOut = io.Discard
	}
	s := &System{
		logger: logging.New(logOut, level, format),
	}

	var err error
	if cfg.Trace {
		if s.tracer, err = logging.NewTracer(s.logger); err != nil {
			return nil, fmt.Errorf("guestsys: tracer: %w", err)
		}
	}

	resolver, err := cfg.NewResolver()
	if err != nil {
		return nil, err
	}

	reg := kernel.NewRegistry()
	programs.Register(reg, programs.Options{DB: cfg.Database()})

	opts := kernel.Options{
		Root:            cfg.Root,
		Cwd:             cfg.Cwd,
		Hostname:        cfg.Hostname,
		MaxProcs:        cfg.MaxProcs,
		Stdin:           stdio.Stdin,
		Stdout:          stdio.Stdout,
		Stderr:          stdio.Stderr,
		Programs:        reg,
		Resolver:        resolver,
		ResolverTimeout: cfg.Resolver.Timeout,
		Logger:          s.logger,
		Tracer:          s.tracer,
	}
	if cfg.ExecCache != "" {
		if s.cache, err = execcache.NewDB(cfg.ExecCache); err != nil {
			return nil, fmt.Errorf("guestsys: exec cache: %w", err)
		}
		opts.ExecCache = execcache.NewCache(s.cache)
	}

	if s.kernel, err = kernel.New(opts); err != nil {
		s.closeCache()
		return nil, err
	}
	s.env = cfg.Env
	return s, nil
}

func (s *System) closeCache() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

// Run starts the program at path and waits for it. The returned status is
// the guest's exit status; err is set only when the program could not be
// started.
func (s *System) Run(path string, argv []string) (int, error) {
	p, err := s.kernel.Spawn(path, argv, s.env)
	if err != nil {
		return 0, err
	}
	status := s.kernel.Wait(p)
	s.logger.Debug("program exited", "path", path, "status", status)
	return status, nil
}

// Close waits for every guest process and releases the exec cache.
func (s *System) Close() error {
	err := s.kernel.Close()
	if s.tracer != nil {
		// Sync fails on writers that cannot sync, like a pipe.
		_ = s.tracer.Sync()
	}
	return errors.Join(err, s.closeCache())
}

// Programs returns the paths of the bundled programs.
func Programs() []string {
	reg := kernel.NewRegistry()
	programs.Register(reg, programs.Options{})
	return reg.Paths()
}

// ErrNoProgram is returned by Run for a path with no registered program
// and no script behind it.
var ErrNoProgram = kernel.ErrNoProgram
