// Package kernel serves numbered guest syscalls against the host: a process
// table, per-process descriptor tables over host files, pipes and sockets,
// and the resolvers behind the guest's host lookups.
//
// The kernel implements syscallabi.Dispatcher. A syscall runs on the
// goroutine of the guest context that issued it; kernel state is guarded by
// a single mutex that is released while a call blocks.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kmrgirish/guestsys/internal/execcache"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

// A Program is a guest executable. It returns the process exit status.
// ctx carries the process's main execution context.
type Program func(ctx context.Context, argv []string, env []string) int

// Options configure a Kernel.
type Options struct {
	// Root is the host directory serving the guest's "/".
	Root string
	// Cwd is the working directory of spawned processes. Empty means "/".
	Cwd string
	// Hostname is reported by sysctl kern.hostname. Empty means the host's
	// name.
	Hostname string
	// MaxProcs bounds the process table.
	MaxProcs int

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Programs *Registry
	Resolver Resolver
	// ResolverTimeout bounds a single host or address lookup.
	ResolverTimeout time.Duration
	// ExecCache, if set, remembers the interpreter lines of #! scripts.
	ExecCache *execcache.Cache

	Logger *slog.Logger
	// Tracer, if set, receives one record per syscall.
	Tracer *zap.Logger
}

const (
	defaultMaxProcs        = 255
	defaultResolverTimeout = 5 * time.Second
)

var ErrNoProgram = errors.New("no such program")

type Kernel struct {
	opts   Options
	root   string
	logger *slog.Logger
	tracer *zap.Logger
	inodes *inodeCache

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu      sync.Mutex
	cond    *sync.Cond
	procs   map[int]*Proc
	nextPID int
	stdio   [3]*openFile
}

// New creates a kernel. It starts no processes.
func New(opts Options) (*Kernel, error) {
	if opts.Root == "" {
		return nil, errors.New("kernel: no root directory")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("kernel: root: %w", err)
	}
	st, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("kernel: root: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("kernel: root %s is not a directory", root)
	}

	if opts.Cwd == "" {
		opts.Cwd = "/"
	}
	opts.Cwd = normalizePath("/", opts.Cwd)
	if st, err := os.Stat(filepath.Join(root, filepath.FromSlash(opts.Cwd))); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("kernel: cwd %s is not a directory under %s", opts.Cwd, root)
	}

	if opts.MaxProcs <= 0 {
		opts.MaxProcs = defaultMaxProcs
	}
	if opts.ResolverTimeout <= 0 {
		opts.ResolverTimeout = defaultResolverTimeout
	}
	if opts.Programs == nil {
		opts.Programs = NewRegistry()
	}
	if opts.Resolver == nil {
		opts.Resolver = NewStaticResolver(nil)
	}
	if opts.Stdin == nil {
		opts.Stdin = eofReader{}
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	k := &Kernel{
		opts:    opts,
		root:    root,
		logger:  logger,
		tracer:  opts.Tracer,
		inodes:  newInodeCache(inodeCacheSize),
		procs:   make(map[int]*Proc),
		nextPID: 1,
	}
	k.cond = sync.NewCond(&k.mu)
	k.ctx, k.cancel = context.WithCancel(context.Background())

	k.stdio[0] = newOpenFile(&stdioFile{r: opts.Stdin}, syscallabi.O_RDONLY)
	k.stdio[1] = newOpenFile(&stdioFile{w: opts.Stdout}, syscallabi.O_WRONLY)
	k.stdio[2] = newOpenFile(&stdioFile{w: opts.Stderr}, syscallabi.O_WRONLY)
	return k, nil
}

// Spawn starts a new process running the program at path with fds 0-2
// attached to the kernel's standard streams.
func (k *Kernel) Spawn(path string, argv []string, env []string) (*Proc, error) {
	if len(argv) == 0 {
		argv = []string{path}
	}

	env = withDefaultEnv(env)
	img, errno := k.resolveExec(k.opts.Cwd, path, argv, env)
	if errno == syscallabi.ENOENT {
		return nil, fmt.Errorf("spawn %s: %w", path, ErrNoProgram)
	} else if errno != 0 {
		return nil, fmt.Errorf("spawn %s: %w", path, errno)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	p, errno := k.newProcLocked(nil, k.opts.Cwd, env)
	if errno != 0 {
		return nil, fmt.Errorf("spawn %s: %w", path, errno)
	}
	p.host = true
	for fd, of := range k.stdio {
		of.refs++
		p.files[fd] = &fdEntry{of: of}
	}
	k.start(p, img)
	return p, nil
}

// Wait blocks until a process started by Spawn exits and returns its
// status.
func (k *Kernel) Wait(p *Proc) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	for p.state == procRunning {
		k.cond.Wait()
	}
	if p.state == procZombie {
		p.state = procReaped
		delete(k.procs, p.pid)
	}
	return p.status
}

// Close waits for every process goroutine to return.
func (k *Kernel) Close() error {
	err := k.group.Wait()
	k.cancel()
	return err
}

// Pids returns the pids of live and zombie processes.
func (k *Kernel) Pids() []int {
	k.mu.Lock()
	defer k.mu.Unlock()
	pids := make([]int, 0, len(k.procs))
	for pid := range k.procs {
		pids = append(pids, pid)
	}
	return pids
}

func (k *Kernel) hostname() string {
	if k.opts.Hostname != "" {
		return k.opts.Hostname
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "darkstar"
}

// warnf writes a diagnostic to the guest's stderr, falling back to the
// host log when fd 2 is closed.
func (p *Proc) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	f, errno := p.file(2)
	if errno == 0 {
		f.write([]byte(msg + "\n"))
		return
	}
	p.k.logger.Warn(msg, "pid", p.pid)
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
