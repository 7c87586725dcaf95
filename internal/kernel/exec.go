package kernel

import (
	"bufio"
	"bytes"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/anmitsu/go-shlex"

	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

// A Registry maps guest paths to programs.
type Registry struct {
	mu       sync.RWMutex
	programs map[string]Program
}

func NewRegistry() *Registry {
	return &Registry{programs: make(map[string]Program)}
}

// Register makes prog executable at the absolute guest path.
func (r *Registry) Register(path string, prog Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[normalizePath("/", path)] = prog
}

func (r *Registry) Lookup(path string) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	prog, ok := r.programs[path]
	return prog, ok
}

// Paths returns the registered paths in sorted order.
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.programs))
	for p := range r.programs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// maxInterpDepth bounds #! chains.
const maxInterpDepth = 4

// resolveExec finds the program behind path. A registered program runs
// directly; a host file starting with #! is run through its interpreter
// with the script path inserted after the interpreter's arguments.
func (k *Kernel) resolveExec(cwd, path string, argv, env []string) (*image, syscallabi.Errno) {
	if path == "" {
		return nil, syscallabi.ENOENT
	}
	guest := normalizePath(cwd, path)
	argv = slices.Clone(argv)
	if len(argv) == 0 {
		argv = []string{path}
	}

	for range maxInterpDepth {
		if prog, ok := k.opts.Programs.Lookup(guest); ok {
			return &image{prog: prog, argv: argv, env: slices.Clone(env)}, 0
		}
		interp, errno := k.interpreter(guest)
		if errno != 0 {
			return nil, errno
		}
		argv = append(append(slices.Clone(interp), guest), argv[1:]...)
		guest = normalizePath(cwd, interp[0])
	}
	return nil, syscallabi.ELOOP
}

// interpreter returns the #! line of the host file at guest, split into
// words.
func (k *Kernel) interpreter(guest string) ([]string, syscallabi.Errno) {
	if isDevPath(guest) {
		return nil, syscallabi.EACCES
	}
	host := k.hostPath(guest)
	st, err := os.Stat(host)
	if err != nil {
		return nil, syscallabi.FromHost(err)
	}
	if st.IsDir() {
		return nil, syscallabi.EACCES
	}

	if c := k.opts.ExecCache; c != nil {
		interp, ok, err := c.Lookup(host, st.ModTime(), st.Size())
		if err != nil {
			k.logger.Warn("exec cache lookup failed", "path", host, "err", err)
		} else if ok {
			return interp, 0
		}
	}

	f, err := os.Open(host)
	if err != nil {
		return nil, syscallabi.FromHost(err)
	}
	defer f.Close()

	line, err := bufio.NewReaderSize(f, 256).ReadSlice('\n')
	if len(line) < 2 || !bytes.HasPrefix(line, []byte("#!")) {
		return nil, syscallabi.ENOEXEC
	}
	if err != nil && len(line) >= 256 {
		return nil, syscallabi.ENAMETOOLONG
	}
	words, err := shlex.Split(strings.TrimSpace(string(line[2:])), true)
	if err != nil || len(words) == 0 {
		return nil, syscallabi.ENOEXEC
	}

	if c := k.opts.ExecCache; c != nil {
		if err := c.Store(host, st.ModTime(), st.Size(), words); err != nil {
			k.logger.Warn("exec cache store failed", "path", host, "err", err)
		}
	}
	return words, 0
}
