package kernel

import (
	"context"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/kmrgirish/guestsys/internal/reent"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

type procState int

const (
	procRunning procState = iota
	procZombie
	procReaped
)

// An image is a program ready to run in a process.
type image struct {
	prog Program
	argv []string
	env  []string
}

// A Proc is a guest process. All mutable fields are guarded by the kernel
// mutex.
type Proc struct {
	k   *Kernel
	pid int
	// host is set for processes started by Spawn; they stay in the table
	// until Wait reaps them.
	host bool

	parent   *Proc
	children map[int]*Proc
	exited   []*Proc
	cwd      string
	env      []string
	files    [syscallabi.OpenMax]*fdEntry

	state  procState
	status int

	// pending is set when the process must terminate with pendingStatus
	// at its next syscall.
	pending       bool
	pendingStatus int
}

// Pid returns the process id.
func (p *Proc) Pid() int {
	return p.pid
}

func (k *Kernel) newProcLocked(parent *Proc, cwd string, env []string) (*Proc, syscallabi.Errno) {
	max := k.opts.MaxProcs
	if len(k.procs) >= max {
		return nil, syscallabi.ENOMEM
	}
	pid := k.nextPID
	for {
		if _, ok := k.procs[pid]; !ok {
			break
		}
		pid++
		if pid > max {
			pid = 1
		}
	}
	k.nextPID = pid + 1
	if k.nextPID > max {
		k.nextPID = 1
	}

	p := &Proc{
		k:        k,
		pid:      pid,
		parent:   parent,
		children: make(map[int]*Proc),
		cwd:      cwd,
		env:      env,
	}
	k.procs[pid] = p
	if parent != nil {
		parent.children[pid] = p
	}
	return p, 0
}

func (k *Kernel) start(p *Proc, img *image) {
	k.group.Go(func() error {
		k.run(p, img)
		return nil
	})
}

// run executes images in p until one exits without replacing itself.
func (k *Kernel) run(p *Proc, img *image) {
	for {
		r := reent.New(k, p)
		next, status := k.runImage(p, r, img)
		if next == nil {
			k.exit(p, status)
			return
		}
		img = next
	}
}

func (k *Kernel) runImage(p *Proc, r *reent.Reent, img *image) (next *image, status int) {
	defer func() {
		switch v := recover().(type) {
		case nil:
		case syscallabi.Exit:
			status = v.Status
		case *image:
			next = v
		default:
			k.logger.Error("guest program crashed", "pid", p.pid, "err", v, "stack", string(debug.Stack()))
			status = 128 + syscallabi.SIGABRT
		}
	}()
	ctx := reent.NewContext(k.ctx, r)
	return nil, img.prog(ctx, img.argv, img.env)
}

func (k *Kernel) exit(p *Proc, status int) {
	k.mu.Lock()
	if p.pending {
		status = p.pendingStatus
	}
	p.status = status & 0xff
	p.state = procZombie

	for _, c := range p.children {
		c.parent = nil
	}
	for _, c := range p.exited {
		c.state = procReaped
		delete(k.procs, c.pid)
	}
	p.children, p.exited = nil, nil

	if parent := p.parent; parent != nil {
		delete(parent.children, p.pid)
		parent.exited = append(parent.exited, p)
	} else if !p.host {
		p.state = procReaped
		delete(k.procs, p.pid)
	}

	var closing []*openFile
	for fd, e := range p.files {
		if e == nil {
			continue
		}
		p.files[fd] = nil
		if of := releaseLocked(e.of); of != nil {
			closing = append(closing, of)
		}
	}
	k.cond.Broadcast()
	k.mu.Unlock()

	for _, of := range closing {
		of.f.close()
	}
}

// checkPending unwinds the calling context if its process was killed or
// has already exited.
func (p *Proc) checkPending() {
	k := p.k
	k.mu.Lock()
	pending, status := p.pending, p.pendingStatus
	if p.state != procRunning {
		pending, status = true, p.status
	}
	k.mu.Unlock()
	if pending {
		panic(syscallabi.Exit{Status: status})
	}
}

func sysexit(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	status := s.Int0 & 0xff
	if s.Tid != 1 {
		// Another thread: the main context unwinds at its next syscall.
		k := p.k
		k.mu.Lock()
		if !p.pending {
			p.pending = true
			p.pendingStatus = status
		}
		k.cond.Broadcast()
		k.mu.Unlock()
	}
	panic(syscallabi.Exit{Status: status})
}

func sysgetpid(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	return p.pid, 0
}

func sysgetppid(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	p.k.mu.Lock()
	defer p.k.mu.Unlock()
	if p.parent != nil {
		return p.parent.pid, 0
	}
	if p.pid == 1 {
		return 0, 0
	}
	return 1, 0
}

func sysfork(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	cont, ok := s.Ptr0.(func(context.Context) int)
	if !ok || cont == nil {
		return 0, syscallabi.EINVAL
	}

	k := p.k
	k.mu.Lock()
	defer k.mu.Unlock()

	child, errno := k.newProcLocked(p, p.cwd, slices.Clone(p.env))
	if errno != 0 {
		return 0, errno
	}
	for fd, e := range p.files {
		if e == nil {
			continue
		}
		e.of.refs++
		child.files[fd] = &fdEntry{of: e.of, cloexec: e.cloexec}
	}
	k.start(child, &image{
		prog: func(ctx context.Context, argv, env []string) int {
			return cont(ctx)
		},
		env: child.env,
	})
	return child.pid, 0
}

func sysexec(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	if s.Tid != 1 {
		return 0, syscallabi.EINVAL
	}
	path, _ := s.Ptr0.(string)
	argv, _ := s.Ptr1.([]string)
	env, _ := s.Ptr2.([]string)

	k := p.k
	k.mu.Lock()
	cwd := p.cwd
	if env == nil {
		env = p.env
	}
	k.mu.Unlock()

	img, errno := k.resolveExec(cwd, path, argv, env)
	if errno != 0 {
		return 0, errno
	}

	k.mu.Lock()
	var closing []*openFile
	for fd, e := range p.files {
		if e == nil || !e.cloexec {
			continue
		}
		p.files[fd] = nil
		if of := releaseLocked(e.of); of != nil {
			closing = append(closing, of)
		}
	}
	p.env = img.env
	k.mu.Unlock()
	for _, of := range closing {
		of.f.close()
	}

	panic(img)
}

func syswaitpid(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	pid, options := s.Int0, s.Int1
	status, _ := s.Ptr0.(*int)

	if options&^syscallabi.WNOHANG != 0 {
		return 0, syscallabi.EINVAL
	}
	if pid == 0 || pid < -1 {
		p.warnf("WARNING: waitpid called with a pid of %d", pid)
		return 0, syscallabi.ECHILD
	}

	r, errno, killed := p.waitChild(pid, options, status)
	if killed {
		p.checkPending()
	}
	return r, errno
}

func (p *Proc) waitChild(pid, options int, status *int) (int, syscallabi.Errno, bool) {
	k := p.k
	k.mu.Lock()
	defer k.mu.Unlock()
	for {
		if p.pending {
			return 0, 0, true
		}

		idx := -1
		if pid == -1 {
			idx = len(p.exited) - 1
		} else {
			idx = slices.IndexFunc(p.exited, func(c *Proc) bool { return c.pid == pid })
		}
		if idx >= 0 {
			c := p.exited[idx]
			p.exited = slices.Delete(p.exited, idx, idx+1)
			c.state = procReaped
			delete(k.procs, c.pid)
			if status != nil {
				*status = c.status << 8
			}
			return c.pid, 0, false
		}

		if pid == -1 {
			if len(p.children) == 0 {
				if options&syscallabi.WNOHANG != 0 {
					return 0, 0, false
				}
				return 0, syscallabi.ECHILD, false
			}
		} else if _, ok := p.children[pid]; !ok {
			return 0, syscallabi.ECHILD, false
		}

		if options&syscallabi.WNOHANG != 0 {
			return 0, 0, false
		}
		k.cond.Wait()
	}
}

// ignoredSignals never terminate a process.
var ignoredSignals = map[int]bool{
	syscallabi.SIGSTOP:  true,
	syscallabi.SIGTSTP:  true,
	syscallabi.SIGCONT:  true,
	syscallabi.SIGCHLD:  true,
	syscallabi.SIGTTIN:  true,
	syscallabi.SIGTTOU:  true,
	syscallabi.SIGIO:    true,
	syscallabi.SIGWINCH: true,
}

func syskill(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	pid, sig := s.Int0, s.Int1
	if sig < 0 || sig >= syscallabi.NSIG {
		return 0, syscallabi.EINVAL
	}

	k := p.k
	k.mu.Lock()
	target, ok := k.procs[pid]
	if !ok || target.state != procRunning {
		k.mu.Unlock()
		return 0, syscallabi.ESRCH
	}
	if sig == 0 || ignoredSignals[sig] {
		k.mu.Unlock()
		return 0, 0
	}
	if !target.pending {
		target.pending = true
		target.pendingStatus = 128 + sig
	}
	k.cond.Broadcast()
	k.mu.Unlock()

	if target == p {
		panic(syscallabi.Exit{Status: 128 + sig})
	}
	return 0, 0
}

var defaultEnv = []string{
	"USER=root",
	"HOME=/",
	"SHELL=/bin/sh",
	"TERM=dumb",
	"PATH=/bin:/usr/bin",
}

// withDefaultEnv returns env with defaults appended for unset variables.
func withDefaultEnv(env []string) []string {
	out := slices.Clone(env)
	for _, kv := range defaultEnv {
		name, _, _ := strings.Cut(kv, "=")
		if !slices.ContainsFunc(out, func(s string) bool { return strings.HasPrefix(s, name+"=") }) {
			out = append(out, kv)
		}
	}
	return out
}
