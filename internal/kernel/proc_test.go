package kernel_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kmrgirish/guestsys/internal/execcache"
	"github.com/kmrgirish/guestsys/internal/kernel"
	"github.com/kmrgirish/guestsys/internal/kerneltest"
	"github.com/kmrgirish/guestsys/internal/libc"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

func TestExitStatus(t *testing.T) {
	res := kerneltest.Run(t, kernel.Options{}, func(ctx context.Context) int {
		libc.Exit(ctx, 3)
		return 0
	})
	if res.Status != 3 {
		t.Errorf("status = %d, want 3", res.Status)
	}

	res = kerneltest.Run(t, kernel.Options{}, func(ctx context.Context) int {
		panic("boom")
	})
	if res.Status != 128+syscallabi.SIGABRT {
		t.Errorf("crashed program status = %d", res.Status)
	}
}

func TestForkWait(t *testing.T) {
	var parentPid, childPid, childSawPid, childSawPpid, reaped, status int
	kerneltest.Run(t, kernel.Options{}, func(ctx context.Context) int {
		parentPid = libc.Getpid(ctx)
		childPid = libc.Fork(ctx, func(ctx context.Context) int {
			childSawPid = libc.Getpid(ctx)
			childSawPpid = libc.Getppid(ctx)
			return 7
		})
		reaped = libc.Waitpid(ctx, childPid, &status, 0)
		return 0
	})

	if childPid <= 0 || childPid == parentPid {
		t.Fatalf("fork returned %d in parent %d", childPid, parentPid)
	}
	if reaped != childPid {
		t.Errorf("waitpid = %d, want %d", reaped, childPid)
	}
	if got := libc.WEXITSTATUS(status); got != 7 {
		t.Errorf("exit status = %d, want 7", got)
	}
	if childSawPid != childPid || childSawPpid != parentPid {
		t.Errorf("child saw pid %d ppid %d", childSawPid, childSawPpid)
	}
}

func TestWaitErrors(t *testing.T) {
	var results []int
	var errnos []syscallabi.Errno
	record := func(ctx context.Context, r int) {
		results = append(results, r)
		errnos = append(errnos, libc.Errno(ctx))
		libc.SetErrno(ctx, 0)
	}
	kerneltest.Run(t, kernel.Options{}, func(ctx context.Context) int {
		var status int
		record(ctx, libc.Wait(ctx, &status))
		record(ctx, libc.Waitpid(ctx, 0, &status, 0))
		record(ctx, libc.Waitpid(ctx, -1, &status, syscallabi.WNOHANG))

		var fds [2]int
		libc.Pipe(ctx, &fds)
		child := libc.Fork(ctx, func(ctx context.Context) int {
			// Block until the parent closes the write end.
			libc.Close(ctx, fds[1])
			libc.Read(ctx, fds[0], make([]byte, 1))
			return 0
		})
		record(ctx, libc.Waitpid(ctx, child, &status, syscallabi.WNOHANG))
		libc.Close(ctx, fds[1])
		record(ctx, libc.Wait(ctx, &status) - child)
		return 0
	})

	wantResults := []int{-1, -1, 0, 0, 0}
	wantErrnos := []syscallabi.Errno{syscallabi.ECHILD, syscallabi.ECHILD, 0, 0, 0}
	if diff := cmp.Diff(wantResults, results); diff != "" {
		t.Errorf("results (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantErrnos, errnos); diff != "" {
		t.Errorf("errnos (-want +got):\n%s", diff)
	}
}

func TestKill(t *testing.T) {
	var probe, ignored, badSig, missing int
	var badSigErrno, missingErrno syscallabi.Errno
	var status int
	kerneltest.Run(t, kernel.Options{}, func(ctx context.Context) int {
		self := libc.Getpid(ctx)
		probe = libc.Kill(ctx, self, 0)
		ignored = libc.Kill(ctx, self, syscallabi.SIGCHLD)
		badSig = libc.Kill(ctx, self, 40)
		badSigErrno = libc.Errno(ctx)
		missing = libc.Kill(ctx, 200, syscallabi.SIGTERM)
		missingErrno = libc.Errno(ctx)

		child := libc.Fork(ctx, func(ctx context.Context) int {
			for {
				libc.Usleep(ctx, 1000)
			}
		})
		libc.Kill(ctx, child, syscallabi.SIGTERM)
		libc.Waitpid(ctx, child, &status, 0)
		return 0
	})

	if probe != 0 || ignored != 0 {
		t.Errorf("probe = %d, ignored signal = %d", probe, ignored)
	}
	if badSig != -1 || badSigErrno != syscallabi.EINVAL {
		t.Errorf("signal 40: %d, %v", badSig, badSigErrno)
	}
	if missing != -1 || missingErrno != syscallabi.ESRCH {
		t.Errorf("missing pid: %d, %v", missing, missingErrno)
	}
	if got := libc.WEXITSTATUS(status); got != 128+syscallabi.SIGTERM {
		t.Errorf("killed child status = %d", got)
	}
}

func TestRaiseTerminates(t *testing.T) {
	after := false
	res := kerneltest.Run(t, kernel.Options{}, func(ctx context.Context) int {
		libc.Raise(ctx, syscallabi.SIGINT)
		after = true
		return 0
	})
	if after {
		t.Error("execution continued after raise")
	}
	if res.Status != 128+syscallabi.SIGINT {
		t.Errorf("status = %d", res.Status)
	}
}

func TestOrphanParent(t *testing.T) {
	var ppid int
	kerneltest.Run(t, kernel.Options{}, func(ctx context.Context) int {
		var fds [2]int
		libc.Pipe(ctx, &fds)
		mid := libc.Fork(ctx, func(ctx context.Context) int {
			libc.Fork(ctx, func(ctx context.Context) int {
				libc.Read(ctx, fds[0], make([]byte, 1))
				ppid = libc.Getppid(ctx)
				libc.Write(ctx, fds[1], []byte{1})
				return 0
			})
			return 0
		})
		var status int
		libc.Waitpid(ctx, mid, &status, 0)
		// The grandchild is now an orphan.
		libc.Write(ctx, fds[1], []byte{0})
		return 0
	})
	if ppid != 1 {
		t.Errorf("orphan getppid = %d, want 1", ppid)
	}
}

func TestEnvironment(t *testing.T) {
	reg := kernel.NewRegistry()
	var env []string
	reg.Register("/bin/env", func(ctx context.Context, argv, e []string) int {
		env = e
		return 0
	})
	k, err := kernel.New(kernel.Options{Root: t.TempDir(), Programs: reg})
	if err != nil {
		t.Fatal(err)
	}
	p, err := k.Spawn("/bin/env", nil, []string{"HOME=/home/alice", "LANG=C"})
	if err != nil {
		t.Fatal(err)
	}
	k.Wait(p)
	k.Close()

	want := []string{"HOME=/home/alice", "LANG=C", "USER=root", "SHELL=/bin/sh", "TERM=dumb", "PATH=/bin:/usr/bin"}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Errorf("env (-want +got):\n%s", diff)
	}
}

func TestSpawnUnknownProgram(t *testing.T) {
	k, err := kernel.New(kernel.Options{Root: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer k.Close()
	if _, err := k.Spawn("/bin/missing", nil, nil); !errors.Is(err, kernel.ErrNoProgram) {
		t.Errorf("spawn missing program: %v", err)
	}
}

func TestMaxProcs(t *testing.T) {
	var first, second int
	var errno syscallabi.Errno
	kerneltest.Run(t, kernel.Options{MaxProcs: 2}, func(ctx context.Context) int {
		var fds [2]int
		libc.Pipe(ctx, &fds)
		first = libc.Fork(ctx, func(ctx context.Context) int {
			libc.Close(ctx, fds[1])
			libc.Read(ctx, fds[0], make([]byte, 1))
			return 0
		})
		second = libc.Fork(ctx, func(ctx context.Context) int { return 0 })
		errno = libc.Errno(ctx)
		libc.Close(ctx, fds[1])
		var status int
		libc.Wait(ctx, &status)
		return 0
	})
	if first <= 0 || second != -1 || errno != syscallabi.ENOMEM {
		t.Errorf("forks = %d, %d (%v)", first, second, errno)
	}
}

func writeScript(t *testing.T, root, guest, content string) {
	t.Helper()
	host := filepath.Join(root, guest)
	if err := os.MkdirAll(filepath.Dir(host), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(host, []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestExec(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "bin/script", "#!/bin/interp -x 'two words'\necho hi\n")
	writeScript(t, root, "bin/data", "just text\n")

	reg := kernel.NewRegistry()
	var argv []string
	var inheritedEnv []string
	reg.Register("/bin/interp", func(ctx context.Context, a, env []string) int {
		argv = a
		inheritedEnv = env
		return 5
	})

	var missing, notScript syscallabi.Errno
	res := kerneltest.Run(t, kernel.Options{Root: root, Programs: reg}, func(ctx context.Context) int {
		if libc.Execve(ctx, "/bin/missing", nil, nil) < 0 {
			missing = libc.Errno(ctx)
		}
		if libc.Execve(ctx, "/bin/data", nil, nil) < 0 {
			notScript = libc.Errno(ctx)
		}
		libc.Execve(ctx, "/bin/script", []string{"script", "arg"}, nil)
		return 99
	})

	if res.Status != 5 {
		t.Errorf("status = %d, want 5", res.Status)
	}
	if missing != syscallabi.ENOENT || notScript != syscallabi.ENOEXEC {
		t.Errorf("errors = %v, %v", missing, notScript)
	}
	if diff := cmp.Diff([]string{"/bin/interp", "-x", "two words", "/bin/script", "arg"}, argv); diff != "" {
		t.Errorf("argv (-want +got):\n%s", diff)
	}
	if len(inheritedEnv) == 0 {
		t.Error("exec with nil env dropped the environment")
	}
}

func TestExecClosesCloexec(t *testing.T) {
	reg := kernel.NewRegistry()
	var kept, closed syscallabi.Errno
	reg.Register("/bin/check", func(ctx context.Context, argv, env []string) int {
		var st syscallabi.Stat
		if libc.Fstat(ctx, 10, &st) < 0 {
			kept = libc.Errno(ctx)
		}
		if libc.Fstat(ctx, 11, &st) < 0 {
			closed = libc.Errno(ctx)
		}
		return 0
	})
	kerneltest.Run(t, kernel.Options{Programs: reg}, func(ctx context.Context) int {
		libc.Dup2(ctx, 1, 10)
		libc.Dup2(ctx, 1, 11)
		libc.Fcntl(ctx, 11, syscallabi.F_SETFD, syscallabi.FD_CLOEXEC)
		libc.Execve(ctx, "/bin/check", nil, nil)
		return 1
	})
	if kept != 0 || closed != syscallabi.EBADF {
		t.Errorf("fd 10: %v, fd 11: %v", kept, closed)
	}
}

func TestExecCache(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "bin/script", "#!/bin/interp\n")

	db, err := execcache.NewDB(filepath.Join(t.TempDir(), "exec.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	cache := execcache.NewCache(db)

	reg := kernel.NewRegistry()
	calls := 0
	reg.Register("/bin/interp", func(ctx context.Context, argv, env []string) int {
		calls++
		return 0
	})
	for range 2 {
		kerneltest.Run(t, kernel.Options{Root: root, Programs: reg, ExecCache: cache}, func(ctx context.Context) int {
			libc.Execve(ctx, "/bin/script", nil, nil)
			return 1
		})
	}
	if calls != 2 {
		t.Errorf("interpreter ran %d times", calls)
	}

	host := filepath.Join(root, "bin/script")
	st, err := os.Stat(host)
	if err != nil {
		t.Fatal(err)
	}
	interp, ok, err := cache.Lookup(host, st.ModTime(), st.Size())
	if err != nil || !ok {
		t.Fatalf("cache lookup: %v, %v", ok, err)
	}
	if diff := cmp.Diff([]string{"/bin/interp"}, interp); diff != "" {
		t.Errorf("cached interpreter (-want +got):\n%s", diff)
	}
}
