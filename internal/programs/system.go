package programs

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/kmrgirish/guestsys/internal/kernel"
	"github.com/kmrgirish/guestsys/internal/libc"
	"github.com/kmrgirish/guestsys/internal/netdb"
	"github.com/kmrgirish/guestsys/internal/pwd"
	"github.com/kmrgirish/guestsys/internal/reent"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

func hostnameMain(ctx context.Context, argv, env []string) int {
	buf := make([]byte, netdb.MaxHostName)
	if libc.Gethostname(ctx, buf) < 0 {
		warn(ctx, argv, "%v", libc.Errno(ctx))
		return 1
	}
	libc.Fprintf(ctx, 1, "%s\n", libc.CString(buf))
	return 0
}

// hostMain resolves each argument: addresses in reverse, names forward.
func hostMain(ctx context.Context, argv, env []string) int {
	if len(argv) < 2 {
		warn(ctx, argv, "usage: host name|address ...")
		return 2
	}
	status := 0
	for _, arg := range argv[1:] {
		if addr, err := netip.ParseAddr(arg); err == nil && addr.Is4() {
			a4 := addr.As4()
			h := netdb.Gethostbyaddr(ctx, a4[:], syscallabi.AF_INET)
			if h == nil {
				warn(ctx, argv, "%s: %s", arg, netdb.Hstrerror(netdb.HErrno(ctx)))
				status = 1
				continue
			}
			libc.Fprintf(ctx, 1, "%s domain name pointer %s\n", arg, h.Name)
			continue
		}

		h := netdb.Gethostbyname(ctx, arg)
		if h == nil {
			warn(ctx, argv, "%s: %s", arg, netdb.Hstrerror(netdb.HErrno(ctx)))
			status = 1
			continue
		}
		for i := range h.Addrs {
			libc.Fprintf(ctx, 1, "%s has address %s\n", h.Name, h.Addr(i))
		}
	}
	return status
}

func groupName(r *reent.Reent, db pwd.Database, gid int) string {
	if g := db.GetgrgidR(r, gid); g != nil {
		return fmt.Sprintf("%d(%s)", gid, g.Name)
	}
	return strconv.Itoa(gid)
}

func idMain(opts Options) kernel.Program {
	return func(ctx context.Context, argv, env []string) int {
		r := reent.FromContext(ctx)
		uid, gid := libc.GetuidR(r), libc.GetgidR(r)

		user := strconv.Itoa(uid)
		if p := opts.DB.GetpwuidR(r, uid); p != nil {
			user = fmt.Sprintf("%d(%s)", uid, p.Name)
		}
		groups := make([]int, 1)
		n := libc.GetgroupsR(r, groups)
		var names []string
		for _, g := range groups[:max(n, 0)] {
			names = append(names, groupName(r, opts.DB, g))
		}
		libc.FprintfR(r, 1, "uid=%s gid=%s groups=%s\n", user, groupName(r, opts.DB, gid), strings.Join(names, ","))
		return 0
	}
}

func formatPasswd(p *pwd.Passwd) string {
	return fmt.Sprintf("%s:%s:%d:%d:%s:%s:%s", p.Name, p.Passwd, p.Uid, p.Gid, p.Gecos, p.Dir, p.Shell)
}

func formatGroup(g *pwd.Group) string {
	return fmt.Sprintf("%s:%s:%d:%s", g.Name, g.Passwd, g.Gid, strings.Join(g.Members, ","))
}

// getentMain prints database entries: all of them, or those named by the
// keys. A key that is a number matches ids. Exit status 2 means a key was
// not found.
func getentMain(opts Options) kernel.Program {
	return func(ctx context.Context, argv, env []string) int {
		if len(argv) < 2 {
			warn(ctx, argv, "usage: getent passwd|group [key ...]")
			return 1
		}
		r := reent.FromContext(ctx)
		db, keys := argv[1], argv[2:]

		var lookup func(key string) (string, bool)
		var iterate func() []string
		switch db {
		case "passwd":
			lookup = func(key string) (string, bool) {
				var p *pwd.Passwd
				if id, err := strconv.Atoi(key); err == nil {
					p = opts.DB.GetpwuidR(r, id)
				} else {
					p = opts.DB.GetpwnamR(r, key)
				}
				if p == nil {
					return "", false
				}
				return formatPasswd(p), true
			}
			iterate = func() []string {
				var out []string
				opts.DB.SetpwentR(r)
				for p := opts.DB.GetpwentR(r); p != nil; p = opts.DB.GetpwentR(r) {
					out = append(out, formatPasswd(p))
				}
				opts.DB.EndpwentR(r)
				return out
			}
		case "group":
			lookup = func(key string) (string, bool) {
				var g *pwd.Group
				if id, err := strconv.Atoi(key); err == nil {
					g = opts.DB.GetgrgidR(r, id)
				} else {
					g = opts.DB.GetgrnamR(r, key)
				}
				if g == nil {
					return "", false
				}
				return formatGroup(g), true
			}
			iterate = func() []string {
				var out []string
				opts.DB.SetgrentR(r)
				for g := opts.DB.GetgrentR(r); g != nil; g = opts.DB.GetgrentR(r) {
					out = append(out, formatGroup(g))
				}
				opts.DB.EndgrentR(r)
				return out
			}
		default:
			warn(ctx, argv, "unknown database: %s", db)
			return 1
		}

		r.Errno = 0
		if len(keys) == 0 {
			for _, line := range iterate() {
				libc.FprintfR(r, 1, "%s\n", line)
			}
			if r.Errno != 0 {
				warn(ctx, argv, "%s: %v", db, r.Errno)
				return 1
			}
			return 0
		}

		status := 0
		for _, key := range keys {
			line, ok := lookup(key)
			if !ok {
				if r.Errno != 0 {
					warn(ctx, argv, "%s: %v", db, r.Errno)
					return 1
				}
				status = 2
				continue
			}
			libc.FprintfR(r, 1, "%s\n", line)
		}
		return status
	}
}

// forkwaitMain forks one child per argument, each exiting with that
// argument as its status, and reports the statuses in order.
func forkwaitMain(ctx context.Context, argv, env []string) int {
	pids := make([]int, 0, len(argv)-1)
	for _, arg := range argv[1:] {
		code, err := strconv.Atoi(arg)
		if err != nil {
			warn(ctx, argv, "bad status %q", arg)
			return 2
		}
		pid := libc.Fork(ctx, func(ctx context.Context) int {
			return code
		})
		if pid < 0 {
			warn(ctx, argv, "fork: %v", libc.Errno(ctx))
			return 1
		}
		pids = append(pids, pid)
	}
	for i, pid := range pids {
		var status int
		if libc.Waitpid(ctx, pid, &status, 0) < 0 {
			warn(ctx, argv, "waitpid: %v", libc.Errno(ctx))
			return 1
		}
		libc.Fprintf(ctx, 1, "child %d exited with status %d\n", i, libc.WEXITSTATUS(status))
	}
	return 0
}
