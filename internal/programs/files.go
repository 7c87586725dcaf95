package programs

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kmrgirish/guestsys/internal/dirstream"
	"github.com/kmrgirish/guestsys/internal/libc"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

const copySize = 4096

// copyFd copies src to dst until end of file.
func copyFd(ctx context.Context, dst, src int) bool {
	buf := make([]byte, copySize)
	for {
		n := libc.Read(ctx, src, buf)
		if n < 0 {
			return false
		}
		if n == 0 {
			return true
		}
		for b := buf[:n]; len(b) > 0; {
			w := libc.Write(ctx, dst, b)
			if w < 0 {
				return false
			}
			b = b[w:]
		}
	}
}

func catMain(ctx context.Context, argv, env []string) int {
	files := argv[1:]
	if len(files) == 0 {
		files = []string{"-"}
	}
	status := 0
	for _, name := range files {
		fd := 0
		if name != "-" {
			fd = libc.Open(ctx, name, syscallabi.O_RDONLY, 0)
			if fd < 0 {
				warn(ctx, argv, "%s: %v", name, libc.Errno(ctx))
				status = 1
				continue
			}
		}
		if !copyFd(ctx, 1, fd) {
			warn(ctx, argv, "%s: %v", name, libc.Errno(ctx))
			status = 1
		}
		if fd != 0 {
			libc.Close(ctx, fd)
		}
	}
	return status
}

type lsFlags struct {
	all    bool
	inodes bool
}

func lsMain(ctx context.Context, argv, env []string) int {
	var flags lsFlags
	var paths []string
	for _, arg := range argv[1:] {
		if len(arg) < 2 || arg[0] != '-' {
			paths = append(paths, arg)
			continue
		}
		for _, c := range arg[1:] {
			switch c {
			case 'a':
				flags.all = true
			case 'i':
				flags.inodes = true
			default:
				warn(ctx, argv, "unknown option -%c", c)
				return 2
			}
		}
	}
	if len(paths) == 0 {
		paths = []string{"."}
	}

	status := 0
	for i, path := range paths {
		if len(paths) > 1 {
			if i > 0 {
				libc.Write(ctx, 1, []byte("\n"))
			}
			libc.Fprintf(ctx, 1, "%s:\n", path)
		}
		if !lsPath(ctx, argv, path, flags) {
			status = 1
		}
	}
	return status
}

func lsPath(ctx context.Context, argv []string, path string, flags lsFlags) bool {
	var st syscallabi.Stat
	if libc.Stat(ctx, path, &st) < 0 {
		warn(ctx, argv, "%s: %v", path, libc.Errno(ctx))
		return false
	}
	if !st.IsDir() {
		lsLine(ctx, path, st.Ino, flags)
		return true
	}

	d := dirstream.Opendir(ctx, path)
	if d == nil {
		warn(ctx, argv, "%s: %v", path, libc.Errno(ctx))
		return false
	}
	defer dirstream.Closedir(ctx, d)

	var entries []dirstream.Entry
	for e := dirstream.Readdir(ctx, d); e != nil; e = dirstream.Readdir(ctx, d) {
		if !flags.all && strings.HasPrefix(e.Name, ".") {
			continue
		}
		entries = append(entries, *e)
	}
	if errno := libc.Errno(ctx); errno != 0 {
		warn(ctx, argv, "%s: %v", path, errno)
		return false
	}
	slices.SortFunc(entries, func(a, b dirstream.Entry) int { return strings.Compare(a.Name, b.Name) })
	for _, e := range entries {
		lsLine(ctx, e.Name, e.Ino, flags)
	}
	return true
}

func lsLine(ctx context.Context, name string, ino uint32, flags lsFlags) {
	line := name
	if flags.inodes {
		line = fmt.Sprintf("%d %s", ino, name)
	}
	libc.Write(ctx, 1, []byte(line+"\n"))
}

func pwdMain(ctx context.Context, argv, env []string) int {
	cwd := libc.Getcwd(ctx, nil)
	if cwd == nil {
		warn(ctx, argv, "%v", libc.Errno(ctx))
		return 1
	}
	libc.Fprintf(ctx, 1, "%s\n", libc.CString(cwd))
	return 0
}
