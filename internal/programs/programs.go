// Package programs holds the small guest programs the runner ships with.
// They are ordinary guest code: everything they do goes through libc and
// the libraries built on it.
package programs

import (
	"context"
	"strings"

	"github.com/kmrgirish/guestsys/internal/kernel"
	"github.com/kmrgirish/guestsys/internal/libc"
	"github.com/kmrgirish/guestsys/internal/pwd"
)

// Options configure the registered programs.
type Options struct {
	// DB is the passwd and group database read by id and getent.
	DB pwd.Database
}

type program struct {
	name string
	run  func(opts Options) kernel.Program
}

func simple(p kernel.Program) func(Options) kernel.Program {
	return func(Options) kernel.Program { return p }
}

var all = []program{
	{"true", simple(trueMain)},
	{"false", simple(falseMain)},
	{"echo", simple(echoMain)},
	{"cat", simple(catMain)},
	{"ls", simple(lsMain)},
	{"pwd", simple(pwdMain)},
	{"hostname", simple(hostnameMain)},
	{"host", simple(hostMain)},
	{"forkwait", simple(forkwaitMain)},
	{"id", idMain},
	{"getent", getentMain},
}

// Register adds every program under /bin.
func Register(reg *kernel.Registry, opts Options) {
	if opts.DB.PasswdFile == "" {
		opts.DB.PasswdFile = pwd.Default.PasswdFile
	}
	if opts.DB.GroupFile == "" {
		opts.DB.GroupFile = pwd.Default.GroupFile
	}
	for _, p := range all {
		reg.Register("/bin/"+p.name, p.run(opts))
	}
}

// Names returns the program names in registration order.
func Names() []string {
	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.name
	}
	return names
}

func progName(argv []string) string {
	if len(argv) == 0 {
		return "?"
	}
	name := argv[0]
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// warn prints "prog: msg" to stderr.
func warn(ctx context.Context, argv []string, format string, args ...any) {
	libc.Fprintf(ctx, 2, "%s: "+format+"\n", append([]any{progName(argv)}, args...)...)
}

func trueMain(ctx context.Context, argv, env []string) int {
	return 0
}

func falseMain(ctx context.Context, argv, env []string) int {
	return 1
}

func echoMain(ctx context.Context, argv, env []string) int {
	args := argv[1:]
	newline := true
	if len(args) > 0 && args[0] == "-n" {
		newline = false
		args = args[1:]
	}
	out := strings.Join(args, " ")
	if newline {
		out += "\n"
	}
	if libc.Write(ctx, 1, []byte(out)) < 0 {
		return 1
	}
	return 0
}
