/*
Package guestsys runs guest programs on top of an emulated POSIX-like
system call surface backed by the host.

# Guests and the kernel

A guest program is an ordinary Go function registered under a path, like
/bin/cat. Guest code never touches the host directly: it calls the functions
in the libc package, which marshal arguments into a trap frame and hand it to
the kernel. The kernel implements files, directories, pipes, sockets,
processes and name lookups against a host directory that serves as the
guest's root, and reports failures the way a C library does: a -1 or nil
return value and an errno in the calling thread's error state.

Each guest thread carries its own error state (errno and h_errno), found
through its context. Concurrent guest threads never observe each other's
errors.

# Running a system

A [System] is one kernel with the bundled programs registered, built from a
[config.Config]:

	cfg := config.Default()
	cfg.Root = "/srv/guest"
	sys, err := guestsys.New(cfg, guestsys.Stdio{Stdout: os.Stdout, Stderr: os.Stderr})
	if err != nil {
		return err
	}
	defer sys.Close()
	status, err := sys.Run("/bin/ls", []string{"ls", "-a", "/"})

The guestrun command wraps the same API for the command line.

# Logging

Host-side logs are JSON slog records, optionally rendered for a terminal.
Records issued on behalf of a guest carry its pid and tid. With tracing
enabled every system call is logged with its decoded arguments and result.
*/
package guestsys
