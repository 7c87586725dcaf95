package syscallabi

import "strconv"

// A Trap is a guest syscall number.
type Trap int

const (
	SYS_null Trap = iota
	SYS_exit
	SYS_open
	SYS_close
	SYS_read
	SYS_write
	SYS_lseek
	SYS_fstat
	SYS_stat
	SYS_lstat
	SYS_isatty
	SYS_mkdir
	SYS_rmdir
	SYS_unlink
	SYS_rename
	SYS_chdir
	SYS_getcwd
	SYS_getdents
	SYS_utime
	SYS_ftruncate
	SYS_pipe
	SYS_dup
	SYS_dup2
	SYS_fcntl
	SYS_readlink
	SYS_symlink
	SYS_link
	SYS_mknod
	SYS_mkfifo
	SYS_chroot
	SYS_kill
	SYS_getpid
	SYS_getppid
	SYS_fork
	SYS_vfork
	SYS_exec
	SYS_waitpid
	SYS_gettimeofday
	SYS_usleep
	SYS_sysconf
	SYS_sysctl
	SYS_socket
	SYS_bind
	SYS_listen
	SYS_accept
	SYS_connect
	SYS_shutdown
	SYS_sendto
	SYS_recvfrom
	SYS_getsockopt
	SYS_setsockopt
	SYS_select
	SYS_resolve_hostname
	SYS_resolve_address

	NumTraps
)

var trapNames = [NumTraps]string{
	SYS_null:             "null",
	SYS_exit:             "exit",
	SYS_open:             "open",
	SYS_close:            "close",
	SYS_read:             "read",
	SYS_write:            "write",
	SYS_lseek:            "lseek",
	SYS_fstat:            "fstat",
	SYS_stat:             "stat",
	SYS_lstat:            "lstat",
	SYS_isatty:           "isatty",
	SYS_mkdir:            "mkdir",
	SYS_rmdir:            "rmdir",
	SYS_unlink:           "unlink",
	SYS_rename:           "rename",
	SYS_chdir:            "chdir",
	SYS_getcwd:           "getcwd",
	SYS_getdents:         "getdents",
	SYS_utime:            "utime",
	SYS_ftruncate:        "ftruncate",
	SYS_pipe:             "pipe",
	SYS_dup:              "dup",
	SYS_dup2:             "dup2",
	SYS_fcntl:            "fcntl",
	SYS_readlink:         "readlink",
	SYS_symlink:          "symlink",
	SYS_link:             "link",
	SYS_mknod:            "mknod",
	SYS_mkfifo:           "mkfifo",
	SYS_chroot:           "chroot",
	SYS_kill:             "kill",
	SYS_getpid:           "getpid",
	SYS_getppid:          "getppid",
	SYS_fork:             "fork",
	SYS_vfork:            "vfork",
	SYS_exec:             "exec",
	SYS_waitpid:          "waitpid",
	SYS_gettimeofday:     "gettimeofday",
	SYS_usleep:           "usleep",
	SYS_sysconf:          "sysconf",
	SYS_sysctl:           "sysctl",
	SYS_socket:           "socket",
	SYS_bind:             "bind",
	SYS_listen:           "listen",
	SYS_accept:           "accept",
	SYS_connect:          "connect",
	SYS_shutdown:         "shutdown",
	SYS_sendto:           "sendto",
	SYS_recvfrom:         "recvfrom",
	SYS_getsockopt:       "getsockopt",
	SYS_setsockopt:       "setsockopt",
	SYS_select:           "select",
	SYS_resolve_hostname: "resolve_hostname",
	SYS_resolve_address:  "resolve_address",
}

func (t Trap) String() string {
	if t >= 0 && t < NumTraps && trapNames[t] != "" {
		return trapNames[t]
	}
	return "trap" + strconv.Itoa(int(t))
}
