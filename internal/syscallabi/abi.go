package syscallabi

// Values shared by the guest library and the kernel. Numbering follows
// newlib where the guest C library would define the constant.

// Open flags.
const (
	O_RDONLY   = 0x0000
	O_WRONLY   = 0x0001
	O_RDWR     = 0x0002
	O_ACCMODE  = 0x0003
	O_APPEND   = 0x0008
	O_CREAT    = 0x0200
	O_TRUNC    = 0x0400
	O_EXCL     = 0x0800
	O_NONBLOCK = 0x4000
	O_NOCTTY   = 0x8000
	O_CLOEXEC  = 0x40000
)

// File mode type bits.
const (
	S_IFMT   = 0o170000
	S_IFSOCK = 0o140000
	S_IFLNK  = 0o120000
	S_IFREG  = 0o100000
	S_IFDIR  = 0o040000
	S_IFCHR  = 0o020000
	S_IFIFO  = 0o010000
)

// lseek whence values.
const (
	SEEK_SET = 0
	SEEK_CUR = 1
	SEEK_END = 2
)

// fcntl commands and descriptor flags.
const (
	F_DUPFD    = 0
	F_GETFD    = 1
	F_SETFD    = 2
	F_GETFL    = 3
	F_SETFL    = 4
	FD_CLOEXEC = 1
)

// waitpid options.
const WNOHANG = 1

// Signals, numbered as the guest sees them.
const (
	SIGHUP   = 1
	SIGINT   = 2
	SIGQUIT  = 3
	SIGABRT  = 6
	SIGKILL  = 9
	SIGSEGV  = 11
	SIGPIPE  = 13
	SIGTERM  = 15
	SIGSTOP  = 17
	SIGTSTP  = 18
	SIGCONT  = 19
	SIGCHLD  = 20
	SIGTTIN  = 21
	SIGTTOU  = 22
	SIGIO    = 23
	SIGWINCH = 28
	NSIG     = 32
)

// Socket domains, types, levels and options.
const (
	AF_INET      = 2
	SOCK_STREAM  = 1
	SOCK_DGRAM   = 2
	SOL_SOCKET   = 0xffff
	SO_REUSEADDR = 0x0004
	SO_KEEPALIVE = 0x0008
	SHUT_RD      = 0
	SHUT_WR      = 1
	SHUT_RDWR    = 2
)

// sysctl names.
const (
	CTL_KERN       = 1
	CTL_HW         = 6
	KERN_OSTYPE    = 1
	KERN_OSRELEASE = 2
	KERN_VERSION   = 4
	KERN_HOSTNAME  = 10
	HW_MACHINE     = 1
)

// sysconf names.
const (
	SC_ARG_MAX     = 0
	SC_CHILD_MAX   = 1
	SC_CLK_TCK     = 2
	SC_NGROUPS_MAX = 3
	SC_OPEN_MAX    = 4
	SC_JOB_CONTROL = 5
	SC_SAVED_IDS   = 6
	SC_VERSION     = 7
	SC_PAGESIZE    = 8
)

// Resolver status codes. They are reported through the resolver error
// slot, never through errno.
const (
	HOST_NOT_FOUND = 1
	TRY_AGAIN      = 2
	NO_RECOVERY    = 3
	NO_DATA        = 4
)

// Limits.
const (
	OpenMax  = 64
	ArgMax   = 65536
	PageSize = 4096
)

// Stat is the guest's struct stat.
type Stat struct {
	Dev     uint32
	Ino     uint32
	Mode    uint32
	Nlink   uint32
	Uid     uint32
	Gid     uint32
	Rdev    uint32
	Size    int64
	Atime   int64
	Mtime   int64
	Ctime   int64
	Blksize int32
	Blocks  int64
}

// IsDir reports whether the mode describes a directory.
func (s *Stat) IsDir() bool {
	return s.Mode&S_IFMT == S_IFDIR
}

// Timeval is the guest's struct timeval.
type Timeval struct {
	Sec  int64
	Usec int64
}

// Utimbuf is the guest's struct utimbuf.
type Utimbuf struct {
	Actime  int64
	Modtime int64
}

// SockaddrInet is the guest's struct sockaddr_in, with the port in host
// order.
type SockaddrInet struct {
	Family int
	Port   int
	Addr   [4]byte
}
