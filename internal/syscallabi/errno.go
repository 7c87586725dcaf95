package syscallabi

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// An Errno is a guest error number. The numbering follows newlib, which
// differs from the host's numbering past ERANGE.
type Errno int

const (
	EPERM           Errno = 1
	ENOENT          Errno = 2
	ESRCH           Errno = 3
	EINTR           Errno = 4
	EIO             Errno = 5
	ENXIO           Errno = 6
	E2BIG           Errno = 7
	ENOEXEC         Errno = 8
	EBADF           Errno = 9
	ECHILD          Errno = 10
	EAGAIN          Errno = 11
	ENOMEM          Errno = 12
	EACCES          Errno = 13
	EFAULT          Errno = 14
	EBUSY           Errno = 16
	EEXIST          Errno = 17
	EXDEV           Errno = 18
	ENODEV          Errno = 19
	ENOTDIR         Errno = 20
	EISDIR          Errno = 21
	EINVAL          Errno = 22
	ENFILE          Errno = 23
	EMFILE          Errno = 24
	ENOTTY          Errno = 25
	EFBIG           Errno = 27
	ENOSPC          Errno = 28
	ESPIPE          Errno = 29
	EROFS           Errno = 30
	EMLINK          Errno = 31
	EPIPE           Errno = 32
	EDOM            Errno = 33
	ERANGE          Errno = 34
	ENOSYS          Errno = 88
	ENOTEMPTY       Errno = 90
	ENAMETOOLONG    Errno = 91
	ELOOP           Errno = 92
	EOPNOTSUPP      Errno = 95
	ECONNRESET      Errno = 104
	ENOBUFS         Errno = 105
	EAFNOSUPPORT    Errno = 106
	EPROTOTYPE      Errno = 107
	ENOTSOCK        Errno = 108
	ENOPROTOOPT     Errno = 109
	ECONNREFUSED    Errno = 111
	EADDRINUSE      Errno = 112
	ECONNABORTED    Errno = 113
	ENETUNREACH     Errno = 114
	ENETDOWN        Errno = 115
	ETIMEDOUT       Errno = 116
	EHOSTDOWN       Errno = 117
	EHOSTUNREACH    Errno = 118
	EINPROGRESS     Errno = 119
	EALREADY        Errno = 120
	EDESTADDRREQ    Errno = 121
	EMSGSIZE        Errno = 122
	EPROTONOSUPPORT Errno = 123
	EADDRNOTAVAIL   Errno = 125
	ENETRESET       Errno = 126
	EISCONN         Errno = 127
	ENOTCONN        Errno = 128
	ENOTSUP         Errno = 134
)

var enames = map[Errno]string{
	EPERM:           "EPERM",
	ENOENT:          "ENOENT",
	ESRCH:           "ESRCH",
	EINTR:           "EINTR",
	EIO:             "EIO",
	ENXIO:           "ENXIO",
	E2BIG:           "E2BIG",
	ENOEXEC:         "ENOEXEC",
	EBADF:           "EBADF",
	ECHILD:          "ECHILD",
	EAGAIN:          "EAGAIN",
	ENOMEM:          "ENOMEM",
	EACCES:          "EACCES",
	EFAULT:          "EFAULT",
	EBUSY:           "EBUSY",
	EEXIST:          "EEXIST",
	EXDEV:           "EXDEV",
	ENODEV:          "ENODEV",
	ENOTDIR:         "ENOTDIR",
	EISDIR:          "EISDIR",
	EINVAL:          "EINVAL",
	ENFILE:          "ENFILE",
	EMFILE:          "EMFILE",
	ENOTTY:          "ENOTTY",
	EFBIG:           "EFBIG",
	ENOSPC:          "ENOSPC",
	ESPIPE:          "ESPIPE",
	EROFS:           "EROFS",
	EMLINK:          "EMLINK",
	EPIPE:           "EPIPE",
	EDOM:            "EDOM",
	ERANGE:          "ERANGE",
	ENOSYS:          "ENOSYS",
	ENOTEMPTY:       "ENOTEMPTY",
	ENAMETOOLONG:    "ENAMETOOLONG",
	ELOOP:           "ELOOP",
	EOPNOTSUPP:      "EOPNOTSUPP",
	ECONNRESET:      "ECONNRESET",
	ENOBUFS:         "ENOBUFS",
	EAFNOSUPPORT:    "EAFNOSUPPORT",
	EPROTOTYPE:      "EPROTOTYPE",
	ENOTSOCK:        "ENOTSOCK",
	ENOPROTOOPT:     "ENOPROTOOPT",
	ECONNREFUSED:    "ECONNREFUSED",
	EADDRINUSE:      "EADDRINUSE",
	ECONNABORTED:    "ECONNABORTED",
	ENETUNREACH:     "ENETUNREACH",
	ENETDOWN:        "ENETDOWN",
	ETIMEDOUT:       "ETIMEDOUT",
	EHOSTDOWN:       "EHOSTDOWN",
	EHOSTUNREACH:    "EHOSTUNREACH",
	EINPROGRESS:     "EINPROGRESS",
	EALREADY:        "EALREADY",
	EDESTADDRREQ:    "EDESTADDRREQ",
	EMSGSIZE:        "EMSGSIZE",
	EPROTONOSUPPORT: "EPROTONOSUPPORT",
	EADDRNOTAVAIL:   "EADDRNOTAVAIL",
	ENETRESET:       "ENETRESET",
	EISCONN:         "EISCONN",
	ENOTCONN:        "ENOTCONN",
	ENOTSUP:         "ENOTSUP",
}

func (e Errno) Error() string {
	if s, ok := enames[e]; ok {
		return s
	}
	return "errno " + strconv.Itoa(int(e))
}

// Do the interface allocations only once for common
// Errno values.
var (
	errEAGAIN error = EAGAIN
	errEINVAL error = EINVAL
	errENOENT error = ENOENT
	errEBADF  error = EBADF
)

// ErrnoErr returns common boxed Errno values, to prevent
// allocations at runtime.
func ErrnoErr(e Errno) error {
	switch e {
	case 0:
		return nil
	case EAGAIN:
		return errEAGAIN
	case EINVAL:
		return errEINVAL
	case ENOENT:
		return errENOENT
	case EBADF:
		return errEBADF
	}
	return e
}

// hostErrnos maps host errno values to their guest equivalents. Values
// below ERANGE share numbering but are listed so that a host that numbers
// them differently still maps correctly.
var hostErrnos = map[unix.Errno]Errno{
	unix.EPERM:           EPERM,
	unix.ENOENT:          ENOENT,
	unix.ESRCH:           ESRCH,
	unix.EINTR:           EINTR,
	unix.EIO:             EIO,
	unix.ENXIO:           ENXIO,
	unix.E2BIG:           E2BIG,
	unix.ENOEXEC:         ENOEXEC,
	unix.EBADF:           EBADF,
	unix.ECHILD:          ECHILD,
	unix.EAGAIN:          EAGAIN,
	unix.ENOMEM:          ENOMEM,
	unix.EACCES:          EACCES,
	unix.EFAULT:          EFAULT,
	unix.EBUSY:           EBUSY,
	unix.EEXIST:          EEXIST,
	unix.EXDEV:           EXDEV,
	unix.ENODEV:          ENODEV,
	unix.ENOTDIR:         ENOTDIR,
	unix.EISDIR:          EISDIR,
	unix.EINVAL:          EINVAL,
	unix.ENFILE:          ENFILE,
	unix.EMFILE:          EMFILE,
	unix.ENOTTY:          ENOTTY,
	unix.EFBIG:           EFBIG,
	unix.ENOSPC:          ENOSPC,
	unix.ESPIPE:          ESPIPE,
	unix.EROFS:           EROFS,
	unix.EMLINK:          EMLINK,
	unix.EPIPE:           EPIPE,
	unix.EDOM:            EDOM,
	unix.ERANGE:          ERANGE,
	unix.ENOSYS:          ENOSYS,
	unix.ENOTEMPTY:       ENOTEMPTY,
	unix.ENAMETOOLONG:    ENAMETOOLONG,
	unix.ELOOP:           ELOOP,
	unix.EOPNOTSUPP:      EOPNOTSUPP,
	unix.ECONNRESET:      ECONNRESET,
	unix.ENOBUFS:         ENOBUFS,
	unix.EAFNOSUPPORT:    EAFNOSUPPORT,
	unix.EPROTOTYPE:      EPROTOTYPE,
	unix.ENOTSOCK:        ENOTSOCK,
	unix.ENOPROTOOPT:     ENOPROTOOPT,
	unix.ECONNREFUSED:    ECONNREFUSED,
	unix.EADDRINUSE:      EADDRINUSE,
	unix.ECONNABORTED:    ECONNABORTED,
	unix.ENETUNREACH:     ENETUNREACH,
	unix.ENETDOWN:        ENETDOWN,
	unix.ETIMEDOUT:       ETIMEDOUT,
	unix.EHOSTDOWN:       EHOSTDOWN,
	unix.EHOSTUNREACH:    EHOSTUNREACH,
	unix.EINPROGRESS:     EINPROGRESS,
	unix.EALREADY:        EALREADY,
	unix.EDESTADDRREQ:    EDESTADDRREQ,
	unix.EMSGSIZE:        EMSGSIZE,
	unix.EPROTONOSUPPORT: EPROTONOSUPPORT,
	unix.EADDRNOTAVAIL:   EADDRNOTAVAIL,
	unix.ENETRESET:       ENETRESET,
	unix.EISCONN:         EISCONN,
	unix.ENOTCONN:        ENOTCONN,
}

// FromHost translates an error returned by a host operation into a guest
// Errno. Errors that carry no recognizable errno become EIO.
func FromHost(err error) Errno {
	if err == nil {
		return 0
	}

	var guest Errno
	if errors.As(err, &guest) {
		return guest
	}

	var host unix.Errno
	if errors.As(err, &host) {
		if e, ok := hostErrnos[host]; ok {
			return e
		}
		return EIO
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ENOENT
	case errors.Is(err, fs.ErrExist):
		return EEXIST
	case errors.Is(err, fs.ErrPermission):
		return EACCES
	case errors.Is(err, fs.ErrClosed), errors.Is(err, net.ErrClosed):
		return EBADF
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ETIMEDOUT
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ETIMEDOUT
	}
	return EIO
}
