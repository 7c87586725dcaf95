package kernel

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kmrgirish/guestsys/internal/logging"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

type sysentry struct {
	// format describes the call for tracing. %d and %o consume the next
	// integer argument, %f consumes it as open flags and %w as wait
	// options; %s consumes the next reference argument as a string, %b as a
	// buffer length.
	format string
	impl   func(*Proc, *syscallabi.Syscall) (int, syscallabi.Errno)
}

var sysent [syscallabi.NumTraps]sysentry

func init() {
	sysent = [syscallabi.NumTraps]sysentry{
		syscallabi.SYS_null:             {"null()", sysnull},
		syscallabi.SYS_exit:             {"exit(%d)", sysexit},
		syscallabi.SYS_open:             {"open(%s, %f, %o)", sysopen},
		syscallabi.SYS_close:            {"close(%d)", sysclose},
		syscallabi.SYS_read:             {"read(%d, %b)", sysread},
		syscallabi.SYS_write:            {"write(%d, %b)", syswrite},
		syscallabi.SYS_lseek:            {"lseek(%d, %d, %d)", syslseek},
		syscallabi.SYS_fstat:            {"fstat(%d)", sysfstat},
		syscallabi.SYS_stat:             {"stat(%s)", sysstat},
		syscallabi.SYS_lstat:            {"lstat(%s)", syslstat},
		syscallabi.SYS_isatty:           {"isatty(%d)", sysisatty},
		syscallabi.SYS_mkdir:            {"mkdir(%s, %o)", sysmkdir},
		syscallabi.SYS_rmdir:            {"rmdir(%s)", sysrmdir},
		syscallabi.SYS_unlink:           {"unlink(%s)", sysunlink},
		syscallabi.SYS_rename:           {"rename(%s, %s)", sysrename},
		syscallabi.SYS_chdir:            {"chdir(%s)", syschdir},
		syscallabi.SYS_getcwd:           {"getcwd(%b)", sysgetcwd},
		syscallabi.SYS_getdents:         {"getdents(%d, %b)", sysgetdents},
		syscallabi.SYS_utime:            {"utime(%s)", sysutime},
		syscallabi.SYS_ftruncate:        {"ftruncate(%d, %d)", sysftruncate},
		syscallabi.SYS_pipe:             {"pipe()", syspipe},
		syscallabi.SYS_dup:              {"dup(%d)", sysdup},
		syscallabi.SYS_dup2:             {"dup2(%d, %d)", sysdup2},
		syscallabi.SYS_fcntl:            {"fcntl(%d, %d, %d)", sysfcntl},
		syscallabi.SYS_readlink:         {"readlink(%s)", sysenosys},
		syscallabi.SYS_symlink:          {"symlink(%s, %s)", sysenosys},
		syscallabi.SYS_link:             {"link(%s, %s)", sysenosys},
		syscallabi.SYS_mknod:            {"mknod(%s, %o)", sysenosys},
		syscallabi.SYS_mkfifo:           {"mkfifo(%s, %o)", sysenosys},
		syscallabi.SYS_chroot:           {"chroot(%s)", sysenosys},
		syscallabi.SYS_kill:             {"kill(%d, %d)", syskill},
		syscallabi.SYS_getpid:           {"getpid()", sysgetpid},
		syscallabi.SYS_getppid:          {"getppid()", sysgetppid},
		syscallabi.SYS_fork:             {"fork()", sysfork},
		syscallabi.SYS_vfork:            {"vfork()", sysenosys},
		syscallabi.SYS_exec:             {"exec(%s)", sysexec},
		syscallabi.SYS_waitpid:          {"waitpid(%d, %w)", syswaitpid},
		syscallabi.SYS_gettimeofday:     {"gettimeofday()", sysgettimeofday},
		syscallabi.SYS_usleep:           {"usleep(%d)", sysusleep},
		syscallabi.SYS_sysconf:          {"sysconf(%d)", syssysconf},
		syscallabi.SYS_sysctl:           {"sysctl()", syssysctl},
		syscallabi.SYS_socket:           {"socket(%d, %d, %d)", syssocket},
		syscallabi.SYS_bind:             {"bind(%d)", sysbind},
		syscallabi.SYS_listen:           {"listen(%d, %d)", syslisten},
		syscallabi.SYS_accept:           {"accept(%d)", sysaccept},
		syscallabi.SYS_connect:          {"connect(%d)", sysconnect},
		syscallabi.SYS_shutdown:         {"shutdown(%d, %d)", sysshutdown},
		syscallabi.SYS_sendto:           {"sendto(%d, %d, %b)", syssendto},
		syscallabi.SYS_recvfrom:         {"recvfrom(%d, %d, %b)", sysrecvfrom},
		syscallabi.SYS_getsockopt:       {"getsockopt(%d, %d, %d)", sysgetsockopt},
		syscallabi.SYS_setsockopt:       {"setsockopt(%d, %d, %d)", syssetsockopt},
		syscallabi.SYS_select:           {"select()", sysenosys},
		syscallabi.SYS_resolve_hostname: {"resolve_hostname(%s)", sysresolvehostname},
		syscallabi.SYS_resolve_address:  {"resolve_address()", sysresolveaddress},
	}
}

func sysnull(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	return 0, 0
}

func sysenosys(p *Proc, s *syscallabi.Syscall) (int, syscallabi.Errno) {
	return 0, syscallabi.ENOSYS
}

// Dispatch runs a guest syscall on the calling goroutine.
func (k *Kernel) Dispatch(s *syscallabi.Syscall) {
	p, ok := s.OS.(*Proc)
	if !ok || p.k != k {
		panic(fmt.Sprintf("kernel: syscall %v from foreign context %T", s.Trap, s.OS))
	}
	p.checkPending()

	if s.Trap < 0 || s.Trap >= syscallabi.NumTraps || sysent[s.Trap].impl == nil {
		s.R0, s.Errno = 0, syscallabi.ENOSYS
		k.trace(p, s, "unknown()")
		return
	}
	ent := &sysent[s.Trap]
	if k.tracer != nil {
		defer k.trace(p, s, ent.format)
	}
	s.R0, s.Errno = ent.impl(p, s)
}

func (k *Kernel) trace(p *Proc, s *syscallabi.Syscall, format string) {
	if k.tracer == nil {
		return
	}
	fields := []zap.Field{
		zap.Int("pid", p.pid),
		zap.Int("tid", s.Tid),
		zap.String("call", describe(format, s)),
		zap.Int("result", s.Result()),
	}
	if s.Errno != 0 {
		fields = append(fields, zap.String("errno", s.Errno.Error()))
	}
	k.tracer.Info("syscall", fields...)
}

// describe renders format against the call's arguments.
func describe(format string, s *syscallabi.Syscall) string {
	ints := []int{s.Int0, s.Int1, s.Int2, s.Int3, s.Int4, s.Int5}
	ptrs := []any{s.Ptr0, s.Ptr1, s.Ptr2, s.Ptr3}
	var out []byte
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 == len(format) {
			out = append(out, c)
			continue
		}
		i++
		switch verb := format[i]; verb {
		case 'd', 'o', 'f', 'w':
			var v int
			v, ints = ints[0], ints[1:]
			switch verb {
			case 'd':
				out = fmt.Appendf(out, "%d", v)
			case 'o':
				out = fmt.Appendf(out, "%#o", v)
			case 'f':
				out = append(out, logging.OpenFlags.Format(v)...)
			case 'w':
				out = append(out, logging.WaitOptions.Format(v)...)
			}
		case 's', 'b':
			var v any
			v, ptrs = ptrs[0], ptrs[1:]
			if verb == 's' {
				str, _ := v.(string)
				out = fmt.Appendf(out, "%q", str)
			} else {
				b, _ := v.([]byte)
				out = fmt.Appendf(out, "[%d]", len(b))
			}
		default:
			out = append(out, '%', verb)
		}
	}
	return string(out)
}
