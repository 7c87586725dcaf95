package kernel

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

func TestNormalizePath(t *testing.T) {
	for _, tc := range []struct {
		cwd, path, want string
	}{
		{"/", "etc/passwd", "/etc/passwd"},
		{"/home/alice", "../bob/.profile", "/home/bob/.profile"},
		{"/home", "/etc//hosts/", "/etc/hosts"},
		{"/", "../../..", "/"},
		{"/a/b", ".", "/a/b"},
		{"/a", "../../../etc", "/etc"},
	} {
		if got := normalizePath(tc.cwd, tc.path); got != tc.want {
			t.Errorf("normalizePath(%q, %q) = %q, want %q", tc.cwd, tc.path, got, tc.want)
		}
	}
}

func TestInodeCache(t *testing.T) {
	c := newInodeCache(2)
	a := c.get("/a")
	b := c.get("/b")
	if a == b || a < 2 || b < 2 {
		t.Fatalf("inodes %d %d", a, b)
	}
	if c.get("/a") != a {
		t.Errorf("inode for /a changed")
	}
	c.get("/c")
	if got := c.get("/a"); got == a {
		t.Errorf("evicted path kept inode %d", got)
	}
}

func TestGetdentsRecords(t *testing.T) {
	d := &dirFile{ents: []dirent{
		{name: ".", ino: 5},
		{name: "..", ino: 2},
		{name: "hello", ino: 9},
	}}

	small := make([]byte, 8)
	if _, errno := d.getdents(small); errno != syscallabi.EINVAL {
		t.Errorf("tiny buffer: errno %v, want EINVAL", errno)
	}

	buf := make([]byte, 28)
	n, errno := d.getdents(buf)
	if errno != 0 {
		t.Fatal(errno)
	}
	// "." and ".." take 12 bytes each; "hello" needs 16 and must wait.
	if n != 24 {
		t.Fatalf("first fill = %d bytes, want 24", n)
	}
	want := []byte{
		0, 0, 0, 12, 0, 0, 0, 5, '.', 0, 0, 0,
		0, 0, 0, 12, 0, 0, 0, 2, '.', '.', 0, 0,
	}
	if diff := cmp.Diff(want, buf[:n]); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}

	n, errno = d.getdents(buf)
	if errno != 0 || n != 16 {
		t.Fatalf("second fill = %d, %v", n, errno)
	}
	if got := binary.BigEndian.Uint32(buf[4:8]); got != 9 {
		t.Errorf("ino = %d", got)
	}
	if got := string(buf[8:13]); got != "hello" || buf[13] != 0 {
		t.Errorf("name = %q", buf[8:14])
	}

	if n, errno = d.getdents(buf); n != 0 || errno != 0 {
		t.Errorf("at end: %d, %v", n, errno)
	}
}

func TestPackedDirectoryRead(t *testing.T) {
	d := &dirFile{ents: []dirent{{name: "ab", ino: 3}, {name: "c", ino: 4}}}
	want := PackEntries([]PackedEntry{{Ino: 3, Name: "ab"}, {Ino: 4, Name: "c"}})

	var got []byte
	b := make([]byte, 5)
	for {
		n, errno := d.read(b)
		if errno != 0 {
			t.Fatal(errno)
		}
		if n == 0 {
			break
		}
		got = append(got, b[:n]...)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("packed stream (-want +got):\n%s", diff)
	}
	if len(got) != 8+2+8+1 {
		t.Errorf("packed stream is %d bytes", len(got))
	}
}

func TestDescribe(t *testing.T) {
	s := &syscallabi.Syscall{
		Trap: syscallabi.SYS_open,
		Ptr0: "/etc/passwd",
		Int0: syscallabi.O_WRONLY | syscallabi.O_CREAT,
		Int1: 0o644,
	}
	if got, want := describe(sysent[syscallabi.SYS_open].format, s), `open("/etc/passwd", O_WRONLY|O_CREAT, 0644)`; got != want {
		t.Errorf("describe = %s, want %s", got, want)
	}

	s = &syscallabi.Syscall{Trap: syscallabi.SYS_read, Int0: 3, Ptr0: make([]byte, 512)}
	if got, want := describe(sysent[syscallabi.SYS_read].format, s), "read(3, [512])"; got != want {
		t.Errorf("describe = %s, want %s", got, want)
	}
}

func TestSysentComplete(t *testing.T) {
	for trap := syscallabi.Trap(0); trap < syscallabi.NumTraps; trap++ {
		if sysent[trap].impl == nil {
			t.Errorf("no handler for %v", trap)
		}
	}
}
