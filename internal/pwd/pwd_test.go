package pwd_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kmrgirish/guestsys/internal/kernel"
	"github.com/kmrgirish/guestsys/internal/kerneltest"
	"github.com/kmrgirish/guestsys/internal/libc"
	"github.com/kmrgirish/guestsys/internal/pwd"
	"github.com/kmrgirish/guestsys/internal/reent"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

const passwdFile = `# system accounts
root:x:0:0:root:/root:/bin/sh

alice:x:1000:1000:Alice:/home/alice:/bin/sh
bob:x:1001:1000:Bob:/home/bob:/bin/false
`

const groupFile = `root:x:0:
staff:x:1000
# trailing comment
wheel:*:10:root,alice
`

func writeRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "etc"), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestGetpwnam(t *testing.T) {
	root := writeRoot(t, map[string]string{"etc/passwd": passwdFile})

	var alice, missing *pwd.Passwd
	var errno syscallabi.Errno
	kerneltest.Run(t, kernel.Options{Root: root}, func(ctx context.Context) int {
		alice = pwd.Getpwnam(ctx, "alice")
		libc.SetErrno(ctx, syscallabi.EINTR)
		missing = pwd.Getpwnam(ctx, "mallory")
		errno = libc.Errno(ctx)
		return 0
	})

	want := &pwd.Passwd{Name: "alice", Passwd: "x", Uid: 1000, Gid: 1000, Gecos: "Alice", Dir: "/home/alice", Shell: "/bin/sh"}
	if diff := cmp.Diff(want, alice); diff != "" {
		t.Errorf("alice (-want +got):\n%s", diff)
	}
	if missing != nil {
		t.Errorf("mallory = %+v", missing)
	}
	if errno != syscallabi.EINTR {
		t.Errorf("not-found lookup changed errno to %v", errno)
	}
}

func TestMalformedLineFailsScan(t *testing.T) {
	for name, content := range map[string]string{
		"too few fields":  passwdFile + "broken:x:1\n",
		"non-numeric uid": passwdFile + "carol:x:abc:1000:Carol:/home/carol:/bin/sh\n",
		"negative gid":    passwdFile + "dave:x:1002:-1:Dave:/home/dave:/bin/sh\n",
	} {
		t.Run(name, func(t *testing.T) {
			root := writeRoot(t, map[string]string{"etc/passwd": content})
			var got *pwd.Passwd
			var errno syscallabi.Errno
			kerneltest.Run(t, kernel.Options{Root: root}, func(ctx context.Context) int {
				got = pwd.Getpwnam(ctx, "alice")
				errno = libc.Errno(ctx)
				return 0
			})
			if got != nil {
				t.Errorf("got %+v despite malformed line", got)
			}
			if errno != syscallabi.EINVAL {
				t.Errorf("errno = %v, want EINVAL", errno)
			}
		})
	}
}

func TestGetpwuid(t *testing.T) {
	root := writeRoot(t, map[string]string{"etc/passwd": passwdFile})
	var got *pwd.Passwd
	kerneltest.Run(t, kernel.Options{Root: root}, func(ctx context.Context) int {
		got = pwd.Getpwuid(ctx, 1001)
		return 0
	})
	if got == nil || got.Name != "bob" {
		t.Errorf("uid 1001 = %+v", got)
	}
}

func TestGroups(t *testing.T) {
	root := writeRoot(t, map[string]string{"etc/group": groupFile})
	var staff, wheel *pwd.Group
	kerneltest.Run(t, kernel.Options{Root: root}, func(ctx context.Context) int {
		staff = pwd.Getgrnam(ctx, "staff")
		wheel = pwd.Getgrgid(ctx, 10)
		return 0
	})
	if diff := cmp.Diff(&pwd.Group{Name: "staff", Passwd: "x", Gid: 1000, Members: []string{}}, staff); diff != "" {
		t.Errorf("staff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(&pwd.Group{Name: "wheel", Passwd: "*", Gid: 10, Members: []string{}}, wheel); diff != "" {
		t.Errorf("wheel (-want +got):\n%s", diff)
	}
}

func TestIteration(t *testing.T) {
	root := writeRoot(t, map[string]string{"etc/passwd": passwdFile, "etc/group": groupFile})

	var users, again, groups []string
	var sibling []string
	res := kerneltest.Run(t, kernel.Options{Root: root}, func(ctx context.Context) int {
		for p := pwd.Getpwent(ctx); p != nil; p = pwd.Getpwent(ctx) {
			users = append(users, p.Name)
			if len(users) == 1 {
				// A sibling context iterates independently.
				<-libc.Go(ctx, func(ctx context.Context) int {
					for p := pwd.Getpwent(ctx); p != nil; p = pwd.Getpwent(ctx) {
						sibling = append(sibling, p.Name)
					}
					pwd.Endpwent(ctx)
					return 0
				})
			}
		}
		pwd.Setpwent(ctx)
		again = append(again, pwd.Getpwent(ctx).Name)
		pwd.Endpwent(ctx)

		pwd.Setgrent(ctx)
		for g := pwd.Getgrent(ctx); g != nil; g = pwd.Getgrent(ctx) {
			groups = append(groups, g.Name)
		}
		pwd.Endgrent(ctx)
		return 0
	})
	if res.Status != 0 {
		t.Fatalf("guest exited %d", res.Status)
	}
	all := []string{"root", "alice", "bob"}
	if diff := cmp.Diff(all, users); diff != "" {
		t.Errorf("users (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(all, sibling); diff != "" {
		t.Errorf("sibling users (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"root"}, again); diff != "" {
		t.Errorf("after setpwent (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"root", "staff", "wheel"}, groups); diff != "" {
		t.Errorf("groups (-want +got):\n%s", diff)
	}
}

func TestCustomDatabase(t *testing.T) {
	root := writeRoot(t, map[string]string{"etc/users": "zed:x:7:7:Zed:/:/bin/sh"})
	db := pwd.Database{PasswdFile: "/etc/users", GroupFile: "/etc/groups"}

	var got *pwd.Passwd
	var errno syscallabi.Errno
	kerneltest.Run(t, kernel.Options{Root: root}, func(ctx context.Context) int {
		r := reent.FromContext(ctx)
		got = db.GetpwnamR(r, "zed")
		if db.GetgrnamR(r, "any") == nil {
			errno = r.Errno
		}
		return 0
	})
	if got == nil || got.Uid != 7 {
		t.Errorf("zed = %+v", got)
	}
	if errno != syscallabi.ENOENT {
		t.Errorf("missing group file: errno %v", errno)
	}
}
