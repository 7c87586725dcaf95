package guestsys_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	guestsys "github.com/kmrgirish/guestsys"
	"github.com/kmrgirish/guestsys/internal/config"
	"github.com/kmrgirish/guestsys/internal/logging"
)

func newSystem(t *testing.T, cfg *config.Config) (*guestsys.System, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, log bytes.Buffer
	sys, err := guestsys.New(cfg, guestsys.Stdio{Stdout: &stdout, Log: &log})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := sys.Close(); err != nil {
			t.Error(err)
		}
	})
	return sys, &stdout, &log
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "home/alice"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Root = root
	cfg.Cwd = "/home/alice"
	cfg.Hostname = "box"
	cfg.Resolver.Hosts = map[string][]string{"db": {"10.1.2.3"}}

	sys, stdout, _ := newSystem(t, cfg)
	for _, argv := range [][]string{
		{"/bin/pwd"},
		{"/bin/hostname"},
		{"/bin/host", "db"},
	} {
		status, err := sys.Run(argv[0], argv)
		if err != nil || status != 0 {
			t.Fatalf("%v: status %d, err %v", argv, status, err)
		}
	}
	if diff := cmp.Diff("/home/alice\nbox\ndb has address 10.1.2.3\n", stdout.String()); diff != "" {
		t.Errorf("stdout (-want +got):\n%s", diff)
	}

	status, err := sys.Run("/bin/false", nil)
	if err != nil || status != 1 {
		t.Errorf("false: status %d, err %v", status, err)
	}
	if _, err := sys.Run("/bin/nope", nil); !errors.Is(err, guestsys.ErrNoProgram) {
		t.Errorf("missing program: %v", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MaxProcs = -1
	if _, err := guestsys.New(cfg, guestsys.Stdio{}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("err = %v", err)
	}

	cfg = config.Default()
	cfg.Root = t.TempDir()
	cfg.Cwd = "/missing"
	if _, err := guestsys.New(cfg, guestsys.Stdio{}); err == nil {
		t.Error("missing cwd accepted")
	}
}

func TestTraceAndExecCache(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "bin/greet"), []byte("#!/bin/echo hi\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Root = root
	cfg.Trace = true
	cfg.LogFormat = "raw"
	cfg.LogLevel = "debug"
	cfg.ExecCache = filepath.Join(t.TempDir(), "exec.db")

	sys, stdout, log := newSystem(t, cfg)
	for range 2 {
		if status, err := sys.Run("/bin/greet", nil); err != nil || status != 0 {
			t.Fatalf("status %d, err %v", status, err)
		}
	}
	if stdout.String() != "hi /bin/greet\nhi /bin/greet\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
	var exits, syscalls int
	for _, r := range logging.ParseRecords(log.Bytes()) {
		switch {
		case r.Msg == "program exited":
			exits++
		case r.Msg == "syscall" && r.Pid > 0 && r.Call != "":
			syscalls++
		}
	}
	if exits != 2 || syscalls == 0 {
		t.Errorf("%d exit and %d syscall records in:\n%s", exits, syscalls, log.String())
	}
}

func TestPrograms(t *testing.T) {
	got := guestsys.Programs()
	for _, want := range []string{"/bin/cat", "/bin/getent", "/bin/ls"} {
		if !strings.Contains(strings.Join(got, " "), want) {
			t.Errorf("programs %v lack %s", got, want)
		}
	}
}
