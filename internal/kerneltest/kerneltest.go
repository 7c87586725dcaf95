// Package kerneltest runs guest programs in a throwaway kernel for tests.
package kerneltest

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/kmrgirish/guestsys/internal/kernel"
)

// MainPath is where Run registers the program under test.
const MainPath = "/test/main"

type Result struct {
	Status int
	Stdout string
	Stderr string
}

// lockedBuffer is written by every process of a kernel.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Run starts a kernel with opts, runs main as its first process and waits
// for every process to finish. An empty root is a fresh temporary
// directory; unset standard streams are captured.
func Run(t testing.TB, opts kernel.Options, main func(ctx context.Context) int) Result {
	t.Helper()

	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	if opts.Programs == nil {
		opts.Programs = kernel.NewRegistry()
	}
	opts.Programs.Register(MainPath, func(ctx context.Context, argv, env []string) int {
		return main(ctx)
	})
	var stdout, stderr lockedBuffer
	if opts.Stdout == nil {
		opts.Stdout = &stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = &stderr
	}

	k, err := kernel.New(opts)
	if err != nil {
		t.Fatal(err)
	}
	p, err := k.Spawn(MainPath, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	status := k.Wait(p)
	if err := k.Close(); err != nil {
		t.Fatal(err)
	}
	return Result{Status: status, Stdout: stdout.String(), Stderr: stderr.String()}
}
