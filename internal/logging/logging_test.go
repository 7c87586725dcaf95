package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kmrgirish/guestsys/internal/logging"
	"github.com/kmrgirish/guestsys/internal/reent"
	"github.com/kmrgirish/guestsys/internal/syscallabi"
)

type fakeProc int

func (p fakeProc) Pid() int { return int(p) }

func TestBitflags(t *testing.T) {
	testCases := []struct {
		value    int
		expected string
	}{
		{
			value:    syscallabi.O_RDONLY,
			expected: "O_RDONLY",
		},
		{
			value:    syscallabi.O_WRONLY | syscallabi.O_CREAT | syscallabi.O_TRUNC,
			expected: "O_WRONLY|O_CREAT|O_TRUNC",
		},
		{
			value:    syscallabi.O_RDWR | 0x100000,
			expected: "O_RDWR|1048576",
		},
	}
	for _, tc := range testCases {
		if got := logging.OpenFlags.Format(tc.value); got != tc.expected {
			t.Errorf("format %x: got %q, expected %q", tc.value, got, tc.expected)
		}
	}
}

func TestHandlerAddsGuestIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelDebug, logging.FormatRaw)

	r := reent.New(syscallabi.DispatcherFunc(func(*syscallabi.Syscall) {}), fakeProc(7))
	ctx := reent.NewContext(context.Background(), r.Sibling())

	logger.InfoContext(ctx, "hello")
	logger.Info("host")

	records := logging.ParseRecords(buf.Bytes())
	if len(records) != 2 {
		t.Fatalf("got %d records: %s", len(records), buf.String())
	}
	got := []logging.Record{
		{Msg: records[0].Msg, Pid: records[0].Pid, Tid: records[0].Tid},
		{Msg: records[1].Msg, Pid: records[1].Pid, Tid: records[1].Tid},
	}
	want := []logging.Record{
		{Msg: "hello", Pid: 7, Tid: 2},
		{Msg: "host"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Error(diff)
	}
}

func TestTracerFlowsIntoSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, slog.LevelDebug, logging.FormatRaw)
	tracer, err := logging.NewTracer(logger)
	if err != nil {
		t.Fatal(err)
	}
	tracer.Info("syscall")
	tracer.Sync()
	if !strings.Contains(buf.String(), `"msg":"syscall"`) {
		t.Errorf("trace record missing: %s", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	if _, err := logging.ParseFormat("pretty"); err != nil {
		t.Error(err)
	}
	if _, err := logging.ParseFormat("fancy"); err == nil {
		t.Error("expected error for unknown format")
	}
	level, err := logging.ParseLevel("warn")
	if err != nil || level != slog.LevelWarn {
		t.Errorf("ParseLevel(warn) = %v, %v", level, err)
	}
}
