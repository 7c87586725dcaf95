// MIT License
//
// # Copyright (c) 2017 Olivier Poitrey
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// Based on https://github.com/rs/zerolog/blob/master/console.go.

// Package prettylog renders JSON slog records as one console line each.
//
// A line reads
//
//	15:04:05.000 PID/TID LVL dir/file.go:12 > message key=value ...
//
// Syscall trace records replace the message with the call and its outcome,
// strace style:
//
//	15:04:05.000 3/1     INF open("/etc/passwd", O_RDONLY, 0) = 3
//	15:04:05.000 3/1     INF chdir("/nope") = -1 ENOENT
package prettylog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorBlue    = 34
	colorMagenta = 35
	colorCyan    = 36
	colorBold    = 1
	colorGray    = 90
)

const (
	pidKey    = "pid"
	tidKey    = "tid"
	callKey   = "call"
	resultKey = "result"
	errnoKey  = "errno"
	errKey    = "err"
	stackKey  = "stack"
)

// header keys are printed in fixed positions, never as key=value.
var header = []string{slog.TimeKey, slog.LevelKey, slog.SourceKey, slog.MessageKey, pidKey, tidKey}

const timeFormat = "15:04:05.000"

var levels = map[slog.Level]struct {
	name  string
	color int
}{
	slog.LevelDebug: {"DBG", colorMagenta},
	slog.LevelInfo:  {"INF", colorGreen},
	slog.LevelWarn:  {"WRN", colorYellow},
	slog.LevelError: {"ERR", colorRed},
}

// A Writer formats each JSON record written to it onto an underlying
// writer. Input that is not JSON is passed through.
type Writer struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// NewWriter returns a Writer for out. Colour is used when out is a
// terminal, unless NO_COLOR is set or TERM is dumb. FORCE_COLOR turns it
// on regardless.
func NewWriter(out io.Writer) *Writer {
	color := isTerminal(out) && os.Getenv("NO_COLOR") == "" && os.Getenv("TERM") != "dumb"
	if os.Getenv("FORCE_COLOR") != "" {
		color = true
	}
	return &Writer{out: out, color: color}
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var rec map[string]any
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	if err := d.Decode(&rec); err != nil {
		w.out.Write(p)
		return len(p), fmt.Errorf("prettylog: %w", err)
	}

	l := line{color: w.color}
	l.part(l.timestamp(rec[slog.TimeKey]))
	l.part(padRight(l.identity(rec), 7))
	l.part(l.level(rec[slog.LevelKey]))
	l.part(l.source(rec[slog.SourceKey]))
	if call, ok := rec[callKey].(string); ok {
		l.part(l.paint(call, colorBlue) + l.outcome(rec))
	} else {
		l.part(l.message(rec[slog.LevelKey], rec[slog.MessageKey]))
	}
	l.fields(rec)
	l.buf.WriteByte('\n')

	// Continuation lines, from multi-line values, are indented.
	out := bytes.ReplaceAll(bytes.TrimSuffix(l.buf.Bytes(), []byte("\n")), []byte("\n"), []byte("\n    "))
	out = append(out, '\n')
	if _, err := w.out.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

type line struct {
	buf   bytes.Buffer
	color bool
}

func (l *line) part(s string) {
	if s == "" {
		return
	}
	if l.buf.Len() > 0 {
		l.buf.WriteByte(' ')
	}
	l.buf.WriteString(s)
}

func (l *line) paint(s string, colors ...int) string {
	if !l.color {
		return s
	}
	for _, c := range colors {
		s = fmt.Sprintf("\x1b[%dm%s\x1b[0m", c, s)
	}
	return s
}

func (l *line) timestamp(v any) string {
	s, _ := v.(string)
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		s = ts.UTC().Format(timeFormat)
	}
	return l.paint(s, colorGray)
}

// identity is "pid/tid" for records about a guest and "-" otherwise.
func (l *line) identity(rec map[string]any) string {
	pid, ok := rec[pidKey]
	if !ok {
		return "-"
	}
	if tid, ok := rec[tidKey]; ok {
		return fmt.Sprintf("%v/%v", pid, tid)
	}
	return fmt.Sprint(pid)
}

func parseLevel(v any) (slog.Level, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	var level slog.Level
	return level, level.UnmarshalText([]byte(s)) == nil
}

func (l *line) level(v any) string {
	level, ok := parseLevel(v)
	if !ok {
		return "???"
	}
	if known, ok := levels[level]; ok {
		return l.paint(known.name, known.color)
	}
	// DEBUG+2 and friends.
	return strings.ToUpper(level.String())
}

func (l *line) source(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	file, _ := m["file"].(string)
	lineNo, _ := m["line"].(json.Number)
	loc := fmt.Sprintf("%s/%s:%s", path.Base(path.Dir(file)), path.Base(file), lineNo)
	return l.paint(loc, colorGray) + l.paint(" >", colorCyan)
}

func (l *line) message(level, v any) string {
	s, _ := v.(string)
	if lv, ok := parseLevel(level); ok && lv >= slog.LevelInfo {
		return l.paint(s, colorBold)
	}
	return s
}

// outcome renders " = result" or " = -1 ERRNO" for a traced call.
func (l *line) outcome(rec map[string]any) string {
	result, ok := rec[resultKey]
	if !ok {
		return ""
	}
	if errno, ok := rec[errnoKey].(string); ok {
		return fmt.Sprintf(" = %v %s", result, l.paint(errno, colorRed))
	}
	return fmt.Sprintf(" = %v", result)
}

// fields appends the remaining keys sorted, err first.
func (l *line) fields(rec map[string]any) {
	_, traced := rec[callKey].(string)
	var keys []string
	for k := range rec {
		if slices.Contains(header, k) {
			continue
		}
		if traced && (k == callKey || k == resultKey || k == errnoKey || k == slog.MessageKey) {
			continue
		}
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if (a == errKey) != (b == errKey) {
			if a == errKey {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})

	for _, k := range keys {
		var value string
		switch v := rec[k].(type) {
		case string:
			value = v
			if k != stackKey && needsQuote(v) {
				value = strconv.Quote(v)
			}
		case json.Number:
			value = v.String()
		default:
			b, err := json.Marshal(v)
			if err != nil {
				value = l.paint(fmt.Sprintf("[error: %v]", err), colorRed)
			} else {
				value = string(b)
			}
		}
		switch k {
		case errKey:
			value = l.paint(value, colorBold, colorRed)
		case errnoKey:
			value = l.paint(value, colorRed)
		}
		l.part(l.paint(k+"=", colorCyan) + value)
	}
}

func needsQuote(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c <= ' ' || c > '~' || c == '\\' || c == '"' {
			return true
		}
	}
	return false
}
