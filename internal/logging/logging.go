// Package logging builds the host-side loggers: a JSON slog pipeline that
// tags records with the issuing guest process and thread, rendered raw,
// indented, or through prettylog.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	zapslog "github.com/tommoulard/zap-slog"
	"go.uber.org/zap"

	"github.com/kmrgirish/guestsys/internal/prettylog"
	"github.com/kmrgirish/guestsys/internal/reent"
)

type Format string

const (
	FormatRaw      Format = "raw"
	FormatIndented Format = "indented"
	FormatPretty   Format = "pretty"
)

func ParseFormat(s string) (Format, error) {
	f := Format(s)
	if f != FormatRaw && f != FormatIndented && f != FormatPretty {
		return "", fmt.Errorf("bad log format %q: want raw|indented|pretty", s)
	}
	return f, nil
}

func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("bad log level %q: %w", s, err)
	}
	return level, nil
}

// New returns a logger writing JSON records to out in the given format.
func New(out io.Writer, level slog.Level, format Format) *slog.Logger {
	ho := slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	}
	handler := slog.NewJSONHandler(consoleWriter(out, format), &ho)
	return slog.New(wrapHandler{inner: handler})
}

// NewTracer returns a zap logger whose records flow into logger.
func NewTracer(logger *slog.Logger) (*zap.Logger, error) {
	return zap.NewProduction(zapslog.WrapCore(logger))
}

// A pider is the process identity carried by a guest context.
type pider interface {
	Pid() int
}

type wrapHandler struct {
	inner slog.Handler
}

func (w wrapHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return w.inner.Enabled(ctx, level)
}

func (w wrapHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if re, ok := reent.Lookup(ctx); ok {
			if p, ok := re.OS().(pider); ok {
				r.AddAttrs(slog.Int("pid", p.Pid()))
			}
			r.AddAttrs(slog.Int("tid", re.Tid()))
		}
	}
	return w.inner.Handle(ctx, r)
}

func (w wrapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return wrapHandler{
		inner: w.inner.WithAttrs(attrs),
	}
}

func (w wrapHandler) WithGroup(name string) slog.Handler {
	return wrapHandler{
		inner: w.inner.WithGroup(name),
	}
}

type indentedWriter struct {
	out io.Writer
}

func (w *indentedWriter) Write(p []byte) (n int, err error) {
	if len(p) > 0 && p[len(p)-1] == '\n' {
		var x any
		if err := json.Unmarshal(p, &x); err == nil {
			o := json.NewEncoder(w.out)
			o.SetIndent("", "  ")
			o.Encode(x)
			return len(p), nil
		}
	}
	w.out.Write(p)
	return len(p), nil
}

func consoleWriter(out io.Writer, format Format) io.Writer {
	switch format {
	case FormatRaw:
		return out
	case FormatIndented:
		return &indentedWriter{
			out: out,
		}
	case FormatPretty, "":
		return prettylog.NewWriter(out)
	default:
		panic(format)
	}
}
