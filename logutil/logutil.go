package logutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

const LevelTrace slog.Level = -8

// Level lowers base by one step for every -v given on the command line.
// One -v enables debug output and two enable trace.
func Level(base slog.Level, verbose int) slog.Level {
	if verbose <= 0 {
		return base
	}
	return min(base, slog.LevelInfo-slog.Level(4*verbose))
}

// NewLogger returns a text logger that names LevelTrace and reports the
// source as file:line of the caller.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   true,
		ReplaceAttr: replaceAttr,
	}))
}

func replaceAttr(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return attr
	}

	switch attr.Key {
	case slog.LevelKey:
		if level, ok := attr.Value.Any().(slog.Level); ok && level <= LevelTrace {
			attr.Value = slog.StringValue("TRACE")
		}
	case slog.SourceKey:
		if source, ok := attr.Value.Any().(*slog.Source); ok {
			attr.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(source.File), source.Line))
		}
	}
	return attr
}

// Trace logs msg at LevelTrace on the default logger.
func Trace(msg string, args ...any) {
	trace(context.Background(), msg, args...)
}

func TraceContext(ctx context.Context, msg string, args ...any) {
	trace(ctx, msg, args...)
}

// trace must be called directly from an exported function so the recorded
// source is that function's caller.
func trace(ctx context.Context, msg string, args ...any) {
	logger := slog.Default()
	if !logger.Enabled(ctx, LevelTrace) {
		return
	}

	var pcs [1]uintptr
	// runtime.Callers, trace, Trace or TraceContext
	runtime.Callers(3, pcs[:])
	record := slog.NewRecord(time.Now(), LevelTrace, msg, pcs[0])
	record.Add(args...)
	_ = logger.Handler().Handle(ctx, record)
}

// LineWriter logs every complete line written to it at level, tagged with
// args. Output of long running tools is streamed through it so progress
// shows up while the tool runs. Close flushes a trailing partial line.
type LineWriter struct {
	logger *slog.Logger
	level  slog.Level
	args   []any

	mu  sync.Mutex
	buf bytes.Buffer
}

func NewLineWriter(logger *slog.Logger, level slog.Level, args ...any) *LineWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LineWriter{logger: logger, level: level, args: args}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// incomplete line, keep it for the next write
			w.buf.Write(line)
			break
		}
		w.emit(line)
	}
	return len(p), nil
}

func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.Bytes())
		w.buf.Reset()
	}
	return nil
}

func (w *LineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return
	}
	w.logger.Log(context.Background(), w.level, string(line), w.args...)
}
