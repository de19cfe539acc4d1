// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logging provides the structured logger used across the IGFS
// core: a slog-backed logger with a severity threshold and a choice of
// json/text formats, with optional rotation to a file via lumberjack.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity names.
const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

// traceLevel sits below slog.LevelDebug so that TRACE can be distinguished
// from DEBUG without forking the slog level type.
const traceLevel = slog.Level(-8)

func severityToLevel(sev string) slog.Level {
	switch sev {
	case TRACE:
		return traceLevel
	case DEBUG:
		return slog.LevelDebug
	case INFO:
		return slog.LevelInfo
	case WARNING:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	case OFF:
		return slog.Level(1 << 20)
	default:
		return slog.LevelInfo
	}
}

func levelSeverity(l slog.Level) string {
	switch {
	case l < slog.LevelDebug:
		return TRACE
	case l < slog.LevelInfo:
		return DEBUG
	case l < slog.LevelWarn:
		return INFO
	case l < slog.LevelError:
		return WARNING
	default:
		return ERROR
	}
}

func replaceSeverity(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		level := a.Value.Any().(slog.Level)
		a.Key = "severity"
		a.Value = slog.StringValue(levelSeverity(level))
	}
	if len(groups) == 0 && a.Key == slog.MessageKey {
		a.Key = "message"
	}
	return a
}

// Factory builds slog handlers at a configurable format and severity. The
// zero value is not ready for use; call NewFactory.
type Factory struct {
	mu     sync.Mutex
	format string // "json" or "text"
	level  *slog.LevelVar
	prefix string
	out    io.Writer
	closer io.Closer
}

// NewFactory builds a Factory writing to out in the given format ("json" or
// "text"), starting at the given severity.
func NewFactory(format string, severity string, out io.Writer) *Factory {
	lv := new(slog.LevelVar)
	lv.Set(severityToLevel(severity))
	return &Factory{format: format, level: lv, out: out}
}

// NewFileFactory is NewFactory but rotates into path using lumberjack.
func NewFileFactory(format, severity, path string, maxSizeMB, maxBackups, maxAgeDays int) *Factory {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	f := NewFactory(format, severity, lj)
	f.closer = lj
	return f
}

func (f *Factory) handler() slog.Handler {
	opts := &slog.HandlerOptions{Level: f.level, ReplaceAttr: replaceSeverity}
	if f.format == "json" {
		return slog.NewJSONHandler(f.out, opts)
	}
	return slog.NewTextHandler(f.out, opts)
}

// Logger returns a *slog.Logger backed by this factory. Messages are
// written as given; no prefix is added to them.
func (f *Factory) Logger() *slog.Logger {
	h := f.handler()
	if f.prefix != "" {
		return slog.New(h).With()
	}
	return slog.New(h)
}

// SetSeverity adjusts the minimum severity logged, at runtime.
func (f *Factory) SetSeverity(severity string) {
	f.level.Set(severityToLevel(severity))
}

// Close releases the underlying file, if any.
func (f *Factory) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

var (
	defaultMu      sync.RWMutex
	defaultFactory = NewFactory("text", INFO, os.Stderr)
	defaultLogger  = defaultFactory.Logger()
)

// Configure replaces the package-level default logger. Call once at process
// startup from igfscfg.
func Configure(f *Factory) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultFactory = f
	defaultLogger = f.Logger()
}

func current() *slog.Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

func Tracef(format string, args ...any) {
	current().Log(context.Background(), traceLevel, fmt.Sprintf(format, args...))
}
func Debugf(format string, args ...any) { current().Debug(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...any)  { current().Info(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...any)  { current().Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...any) { current().Error(fmt.Sprintf(format, args...)) }
