// Copyright 2024 The LizardFS-Go Authors
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

// Package logging builds the leveled, structured logger shared by every
// daemon, modeled on gcsfuse's internal/logger: a slog.Handler wrapper that
// renders either JSON or human-readable text and substitutes MooseFS's own
// severity names for slog's built-in levels.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Severity levels, offset from slog's so TRACE (more verbose than DEBUG)
// fits below it.
const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
)

var severityNames = map[slog.Leveler]string{
	LevelTrace:   "TRACE",
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelWarning: "WARNING",
	LevelError:   "ERROR",
}

// Format selects the on-wire rendering of log records.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Config controls logger construction; daemons decode this from their cfg
// struct (see cfg.LoggingConfig).
type Config struct {
	Format Format
	Level  string // "trace", "debug", "info", "warning", "error"
	Output io.Writer
}

func levelFromString(s string) slog.Level {
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warning", "warn":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// replaceSeverity renames slog's "level" attribute to "severity" and maps
// its value through severityNames, matching the original's syslog-derived
// vocabulary rather than slog's default DEBUG/INFO/WARN/ERROR spelling.
func replaceSeverity(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level := a.Value.Any().(slog.Level)
		name, ok := severityNames[level]
		if !ok {
			name = level.String()
		}
		a.Key = "severity"
		a.Value = slog.StringValue(name)
	}
	return a
}

// New builds a *slog.Logger per cfg. Components should take the logger via
// constructor injection (as the teacher's newer packages do) rather than a
// package-global, so tests can capture output per-instance.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(levelFromString(cfg.Level))

	opts := &slog.HandlerOptions{
		Level:       levelVar,
		ReplaceAttr: replaceSeverity,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// WithComponent returns a child logger tagging every record with the
// emitting subsystem (matocsserv, readexec, writepipe, ...), the way the
// original's syslog calls are already grouped by source file.
func WithComponent(l *slog.Logger, component string) *slog.Logger {
	return l.With(slog.String("component", component))
}

// Trace logs at the lowest severity; most daemons run above this level in
// production and only enable it for targeted debugging.
func Trace(ctx context.Context, l *slog.Logger, msg string, args ...any) {
	l.Log(ctx, LevelTrace, msg, args...)
}
