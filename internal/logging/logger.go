// Package logging provides the structured logger used across the engine,
// API, and breaker layers. It follows the layered approach of this
// codebase's production logger: JSON or human-readable output, a
// component tag, and optional debug-level gating — without pulling in
// an external logging framework, since none of the processor fallback
// path's upstream code does either.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Logger is the minimal structured-logging contract used across the
// module. Fields are always flattened into the emitted record.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	WithComponent(component string) Logger
}

// NoOp discards every record. Useful as a safe zero value in tests.
type NoOp struct{}

func (NoOp) Debug(string, map[string]interface{}) {}
func (NoOp) Info(string, map[string]interface{})  {}
func (NoOp) Warn(string, map[string]interface{})  {}
func (NoOp) Error(string, map[string]interface{}) {}
func (n NoOp) WithComponent(string) Logger         { return n }

// Config controls the structured logger's verbosity and encoding.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|text
	Output io.Writer
}

// Structured is the production logger implementation: one writer, a
// component tag carried on every record, and level-gated Debug output.
type Structured struct {
	level     string
	debug     bool
	format    string
	output    io.Writer
	component string
}

// New builds a Structured logger for the given component name.
func New(cfg Config, component string) *Structured {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	level := strings.ToLower(cfg.Level)
	if level == "" {
		level = "info"
	}
	format := cfg.Format
	if format == "" {
		format = "json"
	}
	return &Structured{
		level:     level,
		debug:     level == "debug",
		format:    format,
		output:    out,
		component: component,
	}
}

func (s *Structured) WithComponent(component string) Logger {
	clone := *s
	clone.component = component
	return &clone
}

func (s *Structured) Debug(msg string, fields map[string]interface{}) {
	if s.debug {
		s.emit("DEBUG", msg, fields)
	}
}

func (s *Structured) Info(msg string, fields map[string]interface{}) {
	s.emit("INFO", msg, fields)
}

func (s *Structured) Warn(msg string, fields map[string]interface{}) {
	s.emit("WARN", msg, fields)
}

func (s *Structured) Error(msg string, fields map[string]interface{}) {
	s.emit("ERROR", msg, fields)
}

func (s *Structured) emit(level, msg string, fields map[string]interface{}) {
	ts := time.Now().UTC().Format(time.RFC3339Nano)

	if s.format == "json" {
		rec := map[string]interface{}{
			"timestamp": ts,
			"level":     level,
			"component": s.component,
			"message":   msg,
		}
		for k, v := range fields {
			rec[k] = v
		}
		if data, err := json.Marshal(rec); err == nil {
			fmt.Fprintln(s.output, string(data))
		}
		return
	}

	var b strings.Builder
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	fmt.Fprintf(s.output, "%s [%s] [%s] %s%s\n", ts, level, s.component, msg, b.String())
}
