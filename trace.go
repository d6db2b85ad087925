// Developer-facing tracing, distinct from the user-facing Diagnostics
// channel: pass boundaries, include resolution, macro table churn.
// Silent by default so stdout (-E output, or the emitted assembly)
// never gets interleaved with it; enabled by -v or C67_TRACE.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// NewTracer builds a zerolog.Logger writing to stderr, at InfoLevel
// when verbose is true and Disabled otherwise.
func NewTracer(verbose bool) zerolog.Logger {
	level := zerolog.Disabled
	if verbose {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(level).
		With().Timestamp().Logger()
}

// Tracer is threaded through the pipeline stages that want to log
// progress; nil-safe so callers that don't care can pass the zero
// value through unchanged.
type Tracer struct {
	log zerolog.Logger
}

func NewPipelineTracer(l zerolog.Logger) *Tracer { return &Tracer{log: l} }

func (t *Tracer) Stage(name string) {
	if t == nil {
		return
	}
	t.log.Info().Str("stage", name).Msg("pipeline stage")
}

func (t *Tracer) Include(path string, depth int) {
	if t == nil {
		return
	}
	t.log.Info().Str("path", path).Int("depth", depth).Msg("include resolved")
}

func (t *Tracer) MacroTable(defined, expanded int) {
	if t == nil {
		return
	}
	t.log.Info().Int("defined", defined).Int("expanded", expanded).Msg("macro table churn")
}

// PragmaOnceFiles logs the set of files a #pragma once has guarded, in
// a stable order (the guard set is a plain map, so the iteration order
// needs sorting before it's safe to log deterministically).
func (t *Tracer) PragmaOnceFiles(seen map[string]bool) {
	if t == nil {
		return
	}
	files := maps.Keys(seen)
	slices.Sort(files)
	t.log.Info().Strs("files", files).Msg("pragma once guards")
}
